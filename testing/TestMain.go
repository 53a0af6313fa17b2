// Package testing forces test mode onto every test binary that links it in.
// Tests that exercise anything near the process entry points import it blank
// so the server and worker mains stay inert.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CHURNSCOPE_TEST_MODE", "1")
	})
}

func init() {
	ensureTestMode()
}

// TestMain is for test packages that want the guard plus default behavior.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
