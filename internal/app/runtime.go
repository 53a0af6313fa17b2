package app

import (
	"os"
	"sync"
)

const testModeEnv = "CHURNSCOPE_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether process entry points must stay inert. The root
// testing package sets the flag before any test in this module runs, so a
// test binary can never boot the real server or worker.
func InTestMode() bool {
	return inTestMode()
}
