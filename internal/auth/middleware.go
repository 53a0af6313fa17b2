// Package auth guards the API with a single operator bearer token. The
// configured value is a bcrypt hash; the plaintext token never touches
// configuration or logs.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/churnscope/churnscope/internal/platform/httpx"
)

// Middleware rejects API requests that do not carry the operator token.
type Middleware struct {
	tokenHash []byte
	logger    *slog.Logger
	compare   func(hash, token []byte) error

	mu       sync.RWMutex
	verified []byte
}

// NewMiddleware constructs the guard. An empty hash fails closed: every
// request is rejected until a token is configured.
func NewMiddleware(tokenHash string, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		tokenHash: []byte(tokenHash),
		logger:    logger,
		compare:   bcrypt.CompareHashAndPassword,
	}
}

// RequireToken validates the Authorization header on every request.
func (m *Middleware) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || len(m.tokenHash) == 0 {
			m.unauthorized(w)
			return
		}
		if !m.allowed([]byte(token)) {
			m.logger.Warn("rejected api token", slog.String("path", r.URL.Path))
			m.unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowed reports whether token matches the configured hash. The bcrypt cost
// is paid once per distinct presented token; subsequent requests hit a
// constant-time comparison against the cached plaintext.
func (m *Middleware) allowed(token []byte) bool {
	m.mu.RLock()
	cached := m.verified
	m.mu.RUnlock()
	if len(cached) > 0 && subtle.ConstantTimeCompare(cached, token) == 1 {
		return true
	}
	if m.compare(m.tokenHash, token) != nil {
		return false
	}
	m.mu.Lock()
	m.verified = append([]byte(nil), token...)
	m.mu.Unlock()
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

func (m *Middleware) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="churnscope"`)
	httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid api token")
}
