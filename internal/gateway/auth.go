package gateway

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/soyeahso/agentgen/internal/config"
)

// TokenEnv supplies the bearer token when the config file leaves it empty.
const TokenEnv = "AGENTGEN_TOKEN"

// ResolveToken returns the bearer token the server requires.
// Precedence: config value → env variable → empty (auth disabled).
func ResolveToken(cfg config.ServerConfig) string {
	if cfg.Token != "" {
		return cfg.Token
	}
	return os.Getenv(TokenEnv)
}

// requestToken extracts the caller's token from the Authorization header,
// falling back to the token query parameter for websocket clients that
// cannot set headers.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// authorized reports whether r carries the expected token. An empty
// expected token disables the check.
func authorized(expected string, r *http.Request) bool {
	if expected == "" {
		return true
	}
	got := requestToken(r)
	if got == "" {
		return false
	}
	return safeEqual(got, expected)
}

// safeEqual performs a constant-time string comparison.
// It avoids early-return on length mismatch to prevent leaking secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
