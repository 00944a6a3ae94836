package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"ammrelay/apierr"
)

// AdminAuth gates the admin-only anchor-pool mutation and analytics-export
// routes (spec §4.6, §4.8). A request must satisfy bearer-token auth (if
// configured), mTLS client-certificate presence (if required), or both when
// both are configured.
type AdminAuth struct {
	BearerToken     string
	RequireMTLS     bool
}

// Middleware rejects any request that doesn't satisfy the configured admin
// checks before the handler sees it.
func (a AdminAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.RequireMTLS && (r.TLS == nil || len(r.TLS.PeerCertificates) == 0) {
				writeError(w, apierr.New(apierr.Unauthorized, nil))
				return
			}
			if a.BearerToken != "" && !bearerMatches(r, a.BearerToken) {
				writeError(w, apierr.New(apierr.Unauthorized, nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerMatches(r *http.Request, expected string) bool {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := strings.TrimPrefix(header, prefix)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
