// Package httpmw holds the coordinator's HTTP middleware: CORS, request
// observability, and per-route rate limiting, composed by the server
// package around the chi router (spec §4.8's HTTP surface).
package httpmw

import (
	"net/http"
	"strings"
)

// CORSConfig configures cross-origin access to the coordinator's HTTP
// surface. Wallet frontends are the primary caller, so the default is
// permissive access (GET, POST, PUT, DELETE, OPTIONS) with no credentials.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

type corsPolicy struct {
	allowAll         bool
	origins          map[string]struct{}
	methods          string
	headers          string
	allowCredentials bool
	maxAge           string
}

// CORS returns middleware that answers preflight requests and annotates
// actual requests with the matching Access-Control-* headers. Unlike a
// single static Access-Control-Allow-Origin value, it echoes back whichever
// configured origin the request actually presented, which is required once
// AllowCredentials is set (the wildcard "*" is invalid with credentials).
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	p := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed, value := p.resolveOrigin(origin); allowed {
				w.Header().Set("Access-Control-Allow-Origin", value)
				w.Header().Add("Vary", "Origin")
				if p.allowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}
			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", p.methods)
			w.Header().Set("Access-Control-Allow-Headers", p.headers)
			if p.maxAge != "" {
				w.Header().Set("Access-Control-Max-Age", p.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	set := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
			continue
		}
		set[o] = struct{}{}
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "Authorization", "X-Request-Id"}
	}
	maxAge := ""
	if cfg.MaxAgeSeconds > 0 {
		maxAge = itoa(cfg.MaxAgeSeconds)
	}
	return &corsPolicy{
		allowAll:         allowAll,
		origins:          set,
		methods:          strings.Join(methods, ", "),
		headers:          strings.Join(headers, ", "),
		allowCredentials: cfg.AllowCredentials,
		maxAge:           maxAge,
	}
}

// resolveOrigin reports whether origin may access the response and, if so,
// the literal value to echo back in Access-Control-Allow-Origin.
func (p *corsPolicy) resolveOrigin(origin string) (bool, string) {
	if origin == "" {
		if p.allowAll && !p.allowCredentials {
			return true, "*"
		}
		return false, ""
	}
	if _, ok := p.origins[origin]; ok {
		return true, origin
	}
	if p.allowAll {
		if p.allowCredentials {
			return true, origin
		}
		return true, "*"
	}
	return false, ""
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		digits[i] = '-'
	}
	return string(digits[i:])
}
