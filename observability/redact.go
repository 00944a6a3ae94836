package observability

import (
	"log/slog"
	"sort"
	"strings"
)

// Redacted is the placeholder written in place of a sensitive field.
const Redacted = "[REDACTED]"

// sensitiveFieldAllowlist enumerates the request/log fields safe to emit
// verbatim. Everything else routed through MaskField is masked; in
// particular userSeed (POST /swap/execute, /liquidity/add) and any bearer
// token or passphrase must never reach a log line unredacted.
var sensitiveFieldAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"component":  {},
	"message":    {},
	"severity":   {},
	"timestamp":  {},
	"error":      {},
	"reason":     {},
	"pool":       {},
	"token_in":   {},
	"token_out":  {},
	"user":       {},
	"route":      {},
	"method":     {},
	"status":     {},
	"request_id": {},
}

// Allowlisted reports whether key may be logged without masking.
func Allowlisted(key string) bool {
	_, ok := sensitiveFieldAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Allowlist returns a sorted copy of the keys exempt from redaction, used by
// tests to assert that sensitive fields remain masked.
func Allowlist() []string {
	keys := make([]string, 0, len(sensitiveFieldAllowlist))
	for k := range sensitiveFieldAllowlist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns a slog.Attr with value redacted unless key is
// allowlisted or value is empty.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || Allowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, Redacted)
}
