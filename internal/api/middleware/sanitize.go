package middleware

import (
	"net/http"
	"strings"

	"github.com/Wikid82/entitled/internal/util"
)

var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-auth-token":        {},
	"x-mfa-code":          {},
	"x-forwarded-for":     {},
}

// SanitizeHeaders returns header values safe for logging. Credentials and
// second-factor codes are redacted; everything else is sanitized and truncated.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
			out[k] = []string{"<redacted>"}
			continue
		}
		clean := make([]string, 0, len(vals))
		for _, v := range vals {
			clean = append(clean, util.SanitizeForLog(v))
		}
		out[k] = clean
	}
	return out
}

// SanitizePath prepares a request path for logging. Query parameters are dropped.
func SanitizePath(p string) string {
	if i := strings.Index(p, "?"); i != -1 {
		p = p[:i]
	}
	return util.SanitizeForLog(p)
}
