package security

import (
	"net/http"
	"strings"
	"unicode"
)

// SanitizeForLog makes a client supplied string safe to log: newlines and
// tabs are escaped, other control characters dropped, and the result
// truncated to 200 characters.
func SanitizeForLog(s string) string {
	return SanitizeForLogWithLength(s, 200)
}

// SanitizeForLogWithLength sanitizes a string for logging with a custom max length.
func SanitizeForLogWithLength(s string, maxLen int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(min(len(s), maxLen+10))

	count := 0
	for _, r := range s {
		if count >= maxLen {
			b.WriteString("...")
			break
		}

		switch r {
		case '\n':
			b.WriteString("\\n")
			count += 2
		case '\r':
			b.WriteString("\\r")
			count += 2
		case '\t':
			b.WriteString("\\t")
			count += 2
		default:
			if !unicode.IsControl(r) {
				b.WriteRune(r)
				count++
			}
		}
	}

	return b.String()
}

var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"x-api-key":           true,
	"api-key":             true,
	"cookie":              true,
	"proxy-authorization": true,
}

// MaskSensitiveHeaders returns a copy of headers with credentials masked.
func MaskSensitiveHeaders(headers http.Header) http.Header {
	if headers == nil {
		return nil
	}
	masked := make(http.Header, len(headers))
	for name, values := range headers {
		if sensitiveHeaders[strings.ToLower(name)] {
			masked[name] = []string{"[REDACTED]"}
			continue
		}
		masked[name] = append([]string(nil), values...)
	}
	return masked
}
