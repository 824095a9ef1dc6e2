package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credentials and patient identifiers in log attributes.
// Export payloads never reach the log, but ids, object keys, signed URLs
// and connection strings do.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Pattern names.
const (
	PatternEmail        = "email"
	PatternPhone        = "phone"
	PatternURLSignature = "url_signature"
	PatternURLPassword  = "url_password"
	PatternPassword     = "password"
)

// NewRedactor creates a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	defs := []struct {
		name        string
		regex       string
		replacement string
	}{
		{PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "***@***"},
		{PatternPhone, `\+\d[\d\s().-]{7,}\d`, "+***"},
		// Presigned S3 query parameters.
		{PatternURLSignature, `(X-Amz-(?:Signature|Credential|Security-Token)=)[^&\s]+`, "${1}***"},
		// user:password@ in connection strings.
		{PatternURLPassword, `(://[^:/@\s]+:)[^@\s]+@`, "${1}***@"},
		{PatternPassword, `(password|passwd|secret)[:=]\s*[^\s&]+`, "$1=***"},
	}

	r := &Redactor{}
	for _, d := range defs {
		r.patterns = append(r.patterns, &redactPattern{
			name:        d.name,
			regex:       regexp.MustCompile(d.regex),
			replacement: d.replacement,
		})
	}
	return r
}

// RedactString masks every pattern match in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "***")
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"password", "secret", "token", "access_key", "authorization"} {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
