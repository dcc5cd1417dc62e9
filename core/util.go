package core

import (
	"regexp"
	"strings"
)

// emailRegex is the shape an identifier must have to be used as an email directly.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// IsEmail reports whether `s` looks like an email address.
func IsEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// SameFold compares two user supplied strings, ignoring surrounding whitespace and case.
func SameFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Mask hides all but the first character of `s`, and the domain for emails: "j***@x.com".
// Used to log which credential was supplied without leaking it.
func Mask(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	local, domain := s, ""
	if i := strings.LastIndex(s, "@"); i > 0 {
		local, domain = s[:i], s[i:]
	}
	runes := []rune(local)
	return string(runes[0]) + strings.Repeat("*", len(runes)-1) + domain
}
