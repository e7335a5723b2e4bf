package util

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()
	tagRe    = regexp.MustCompile(`<[^>]*>`)
)

// Validator exposes the shared validator (also used as echo's Validator).
func Validator() *validator.Validate { return validate }

// SanitizeText cleans a single-line user supplied string: tags and control
// characters are removed, whitespace runs collapse to one space, and the
// result is trimmed.
func SanitizeText(raw string) string {
	s := tagRe.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeEmail trims the address; casing is kept for display.
func SanitizeEmail(raw string) string {
	return strings.TrimSpace(raw)
}

// NormalizeEmail is the comparable form used for uniqueness.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidEmail reports whether s is a syntactically valid address.
func ValidEmail(s string) bool {
	if s == "" || len(s) > 320 {
		return false
	}
	return validate.Var(s, "required,email") == nil
}

// ValidName reports whether a sanitized name is usable.
func ValidName(s string) bool {
	return s != "" && len(s) <= 255
}
