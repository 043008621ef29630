// Package normalizers turns raw company identity fields into canonical
// comparison keys. Every normalizer is total: a rejected or empty input
// yields "" and nothing panics.
package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("company_name", CompanyName)
	Register("company_core", CompanyNameCore)
	Register("address", Address)
	Register("prefecture", Prefecture)
	Register("corporate_number", CorporateNumber)
	Register("postal_code", PostalCode)
	Register("person_name", PersonName)
	Register("trim", Trim)
	Register("digits_only", DigitsOnly)
	Register("remove_whitespace", RemoveWhitespace)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value untouched.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Names returns the registered normalizer names.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// DigitsOnly keeps only ASCII digits.
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemoveWhitespace removes all whitespace characters, including the
// ideographic space.
func RemoveWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// fold applies compatibility normalization (full-width digits and letters
// to ASCII, half-width katakana to full-width) and drops all whitespace.
// A transformer chain is stateful, so one is built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFKC, runes.Remove(runes.In(unicode.White_Space)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return RemoveWhitespace(norm.NFKC.String(s))
	}
	return out
}

// upperASCII upper-cases Latin letters only; kana and kanji pass through.
func upperASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, s)
}
