package normalizers

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// exponentPattern catches spreadsheet artifacts such as "1.23457E+12";
// the digits lost to rounding cannot be recovered.
var exponentPattern = regexp.MustCompile(`\d+\.\d+[eE]\+\d+`)

// CorporateNumber returns the 13-digit corporate number contained in s, or
// "" when s holds anything else. No check-digit validation is applied.
func CorporateNumber(s string) string {
	s = norm.NFKC.String(s)
	if exponentPattern.MatchString(s) {
		return ""
	}
	digits := DigitsOnly(s)
	if len(digits) != 13 {
		return ""
	}
	return digits
}

// PostalCode returns the 7 digits of a postal code, or "".
func PostalCode(s string) string {
	digits := DigitsOnly(norm.NFKC.String(s))
	if len(digits) != 7 {
		return ""
	}
	return digits
}

// FormatPostalCode returns the display form "123-4567", or "".
func FormatPostalCode(s string) string {
	code := PostalCode(s)
	if code == "" {
		return ""
	}
	return code[:3] + "-" + code[3:]
}
