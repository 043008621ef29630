package normalizers

import (
	"strings"
)

// dashes are the hyphen lookalikes unified to "-". NFKC already folds the
// full-width hyphen-minus and the half-width prolonged sound mark.
var dashes = strings.NewReplacer(
	"\u2010", "-", // hyphen
	"\u2011", "-", // non-breaking hyphen
	"\u2012", "-", // figure dash
	"\u2013", "-", // en dash
	"\u2014", "-", // em dash
	"\u2015", "-", // horizontal bar
	"\u2212", "-", // minus sign
)

// Address returns the comparison key for an address: NFKC, dashes unified,
// kana prefecture readings rewritten to kanji, whitespace removed and Latin
// letters upper-cased. It does not parse the address into components.
func Address(s string) string {
	s = fold(s)
	if s == "" {
		return ""
	}
	s = dashes.Replace(s)
	s = unifyChoonBetweenDigits(s)
	for _, p := range prefectureReadings {
		if strings.HasPrefix(s, p.reading) {
			s = p.name + strings.TrimPrefix(s, p.reading)
			break
		}
	}
	return upperASCII(s)
}

// Prefecture returns the leading prefecture of a normalized address, or "".
func Prefecture(addr string) string {
	a := Address(addr)
	for _, p := range prefectures {
		if strings.HasPrefix(a, p.name) {
			return p.name
		}
	}
	return ""
}

// StripPrefecture returns the normalized address without its leading prefecture.
func StripPrefecture(addr string) string {
	a := Address(addr)
	for _, p := range prefectures {
		if strings.HasPrefix(a, p.name) {
			return strings.TrimPrefix(a, p.name)
		}
	}
	return a
}

// unifyChoonBetweenDigits turns "1ー2" into "1-2". The long vowel mark is
// left alone elsewhere since it is part of katakana words.
func unifyChoonBetweenDigits(s string) string {
	if !strings.ContainsRune(s, 'ー') {
		return s
	}
	rs := []rune(s)
	for i := 1; i < len(rs)-1; i++ {
		if rs[i] == 'ー' && isDigit(rs[i-1]) && isDigit(rs[i+1]) {
			rs[i] = '-'
		}
	}
	return string(rs)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
