package normalizers

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// abbreviations maps parenthesized short forms, as they appear after NFKC
// (so ㈱ and （株） both arrive as "(株)"), to the full legal designation.
var abbreviations = []struct{ short, full string }{
	{"(特非)", "特定非営利活動法人"},
	{"(株)", "株式会社"},
	{"(有)", "有限会社"},
	{"(合)", "合資会社"},
	{"(資)", "合資会社"},
	{"(名)", "合名会社"},
	{"(同)", "合同会社"},
	{"(財)", "財団法人"},
	{"(社)", "社団法人"},
	{"(医)", "医療法人"},
	{"(学)", "学校法人"},
	{"(宗)", "宗教法人"},
	{"(福)", "社会福祉法人"},
}

// LegalSuffixes is the closed list of legal-entity designations, longest first.
var LegalSuffixes = sortedByLength([]string{
	"株式会社", "有限会社", "合資会社", "合名会社", "合同会社",
	"一般社団法人", "一般財団法人", "公益社団法人", "公益財団法人",
	"社団法人", "財団法人",
	"学校法人", "医療法人", "社会福祉法人", "宗教法人",
	"特定非営利活動法人", "NPO法人", "協同組合", "農業協同組合",
	"生活協同組合", "信用金庫", "信用組合", "労働金庫",
	"相互会社", "独立行政法人", "地方独立行政法人",
	"税理士法人", "司法書士法人", "弁理士法人", "行政書士法人",
	"土地家屋調査士法人", "社会保険労務士法人", "弁護士法人", "監査法人",
	"国立大学法人", "公立大学法人", "国立研究開発法人",
})

// titles are role words that show up where a company name should be.
var titles = sortedByLength([]string{
	"代表取締役社長", "代表取締役", "取締役社長", "代表社員", "代表理事",
	"代表者", "代表", "理事長", "社長", "会長", "取締役", "監査役",
	"執行役員", "役員", "院長", "園長", "学長", "校長", "所長", "組合長",
})

// noiseTitles mark a value as a role rather than a company when they lead it
// and no legal designation follows.
var noiseTitles = []string{"代表者", "代表取締役", "社長", "取締役", "監査役", "執行役員", "役員"}

var honorifics = []string{"さん", "様", "殿", "氏"}

var (
	westernDatePattern = regexp.MustCompile(`^\d{4}[-/.年]\d{1,2}(?:[-/.月]\d{1,2}日?|月)?$`)
	eraDatePattern     = regexp.MustCompile(`^(?:明治|大正|昭和|平成|令和)(?:\d{1,2}|元)年(?:\d{1,2}月(?:\d{1,2}日)?)?$`)
	listSeparators     = regexp.MustCompile(`[,、]`)
)

// CompanyName returns the comparison key for a company name: NFKC, all
// whitespace removed, abbreviated legal designations expanded and Latin
// letters upper-cased.
func CompanyName(s string) string {
	s = fold(s)
	if s == "" {
		return ""
	}
	for _, a := range abbreviations {
		s = strings.ReplaceAll(s, a.short, a.full)
	}
	return upperASCII(s)
}

// CompanyNameCore is CompanyName with one leading or trailing legal
// designation removed. "株式会社テスト" and "テスト(株)" share the core "テスト".
func CompanyNameCore(s string) string {
	name := CompanyName(s)
	if name == "" {
		return ""
	}
	for _, suffix := range LegalSuffixes {
		if strings.HasPrefix(name, suffix) {
			return strings.TrimPrefix(name, suffix)
		}
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// HasLegalSuffix reports whether the normalized name carries a legal designation.
func HasLegalSuffix(s string) bool {
	name := CompanyName(s)
	for _, suffix := range LegalSuffixes {
		if strings.Contains(name, suffix) {
			return true
		}
	}
	return false
}

// PersonName normalizes a representative name: NFKC, whitespace removed,
// leading role titles and trailing honorifics stripped.
func PersonName(s string) string {
	s = fold(s)
	for changed := true; changed && s != ""; {
		changed = false
		for _, t := range titles {
			if strings.HasPrefix(s, t) {
				s = strings.TrimLeft(strings.TrimPrefix(s, t), ":・")
				changed = true
				break
			}
		}
	}
	for _, h := range honorifics {
		s = strings.TrimSuffix(s, h)
	}
	return upperASCII(s)
}

// IsLikelyPersonNameOrNoise flags values that cannot be a company name:
// role titles, short comma-separated lists and bare dates.
func IsLikelyPersonNameOrNoise(name string) bool {
	s := strings.TrimSpace(norm.NFKC.String(name))
	if s == "" {
		return true
	}
	compact := RemoveWhitespace(s)

	for _, t := range titles {
		if compact == t {
			return true
		}
	}
	if !HasLegalSuffix(compact) {
		for _, t := range noiseTitles {
			if strings.HasPrefix(compact, t) {
				return true
			}
		}
	}

	parts := listSeparators.Split(s, -1)
	if len(parts) >= 2 {
		short := 0
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" && utf8.RuneCountInString(p) <= 10 {
				short++
			}
		}
		if short >= 2 && short == len(parts) {
			return true
		}
	}

	return westernDatePattern.MatchString(compact) || eraDatePattern.MatchString(compact)
}

func sortedByLength(list []string) []string {
	sort.SliceStable(list, func(i, j int) bool {
		return utf8.RuneCountInString(list[i]) > utf8.RuneCountInString(list[j])
	})
	return list
}
