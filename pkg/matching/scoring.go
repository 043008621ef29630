package matching

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Scorer provides the comparison primitives the matching steps are built on.
// All inputs are expected to be normalized keys.
type Scorer struct {
	policy Policy
}

// NewScorer creates a new Scorer
func NewScorer(policy Policy) *Scorer {
	return &Scorer{policy: policy}
}

// AddressOverlap compares two normalized addresses with the prefecture
// removed. It reports whether they overlap partially and how deep the
// overlap is, as a fraction of the longer address.
func (s *Scorer) AddressOverlap(a, b string) (bool, float64) {
	if a == "" || b == "" {
		return false, 0
	}
	ra := []rune(normalizers.StripPrefecture(a))
	rb := []rune(normalizers.StripPrefecture(b))
	if len(ra) == 0 || len(rb) == 0 {
		return false, 0
	}
	longer := max(len(ra), len(rb))

	short, long := ra, rb
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) >= s.policy.MinContainment && strings.Contains(string(long), string(short)) {
		return true, float64(len(short)) / float64(longer)
	}

	common := commonPrefix(ra, rb)
	if common >= s.policy.PrefixLength {
		return true, float64(common) / float64(longer)
	}
	return false, 0
}

// PartialAddressScore maps overlap depth onto the partial-address score band.
func (s *Scorer) PartialAddressScore(depth float64) int {
	depth = math.Max(0, math.Min(1, depth))
	span := float64(s.policy.Scores.PartialMax - s.policy.Scores.PartialMin)
	return s.policy.Scores.PartialMin + int(math.Round(span*depth))
}

// CoreMatch reports whether two suffix-free name cores are equal, or whether
// one contains the other and the shorter is long enough relative to the
// longer.
func (s *Scorer) CoreMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	short, long := a, b
	ls, ll := la, lb
	if la > lb {
		short, long = b, a
		ls, ll = lb, la
	}
	if !strings.Contains(long, short) {
		return false
	}
	return float64(ls)/float64(ll) >= s.policy.ContainmentRatio
}

func commonPrefix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
