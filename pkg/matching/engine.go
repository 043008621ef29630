// Package matching decides which stored record, if any, an incoming record
// refers to. The Engine is a pure function of its policy and an index
// snapshot: it never mutates state, never retries and never fails.
package matching

import (
	"fmt"
	"slices"

	"github.com/Ramsey-B/fern/pkg/index"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Engine runs the ordered matching policy.
type Engine struct {
	policy Policy
	scorer *Scorer
}

// NewEngine creates a match engine for policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{
		policy: policy,
		scorer: NewScorer(policy),
	}
}

// Policy returns the policy the engine was built with.
func (e *Engine) Policy() Policy {
	return e.policy
}

// lookup carries per-call state through the steps.
type lookup struct {
	keys  index.Keys
	idx   *index.Index
	ties  []string
	steps []string
}

// noteTie remembers a non-unique candidate set so the caller can tell
// ambiguity apart from absence.
func (l *lookup) noteTie(step string, ids []string) {
	l.ties = ids
	l.steps = append(l.steps, step)
}

// compatible drops candidates whose valid corporate number contradicts the
// incoming one.
func (l *lookup) compatible(ids []string) []string {
	if l.keys.CorporateNumber == "" {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		k, _ := l.idx.Keys(id)
		if k.CorporateNumber != "" && k.CorporateNumber != l.keys.CorporateNumber {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Match runs the policy for one incoming record against idx.
func (e *Engine) Match(incoming *models.PartialCompanyRecord, idx *index.Index) models.MatchDecision {
	return e.MatchKeys(index.KeysOfPartial(incoming), idx)
}

// MatchKeys runs the policy for precomputed keys.
func (e *Engine) MatchKeys(keys index.Keys, idx *index.Index) models.MatchDecision {
	l := &lookup{keys: keys, idx: idx}

	// 1. corporate number
	if keys.CorporateNumber != "" {
		ids := idx.ByCorporateNumber(keys.CorporateNumber)
		switch {
		case len(ids) == 1:
			return e.decide(ids[0], e.policy.Scores.CorporateNumber, models.MatchedByCorporateNumber, "corporate number")
		case len(ids) > 1:
			l.noteTie("corporate number", ids)
		}
	}

	if keys.Name == "" || keys.NameIsNoise {
		return e.fallback(l, nil, "name missing or not a company name")
	}

	// 2. name + postal code
	if keys.PostalCode != "" {
		ids := l.compatible(idx.ByNameAndPostal(keys.Name, keys.PostalCode))
		switch {
		case len(ids) == 1:
			return e.decide(ids[0], e.policy.Scores.NameAndPostal, models.MatchedByNameAndPostal, "name and postal code")
		case len(ids) > 1:
			l.noteTie("name and postal code", ids)
		}
	}

	// 3. name + address
	if keys.Address != "" {
		ids := l.compatible(idx.ByNameAndAddress(keys.Name, keys.Address))
		switch {
		case len(ids) == 1:
			return e.decide(ids[0], e.policy.Scores.NameAndAddress, models.MatchedByNameAndAddress, "name and address")
		case len(ids) > 1:
			l.noteTie("name and address", ids)
		}
	}

	nameIDs := l.compatible(idx.ByName(keys.Name))

	// 4. name + partial address
	if keys.Address != "" && len(nameIDs) > 0 {
		scores := make(map[string]int)
		for _, id := range l.compatible(idx.NameCandidates(keys.Name)) {
			k, _ := idx.Keys(id)
			if ok, depth := e.scorer.AddressOverlap(keys.Address, k.Address); ok {
				scores[id] = e.scorer.PartialAddressScore(depth)
			}
		}
		if id, score, tied := best(scores); id != "" {
			return e.decide(id, score, models.MatchedByNameHighPrecisionAddressPartial, "name and partial address")
		} else if len(tied) > 1 {
			l.noteTie("name and partial address", tied)
		}
	}

	// 5. high-precision core name with corroborating signals
	if id, score, tied := e.highPrecision(l); id != "" {
		return e.decide(id, score, models.MatchedByNameHighPrecisionAddressPartial, "name core with corroborating signals")
	} else if len(tied) > 1 {
		l.noteTie("name core with corroborating signals", tied)
	}

	// 6. name only, unique bucket
	if len(nameIDs) == 1 {
		return e.decide(nameIDs[0], e.policy.Scores.NameOnly, models.MatchedByNameOnlyUnique, "unique name")
	}
	return e.fallback(l, nameIDs, "no step produced a unique candidate")
}

// highPrecision gathers candidates sharing the name core, address or postal
// code, keeps those whose core matches, and sums the corroborating signals.
// Only sums at or above the low-confidence threshold are considered.
func (e *Engine) highPrecision(l *lookup) (string, int, []string) {
	k := l.keys
	if k.Core == "" {
		return "", 0, nil
	}

	pool := append(l.idx.ByCore(k.Core), l.idx.ByAddress(k.Address)...)
	pool = append(pool, l.idx.ByPostal(k.PostalCode)...)
	slices.Sort(pool)
	pool = l.compatible(slices.Compact(pool))

	w := e.policy.Signals
	scores := make(map[string]int)
	for _, id := range pool {
		ck, _ := l.idx.Keys(id)
		if !e.scorer.CoreMatch(k.Core, ck.Core) {
			continue
		}

		score := 0
		corroborated := false
		if k.Address != "" && ck.Address != "" {
			if k.Address == ck.Address {
				score += w.AddressExact
				corroborated = true
			} else if ok, _ := e.scorer.AddressOverlap(k.Address, ck.Address); ok {
				score += w.AddressPrefix
				corroborated = true
			}
		}
		if k.Representative != "" && k.Representative == ck.Representative {
			score += w.Representative
			corroborated = true
		}
		if !corroborated {
			continue
		}
		if k.CorporateNumber != "" && k.CorporateNumber == ck.CorporateNumber {
			score += w.CorporateNumber
		}
		if e.policy.MaxScore > 0 {
			score = min(score, e.policy.MaxScore)
		}
		if score >= e.policy.LowConfidence {
			scores[id] = score
		}
	}
	return best(scores)
}

// decide turns a single candidate into a decision using the score tiers.
func (e *Engine) decide(id string, score int, by models.MatchedBy, reason string) models.MatchDecision {
	candidate := &models.MatchCandidate{RecordID: id, Score: score, MatchedBy: by}
	switch e.policy.Classify(score) {
	case TierHigh:
		return models.MatchDecision{Outcome: models.OutcomeMatch, Candidate: candidate, Reason: reason}
	case TierLow:
		return models.MatchDecision{Outcome: models.OutcomeMatch, Candidate: candidate, LowConfidence: true, Reason: reason}
	default:
		return models.MatchDecision{
			Outcome:   models.OutcomeNoMatch,
			Candidate: candidate,
			Reason:    fmt.Sprintf("%s scored %d, below %d", reason, score, e.policy.LowConfidence),
		}
	}
}

// fallback resolves a lookup where no step was decisive. Ties seen along the
// way make the result ambiguous. A shared name alone is ambiguous only when
// the incoming record had no location evidence to tell the candidates apart;
// when it did and nothing matched, the record is new.
func (e *Engine) fallback(l *lookup, nameIDs []string, reason string) models.MatchDecision {
	if len(l.ties) > 1 {
		return models.MatchDecision{
			Outcome:    models.OutcomeAmbiguous,
			Candidates: sorted(l.ties),
			Reason:     fmt.Sprintf("several candidates by %s", l.steps[len(l.steps)-1]),
		}
	}
	if len(nameIDs) > 1 {
		if l.keys.Address == "" && l.keys.PostalCode == "" {
			return models.MatchDecision{
				Outcome:    models.OutcomeAmbiguous,
				Candidates: sorted(nameIDs),
				Reason:     fmt.Sprintf("name shared by %d records", len(nameIDs)),
			}
		}
		return models.MatchDecision{
			Outcome: models.OutcomeNoMatch,
			Reason:  fmt.Sprintf("name shared by %d records, none at the given location", len(nameIDs)),
		}
	}
	return models.MatchDecision{Outcome: models.OutcomeNoMatch, Reason: reason}
}

// best returns the unique top scorer, or the tied ids when the top score is shared.
func best(scores map[string]int) (string, int, []string) {
	top := -1
	var ids []string
	for id, s := range scores {
		switch {
		case s > top:
			top = s
			ids = []string{id}
		case s == top:
			ids = append(ids, id)
		}
	}
	if len(ids) == 1 {
		return ids[0], top, nil
	}
	return "", 0, sorted(ids)
}

func sorted(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}
