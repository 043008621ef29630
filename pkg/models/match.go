package models

// MatchedBy names the policy step that produced a candidate.
type MatchedBy string

const (
	MatchedByCorporateNumber                 MatchedBy = "CorporateNumber"
	MatchedByNameAndPostal                   MatchedBy = "NameAndPostal"
	MatchedByNameAndAddress                  MatchedBy = "NameAndAddress"
	MatchedByNameHighPrecisionAddressPartial MatchedBy = "NameHighPrecisionAddressPartial"
	MatchedByNameOnlyUnique                  MatchedBy = "NameOnlyUnique"
)

// MatchOutcome is the three-way result of a lookup.
type MatchOutcome string

const (
	OutcomeMatch     MatchOutcome = "match"
	OutcomeAmbiguous MatchOutcome = "ambiguous"
	OutcomeNoMatch   MatchOutcome = "no_match"
)

// MatchCandidate is produced per lookup and never persisted.
type MatchCandidate struct {
	RecordID  string    `json:"recordId"`
	Score     int       `json:"score"`
	MatchedBy MatchedBy `json:"matchedBy"`
}

// MatchDecision is the Matcher's verdict for one incoming record.
type MatchDecision struct {
	Outcome       MatchOutcome    `json:"outcome"`
	Candidate     *MatchCandidate `json:"candidate,omitempty"`
	LowConfidence bool            `json:"lowConfidence"`
	// Candidates holds the tied ids when Outcome is ambiguous.
	Candidates []string `json:"candidates,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// IsMatch reports whether the decision names a single record.
func (d MatchDecision) IsMatch() bool {
	return d.Outcome == OutcomeMatch && d.Candidate != nil
}
