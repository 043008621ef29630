package models

// FieldConflict records an incoming value that lost to existing content.
type FieldConflict struct {
	Field    string `json:"field"`
	Existing any    `json:"existing"`
	Incoming any    `json:"incoming"`
}

// MergePlan is the computed set of changes needed to fold incoming data into
// the target record. It is consumed by the batch executor and discarded.
type MergePlan struct {
	TargetID        string          `json:"targetId"`
	FieldsToSet     map[string]any  `json:"fieldsToSet"`
	FieldsPreserved []string        `json:"fieldsPreserved,omitempty"`
	Conflicts       []FieldConflict `json:"conflicts,omitempty"`
}

// NewMergePlan returns an empty plan for target.
func NewMergePlan(targetID string) *MergePlan {
	return &MergePlan{
		TargetID:    targetID,
		FieldsToSet: make(map[string]any),
	}
}

// IsNoop reports whether applying the plan would change nothing.
func (p *MergePlan) IsNoop() bool {
	return p == nil || len(p.FieldsToSet) == 0
}
