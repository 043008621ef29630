package models

// ClusterKey is the (normalized name, normalized address) pair records are
// grouped by.
type ClusterKey struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (k ClusterKey) String() string {
	return k.Name + "|" + k.Address
}

// DuplicateGroup lives for one resolution run.
type DuplicateGroup struct {
	Key        ClusterKey `json:"key"`
	MemberIDs  []string   `json:"memberIds"`
	SurvivorID string     `json:"survivorId"`
	// MergedFieldsLog maps each field the survivor gained to the sibling it came from.
	MergedFieldsLog map[string]string `json:"mergedFieldsLog,omitempty"`
	Plan            *MergePlan        `json:"plan,omitempty"`
}

// DeletedIDs returns every member except the survivor.
func (g *DuplicateGroup) DeletedIDs() []string {
	out := make([]string, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		if id != g.SurvivorID {
			out = append(out, id)
		}
	}
	return out
}

// ConflictedCluster is a group left untouched because its members carry
// different valid corporate numbers.
type ConflictedCluster struct {
	Key              ClusterKey `json:"key"`
	MemberIDs        []string   `json:"memberIds"`
	CorporateNumbers []string   `json:"corporateNumbers"`
}
