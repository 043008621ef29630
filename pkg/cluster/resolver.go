// Package cluster collapses groups of stored records that share a
// normalized name and address into one survivor each.
package cluster

import (
	"sort"
	"time"

	"github.com/Ramsey-B/fern/pkg/index"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Resolver finds duplicate clusters and plans their resolution. It is pure:
// the corpus is never mutated.
type Resolver struct {
	merger *merging.FieldMerger
}

// NewResolver creates a Resolver. Siblings never overwrite the survivor's
// name, so the fold uses a merger without always-overwrite fields.
func NewResolver() *Resolver {
	return &Resolver{merger: merging.NewFieldMerger(merging.WithAlwaysOverwrite())}
}

// Result is the outcome of one resolution pass.
type Result struct {
	Groups     []*models.DuplicateGroup
	Plans      []*models.MergePlan
	Deletions  []string
	Conflicted []models.ConflictedCluster
}

// Survivors returns the survivor id of every resolved cluster.
func (r *Result) Survivors() []string {
	out := make([]string, 0, len(r.Groups))
	for _, g := range r.Groups {
		out = append(out, g.SurvivorID)
	}
	return out
}

// Entries returns one audit entry per resolved cluster.
func (r *Result) Entries() []models.ClusterEntry {
	out := make([]models.ClusterEntry, 0, len(r.Groups))
	for _, g := range r.Groups {
		fields := make([]string, 0, len(g.MergedFieldsLog))
		for f := range g.MergedFieldsLog {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		out = append(out, models.ClusterEntry{
			SurvivorID:   g.SurvivorID,
			DeletedIDs:   g.DeletedIDs(),
			MergedFields: fields,
		})
	}
	return out
}

// Operations turns the result into store mutations: one update per survivor
// that gained data, then one delete per sibling gated on that update.
func (r *Result) Operations() []models.Operation {
	ops := make([]models.Operation, 0, len(r.Plans)+len(r.Deletions))
	for _, g := range r.Groups {
		if !g.Plan.IsNoop() {
			ops = append(ops, models.UpdateOp(g.Plan))
		}
	}
	for _, g := range r.Groups {
		var deps []string
		if !g.Plan.IsNoop() {
			deps = []string{g.SurvivorID}
		}
		for _, id := range g.DeletedIDs() {
			ops = append(ops, models.DeleteOp(id, deps...))
		}
	}
	return ops
}

type member struct {
	rec      *models.CompanyRecord
	corp     string
	richness int
}

// Resolve groups records by (normalized name, normalized address) and
// resolves every group with two or more members. Records lacking either key
// are never clustered. Groups whose members carry different valid corporate
// numbers are reported as conflicted and left alone.
func (r *Resolver) Resolve(records []*models.CompanyRecord) *Result {
	groups := make(map[models.ClusterKey][]member)
	var order []models.ClusterKey
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		if rec == nil || rec.ID == "" || seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true

		k := index.KeysOf(rec)
		if k.Name == "" || k.Address == "" {
			continue
		}
		key := models.ClusterKey{Name: k.Name, Address: k.Address}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], member{rec: rec, corp: k.CorporateNumber, richness: Richness(rec)})
	}

	res := &Result{}
	for _, key := range order {
		members := groups[key]
		if len(members) < 2 {
			continue
		}

		if corps := distinctCorporateNumbers(members); len(corps) > 1 {
			res.Conflicted = append(res.Conflicted, models.ConflictedCluster{
				Key:              key,
				MemberIDs:        ids(members),
				CorporateNumbers: corps,
			})
			continue
		}

		g := r.resolveGroup(key, members)
		res.Groups = append(res.Groups, g)
		if !g.Plan.IsNoop() {
			res.Plans = append(res.Plans, g.Plan)
		}
		res.Deletions = append(res.Deletions, g.DeletedIDs()...)
	}
	return res
}

func (r *Resolver) resolveGroup(key models.ClusterKey, members []member) *models.DuplicateGroup {
	ranked := rank(members)
	survivor := ranked[0].rec

	plan := models.NewMergePlan(survivor.ID)
	log := make(map[string]string)
	acc := survivor.Clone()
	preserved := make(map[string]bool)

	for _, sib := range ranked[1:] {
		p := r.merger.PlanRecords(acc, sib.rec)
		for f, v := range p.FieldsToSet {
			plan.FieldsToSet[f] = v
			log[f] = sib.rec.ID
		}
		for _, f := range p.FieldsPreserved {
			preserved[f] = true
		}
		plan.Conflicts = append(plan.Conflicts, p.Conflicts...)
		acc = merging.Apply(acc, p)
	}
	for f := range preserved {
		if _, set := plan.FieldsToSet[f]; !set {
			plan.FieldsPreserved = append(plan.FieldsPreserved, f)
		}
	}
	sort.Strings(plan.FieldsPreserved)

	return &models.DuplicateGroup{
		Key:             key,
		MemberIDs:       ids(members),
		SurvivorID:      survivor.ID,
		MergedFieldsLog: log,
		Plan:            plan,
	}
}

// rank orders members survivor-first. A member that is the only one holding
// a valid corporate number wins outright; everyone else is ordered by
// richness, then the earliest known creation time, then the smallest id.
func rank(members []member) []member {
	out := append([]member(nil), members...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.richness != b.richness {
			return a.richness > b.richness
		}
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return earlier(a.rec.CreatedAt, b.rec.CreatedAt)
		}
		return a.rec.ID < b.rec.ID
	})

	numbered := -1
	for i, m := range out {
		if m.corp == "" {
			continue
		}
		if numbered >= 0 {
			return out
		}
		numbered = i
	}
	if numbered > 0 {
		m := out[numbered]
		copy(out[1:numbered+1], out[:numbered])
		out[0] = m
	}
	return out
}

// earlier treats an unset timestamp as later than any known one.
func earlier(a, b time.Time) bool {
	switch {
	case a.IsZero():
		return false
	case b.IsZero():
		return true
	}
	return a.Before(b)
}

// Richness counts the non-empty fields of rec, identity columns included.
func Richness(rec *models.CompanyRecord) int {
	n := 0
	for _, v := range rec.Values() {
		if !merging.IsEmpty(v) {
			n++
		}
	}
	return n
}

func distinctCorporateNumbers(members []member) []string {
	set := make(map[string]bool)
	for _, m := range members {
		if m.corp != "" {
			set[m.corp] = true
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func ids(members []member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.rec.ID
	}
	return out
}
