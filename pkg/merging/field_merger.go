// Package merging computes field-level merge plans. A plan only ever fills
// empty fields, grows arrays, or overwrites the always-overwrite fields;
// it never deletes a field.
package merging

import (
	"reflect"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// FieldMerger plans how incoming data folds into an existing record.
type FieldMerger struct {
	alwaysOverwrite map[string]bool
}

// Option configures a FieldMerger.
type Option func(*FieldMerger)

// WithAlwaysOverwrite replaces the set of fields whose incoming value wins
// over existing content. Passing no fields disables overwriting entirely.
func WithAlwaysOverwrite(fields ...string) Option {
	return func(m *FieldMerger) {
		m.alwaysOverwrite = make(map[string]bool, len(fields))
		for _, f := range fields {
			m.alwaysOverwrite[f] = true
		}
	}
}

// NewFieldMerger creates a FieldMerger. By default only the company name is
// overwritten, since an import from a trusted source carries the canonical
// display name.
func NewFieldMerger(opts ...Option) *FieldMerger {
	m := &FieldMerger{alwaysOverwrite: map[string]bool{models.FieldName: true}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Plan computes the update that folds incoming into existing.
func (m *FieldMerger) Plan(existing *models.CompanyRecord, incoming *models.PartialCompanyRecord) *models.MergePlan {
	return m.PlanValues(existing.ID, existing.Values(), incoming.Values())
}

// PlanRecords computes the update that folds one stored record into another.
func (m *FieldMerger) PlanRecords(target, source *models.CompanyRecord) *models.MergePlan {
	return m.PlanValues(target.ID, target.Values(), source.Values())
}

// PlanValues applies the per-field rule to flattened field maps.
func (m *FieldMerger) PlanValues(targetID string, existing, incoming map[string]any) *models.MergePlan {
	plan := models.NewMergePlan(targetID)

	fields := make([]string, 0, len(incoming))
	for f := range incoming {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		inc := incoming[field]
		cur := existing[field]

		if field == models.FieldCorporateNumber {
			inc = validCorporateNumber(inc)
			cur = validCorporateNumber(cur)
		}
		if isEmpty(inc) {
			continue
		}

		if m.alwaysOverwrite[field] && !isNoiseName(field, inc) {
			if !equal(cur, inc) {
				plan.FieldsToSet[field] = inc
			}
			continue
		}

		if incItems, ok := toSlice(inc); ok {
			m.mergeArray(plan, field, cur, incItems)
			continue
		}

		if isEmpty(cur) {
			plan.FieldsToSet[field] = inc
			continue
		}

		plan.FieldsPreserved = append(plan.FieldsPreserved, field)
		if !equal(cur, inc) {
			plan.Conflicts = append(plan.Conflicts, models.FieldConflict{Field: field, Existing: cur, Incoming: inc})
		}
	}
	return plan
}

// mergeArray unions existing and incoming entries. Order of first
// appearance is kept and duplicates are dropped by canonical key.
func (m *FieldMerger) mergeArray(plan *models.MergePlan, field string, cur any, incItems []any) {
	if isEmpty(cur) {
		if items := dedupe(incItems); len(items) > 0 {
			plan.FieldsToSet[field] = items
		}
		return
	}
	curItems, ok := toSlice(cur)
	if !ok {
		plan.FieldsPreserved = append(plan.FieldsPreserved, field)
		plan.Conflicts = append(plan.Conflicts, models.FieldConflict{Field: field, Existing: cur, Incoming: incItems})
		return
	}

	union := dedupe(append(append([]any{}, curItems...), incItems...))
	if len(union) > len(dedupe(curItems)) {
		plan.FieldsToSet[field] = union
		return
	}
	plan.FieldsPreserved = append(plan.FieldsPreserved, field)
}

// Apply returns a copy of rec with the plan's fields set.
func Apply(rec *models.CompanyRecord, plan *models.MergePlan) *models.CompanyRecord {
	out := rec.Clone()
	if plan == nil {
		return out
	}
	for f, v := range plan.FieldsToSet {
		out.Set(f, v)
	}
	return out
}

func dedupe(items []any) []any {
	seen := make(map[string]bool, len(items))
	out := make([]any, 0, len(items))
	for _, item := range items {
		if isEmpty(item) {
			continue
		}
		key := fingerprint.Key(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func toSlice(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func equal(a, b any) bool {
	if isEmpty(a) || isEmpty(b) {
		return isEmpty(a) && isEmpty(b)
	}
	return fingerprint.Key(a) == fingerprint.Key(b)
}

// isEmpty treats nil, blank strings, and empty arrays and maps as unset.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// IsEmpty reports whether v counts as unset for merge purposes.
func IsEmpty(v any) bool {
	return isEmpty(v)
}

func isNoiseName(field string, v any) bool {
	if field != models.FieldName {
		return false
	}
	s, _ := v.(string)
	return normalizers.IsLikelyPersonNameOrNoise(s)
}

// validCorporateNumber maps a raw corporate number onto its canonical form,
// or nil when it fails validation.
func validCorporateNumber(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	if n := normalizers.CorporateNumber(s); n != "" {
		return n
	}
	return nil
}
