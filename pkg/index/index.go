// Package index builds the read-only lookup structures the matcher runs
// against. An Index is a snapshot: it is built once per run and never
// mutated afterwards, so it may be shared between goroutines.
package index

import (
	"slices"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Index maps normalized keys to the ids of the records carrying them.
// Buckets keep insertion order; a bucket with more than one id is evidence
// of ambiguity, not an error.
type Index struct {
	byCorporateNumber map[string][]string
	byNameAddress     map[string][]string
	byNamePostal      map[string][]string
	byName            map[string][]string

	// candidate buckets, never capped; the partial-address and
	// high-precision steps scan every member
	nameMembers map[string][]string
	byCore      map[string][]string
	byAddress   map[string][]string
	byPostal    map[string][]string

	records map[string]*models.CompanyRecord
	keys    map[string]Keys
	order   []string
	cap     int
}

// Option configures a Builder.
type Option func(*Builder)

// WithBucketCap stops each exact-key bucket from growing past n ids. Exact
// lookups only distinguish one id from several, so 2 is enough there;
// candidate buckets stay complete. n <= 0 means unbounded.
func WithBucketCap(n int) Option {
	return func(b *Builder) {
		b.idx.cap = n
	}
}

// Builder accumulates records in a single pass.
type Builder struct {
	idx *Index
}

// NewBuilder returns an empty Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{idx: &Index{
		byCorporateNumber: make(map[string][]string),
		byNameAddress:     make(map[string][]string),
		byNamePostal:      make(map[string][]string),
		byName:            make(map[string][]string),
		nameMembers:       make(map[string][]string),
		byCore:            make(map[string][]string),
		byAddress:         make(map[string][]string),
		byPostal:          make(map[string][]string),
		records:           make(map[string]*models.CompanyRecord),
		keys:              make(map[string]Keys),
	}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add indexes rec. A record whose id was already added is ignored.
func (b *Builder) Add(rec *models.CompanyRecord) {
	if rec == nil || rec.ID == "" {
		return
	}
	idx := b.idx
	if _, ok := idx.records[rec.ID]; ok {
		return
	}

	k := KeysOf(rec)
	idx.records[rec.ID] = rec
	idx.keys[rec.ID] = k
	idx.order = append(idx.order, rec.ID)

	idx.put(idx.byCorporateNumber, k.CorporateNumber, rec.ID, idx.cap)
	idx.put(idx.byNameAddress, pair(k.Name, k.Address), rec.ID, idx.cap)
	idx.put(idx.byNamePostal, pair(k.Name, k.PostalCode), rec.ID, idx.cap)
	idx.put(idx.byName, k.Name, rec.ID, idx.cap)

	idx.put(idx.nameMembers, k.Name, rec.ID, 0)
	idx.put(idx.byCore, k.Core, rec.ID, 0)
	idx.put(idx.byAddress, k.Address, rec.ID, 0)
	idx.put(idx.byPostal, k.PostalCode, rec.ID, 0)
}

// Build returns the finished Index. The Builder must not be used afterwards.
func (b *Builder) Build() *Index {
	idx := b.idx
	b.idx = nil
	return idx
}

// Build indexes records in one pass.
func Build(records []*models.CompanyRecord, opts ...Option) *Index {
	b := NewBuilder(opts...)
	for _, rec := range records {
		b.Add(rec)
	}
	return b.Build()
}

func (idx *Index) put(m map[string][]string, key, id string, limit int) {
	if key == "" {
		return
	}
	bucket := m[key]
	if limit > 0 && len(bucket) >= limit {
		return
	}
	m[key] = append(bucket, id)
}

func (idx *Index) get(m map[string][]string, key string) []string {
	if key == "" {
		return nil
	}
	return slices.Clone(m[key])
}

// ByCorporateNumber returns the ids carrying the normalized corporate number.
func (idx *Index) ByCorporateNumber(corp string) []string {
	return idx.get(idx.byCorporateNumber, corp)
}

// ByNameAndAddress returns the ids carrying both normalized keys.
func (idx *Index) ByNameAndAddress(name, address string) []string {
	return idx.get(idx.byNameAddress, pair(name, address))
}

// ByNameAndPostal returns the ids carrying both normalized keys.
func (idx *Index) ByNameAndPostal(name, postal string) []string {
	return idx.get(idx.byNamePostal, pair(name, postal))
}

// ByName returns the ids carrying the normalized name.
func (idx *Index) ByName(name string) []string {
	return idx.get(idx.byName, name)
}

// NameCandidates returns every id carrying the normalized name, regardless
// of the bucket cap.
func (idx *Index) NameCandidates(name string) []string {
	return idx.get(idx.nameMembers, name)
}

// ByCore returns the ids whose name shares the suffix-free core.
func (idx *Index) ByCore(core string) []string {
	return idx.get(idx.byCore, core)
}

// ByAddress returns the ids carrying the normalized address.
func (idx *Index) ByAddress(address string) []string {
	return idx.get(idx.byAddress, address)
}

// ByPostal returns the ids carrying the normalized postal code.
func (idx *Index) ByPostal(postal string) []string {
	return idx.get(idx.byPostal, postal)
}

// Record returns the indexed record with id.
func (idx *Index) Record(id string) (*models.CompanyRecord, bool) {
	rec, ok := idx.records[id]
	return rec, ok
}

// Keys returns the precomputed keys of the record with id.
func (idx *Index) Keys(id string) (Keys, bool) {
	k, ok := idx.keys[id]
	return k, ok
}

// Records returns the indexed records in insertion order.
func (idx *Index) Records() []*models.CompanyRecord {
	out := make([]*models.CompanyRecord, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.records[id])
	}
	return out
}

// Len is the number of indexed records.
func (idx *Index) Len() int {
	return len(idx.order)
}

// Stats describes bucket sizes, useful for logging after a build.
type Stats struct {
	Records          int `json:"records"`
	CorporateNumbers int `json:"corporateNumbers"`
	Names            int `json:"names"`
	AmbiguousNames   int `json:"ambiguousNames"`
}

// Stats reports how many distinct keys the index holds.
func (idx *Index) Stats() Stats {
	s := Stats{
		Records:          len(idx.order),
		CorporateNumbers: len(idx.byCorporateNumber),
		Names:            len(idx.byName),
	}
	for _, ids := range idx.byName {
		if len(ids) > 1 {
			s.AmbiguousNames++
		}
	}
	return s
}
