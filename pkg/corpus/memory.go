package corpus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	e "github.com/Ramsey-B/fern/internal/errors"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
)

// MemoryStore is an in-process record store ordered by id. It serves as a
// Source and as a batch Sink; each call applies all of its items or none.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.CompanyRecord
	now     func() time.Time
}

func NewMemoryStore(records ...*models.CompanyRecord) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*models.CompanyRecord, len(records)),
		now:     time.Now,
	}
	for _, r := range records {
		if r != nil && r.ID != "" {
			s.records[r.ID] = r.Clone()
		}
	}
	return s
}

// FetchPage returns up to limit records with an id greater than cursor.
func (s *MemoryStore) FetchPage(ctx context.Context, cursor string, limit int) ([]*models.CompanyRecord, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sortedIDs()
	start := sort.SearchStrings(ids, cursor)
	if start < len(ids) && ids[start] == cursor {
		start++
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	end := min(start+limit, len(ids))

	page := make([]*models.CompanyRecord, 0, end-start)
	for _, id := range ids[start:end] {
		page = append(page, s.records[id].Clone())
	}
	next := ""
	if end < len(ids) {
		next = ids[end-1]
	}
	return page, next, nil
}

func (s *MemoryStore) CreateMany(ctx context.Context, records []*models.CompanyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if _, ok := s.records[r.ID]; ok {
			return fmt.Errorf("%w: record %s already exists", e.ErrInvalidInput, r.ID)
		}
	}
	now := s.now()
	for _, r := range records {
		c := r.Clone()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		s.records[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) UpdateMany(ctx context.Context, plans []*models.MergePlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range plans {
		if _, ok := s.records[p.TargetID]; !ok {
			return fmt.Errorf("%w: record %s", e.ErrNotFound, p.TargetID)
		}
	}
	now := s.now()
	for _, p := range plans {
		rec := merging.Apply(s.records[p.TargetID], p)
		rec.UpdatedAt = now
		s.records[p.TargetID] = rec
	}
	return nil
}

func (s *MemoryStore) DeleteMany(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

// Get returns a copy of the record with id.
func (s *MemoryStore) Get(id string) (*models.CompanyRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// All returns copies of every record, ordered by id.
func (s *MemoryStore) All() []*models.CompanyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CompanyRecord, 0, len(s.records))
	for _, id := range s.sortedIDs() {
		out = append(out, s.records[id].Clone())
	}
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) sortedIDs() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
