package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	e "github.com/Ramsey-B/fern/internal/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// RecordSource yields flattened incoming records until it returns io.EOF.
type RecordSource interface {
	Next(ctx context.Context) (*models.PartialCompanyRecord, error)
}

// Committer is implemented by sources that acknowledge what they delivered
// once a run has been persisted.
type Committer interface {
	Commit(ctx context.Context) error
}

// JSONLinesSource reads one JSON object per line.
type JSONLinesSource struct {
	dec  *json.Decoder
	line int
}

func NewJSONLinesSource(r io.Reader) *JSONLinesSource {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &JSONLinesSource{dec: dec}
}

func (s *JSONLinesSource) Next(ctx context.Context) (*models.PartialCompanyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec models.PartialCompanyRecord
	if err := s.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		s.line++
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) || errors.Is(err, io.ErrUnexpectedEOF) {
			// the decoder cannot recover from malformed input
			return nil, fmt.Errorf("record %d: %w", s.line, err)
		}
		return nil, fmt.Errorf("%w: record %d: %v", e.ErrInvalidInput, s.line, err)
	}
	s.line++
	return &rec, nil
}

// SliceSource serves records from memory.
type SliceSource struct {
	records []*models.PartialCompanyRecord
	pos     int
}

func NewSliceSource(records ...*models.PartialCompanyRecord) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next(ctx context.Context) (*models.PartialCompanyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}
