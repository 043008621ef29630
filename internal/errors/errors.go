// Package errors holds the failure taxonomy shared by the resolution pipeline.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrCorpusReadFailed  = errors.New("corpus read failed")
	ErrBatchCommitFailed = errors.New("batch commit failed")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
)

// CorpusReadError is fatal to a run. Cursor is the last page boundary that
// was read successfully; restart from it.
type CorpusReadError struct {
	Cursor string
	Err    error
}

func (e *CorpusReadError) Error() string {
	return fmt.Sprintf("corpus read failed after cursor %q: %v", e.Cursor, e.Err)
}

func (e *CorpusReadError) Unwrap() []error {
	return []error{ErrCorpusReadFailed, e.Err}
}

// BatchCommitError describes one batch that still failed after its retries.
type BatchCommitError struct {
	BatchID  int
	Kind     string
	Attempts int
	Err      error
}

func (e *BatchCommitError) Error() string {
	return fmt.Sprintf("batch %d (%s) failed after %d attempts: %v", e.BatchID, e.Kind, e.Attempts, e.Err)
}

func (e *BatchCommitError) Unwrap() []error {
	return []error{ErrBatchCommitFailed, e.Err}
}

// Is, As and Join are re-exported so callers need only one errors import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)
