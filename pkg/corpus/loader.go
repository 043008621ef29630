// Package corpus reads the record store page by page.
package corpus

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"

	e "github.com/Ramsey-B/fern/internal/errors"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// DefaultPageSize is used when the loader is not told otherwise.
const DefaultPageSize = 1000

// Source is a paginated read of the record store with a stable order.
// An empty next cursor means the last page was returned.
type Source interface {
	FetchPage(ctx context.Context, cursor string, limit int) (records []*models.CompanyRecord, next string, err error)
}

// Loader drains a Source into memory.
type Loader struct {
	source   Source
	logger   ectologger.Logger
	pageSize int
	retries  int
	wait     time.Duration
}

type LoaderOption func(*Loader)

func WithPageSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithPageRetries retries a failed page read n times before the run is
// abandoned.
func WithPageRetries(n int, wait time.Duration) LoaderOption {
	return func(l *Loader) {
		if n >= 0 {
			l.retries = n
		}
		if wait > 0 {
			l.wait = wait
		}
	}
}

func NewLoader(source Source, logger ectologger.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		source:   source,
		logger:   logger,
		pageSize: DefaultPageSize,
		retries:  2,
		wait:     time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Walk calls fn for every page after cursor, in order. A read that keeps
// failing ends the walk with a *errors.CorpusReadError naming the last
// cursor that was read successfully. Errors returned by fn are passed
// through unchanged.
func (l *Loader) Walk(ctx context.Context, cursor string, fn func(page []*models.CompanyRecord) error) error {
	ctx, span := tracing.StartSpan(ctx, "corpus.Loader.Walk")
	defer span.End()

	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"method":    "Walk",
		"page_size": l.pageSize,
	})

	pages := 0
	for {
		page, next, err := l.fetch(ctx, cursor)
		if err != nil {
			rerr := &e.CorpusReadError{Cursor: cursor, Err: err}
			log.WithError(rerr).Error("Corpus read failed")
			return rerr
		}
		pages++
		if len(page) > 0 {
			if err := fn(page); err != nil {
				return err
			}
		}
		if next == "" || len(page) == 0 {
			break
		}
		cursor = next
	}

	log.WithField("pages", pages).Debug("Corpus walk finished")
	return nil
}

// Load returns every record after cursor.
func (l *Loader) Load(ctx context.Context, cursor string) ([]*models.CompanyRecord, error) {
	var out []*models.CompanyRecord
	err := l.Walk(ctx, cursor, func(page []*models.CompanyRecord) error {
		out = append(out, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithContext(ctx).WithField("records", len(out)).Info("Loaded corpus")
	return out, nil
}

func (l *Loader) fetch(ctx context.Context, cursor string) ([]*models.CompanyRecord, string, error) {
	var (
		page []*models.CompanyRecord
		next string
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.wait
	bo.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		var err error
		page, next, err = l.source.FetchPage(ctx, cursor, l.pageSize)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(l.retries)), ctx),
		func(err error, wait time.Duration) {
			l.logger.WithContext(ctx).WithError(err).WithField("cursor", cursor).Warnf("Page read failed, retrying in %s", wait)
		})
	return page, next, err
}
