// Package batch commits planned mutations to the record store in bounded,
// retryable batches. It is the only component that writes to the store.
package batch

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	e "github.com/Ramsey-B/fern/internal/errors"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// DefaultItemLimit is the store's hard per-transaction item limit.
const DefaultItemLimit = 500

// Sink is the mutation side of the record store. Each call must commit
// atomically: either every item in the slice is applied or none is.
type Sink interface {
	CreateMany(ctx context.Context, records []*models.CompanyRecord) error
	UpdateMany(ctx context.Context, plans []*models.MergePlan) error
	DeleteMany(ctx context.Context, ids []string) error
}

// Batch is a single-kind group of operations committed in one sink call.
type Batch struct {
	ID   int
	Kind models.OperationKind
	Ops  []models.Operation
}

// IDs returns the target ids of the batch's operations.
func (b Batch) IDs() []string {
	out := make([]string, len(b.Ops))
	for i, op := range b.Ops {
		out[i] = op.ID
	}
	return out
}

// CommitHook is called after each committed batch. It may run concurrently.
type CommitHook func(ctx context.Context, b Batch)

// Options tune one Execute call.
type Options struct {
	DryRun         bool
	MaxOpsPerBatch int
	Concurrency    int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ResumeAfter skips every operation whose id sorts at or before it.
	ResumeAfter string
	SampleSize  int
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		MaxOpsPerBatch: DefaultItemLimit,
		Concurrency:    8,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		SampleSize:     20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxOpsPerBatch <= 0 {
		o.MaxOpsPerBatch = d.MaxOpsPerBatch
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.SampleSize < 0 {
		o.SampleSize = 0
	} else if o.SampleSize == 0 {
		o.SampleSize = d.SampleSize
	}
	return o
}

// Executor commits operations through a Sink.
type Executor struct {
	sink      Sink
	logger    ectologger.Logger
	itemLimit int
	onCommit  CommitHook
}

// Option configures an Executor.
type Option func(*Executor)

// WithItemLimit sets the store's hard per-batch item limit.
func WithItemLimit(n int) Option {
	return func(x *Executor) {
		if n > 0 {
			x.itemLimit = n
		}
	}
}

// WithCommitHook registers fn to run after every committed batch.
func WithCommitHook(fn CommitHook) Option {
	return func(x *Executor) {
		x.onCommit = fn
	}
}

// NewExecutor creates an Executor writing to sink.
func NewExecutor(sink Sink, logger ectologger.Logger, opts ...Option) *Executor {
	x := &Executor{
		sink:      sink,
		logger:    logger,
		itemLimit: DefaultItemLimit,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// run tracks the state of one Execute call.
type run struct {
	mu        sync.Mutex
	report    *models.ExecutionReport
	committed map[string]int
	failed    map[string]bool
}

func (r *run) markCommitted(b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Committed++
	for _, op := range b.Ops {
		r.committed[op.ID]++
	}
	switch b.Kind {
	case models.OperationCreate:
		r.report.Created += len(b.Ops)
	case models.OperationUpdate:
		r.report.Updated += len(b.Ops)
	case models.OperationDelete:
		r.report.Deleted += len(b.Ops)
	}
}

func (r *run) markFailed(b Batch, attempts int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range b.Ops {
		r.failed[op.ID] = true
	}
	r.report.Failures = append(r.report.Failures, models.BatchFailure{
		BatchID:  b.ID,
		Kind:     b.Kind,
		IDs:      b.IDs(),
		Attempts: attempts,
		Error:    err.Error(),
	})
}

// Execute commits ops. Creates and updates run first; deletes run only after
// every update has finished, and a delete whose dependency did not commit is
// dropped. Failed batches are isolated and reported. The report is always
// returned; the error is non-nil only when ctx ended the run early.
func (x *Executor) Execute(ctx context.Context, ops []models.Operation, opts Options) (*models.ExecutionReport, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Executor.Execute")
	defer span.End()

	opts = opts.withDefaults()
	log := x.logger.WithContext(ctx).WithFields(map[string]any{
		"method":       "Execute",
		"dry_run":      opts.DryRun,
		"operations":   len(ops),
		"resume_after": opts.ResumeAfter,
	})

	r := &run{
		report:    &models.ExecutionReport{DryRun: opts.DryRun, Planned: len(ops)},
		committed: make(map[string]int),
		failed:    make(map[string]bool),
	}

	var writes, deletes []models.Operation
	pending := make(map[string]int)
	for _, op := range ops {
		if op.IsNoop() {
			r.report.Noops++
			continue
		}
		if opts.ResumeAfter != "" && op.ID <= opts.ResumeAfter {
			r.report.Resumed++
			continue
		}
		pending[op.ID]++
		if op.Kind == models.OperationDelete {
			deletes = append(deletes, op)
		} else {
			writes = append(writes, op)
		}
	}
	r.report.Samples = samples(append(slices.Clone(writes), deletes...), opts.SampleSize)

	limit := min(x.itemLimit, opts.MaxOpsPerBatch)
	nextID := 1
	phase1 := split(writes, limit, &nextID)

	if opts.DryRun {
		phase2 := split(deletes, limit, &nextID)
		r.report.Batches = len(phase1) + len(phase2)
		r.report.Checkpoint = opts.ResumeAfter
		log.WithField("batches", r.report.Batches).Info("Dry run planned batches")
		return r.report, nil
	}

	cancelled := x.runPhase(ctx, r, phase1, opts)

	var phase2 []Batch
	if !cancelled {
		var ready []models.Operation
		for _, op := range deletes {
			if blocked(op, pending, r.committed) {
				r.report.SkippedDependents++
				continue
			}
			ready = append(ready, op)
		}
		phase2 = split(ready, limit, &nextID)
		cancelled = x.runPhase(ctx, r, phase2, opts)
	}

	r.report.Batches = len(phase1) + len(phase2)
	r.report.Cancelled = cancelled
	r.report.Checkpoint = checkpoint(pending, r.committed, opts.ResumeAfter)

	log.WithFields(map[string]any{
		"batches":    r.report.Batches,
		"committed":  r.report.Committed,
		"failures":   len(r.report.Failures),
		"checkpoint": r.report.Checkpoint,
	}).Info("Batch execution finished")

	if cancelled {
		return r.report, ctx.Err()
	}
	return r.report, nil
}

// runPhase commits batches through a bounded pool. New batches stop being
// started once ctx is done; it reports whether that happened.
func (x *Executor) runPhase(ctx context.Context, r *run, batches []Batch, opts Options) bool {
	var g errgroup.Group
	g.SetLimit(opts.Concurrency)

	cancelled := false
	for _, b := range batches {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		g.Go(func() error {
			// a slot may free up only after ctx is done
			if ctx.Err() != nil {
				return nil
			}
			x.commitWithRetry(ctx, r, b, opts)
			return nil
		})
	}
	_ = g.Wait()
	return cancelled || ctx.Err() != nil
}

func (x *Executor) commitWithRetry(ctx context.Context, r *run, b Batch, opts Options) {
	log := x.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": b.ID,
		"kind":     b.Kind,
		"size":     len(b.Ops),
	})

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialBackoff
	bo.MaxInterval = opts.MaxBackoff
	bo.MaxElapsedTime = 0

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return x.commit(ctx, b)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(opts.MaxRetries)), ctx),
		func(err error, wait time.Duration) {
			log.WithError(err).Warnf("Batch commit failed, retrying in %s", wait)
		})

	if err != nil {
		cerr := &e.BatchCommitError{BatchID: b.ID, Kind: string(b.Kind), Attempts: attempts, Err: err}
		log.WithError(cerr).Error("Batch commit failed")
		r.markFailed(b, attempts, cerr)
		return
	}

	r.markCommitted(b)
	log.WithField("attempts", attempts).Debug("Batch committed")
	if x.onCommit != nil {
		x.onCommit(ctx, b)
	}
}

func (x *Executor) commit(ctx context.Context, b Batch) error {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("batch.Executor.commit.%s", b.Kind))
	defer span.End()

	switch b.Kind {
	case models.OperationCreate:
		records := make([]*models.CompanyRecord, len(b.Ops))
		for i, op := range b.Ops {
			records[i] = op.Record
		}
		return x.sink.CreateMany(ctx, records)
	case models.OperationUpdate:
		plans := make([]*models.MergePlan, len(b.Ops))
		for i, op := range b.Ops {
			plans[i] = op.Plan
		}
		return x.sink.UpdateMany(ctx, plans)
	case models.OperationDelete:
		return x.sink.DeleteMany(ctx, b.IDs())
	}
	return backoff.Permanent(fmt.Errorf("%w: unknown operation kind %q", e.ErrInvalidInput, b.Kind))
}

// split groups ops by kind, orders each kind by id and cuts it into batches
// of at most limit operations. Creates come before updates.
func split(ops []models.Operation, limit int, nextID *int) []Batch {
	byKind := make(map[models.OperationKind][]models.Operation)
	for _, op := range ops {
		byKind[op.Kind] = append(byKind[op.Kind], op)
	}

	var out []Batch
	for _, kind := range []models.OperationKind{models.OperationCreate, models.OperationUpdate, models.OperationDelete} {
		list := byKind[kind]
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		for start := 0; start < len(list); start += limit {
			end := min(start+limit, len(list))
			out = append(out, Batch{ID: *nextID, Kind: kind, Ops: list[start:end]})
			*nextID++
		}
	}
	return out
}

// blocked reports whether op depends on an operation of this run that has
// not committed.
func blocked(op models.Operation, pending, committed map[string]int) bool {
	for _, dep := range op.DependsOn {
		if pending[dep] > 0 && committed[dep] < pending[dep] {
			return true
		}
	}
	return false
}

// checkpoint returns the largest id such that every operation at or before
// it has committed, or resumeAfter when no progress was made past it.
func checkpoint(pending, committed map[string]int, resumeAfter string) string {
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cp := resumeAfter
	for _, id := range ids {
		if committed[id] < pending[id] {
			break
		}
		cp = id
	}
	return cp
}

func samples(ops []models.Operation, n int) []models.OperationSample {
	if n <= 0 {
		return nil
	}
	out := make([]models.OperationSample, 0, min(n, len(ops)))
	for _, op := range ops {
		if len(out) == n {
			break
		}
		s := models.OperationSample{Kind: op.Kind, ID: op.ID}
		switch op.Kind {
		case models.OperationCreate:
			s.Changes = op.Record.Values()
		case models.OperationUpdate:
			s.Changes = op.Plan.FieldsToSet
			s.Preserve = op.Plan.FieldsPreserved
		}
		out = append(out, s)
	}
	return out
}
