package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type call struct {
	kind models.OperationKind
	ids  []string
}

// fakeSink records every call. fail decides, per call, whether it errors.
type fakeSink struct {
	mu    sync.Mutex
	calls []call
	tries map[string]int
	fail  func(kind models.OperationKind, ids []string, attempt int) error
}

func newFakeSink() *fakeSink {
	return &fakeSink{tries: make(map[string]int)}
}

func (s *fakeSink) record(kind models.OperationKind, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s:%s:%d", kind, ids[0], len(ids))
	s.tries[key]++
	if s.fail != nil {
		if err := s.fail(kind, ids, s.tries[key]); err != nil {
			return err
		}
	}
	s.calls = append(s.calls, call{kind: kind, ids: ids})
	return nil
}

func (s *fakeSink) CreateMany(_ context.Context, records []*models.CompanyRecord) error {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return s.record(models.OperationCreate, ids)
}

func (s *fakeSink) UpdateMany(_ context.Context, plans []*models.MergePlan) error {
	ids := make([]string, len(plans))
	for i, p := range plans {
		ids[i] = p.TargetID
	}
	return s.record(models.OperationUpdate, ids)
}

func (s *fakeSink) DeleteMany(_ context.Context, ids []string) error {
	return s.record(models.OperationDelete, ids)
}

func (s *fakeSink) committed() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func fastOptions() Options {
	return Options{
		Concurrency:    4,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func update(id string) models.Operation {
	plan := models.NewMergePlan(id)
	plan.FieldsToSet["phone"] = "03-" + id
	return models.UpdateOp(plan)
}

func updates(n int) []models.Operation {
	ops := make([]models.Operation, n)
	for i := range ops {
		ops[i] = update(fmt.Sprintf("id-%04d", i))
	}
	return ops
}

func TestExecute_SplitsAndRetries(t *testing.T) {
	sink := newFakeSink()
	sink.fail = func(kind models.OperationKind, ids []string, attempt int) error {
		if len(ids) == 50 && attempt <= 2 {
			return errors.New("transient")
		}
		return nil
	}

	x := NewExecutor(sink, testLogger(), WithItemLimit(400))
	report, err := x.Execute(context.Background(), updates(450), fastOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Batches)
	assert.Equal(t, 2, report.Committed)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 450, report.Updated)
	assert.Equal(t, 450, report.Mutated())
	assert.Equal(t, "id-0449", report.Checkpoint)

	for _, c := range sink.committed() {
		assert.LessOrEqual(t, len(c.ids), 400)
	}
}

func TestExecute_MaxOpsPerBatchBelowLimit(t *testing.T) {
	sink := newFakeSink()
	opts := fastOptions()
	opts.MaxOpsPerBatch = 100

	report, err := NewExecutor(sink, testLogger(), WithItemLimit(400)).Execute(context.Background(), updates(250), opts)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Batches)
	assert.Len(t, sink.committed(), 3)
}

func TestExecute_DryRunIssuesNoCalls(t *testing.T) {
	sink := newFakeSink()
	ops := append(updates(3),
		models.CreateOp(&models.CompanyRecord{ID: "new", Name: "株式会社新規"}),
		models.DeleteOp("gone"),
	)
	opts := fastOptions()
	opts.DryRun = true

	report, err := NewExecutor(sink, testLogger()).Execute(context.Background(), ops, opts)
	require.NoError(t, err)

	assert.Empty(t, sink.committed())
	assert.True(t, report.DryRun)
	assert.Equal(t, 3, report.Batches)
	assert.Zero(t, report.Mutated())
	require.Len(t, report.Samples, 5)
	assert.Equal(t, "株式会社新規", report.Samples[3].Changes["name"])
}

func TestExecute_FailedBatchIsIsolated(t *testing.T) {
	sink := newFakeSink()
	sink.fail = func(kind models.OperationKind, _ []string, _ int) error {
		if kind == models.OperationCreate {
			return errors.New("store rejected batch")
		}
		return nil
	}
	ops := append(updates(2), models.CreateOp(&models.CompanyRecord{ID: "new"}))

	report, err := NewExecutor(sink, testLogger()).Execute(context.Background(), ops, fastOptions())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	f := report.Failures[0]
	assert.Equal(t, models.OperationCreate, f.Kind)
	assert.Equal(t, []string{"new"}, f.IDs)
	assert.Equal(t, 4, f.Attempts)
	assert.Contains(t, f.Error, "store rejected batch")
	assert.Equal(t, 2, report.Updated)
}

func TestExecute_DeletesWaitForTheirUpdate(t *testing.T) {
	sink := newFakeSink()
	sink.fail = func(kind models.OperationKind, ids []string, _ int) error {
		if kind == models.OperationUpdate && ids[0] == "broken" {
			return errors.New("nope")
		}
		return nil
	}
	ops := []models.Operation{
		models.DeleteOp("d-broken", "broken"),
		models.DeleteOp("d-ok", "ok"),
		models.DeleteOp("d-free"),
		update("broken"),
		update("ok"),
	}
	opts := fastOptions()
	opts.MaxOpsPerBatch = 1

	report, err := NewExecutor(sink, testLogger()).Execute(context.Background(), ops, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, report.SkippedDependents)
	assert.Equal(t, 2, report.Deleted)

	seenDelete := false
	var deleted []string
	for _, c := range sink.committed() {
		if c.kind == models.OperationDelete {
			seenDelete = true
			deleted = append(deleted, c.ids...)
			continue
		}
		assert.False(t, seenDelete, "update committed after a delete")
	}
	assert.ElementsMatch(t, []string{"d-ok", "d-free"}, deleted)
}

func TestExecute_NoopsAreDropped(t *testing.T) {
	sink := newFakeSink()
	ops := []models.Operation{
		models.UpdateOp(models.NewMergePlan("nothing")),
		update("something"),
	}

	report, err := NewExecutor(sink, testLogger()).Execute(context.Background(), ops, fastOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Noops)
	assert.Equal(t, 1, report.Updated)
}

func TestExecute_ResumeAfter(t *testing.T) {
	sink := newFakeSink()
	opts := fastOptions()
	opts.ResumeAfter = "b"

	report, err := NewExecutor(sink, testLogger()).Execute(context.Background(),
		[]models.Operation{update("a"), update("b"), update("c"), update("d")}, opts)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Resumed)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, "d", report.Checkpoint)
	for _, c := range sink.committed() {
		assert.NotContains(t, c.ids, "a")
		assert.NotContains(t, c.ids, "b")
	}
}

func TestExecute_CheckpointStopsAtFirstFailure(t *testing.T) {
	sink := newFakeSink()
	sink.fail = func(_ models.OperationKind, ids []string, _ int) error {
		if ids[0] == "b" {
			return errors.New("nope")
		}
		return nil
	}
	opts := fastOptions()
	opts.MaxOpsPerBatch = 1
	opts.MaxRetries = -1

	report, err := NewExecutor(sink, testLogger()).Execute(context.Background(),
		[]models.Operation{update("c"), update("a"), update("b")}, opts)
	require.NoError(t, err)

	assert.Equal(t, "a", report.Checkpoint)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Failures[0].Attempts)
}

func TestExecute_CancelStopsBetweenBatches(t *testing.T) {
	sink := newFakeSink()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	x := NewExecutor(sink, testLogger(), WithCommitHook(func(context.Context, Batch) {
		cancel()
	}))
	opts := fastOptions()
	opts.Concurrency = 1
	opts.MaxOpsPerBatch = 1

	report, err := x.Execute(ctx, []models.Operation{update("a"), update("b"), update("c")}, opts)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.True(t, report.Cancelled)
	assert.Equal(t, 1, report.Committed)
	assert.Equal(t, "a", report.Checkpoint)
	assert.Len(t, sink.committed(), 1)
}

func TestExecute_CommitHookSeesEveryBatch(t *testing.T) {
	var mu sync.Mutex
	seen := 0
	x := NewExecutor(newFakeSink(), testLogger(), WithItemLimit(2), WithCommitHook(func(_ context.Context, b Batch) {
		mu.Lock()
		defer mu.Unlock()
		seen += len(b.Ops)
	}))

	_, err := x.Execute(context.Background(), updates(5), fastOptions())
	require.NoError(t, err)
	assert.Equal(t, 5, seen)
}
