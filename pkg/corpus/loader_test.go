package corpus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	e "github.com/Ramsey-B/fern/internal/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func seed(n int) *MemoryStore {
	recs := make([]*models.CompanyRecord, n)
	for i := range recs {
		recs[i] = &models.CompanyRecord{ID: fmt.Sprintf("r%03d", i), Name: fmt.Sprintf("会社%d", i)}
	}
	return NewMemoryStore(recs...)
}

// flakySource fails on the given cursor a fixed number of times.
type flakySource struct {
	Source
	failOn   string
	failures int
	calls    int
}

func (f *flakySource) FetchPage(ctx context.Context, cursor string, limit int) ([]*models.CompanyRecord, string, error) {
	f.calls++
	if cursor == f.failOn && f.failures > 0 {
		f.failures--
		return nil, "", errors.New("connection reset")
	}
	return f.Source.FetchPage(ctx, cursor, limit)
}

func TestLoader_LoadReadsEveryPage(t *testing.T) {
	l := NewLoader(seed(25), silentLogger(), WithPageSize(10))

	recs, err := l.Load(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, recs, 25)
	assert.Equal(t, "r000", recs[0].ID)
	assert.Equal(t, "r024", recs[24].ID)
}

func TestLoader_LoadResumesAfterCursor(t *testing.T) {
	l := NewLoader(seed(25), silentLogger(), WithPageSize(10))

	recs, err := l.Load(context.Background(), "r019")
	require.NoError(t, err)
	require.Len(t, recs, 5)
	assert.Equal(t, "r020", recs[0].ID)
}

func TestLoader_RetriesTransientPageFailures(t *testing.T) {
	src := &flakySource{Source: seed(25), failOn: "r009", failures: 2}
	l := NewLoader(src, silentLogger(), WithPageSize(10), WithPageRetries(2, time.Millisecond))

	recs, err := l.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, recs, 25)
	assert.Equal(t, 5, src.calls)
}

func TestLoader_ReadFailureIsFatalWithLastGoodCursor(t *testing.T) {
	src := &flakySource{Source: seed(25), failOn: "r019", failures: 10}
	l := NewLoader(src, silentLogger(), WithPageSize(10), WithPageRetries(1, time.Millisecond))

	recs, err := l.Load(context.Background(), "")
	require.Error(t, err)
	assert.Nil(t, recs)
	assert.True(t, e.Is(err, e.ErrCorpusReadFailed))

	var rerr *e.CorpusReadError
	require.True(t, e.As(err, &rerr))
	assert.Equal(t, "r019", rerr.Cursor)
}

func TestLoader_WalkStopsOnCallbackError(t *testing.T) {
	l := NewLoader(seed(25), silentLogger(), WithPageSize(10))
	stop := errors.New("stop")

	pages := 0
	err := l.Walk(context.Background(), "", func(page []*models.CompanyRecord) error {
		pages++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, pages)
}

func TestMemoryStore_Mutations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(&models.CompanyRecord{ID: "a", Name: "株式会社A"})

	require.NoError(t, s.CreateMany(ctx, []*models.CompanyRecord{{ID: "b", Name: "株式会社B"}}))
	assert.ErrorIs(t, s.CreateMany(ctx, []*models.CompanyRecord{{ID: "c"}, {ID: "a"}}), e.ErrInvalidInput)
	_, ok := s.Get("c")
	assert.False(t, ok, "failed create must not apply partially")

	plan := models.NewMergePlan("a")
	plan.FieldsToSet["phone"] = "03-0000-0000"
	require.NoError(t, s.UpdateMany(ctx, []*models.MergePlan{plan}))
	a, _ := s.Get("a")
	assert.Equal(t, "03-0000-0000", a.Fields["phone"])

	assert.ErrorIs(t, s.UpdateMany(ctx, []*models.MergePlan{models.NewMergePlan("zzz")}), e.ErrNotFound)

	require.NoError(t, s.DeleteMany(ctx, []string{"b"}))
	assert.Equal(t, 1, s.Len())
}
