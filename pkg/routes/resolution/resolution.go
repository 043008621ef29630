// Package resolution exposes the read-only side of the resolution engine
// over HTTP: key normalization, single-record matching against the loaded
// snapshot and a duplicate preview.
package resolution

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/internal/validation"
	"github.com/Ramsey-B/fern/pkg/index"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/reconcile"
)

// Readiness is told whenever a snapshot becomes available.
type Readiness interface {
	SetReady(ready bool)
}

// Handler serves the resolution endpoints from the most recently loaded
// snapshot. Requests never see a partially built index.
type Handler struct {
	reconciler *reconcile.Reconciler
	readiness  Readiness
	logger     ectologger.Logger
	snapshot   atomic.Pointer[reconcile.Snapshot]
}

// NewHandler creates a handler. readiness may be nil.
func NewHandler(reconciler *reconcile.Reconciler, readiness Readiness, logger ectologger.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		readiness:  readiness,
		logger:     logger,
	}
}

// Register registers resolution routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/normalize", h.Normalize)
	g.POST("/match", h.Match)
	g.GET("/duplicates", h.Duplicates)
	g.GET("/snapshot", h.Snapshot)
	g.POST("/snapshot/reload", h.ReloadSnapshot)
}

// Reload loads a fresh snapshot and swaps it in.
func (h *Handler) Reload(ctx context.Context) (*reconcile.Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Handler.Reload")
	defer span.End()

	snap, err := h.reconciler.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	h.snapshot.Store(snap)
	if h.readiness != nil {
		h.readiness.SetReady(true)
	}
	return snap, nil
}

func (h *Handler) current() (*reconcile.Snapshot, error) {
	snap := h.snapshot.Load()
	if snap == nil {
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "corpus snapshot not loaded")
	}
	return snap, nil
}

// NormalizeResponse carries the comparison keys plus display forms.
type NormalizeResponse struct {
	Keys       index.Keys `json:"keys"`
	PostalCode string     `json:"postalCode,omitempty"`
	HasSuffix  bool       `json:"hasLegalSuffix"`
}

// Normalize returns the keys the matcher would compute for a record
func (h *Handler) Normalize(c echo.Context) error {
	var req models.PartialCompanyRecord
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	return c.JSON(http.StatusOK, NormalizeResponse{
		Keys:       index.KeysOfPartial(&req),
		PostalCode: normalizers.FormatPostalCode(req.PostalCode),
		HasSuffix:  normalizers.HasLegalSuffix(req.Name),
	})
}

// MatchResponse is the decision plus the record it points at, if any.
type MatchResponse struct {
	Decision models.MatchDecision  `json:"decision"`
	Record   *models.CompanyRecord `json:"record,omitempty"`
}

// Match runs the matching policy for one record against the snapshot
func (h *Handler) Match(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolution.Handler.Match")
	defer span.End()

	var req models.PartialCompanyRecord
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := validation.Validate(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	snap, err := h.current()
	if err != nil {
		return err
	}

	decision := h.reconciler.Engine().Match(&req, snap.Index)
	resp := MatchResponse{Decision: decision}
	if decision.Candidate != nil {
		if rec, ok := snap.Index.Record(decision.Candidate.RecordID); ok {
			resp.Record = rec
		}
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"outcome":       decision.Outcome,
		"lowConfidence": decision.LowConfidence,
	}).Debug("Matched record")
	return c.JSON(http.StatusOK, resp)
}

// DuplicatesResponse previews what a dedupe run would do.
type DuplicatesResponse struct {
	Clusters   []models.ClusterEntry      `json:"clusters"`
	Conflicted []models.ConflictedCluster `json:"conflicted"`
	Deletions  int                        `json:"deletions"`
}

// Duplicates resolves clusters over the snapshot without writing anything
func (h *Handler) Duplicates(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "resolution.Handler.Duplicates")
	defer span.End()

	snap, err := h.current()
	if err != nil {
		return err
	}

	res := h.reconciler.Resolver().Resolve(snap.Index.Records())
	conflicted := res.Conflicted
	if conflicted == nil {
		conflicted = []models.ConflictedCluster{}
	}
	return c.JSON(http.StatusOK, DuplicatesResponse{
		Clusters:   res.Entries(),
		Conflicted: conflicted,
		Deletions:  len(res.Deletions),
	})
}

// SnapshotResponse describes the loaded snapshot.
type SnapshotResponse struct {
	Stats    index.Stats `json:"stats"`
	LoadedAt time.Time   `json:"loadedAt"`
}

// Snapshot returns the stats of the loaded snapshot
func (h *Handler) Snapshot(c echo.Context) error {
	snap, err := h.current()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SnapshotResponse{Stats: snap.Index.Stats(), LoadedAt: snap.LoadedAt})
}

// ReloadSnapshot re-reads the corpus
func (h *Handler) ReloadSnapshot(c echo.Context) error {
	snap, err := h.Reload(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SnapshotResponse{Stats: snap.Index.Stats(), LoadedAt: snap.LoadedAt})
}
