// Package reconcile runs the resolution workflows: importing incoming
// records, collapsing duplicate clusters and backfilling listing status.
package reconcile

import (
	"context"
	"errors"
	"io"
	"slices"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	e "github.com/Ramsey-B/fern/internal/errors"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/internal/validation"
	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/cluster"
	"github.com/Ramsey-B/fern/pkg/corpus"
	"github.com/Ramsey-B/fern/pkg/index"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	RunImport          = "import"
	RunDeduplicate     = "dedupe"
	RunBackfillListing = "backfill-listing"
)

// maxReviewItems bounds the review list kept in one report.
const maxReviewItems = 10000

// recordNamespace seeds the ids of records created by an import, so a
// re-run plans the same ids for the same incoming identities.
var recordNamespace = uuid.MustParse("6f1c8e52-3b7a-4d0e-9a55-2c4f0d7e8b19")

// Snapshot is the read-only view of the corpus a run matches against.
type Snapshot struct {
	Index    *index.Index
	LoadedAt time.Time
}

// Reconciler wires the corpus, the pure resolution components and the batch
// executor together.
type Reconciler struct {
	corpus    *corpus.Loader
	executor  *batch.Executor
	engine    *matching.Engine
	merger    *merging.FieldMerger
	resolver  *cluster.Resolver
	logger    ectologger.Logger
	indexOpts []index.Option
	now       func() time.Time
}

type Option func(*Reconciler)

func WithPolicy(policy matching.Policy) Option {
	return func(r *Reconciler) {
		r.engine = matching.NewEngine(policy)
	}
}

func WithMerger(m *merging.FieldMerger) Option {
	return func(r *Reconciler) {
		r.merger = m
	}
}

func WithIndexOptions(opts ...index.Option) Option {
	return func(r *Reconciler) {
		r.indexOpts = append(r.indexOpts, opts...)
	}
}

func New(loader *corpus.Loader, executor *batch.Executor, logger ectologger.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		corpus:   loader,
		executor: executor,
		engine:   matching.NewEngine(matching.DefaultPolicy()),
		merger:   merging.NewFieldMerger(),
		resolver: cluster.NewResolver(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Engine returns the matcher used by Import.
func (r *Reconciler) Engine() *matching.Engine {
	return r.engine
}

// Resolver returns the cluster resolver used by Deduplicate.
func (r *Reconciler) Resolver() *cluster.Resolver {
	return r.resolver
}

// LoadSnapshot reads the whole corpus and indexes it.
func (r *Reconciler) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Reconciler.LoadSnapshot")
	defer span.End()

	records, err := r.corpus.Load(ctx, "")
	if err != nil {
		return nil, err
	}
	idx := index.Build(records, r.indexOpts...)

	stats := idx.Stats()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"records":          stats.Records,
		"corporateNumbers": stats.CorporateNumbers,
		"ambiguousNames":   stats.AmbiguousNames,
	}).Info("Built corpus snapshot")
	return &Snapshot{Index: idx, LoadedAt: r.now()}, nil
}

// Import matches every record from src against a fresh snapshot, plans
// merges and creates, and commits them. A report is returned even when the
// run fails.
func (r *Reconciler) Import(ctx context.Context, src RecordSource, opts batch.Options) (*models.ResolutionReport, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Reconciler.Import")
	defer span.End()

	report := r.newReport(RunImport)
	snap, err := r.LoadSnapshot(ctx)
	if err != nil {
		return r.finish(report), err
	}
	return r.ImportInto(ctx, snap, src, opts, report)
}

// ImportInto is Import against an already built snapshot.
func (r *Reconciler) ImportInto(ctx context.Context, snap *Snapshot, src RecordSource, opts batch.Options, report *models.ResolutionReport) (*models.ResolutionReport, error) {
	if report == nil {
		report = r.newReport(RunImport)
	}
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "Import",
		"run":    report.Run,
	})

	plan := newImportPlan(snap.Index, r.merger)
	for pos := 0; ; pos++ {
		in, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if e.Is(err, e.ErrInvalidInput) {
				report.Skipped++
				addReview(report, models.ReviewItem{Position: pos, Reason: err.Error()})
				log.WithError(err).Warn("Skipping unreadable incoming record")
				continue
			}
			log.WithError(err).Error("Failed to read incoming records")
			return r.finish(report), err
		}
		r.importOne(ctx, plan, pos, in, report)
	}

	ops := plan.operations()
	report.Created = len(plan.createOrder)
	report.Updated = plan.updates()

	exec, err := r.executor.Execute(ctx, ops, opts)
	report.Execution = exec
	if err != nil {
		return r.finish(report), err
	}

	if c, ok := src.(Committer); ok && !opts.DryRun && len(exec.Failures) == 0 {
		if err := c.Commit(ctx); err != nil {
			log.WithError(err).Error("Failed to acknowledge incoming records")
			return r.finish(report), err
		}
	}

	log.WithFields(map[string]any{
		"created":       report.Created,
		"updated":       report.Updated,
		"merged":        report.Merged,
		"ambiguous":     report.Ambiguous,
		"skipped":       report.Skipped,
		"lowConfidence": report.LowConfidence,
	}).Info("Import finished")
	return r.finish(report), nil
}

func (r *Reconciler) importOne(ctx context.Context, plan *importPlan, pos int, in *models.PartialCompanyRecord, report *models.ResolutionReport) {
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"position":        pos,
		"name":            in.Name,
		"corporateNumber": in.CorporateNumber,
	})
	review := models.ReviewItem{Position: pos, Name: in.Name, CorporateNumber: in.CorporateNumber}

	if _, err := validation.Validate(*in); err != nil {
		report.Skipped++
		review.Reason = err.Error()
		addReview(report, review)
		log.WithError(err).Warn("Skipping invalid incoming record")
		return
	}

	keys := index.KeysOfPartial(in)
	decision := r.engine.MatchKeys(keys, plan.idx)

	switch decision.Outcome {
	case models.OutcomeMatch:
		report.Merged++
		if decision.LowConfidence {
			report.LowConfidence++
			log.WithFields(map[string]any{
				"target":    decision.Candidate.RecordID,
				"score":     decision.Candidate.Score,
				"matchedBy": decision.Candidate.MatchedBy,
			}).Warn("Low-confidence match merged")
		}
		plan.fold(decision.Candidate.RecordID, in)

	case models.OutcomeAmbiguous:
		report.Ambiguous++
		review.Outcome = decision.Outcome
		review.Candidates = decision.Candidates
		review.Reason = decision.Reason
		addReview(report, review)
		log.WithField("candidates", decision.Candidates).Warn("Ambiguous match left for review")

	default:
		if keys.Name == "" || keys.NameIsNoise {
			report.Skipped++
			review.Outcome = decision.Outcome
			review.Reason = "no match and name is not a company name"
			addReview(report, review)
			log.Warn("Skipping unmatched record without a usable company name")
			return
		}
		if plan.create(keys, in) {
			report.Merged++
		}
	}
}

// Deduplicate collapses duplicate clusters in the corpus.
func (r *Reconciler) Deduplicate(ctx context.Context, opts batch.Options) (*models.ResolutionReport, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Reconciler.Deduplicate")
	defer span.End()

	report := r.newReport(RunDeduplicate)
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "Deduplicate",
		"run":    report.Run,
	})

	records, err := r.corpus.Load(ctx, "")
	if err != nil {
		return r.finish(report), err
	}

	res := r.resolver.Resolve(records)
	for _, c := range res.Conflicted {
		log.WithFields(map[string]any{
			"members":          c.MemberIDs,
			"corporateNumbers": c.CorporateNumbers,
		}).Warn("Skipping cluster with conflicting corporate numbers")
	}

	report.Clusters = res.Entries()
	report.Conflicted = res.Conflicted
	report.Merged = len(res.Deletions)
	report.Deleted = len(res.Deletions)
	for _, p := range res.Plans {
		if !p.IsNoop() {
			report.Updated++
		}
	}

	exec, err := r.executor.Execute(ctx, res.Operations(), opts)
	report.Execution = exec
	if err != nil {
		return r.finish(report), err
	}

	log.WithFields(map[string]any{
		"clusters":   len(report.Clusters),
		"conflicted": len(report.Conflicted),
		"deleted":    report.Deleted,
	}).Info("Deduplication finished")
	return r.finish(report), nil
}

// BackfillListing sets the not-listed sentinel on every record whose listing
// is unset. The corpus is walked from opts.ResumeAfter.
func (r *Reconciler) BackfillListing(ctx context.Context, opts batch.Options) (*models.ResolutionReport, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Reconciler.BackfillListing")
	defer span.End()

	report := r.newReport(RunBackfillListing)

	var ops []models.Operation
	err := r.corpus.Walk(ctx, opts.ResumeAfter, func(page []*models.CompanyRecord) error {
		for _, rec := range page {
			if plan := merging.PlanListingBackfill(rec); !plan.IsNoop() {
				ops = append(ops, models.UpdateOp(plan))
			}
		}
		return nil
	})
	if err != nil {
		return r.finish(report), err
	}
	report.Updated = len(ops)

	exec, err := r.executor.Execute(ctx, ops, opts)
	report.Execution = exec
	if err != nil {
		return r.finish(report), err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run":     report.Run,
		"updated": report.Updated,
	}).Info("Listing backfill finished")
	return r.finish(report), nil
}

func (r *Reconciler) newReport(kind string) *models.ResolutionReport {
	return &models.ResolutionReport{
		Run:       kind + "-" + uuid.NewString(),
		StartedAt: r.now(),
	}
}

func (r *Reconciler) finish(report *models.ResolutionReport) *models.ResolutionReport {
	report.FinishedAt = r.now()
	return report
}

func addReview(report *models.ResolutionReport, item models.ReviewItem) {
	if len(report.Review) < maxReviewItems {
		report.Review = append(report.Review, item)
	}
}

// importPlan accumulates the effect of an import before anything is written.
type importPlan struct {
	idx    *index.Index
	merger *merging.FieldMerger

	// working holds matched records with this run's plans applied, so a
	// second incoming record for the same target sees the first one's data.
	working     map[string]*models.CompanyRecord
	plans       map[string]*models.MergePlan
	targetOrder []string

	creates     map[string]*models.CompanyRecord
	createOrder []string
}

func newImportPlan(idx *index.Index, merger *merging.FieldMerger) *importPlan {
	return &importPlan{
		idx:     idx,
		merger:  merger,
		working: make(map[string]*models.CompanyRecord),
		plans:   make(map[string]*models.MergePlan),
		creates: make(map[string]*models.CompanyRecord),
	}
}

func (p *importPlan) fold(targetID string, in *models.PartialCompanyRecord) {
	cur, ok := p.working[targetID]
	if !ok {
		rec, found := p.idx.Record(targetID)
		if !found {
			return
		}
		cur = rec
		p.plans[targetID] = models.NewMergePlan(targetID)
		p.targetOrder = append(p.targetOrder, targetID)
	}

	step := p.merger.Plan(cur, in)
	p.working[targetID] = merging.Apply(cur, step)

	acc := p.plans[targetID]
	for f, v := range step.FieldsToSet {
		acc.FieldsToSet[f] = v
	}
	for _, f := range step.FieldsPreserved {
		if !slices.Contains(acc.FieldsPreserved, f) {
			acc.FieldsPreserved = append(acc.FieldsPreserved, f)
		}
	}
	acc.Conflicts = append(acc.Conflicts, step.Conflicts...)
}

// create plans a new record for in, or folds in into a record already
// planned for the same identity. It reports whether a fold happened.
func (p *importPlan) create(keys index.Keys, in *models.PartialCompanyRecord) bool {
	identity := identityKey(keys)
	if cur, ok := p.creates[identity]; ok {
		p.creates[identity] = merging.Apply(cur, p.merger.Plan(cur, in))
		return true
	}

	blank := &models.CompanyRecord{ID: uuid.NewSHA1(recordNamespace, []byte(identity)).String()}
	p.creates[identity] = merging.Apply(blank, p.merger.Plan(blank, in))
	p.createOrder = append(p.createOrder, identity)
	return false
}

func (p *importPlan) updates() int {
	n := 0
	for _, id := range p.targetOrder {
		if !p.plans[id].IsNoop() {
			n++
		}
	}
	return n
}

func (p *importPlan) operations() []models.Operation {
	ops := make([]models.Operation, 0, len(p.createOrder)+len(p.targetOrder))
	for _, identity := range p.createOrder {
		ops = append(ops, models.CreateOp(p.creates[identity]))
	}
	for _, id := range p.targetOrder {
		plan := p.plans[id]
		plan.FieldsPreserved = slices.DeleteFunc(plan.FieldsPreserved, func(f string) bool {
			_, set := plan.FieldsToSet[f]
			return set
		})
		ops = append(ops, models.UpdateOp(plan))
	}
	return ops
}

// identityKey is the strongest identity an unmatched record carries.
func identityKey(k index.Keys) string {
	switch {
	case k.CorporateNumber != "":
		return "corp:" + k.CorporateNumber
	case k.Address != "":
		return "name-address:" + k.Name + "\x00" + k.Address
	case k.PostalCode != "":
		return "name-postal:" + k.Name + "\x00" + k.PostalCode
	}
	return "name:" + k.Name
}
