// Package company persists company records in Postgres. The repository is
// both the corpus source and the batch sink of a resolution run.
package company

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/internal/database"
	e "github.com/Ramsey-B/fern/internal/errors"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

const table = "companies"

var columns = []string{
	"id", "corporate_number", "name", "address", "postal_code",
	"representative_name", "fields", "created_at", "updated_at",
}

// identityColumns maps record field names onto their columns.
var identityColumns = map[string]string{
	models.FieldName:               "name",
	models.FieldAddress:            "address",
	models.FieldPostalCode:         "postal_code",
	models.FieldCorporateNumber:    "corporate_number",
	models.FieldRepresentativeName: "representative_name",
}

type row struct {
	ID                 string                         `db:"id"`
	CorporateNumber    string                         `db:"corporate_number"`
	Name               string                         `db:"name"`
	Address            string                         `db:"address"`
	PostalCode         string                         `db:"postal_code"`
	RepresentativeName string                         `db:"representative_name"`
	Fields             database.JSONB[map[string]any] `db:"fields"`
	CreatedAt          time.Time                      `db:"created_at"`
	UpdatedAt          time.Time                      `db:"updated_at"`
}

func (r row) record() *models.CompanyRecord {
	return &models.CompanyRecord{
		ID:                 r.ID,
		CorporateNumber:    r.CorporateNumber,
		Name:               r.Name,
		Address:            r.Address,
		PostalCode:         r.PostalCode,
		RepresentativeName: r.RepresentativeName,
		Fields:             r.Fields.GetValue(),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// Repository handles company persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new company repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FetchPage returns up to limit records ordered by id, starting after cursor.
func (r *Repository) FetchPage(ctx context.Context, cursor string, limit int) ([]*models.CompanyRecord, string, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.FetchPage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	if cursor != "" {
		sb.Where(sb.GreaterThan("id", cursor))
	}
	sb.OrderBy("id")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("cursor", cursor).Error("Failed to fetch company page")
		return nil, "", errors.Wrapf(err, "fetch companies after %q", cursor)
	}

	out := make([]*models.CompanyRecord, len(rows))
	for i, rw := range rows {
		out[i] = rw.record()
	}

	next := ""
	if len(rows) == limit && limit > 0 {
		next = rows[len(rows)-1].ID
	}
	return out, next, nil
}

// Get retrieves a company by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.CompanyRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rw row
	if err := r.db.GetContext(ctx, &rw, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: company %s", e.ErrNotFound, id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get company")
		return nil, errors.Wrapf(err, "get company %s", id)
	}
	return rw.record(), nil
}

// CreateMany inserts records in one statement.
func (r *Repository) CreateMany(ctx context.Context, records []*models.CompanyRecord) error {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.CreateMany")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	for _, rec := range records {
		created := rec.CreatedAt
		if created.IsZero() {
			created = now
		}
		fields := rec.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		sb.Values(rec.ID, rec.CorporateNumber, rec.Name, rec.Address, rec.PostalCode,
			rec.RepresentativeName, database.NewJSONB(fields), created, now)
	}

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(records)).Error("Failed to create companies")
		return errors.Wrapf(err, "create %d companies", len(records))
	}

	r.logger.WithContext(ctx).WithField("count", len(records)).Debug("Created companies")
	return nil
}

// UpdateMany applies merge plans inside one transaction. Auxiliary fields
// are merged into the jsonb column key by key; other keys are untouched.
func (r *Repository) UpdateMany(ctx context.Context, plans []*models.MergePlan) (err error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.UpdateMany")
	defer span.End()

	if len(plans) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	for _, plan := range plans {
		query, args := updateQuery(plan, now)
		res, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			r.logger.WithContext(ctx).WithError(execErr).WithField("id", plan.TargetID).Error("Failed to update company")
			return errors.Wrapf(execErr, "update company %s", plan.TargetID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: company %s", e.ErrNotFound, plan.TargetID)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	r.logger.WithContext(ctx).WithField("count", len(plans)).Debug("Updated companies")
	return nil
}

func updateQuery(plan *models.MergePlan, now time.Time) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)

	assignments := []string{sb.Assign("updated_at", now)}
	aux := make(map[string]any)
	for _, field := range slices.Sorted(maps.Keys(plan.FieldsToSet)) {
		value := plan.FieldsToSet[field]
		if col, ok := identityColumns[field]; ok {
			s, _ := value.(string)
			assignments = append(assignments, sb.Assign(col, s))
			continue
		}
		aux[field] = value
	}
	if len(aux) > 0 {
		assignments = append(assignments,
			fmt.Sprintf("fields = COALESCE(fields, '{}'::jsonb) || %s::jsonb", sb.Var(database.NewJSONB(aux))))
	}
	sb.Set(assignments...)
	sb.Where(sb.Equal("id", plan.TargetID))
	return sb.Build()
}

// DeleteMany removes records by id in one statement.
func (r *Repository) DeleteMany(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.DeleteMany")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(table)
	sb.Where(sb.In("id", idsToAny(ids)...))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(ids)).Error("Failed to delete companies")
		return errors.Wrapf(err, "delete %d companies", len(ids))
	}

	r.logger.WithContext(ctx).WithField("count", len(ids)).Debug("Deleted companies")
	return nil
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func idsToAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
