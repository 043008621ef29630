package company

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/fern/internal/database"
	e "github.com/Ramsey-B/fern/internal/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestUpdateQuery(t *testing.T) {
	plan := models.NewMergePlan("c-1")
	plan.FieldsToSet[models.FieldName] = "株式会社テスト"
	plan.FieldsToSet["phone"] = "03-1234-5678"
	plan.FieldsToSet["tags"] = []any{"a", "b"}

	query, args := updateQuery(plan, time.Unix(0, 0))

	assert.Contains(t, query, "UPDATE companies SET")
	assert.Contains(t, query, "name = $2")
	assert.Contains(t, query, "fields = COALESCE(fields, '{}'::jsonb) || $3::jsonb")
	assert.Contains(t, query, "WHERE id = $4")
	require.Len(t, args, 4)
	assert.Equal(t, "株式会社テスト", args[1])

	aux, ok := args[2].(database.JSONB[map[string]any])
	require.True(t, ok)
	assert.Equal(t, map[string]any{"phone": "03-1234-5678", "tags": []any{"a", "b"}}, aux.Data)
	assert.Equal(t, "c-1", args[3])
}

func TestUpdateQuery_IdentityOnly(t *testing.T) {
	plan := models.NewMergePlan("c-2")
	plan.FieldsToSet[models.FieldPostalCode] = "1000001"

	query, args := updateQuery(plan, time.Unix(0, 0))

	assert.NotContains(t, query, "fields =")
	assert.Contains(t, query, "postal_code = $2")
	assert.Len(t, args, 3)
}

// The tests below need a migrated Postgres. DB_HOST points them at an
// existing database; FERN_TESTCONTAINERS=1 starts a throwaway one instead.
func integrationRepo(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	ctx := context.Background()

	var cfg database.Config
	migrateSchema := false
	switch {
	case os.Getenv("DB_HOST") != "":
		port, _ := strconv.Atoi(os.Getenv("DB_PORT"))
		if port == 0 {
			port = 5432
		}
		cfg = database.Config{
			Host:     os.Getenv("DB_HOST"),
			Port:     port,
			User:     os.Getenv("DB_USER_NAME"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
		}
	case os.Getenv("FERN_TESTCONTAINERS") == "1":
		cfg = startPostgres(ctx, t)
		migrateSchema = true
	default:
		t.Skip("neither DB_HOST nor FERN_TESTCONTAINERS set; skipping Postgres integration test")
	}

	db, sqlDB, err := database.Connect(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if migrateSchema {
		svc := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: "../../../db/pg"})
		require.NoError(t, svc.MigratePostgres(sqlDB, cfg.Name))
	}
	return NewRepository(db, logger)
}

func startPostgres(ctx context.Context, t *testing.T) database.Config {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "fern",
			"POSTGRES_PASSWORD": "fern",
			"POSTGRES_DB":       "fern",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return database.Config{Host: host, Port: port.Int(), User: "fern", Password: "fern", Name: "fern"}
}

func TestRepository_RoundTrip(t *testing.T) {
	repo := integrationRepo(t)
	ctx := context.Background()

	prefix := "it-" + uuid.NewString()[:8]
	a := &models.CompanyRecord{ID: prefix + "-a", Name: "株式会社A", Fields: map[string]any{"phone": "03"}}
	b := &models.CompanyRecord{ID: prefix + "-b", Name: "株式会社B"}
	require.NoError(t, repo.CreateMany(ctx, []*models.CompanyRecord{a, b}))
	t.Cleanup(func() { _ = repo.DeleteMany(ctx, []string{a.ID, b.ID}) })

	plan := models.NewMergePlan(a.ID)
	plan.FieldsToSet[models.FieldAddress] = "東京都千代田区1-1"
	plan.FieldsToSet["email"] = "info@example.jp"
	require.NoError(t, repo.UpdateMany(ctx, []*models.MergePlan{plan}))

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "東京都千代田区1-1", got.Address)
	assert.Equal(t, "03", got.Fields["phone"])
	assert.Equal(t, "info@example.jp", got.Fields["email"])

	missing := models.NewMergePlan(prefix + "-missing")
	missing.FieldsToSet["x"] = 1
	err = repo.UpdateMany(ctx, []*models.MergePlan{models.NewMergePlan(b.ID), missing})
	assert.ErrorIs(t, err, e.ErrNotFound)

	page, _, err := repo.FetchPage(ctx, prefix, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(page), 2)
	assert.Equal(t, a.ID, page[0].ID)

	require.NoError(t, repo.DeleteMany(ctx, []string{b.ID}))
	_, err = repo.Get(ctx, b.ID)
	assert.ErrorIs(t, err, e.ErrNotFound, fmt.Sprintf("record %s should be gone", b.ID))
}
