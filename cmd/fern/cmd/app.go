package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/repositories/company"
	"github.com/Ramsey-B/fern/internal/startup"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/corpus"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconcile"
)

// App holds the process-wide dependencies shared by every command.
type App struct {
	Config *config.Config
	Logger ectologger.Logger

	startup     *startup.Startup
	stopTracing func(context.Context) error
	sqlDB       *sqlx.DB
	repo        *company.Repository
	producer    *kafka.Producer
	started     bool
	closed      bool
}

func NewApp(ctx context.Context, configFile string, envFiles []string) (*App, error) {
	cfg, err := config.Load(configFile, envFiles...)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts, time.Second),
	}
	if cfg.TracingEnabled {
		a.stopTracing = tracing.Setup(cfg.AppName, logger)
	}
	return a, nil
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	zapCfg.Level = level

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// Start connects the record store and, when an output topic is set, the
// event producer.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	cfg := a.Config

	a.startup.AddDependency(startup.Func{
		Name: "database",
		OnStart: func(ctx context.Context) error {
			db, sqlDB, err := database.Connect(ctx, cfg.Database(), a.Logger)
			if err != nil {
				return err
			}
			a.sqlDB = sqlDB
			a.repo = company.NewRepository(db, a.Logger)
			return nil
		},
		OnStop: func(context.Context) error {
			return a.sqlDB.Close()
		},
	})

	if cfg.KafkaEnabled() && cfg.KafkaOutputTopic != "" {
		a.producer = kafka.NewProducer(cfg.Producer(), a.Logger)
		a.startup.AddDependency(startup.Func{
			Name:    "kafka-producer",
			OnStart: a.producer.Ping,
			OnStop: func(context.Context) error {
				return a.producer.Close()
			},
		})
	}

	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.started = true
	return nil
}

// Reconciler builds a reconciler over the record store. Committed batches
// are published as entity events when a producer is configured.
func (a *App) Reconciler(policyPath string) (*reconcile.Reconciler, error) {
	if policyPath == "" {
		policyPath = a.Config.PolicyPath
	}
	policy, err := matching.LoadPolicy(policyPath)
	if err != nil {
		return nil, err
	}

	var execOpts []batch.Option
	if a.producer != nil {
		runID := a.Config.AppName + "-" + time.Now().UTC().Format("20060102T150405")
		emitter := events.NewEmitter(a.producer, runID, a.Logger)
		execOpts = append(execOpts, batch.WithCommitHook(emitter.OnCommit))
	}

	loader := corpus.NewLoader(a.repo, a.Logger, corpus.WithPageSize(a.Config.CorpusPageSize))
	executor := batch.NewExecutor(a.repo, a.Logger, execOpts...)
	return reconcile.New(loader, executor, a.Logger, reconcile.WithPolicy(policy)), nil
}

// Close stops started dependencies and flushes traces. Safe to call twice.
func (a *App) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true

	err := a.startup.Stop(ctx)
	if a.stopTracing != nil {
		if terr := a.stopTracing(ctx); terr != nil && err == nil {
			err = terr
		}
	}
	return err
}

// writeReport prints report as indented JSON to path, or to w when path is empty.
func writeReport(w io.Writer, path string, report *models.ResolutionReport) error {
	if report == nil {
		return nil
	}
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "failed to create report %s", path)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(report)
}
