package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kgas-labs/kgas/internal/calibration"
	"github.com/kgas-labs/kgas/internal/provenance"
	"github.com/kgas-labs/kgas/internal/quality"
	"github.com/kgas-labs/kgas/internal/resilience"
	"github.com/kgas-labs/kgas/internal/store"
	"github.com/kgas-labs/kgas/internal/uncertainty"
	"github.com/kgas-labs/kgas/pkg/llm"
)

// coreEnv holds the initialized store and engines shared by the commands.
type coreEnv struct {
	Store       store.Store
	Tracker     *provenance.Tracker
	Assessor    *quality.Assessor
	Bayes       *uncertainty.BayesianEngine
	Engine      *uncertainty.Engine // nil without an API key
	Calibration *calibration.Protocol
	DLQ         *resilience.DeadLetterQueue
}

// Close releases resources held by the environment.
func (e *coreEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store and builds the engines. Callers should defer
// env.Close().
func initEnv(ctx context.Context) (*coreEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	tracker := provenance.NewTracker(st)
	assessor := quality.NewAssessor(tracker, st, cfg.Quality)
	bayes := uncertainty.NewBayesianEngine(cfg.Bayesian.Engine())

	dlq := resilience.NewDeadLetterQueue(0)

	var engine *uncertainty.Engine
	if cfg.Anthropic.Key != "" {
		client := llm.NewAnthropic(cfg.Anthropic.Key,
			llm.WithRateLimit(cfg.Anthropic.RequestsPerSec, cfg.Anthropic.Burst),
			llm.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second),
			llm.WithRetry(resilience.FromRetryConfig(cfg.Anthropic.MaxAttempts, 0, 0, 0, -1)),
			llm.WithCircuit(resilience.FromCircuitConfig(cfg.Anthropic.FailureThreshold, cfg.Anthropic.ResetTimeoutSecs)),
		)
		engine = uncertainty.NewEngine(client, bayes).
			WithModel(cfg.Anthropic.Model).
			WithDLQ(dlq)
	} else {
		zap.L().Warn("KGAS_ANTHROPIC_KEY not set, LLM-backed assessment disabled")
	}

	return &coreEnv{
		Store:       st,
		Tracker:     tracker,
		Assessor:    assessor,
		Bayes:       bayes,
		Engine:      engine,
		Calibration: calibration.NewProtocol(cfg.Calibration),
		DLQ:         dlq,
	}, nil
}

// initStore builds the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "init postgres store")
		}
		zap.L().Info("using postgres store")
		return st, nil
	case "memory":
		zap.L().Warn("using in-memory store, nothing will be persisted")
		return store.NewMemory(), nil
	default:
		st, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, eris.Wrap(err, "init sqlite store")
		}
		zap.L().Info("using sqlite store", zap.String("path", cfg.Store.Path))
		return st, nil
	}
}
