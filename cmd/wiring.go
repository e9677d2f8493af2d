package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/backup"
	"github.com/sells-group/catalog-enricher/internal/config"
	"github.com/sells-group/catalog-enricher/internal/cost"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/monitoring"
	"github.com/sells-group/catalog-enricher/internal/pipeline"
	"github.com/sells-group/catalog-enricher/internal/resilience"
	"github.com/sells-group/catalog-enricher/internal/store"
	"github.com/sells-group/catalog-enricher/internal/tablestore"
	anthropicpkg "github.com/sells-group/catalog-enricher/pkg/anthropic"
)

func loadCatalog(c *config.Config) (*model.Catalog, error) {
	if c.Catalog.Path == "" {
		return model.DefaultCatalog()
	}
	return model.LoadCatalog(c.Catalog.Path)
}

func newBackupManager(c *config.Config) *backup.Manager {
	return backup.NewManager(c.BackupDir)
}

func newTableStore(c *config.Config) *tablestore.CSVStore {
	return tablestore.NewCSVStore(c.DataDir, newBackupManager(c))
}

// initStore opens the run log. It returns a nil Store when the driver is
// "none".
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	dsn := c.Store.DatabaseURL
	if strings.EqualFold(c.Store.Driver, "sqlite") {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "create run log dir %s", dir)
			}
		}
	}
	return store.Open(ctx, c.Store.Driver, dsn, &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
}

func newGenerator(c *config.Config) *pipeline.AnthropicGenerator {
	client := anthropicpkg.NewClient(c.Anthropic.Key)
	return pipeline.NewAnthropicGenerator(client, cost.NewCalculator(c.Pricing))
}

func newOrchestrator(c *config.Config, gen pipeline.Generator) *pipeline.Orchestrator {
	return &pipeline.Orchestrator{
		Gen:           gen,
		PrimaryModel:  c.Anthropic.PrimaryModel,
		FallbackModel: c.Anthropic.FallbackModel,
		MaxAttempts:   c.Enrich.MaxAttempts,
		Backoff: resilience.FromConfig(
			c.Enrich.InitialBackoffMs,
			c.Enrich.MaxBackoffMs,
			c.Enrich.BackoffMultiplier,
			c.Enrich.JitterFraction,
		),
		Temperature: c.Anthropic.Temperature,
		MaxTokens:   c.Anthropic.MaxTokens,
	}
}

func newChecker(c *config.Config, runs monitoring.RunLog) *monitoring.Checker {
	return monitoring.NewChecker(monitoring.NewCollector(runs), monitoring.NewAlerter(c.Monitoring), c.Monitoring)
}

// newProcessor wires a Processor from configuration. A dry run needs neither
// credentials nor the run log. The returned cleanup runs the monitoring
// check, when enabled, and closes the run log.
func newProcessor(ctx context.Context, c *config.Config, dryRun bool) (*pipeline.Processor, func(), error) {
	cat, err := loadCatalog(c)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load catalog")
	}
	tables := newTableStore(c)

	if dryRun {
		p := pipeline.New(cat, tables, nil, nil, nil)
		p.DryRun = true
		return p, func() {}, nil
	}

	if err := c.Validate(); err != nil {
		return nil, nil, &pipeline.ConfigError{Err: err}
	}

	runs, err := initStore(ctx, c)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init run log")
	}
	cleanup := func() {
		if runs == nil {
			return
		}
		if c.Monitoring.Enabled {
			checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			newChecker(c, runs).Check(checkCtx)
			cancel()
		}
		_ = runs.Close()
	}

	orch := newOrchestrator(c, newGenerator(c))
	throttle := pipeline.NewThrottle(time.Duration(c.Enrich.RateLimitMs) * time.Millisecond)

	var recorder pipeline.RunRecorder
	if runs != nil {
		recorder = runs
	}

	zap.L().Info("pipeline configured",
		zap.String("data_dir", c.DataDir),
		zap.String("primary_model", orch.PrimaryModel),
		zap.String("fallback_model", orch.FallbackModel),
		zap.Int("max_attempts", orch.MaxAttempts),
		zap.Int("rate_limit_ms", c.Enrich.RateLimitMs),
		zap.String("store", c.Store.Driver),
	)
	return pipeline.New(cat, tables, orch, throttle, recorder), cleanup, nil
}
