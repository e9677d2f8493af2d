package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/pipeline"
)

func TestNewOrchestrator_FromConfig(t *testing.T) {
	c := testConfig(t)
	o := newOrchestrator(c, nil)

	assert.Equal(t, "claude-sonnet-4-5-20250929", o.PrimaryModel)
	assert.Equal(t, "claude-haiku-4-5-20251001", o.FallbackModel)
	assert.Equal(t, 3, o.MaxAttempts)
	assert.InDelta(t, 0.3, o.Temperature, 1e-9)
	assert.Equal(t, int64(2048), o.MaxTokens)
	assert.Equal(t, time.Second, o.Backoff.Delay(0))
	assert.Equal(t, 2*time.Second, o.Backoff.Delay(1))
}

func TestNewProcessor_DryRunNeedsNoCredentials(t *testing.T) {
	c := testConfig(t)
	c.Anthropic.Key = ""

	proc, cleanup, err := newProcessor(context.Background(), c, true)
	require.NoError(t, err)
	defer cleanup()

	res, err := proc.ProcessTable(context.Background(), "platforms")
	require.NoError(t, err)
	assert.True(t, res.DryRun)

	_, err = os.Stat(filepath.Join(c.DataDir, "platforms.csv"))
	assert.True(t, os.IsNotExist(err), "dry run writes nothing")
}

func TestNewProcessor_MissingKeyIsConfigError(t *testing.T) {
	c := testConfig(t)
	c.Anthropic.Key = ""

	_, _, err := newProcessor(context.Background(), c, false)
	require.Error(t, err)
	assert.True(t, pipeline.IsConfigError(err))
	assert.Contains(t, err.Error(), "anthropic.key")
}

func TestNewProcessor_MissingParentIsConfigError(t *testing.T) {
	c := testConfig(t)

	proc, cleanup, err := newProcessor(context.Background(), c, false)
	require.NoError(t, err)
	defer cleanup()

	_, err = proc.ProcessTable(context.Background(), "models")
	require.Error(t, err)
	assert.True(t, pipeline.IsConfigError(err))
	assert.ErrorIs(t, err, pipeline.ErrMissingParent)
}

func TestInitStore(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t)

	st, err := initStore(ctx, c)
	require.NoError(t, err)
	assert.Nil(t, st, "driver none disables the run log")

	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(c.DataDir, "nested", "runs.db")
	st, err = initStore(ctx, c)
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close()

	run, err := st.CreateRun(ctx, "platforms", model.RunKindEnrich)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestLoadCatalog_FromFile(t *testing.T) {
	c := testConfig(t)
	def, err := loadCatalog(c)
	require.NoError(t, err)
	assert.NotEmpty(t, def.Entities)

	c.Catalog.Path = filepath.Join(c.DataDir, "missing.yaml")
	_, err = loadCatalog(c)
	assert.Error(t, err)
}
