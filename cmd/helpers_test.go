package main

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/config"
	"github.com/sells-group/catalog-enricher/internal/model"
)

func init() {
	color.NoColor = true
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:   dir,
		BackupDir: dir + "/backups",
		Anthropic: config.AnthropicConfig{
			Key:           "sk-ant-test",
			PrimaryModel:  "claude-sonnet-4-5-20250929",
			FallbackModel: "claude-haiku-4-5-20251001",
			Temperature:   0.3,
			MaxTokens:     2048,
		},
		Enrich: config.EnrichConfig{
			MaxAttempts:       3,
			InitialBackoffMs:  1000,
			MaxBackoffMs:      30000,
			BackoffMultiplier: 2,
			RateLimitMs:       1000,
		},
		Store: config.StoreConfig{Driver: "none"},
		Log:   config.LogConfig{Level: "info", Format: "console"},
	}
}

func testCatalog(t *testing.T) *model.Catalog {
	t.Helper()
	cat, err := model.DefaultCatalog()
	require.NoError(t, err)
	return cat
}

func schemaOf(t *testing.T, cat *model.Catalog, name string) *model.Schema {
	t.Helper()
	s, ok := cat.Entity(name)
	require.True(t, ok, name)
	return s
}

func record(t *testing.T, s *model.Schema, values map[string]string) *model.Record {
	t.Helper()
	r := model.NewRecord(s)
	for k, v := range values {
		require.NoError(t, r.Set(k, v))
	}
	return r
}
