package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/backup"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/tablestore"
)

func TestCollectStatus(t *testing.T) {
	cat := testCatalog(t)
	platforms := schemaOf(t, cat, "platforms")
	models := schemaOf(t, cat, "models")

	mem := tablestore.NewMemoryStore()
	pt := model.NewTable(platforms)
	pt.Records = append(pt.Records, record(t, platforms, map[string]string{
		"platform_id":   "plat_1",
		"platform_name": "Anthropic",
		"description":   "AI safety company building Claude.",
		"website_url":   "https://www.anthropic.com",
		"headquarters":  "San Francisco, USA",
		"founded_year":  "2021",
		"platform_type": "cloud",
		"pricing_model": "usage_based",
	}))
	mem.Put(pt)

	mt := model.NewTable(models)
	mt.Records = append(mt.Records,
		record(t, models, map[string]string{"model_id": "model_1", "platform_id": "plat_1", "model_name": "Claude"}),
		record(t, models, map[string]string{"model_id": "model_2", "platform_id": "plat_1"}),
	)
	mem.Put(mt)

	backupDir := t.TempDir()
	older := backup.Name("platforms", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := backup.Name("platforms", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	for _, name := range []string{older, newer} {
		require.NoError(t, os.WriteFile(filepath.Join(backupDir, name), []byte("id\n"), 0o644))
	}

	statuses, err := collectStatus(context.Background(), cat, mem, backup.NewManager(backupDir))
	require.NoError(t, err)
	require.Len(t, statuses, len(cat.Entities)+len(cat.Joins))

	byName := map[string]tableStatus{}
	for _, s := range statuses {
		byName[s.Name] = s
	}

	p := byName["platforms"]
	assert.True(t, p.Exists)
	assert.Equal(t, 1, p.Records)
	assert.Equal(t, 1, p.Complete)
	assert.Equal(t, 0, p.Incomplete)
	assert.Equal(t, newer, p.LastBackup)

	m := byName["models"]
	assert.True(t, m.Exists)
	assert.Equal(t, 2, m.Records)
	assert.Equal(t, 2, m.Incomplete)

	assert.False(t, byName["benchmarks"].Exists)

	assert.Equal(t, "platforms", statuses[0].Name, "parents are listed first")
	assert.True(t, statuses[len(statuses)-1].Join)
}

func TestFormatStatus(t *testing.T) {
	var buf bytes.Buffer
	formatStatus(&buf, []tableStatus{
		{Name: "platforms", Exists: true, Records: 3, Complete: 2, Incomplete: 1, LastBackup: "platforms_backup_x.csv"},
		{Name: "models"},
		{Name: "model_benchmarks", Join: true, Exists: true, Records: 7},
	})

	out := buf.String()
	assert.Contains(t, out, "TABLE")
	assert.Contains(t, out, "platforms_backup_x.csv")
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "model_benchmarks (join)")
}
