package tablestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/backup"
	"github.com/sells-group/catalog-enricher/internal/model"
)

func modelsSchema(t *testing.T) *model.Schema {
	t.Helper()
	s := &model.Schema{
		Name:       "models",
		PrimaryKey: "model_id",
		Parent:     &model.ParentRef{Table: "platforms", ForeignKey: "platform_id"},
		Fields:     []model.Field{{Name: "model_name"}, {Name: "description"}},
	}
	require.NoError(t, s.Init())
	return s
}

func TestCSVStore_LoadMissing(t *testing.T) {
	st := NewCSVStore(t.TempDir(), nil)
	_, err := st.Load(context.Background(), modelsSchema(t))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.False(t, st.Exists("models"))
}

func TestCSVStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	st := NewCSVStore(dir, nil)
	schema := modelsSchema(t)
	ctx := context.Background()

	input := "model_id,platform_id,model_name,legacy_notes,description,createdAt,updatedAt\n" +
		"model_1,plat_1,\"Claude, Sonnet\",keep,,2026-01-01T00:00:00.000Z,\n" +
		",,,,,,\n" +
		"model_2,plat_1,,,\"multi\nline\",,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models.csv"), []byte(input), 0o644))
	assert.True(t, st.Exists("models"))

	tbl, err := st.Load(ctx, schema)
	require.NoError(t, err)
	require.Len(t, tbl.Records, 2, "blank rows are skipped")
	assert.Equal(t, []string{"legacy_notes"}, tbl.ExtraColumns)

	r1 := tbl.Records[0]
	assert.Equal(t, "model_1", r1.ID())
	assert.Equal(t, "plat_1", r1.ForeignKey())
	assert.Equal(t, "Claude, Sonnet", r1.Get("model_name"))
	assert.True(t, r1.IsEmpty("description"))
	assert.Equal(t, "keep", r1.Extra("legacy_notes"))
	assert.Equal(t, "multi\nline", tbl.Records[1].Get("description"))

	require.NoError(t, st.Save(ctx, tbl))
	data, err := os.ReadFile(filepath.Join(dir, "models.csv"))
	require.NoError(t, err)
	lines := strings.SplitN(string(data), "\n", 2)
	assert.Equal(t, "model_id,platform_id,model_name,description,createdAt,updatedAt,legacy_notes", lines[0])

	again, err := st.Load(ctx, schema)
	require.NoError(t, err)
	require.Len(t, again.Records, 2)
	for i := range tbl.Records {
		assert.True(t, tbl.Records[i].Equal(again.Records[i]))
	}
}

func TestCSVStore_EmptyAndHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	st := NewCSVStore(dir, nil)
	schema := modelsSchema(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "models.csv"), nil, 0o644))
	tbl, err := st.Load(ctx, schema)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.False(t, st.Exists("models"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "models.csv"), []byte("model_id,model_name\n"), 0o644))
	tbl, err = st.Load(ctx, schema)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.True(t, st.Exists("models"))
}

func TestCSVStore_RaggedRows(t *testing.T) {
	dir := t.TempDir()
	st := NewCSVStore(dir, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models.csv"),
		[]byte("model_id,platform_id,model_name\nmodel_1\nmodel_2,plat_1,Gemini,extra\n"), 0o644))

	tbl, err := st.Load(context.Background(), modelsSchema(t))
	require.NoError(t, err)
	require.Len(t, tbl.Records, 2)
	assert.True(t, tbl.Records[0].IsEmpty("platform_id"))
	assert.Equal(t, "Gemini", tbl.Records[1].Get("model_name"))
}

func TestCSVStore_Snapshot(t *testing.T) {
	dir := t.TempDir()
	mgr := backup.NewManager(filepath.Join(dir, "backups"))
	mgr.Now = func() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC) }
	st := NewCSVStore(dir, mgr)

	path, err := st.Snapshot("models")
	require.NoError(t, err)
	assert.Empty(t, path, "nothing to back up yet")

	tbl := model.NewTable(modelsSchema(t))
	rec := model.NewRecord(tbl.Schema)
	require.NoError(t, rec.Set("model_id", "model_1"))
	tbl.Records = append(tbl.Records, rec)
	require.NoError(t, st.Save(context.Background(), tbl))

	path, err = st.Snapshot("models")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backups", "models_backup_2026-05-06T07-08-09-000Z.csv"), path)

	noBackups := NewCSVStore(dir, nil)
	path, err = noBackups.Snapshot("models")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestCSVStore_SaveCancelled(t *testing.T) {
	st := NewCSVStore(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := st.Save(ctx, model.NewTable(modelsSchema(t)))
	require.Error(t, err)
}
