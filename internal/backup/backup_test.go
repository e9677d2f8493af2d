package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return t
	}
}

func TestBackup_CopiesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "models.csv")
	require.NoError(t, os.WriteFile(src, []byte("model_id\nmodel_1\n"), 0o644))

	m := NewManager(filepath.Join(dir, "backups"))
	m.Now = fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC))

	path, err := m.Backup(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backups", "models_backup_2026-01-02T03-04-05-006Z.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "model_id\nmodel_1\n", string(data))
}

func TestBackup_MissingOrEmpty(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "backups"))

	path, err := m.Backup(filepath.Join(dir, "nope.csv"))
	require.NoError(t, err)
	assert.Empty(t, path)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	path, err = m.Backup(empty)
	require.NoError(t, err)
	assert.Empty(t, path)

	_, statErr := os.Stat(filepath.Join(dir, "backups"))
	assert.True(t, os.IsNotExist(statErr), "no backup dir for no-op backups")
}

func TestBackup_DirectoryIsError(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "backups"))
	_, err := m.Backup(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestList_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pricing.csv")
	require.NoError(t, os.WriteFile(src, []byte("x\n"), 0o644))

	m := NewManager(filepath.Join(dir, "backups"))
	m.Now = fixedClock(
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	)
	first, err := m.Backup(src)
	require.NoError(t, err)
	second, err := m.Backup(src)
	require.NoError(t, err)

	list, err := m.List("pricing")
	require.NoError(t, err)
	assert.Equal(t, []string{second, first}, list)

	list, err = m.List("models")
	require.NoError(t, err)
	assert.Empty(t, list)
}
