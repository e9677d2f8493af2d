package monitoring

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/store"
)

// mockRunLog implements RunLog for testing.
type mockRunLog struct {
	runs       []model.Run
	failures   []model.RecordFailure
	listErr    error
	failureErr error
}

func (m *mockRunLog) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (m *mockRunLog) ListFailures(_ context.Context, filter store.FailureFilter) ([]model.RecordFailure, error) {
	if m.failureErr != nil {
		return nil, m.failureErr
	}
	var filtered []model.RecordFailure
	for _, f := range m.failures {
		if !filter.CreatedAfter.IsZero() && f.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered, nil
}

var collectNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCollector(rl RunLog) *Collector {
	c := NewCollector(rl)
	c.now = func() time.Time { return collectNow }
	return c
}

func TestCollector_EmptyRunLog(t *testing.T) {
	c := newTestCollector(&mockRunLog{})
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Zero(t, snap.RecordFailRate)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, collectNow, snap.CollectedAt)
}

func TestCollector_RunMetrics(t *testing.T) {
	recent := collectNow.Add(-time.Hour)
	rl := &mockRunLog{
		runs: []model.Run{
			{ID: "1", Table: "models", Status: model.RunStatusComplete, CreatedAt: recent,
				Stats: model.RunStats{Enriched: 8, Failed: 2, InputTokens: 1000, OutputTokens: 200, CostUSD: 0.25}},
			{ID: "2", Table: "benchmarks", Status: model.RunStatusComplete, CreatedAt: recent,
				Stats: model.RunStats{Enriched: 10, CostUSD: 0.50}},
			{ID: "3", Table: "pricing", Status: model.RunStatusFailed, CreatedAt: recent},
			{ID: "4", Table: "apis", Status: model.RunStatusRunning, CreatedAt: recent},
			{ID: "5", Table: "model_benchmarks", Kind: model.RunKindReconcile, Status: model.RunStatusComplete,
				CreatedAt: recent, Stats: model.RunStats{Added: 7}},
			{ID: "old", Table: "models", Status: model.RunStatusFailed, CreatedAt: collectNow.Add(-48 * time.Hour),
				Stats: model.RunStats{Failed: 100, CostUSD: 99}},
		},
		failures: []model.RecordFailure{
			{RunID: "1", ErrorType: "transient", CreatedAt: recent},
			{RunID: "1", ErrorType: "permanent", CreatedAt: recent},
			{RunID: "old", ErrorType: "transient", CreatedAt: collectNow.Add(-48 * time.Hour)},
		},
	}

	snap, err := newTestCollector(rl).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 3, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 0.25, snap.RunFailRate, 0.001)

	assert.Equal(t, 18, snap.RecordsEnriched)
	assert.Equal(t, 2, snap.RecordsFailed)
	assert.InDelta(t, 0.1, snap.RecordFailRate, 0.001)
	assert.Equal(t, 7, snap.JoinRowsAdded)
	assert.Equal(t, 1, snap.TransientFailure)
	assert.Equal(t, 1, snap.PermanentFailure)

	assert.Equal(t, int64(1000), snap.InputTokens)
	assert.Equal(t, int64(200), snap.OutputTokens)
	assert.InDelta(t, 0.75, snap.CostUSD, 0.001)
}

func TestCollector_OnlyRunningRuns(t *testing.T) {
	rl := &mockRunLog{runs: []model.Run{
		{ID: "1", Status: model.RunStatusRunning, CreatedAt: collectNow},
	}}
	snap, err := newTestCollector(rl).Collect(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Zero(t, snap.RunFailRate)
}

func TestCollector_Errors(t *testing.T) {
	_, err := newTestCollector(&mockRunLog{listErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")

	_, err = newTestCollector(&mockRunLog{failureErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list failures")
}

func TestCollector_SQLiteRunLog(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	run, err := s.CreateRun(ctx, "models", model.RunKindEnrich)
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, run.ID, model.RunStatusComplete,
		model.RunStats{Enriched: 3, Failed: 1, CostUSD: 0.1}, ""))
	require.NoError(t, s.RecordFailure(ctx, &model.RecordFailure{
		RunID: run.ID, Table: "models", RecordID: "model_1", Error: "exhausted", ErrorType: "permanent", Attempts: 3,
	}))

	snap, err := NewCollector(s).Collect(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 3, snap.RecordsEnriched)
	assert.Equal(t, 1, snap.PermanentFailure)
	assert.InDelta(t, 0.25, snap.RecordFailRate, 0.001)
}
