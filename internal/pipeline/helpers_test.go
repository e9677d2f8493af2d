package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/cost"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/tablestore"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

const fixedStamp = "2025-03-14T09:26:53.589Z"

func testCatalog(t *testing.T) *model.Catalog {
	t.Helper()
	cat, err := model.DefaultCatalog()
	require.NoError(t, err)
	return cat
}

func entity(t *testing.T, cat *model.Catalog, name string) *model.Schema {
	t.Helper()
	s, ok := cat.Entity(name)
	require.True(t, ok, "table %s", name)
	return s
}

func rec(t *testing.T, schema *model.Schema, values map[string]string) *model.Record {
	t.Helper()
	r := model.NewRecord(schema)
	for k, v := range values {
		require.NoError(t, r.Set(k, v))
	}
	return r
}

func tableOf(schema *model.Schema, records ...*model.Record) *model.Table {
	t := model.NewTable(schema)
	t.Records = append(t.Records, records...)
	return t
}

func completePlatform(t *testing.T, cat *model.Catalog, id string) *model.Record {
	t.Helper()
	return rec(t, entity(t, cat, "platforms"), map[string]string{
		"platform_id":   id,
		"platform_name": "Anthropic",
		"description":   "AI safety company building Claude.",
		"website_url":   "https://www.anthropic.com",
		"headquarters":  "San Francisco, USA",
		"founded_year":  "2021",
		"platform_type": "cloud",
		"pricing_model": "usage_based",
		"createdAt":     "2024-01-01T00:00:00.000Z",
		"updatedAt":     "2024-01-01T00:00:00.000Z",
	})
}

// reply is one scripted outcome of fakeGenerator.
type reply struct {
	text string
	err  error
}

// fakeGenerator returns scripted replies in order, repeating the last one.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []reply
	calls   []GenerateRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req GenerateRequest) (*Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if len(g.replies) == 0 {
		return &Generation{Text: "{}", Model: req.Model}, nil
	}
	r := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &Generation{
		Text:    r.text,
		Model:   req.Model,
		Usage:   cost.Usage{Input: 100, Output: 20},
		CostUSD: 0.001,
	}, nil
}

func (g *fakeGenerator) models() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	for i, c := range g.calls {
		out[i] = c.Model
	}
	return out
}

func (g *fakeGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// sleepRecorder captures backoff waits instead of sleeping.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newOrchestrator(gen Generator, sl *sleepRecorder) *Orchestrator {
	return &Orchestrator{
		Gen:           gen,
		PrimaryModel:  "primary",
		FallbackModel: "fallback",
		MaxAttempts:   3,
		Backoff:       backoffForTest(),
		Temperature:   0.3,
		MaxTokens:     512,
		Sleep:         sl.sleep,
		OnRetry:       func(int, string, error) {},
	}
}

// fakeRuns records run-log calls in memory.
type fakeRuns struct {
	mu        sync.Mutex
	runs      []*model.Run
	completed map[string]model.RunStatus
	stats     map[string]model.RunStats
	failures  []*model.RecordFailure
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{
		completed: make(map[string]model.RunStatus),
		stats:     make(map[string]model.RunStats),
	}
}

func (f *fakeRuns) CreateRun(_ context.Context, table string, kind model.RunKind) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := &model.Run{ID: NewID("run"), Table: table, Kind: kind, Status: model.RunStatusRunning}
	f.runs = append(f.runs, run)
	return run, nil
}

func (f *fakeRuns) CompleteRun(_ context.Context, runID string, status model.RunStatus, stats model.RunStats, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[runID] = status
	f.stats[runID] = stats
	return nil
}

func (f *fakeRuns) RecordFailure(_ context.Context, rf *model.RecordFailure) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, rf)
	return nil
}

func newProcessor(cat *model.Catalog, st *tablestore.MemoryStore, gen Generator, runs RunRecorder) *Processor {
	p := New(cat, st, newOrchestrator(gen, &sleepRecorder{}), nil, runs)
	p.Now = func() time.Time { return fixedNow }
	return p
}

// waitRecorder logs throttle calls and how many generations preceded each.
type waitRecorder struct {
	gen    *fakeGenerator
	events []string
	seen   []int
}

func (w *waitRecorder) Wait(ctx context.Context) error {
	w.events = append(w.events, "wait")
	w.seen = append(w.seen, w.gen.count())
	return ctx.Err()
}

func (w *waitRecorder) Done() {
	w.events = append(w.events, "done")
}
