package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/resilience"
	"github.com/sells-group/catalog-enricher/internal/store"
)

// collectLimit bounds how many runs one snapshot reads.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of enrichment health.
type MetricsSnapshot struct {
	// Table runs within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Records across those runs.
	RecordsEnriched  int     `json:"records_enriched"`
	RecordsFailed    int     `json:"records_failed"`
	RecordFailRate   float64 `json:"record_fail_rate"`
	TransientFailure int     `json:"transient_failures"`
	PermanentFailure int     `json:"permanent_failures"`
	JoinRowsAdded    int     `json:"join_rows_added"`

	// Spend.
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLog is the subset of store.Store the collector reads.
type RunLog interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	ListFailures(ctx context.Context, filter store.FailureFilter) ([]model.RecordFailure, error)
}

// Collector gathers metrics from the run log.
type Collector struct {
	runs RunLog
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLog) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		snap.RecordsEnriched += r.Stats.Enriched
		snap.RecordsFailed += r.Stats.Failed
		snap.JoinRowsAdded += r.Stats.Added
		snap.InputTokens += r.Stats.InputTokens
		snap.OutputTokens += r.Stats.OutputTokens
		snap.CostUSD += r.Stats.CostUSD
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if attempted := snap.RecordsEnriched + snap.RecordsFailed; attempted > 0 {
		snap.RecordFailRate = float64(snap.RecordsFailed) / float64(attempted)
	}

	failures, err := c.runs.ListFailures(ctx, store.FailureFilter{
		CreatedAfter: cutoff,
		Limit:        collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list failures")
	}
	for _, f := range failures {
		if f.ErrorType == string(resilience.ClassTransient) {
			snap.TransientFailure++
		} else {
			snap.PermanentFailure++
		}
	}

	return snap, nil
}
