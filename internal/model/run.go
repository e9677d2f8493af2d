package model

import "time"

// RunStatus represents the state of one table run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunKind distinguishes entity enrichment runs from join reconciliation.
type RunKind string

const (
	RunKindEnrich    RunKind = "enrich"
	RunKindReconcile RunKind = "reconcile"
)

// Run is the persisted summary of processing one table.
type Run struct {
	ID        string    `json:"id"`
	Table     string    `json:"table"`
	Kind      RunKind   `json:"kind"`
	Status    RunStatus `json:"status"`
	Stats     RunStats  `json:"stats"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunStats tallies what happened during a run.
type RunStats struct {
	Loaded       int     `json:"loaded"`
	Dropped      int     `json:"dropped"`
	Stubbed      int     `json:"stubbed"`
	Skipped      int     `json:"skipped"`
	Enriched     int     `json:"enriched"`
	Failed       int     `json:"failed"`
	Added        int     `json:"added"`
	Warnings     int     `json:"warnings"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	BackupPath   string  `json:"backup_path,omitempty"`
}

// RecordFailure is a record whose enrichment exhausted all attempts. The
// record was saved with its original content.
type RecordFailure struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Table     string    `json:"table"`
	RecordID  string    `json:"record_id"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"` // "transient" or "permanent"
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}
