package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Table        string          `json:"table,omitempty"`
	Kind         model.RunKind   `json:"kind,omitempty"`
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// FailureFilter specifies criteria for listing record failures.
type FailureFilter struct {
	RunID        string    `json:"run_id,omitempty"`
	Table        string    `json:"table,omitempty"`
	ErrorType    string    `json:"error_type,omitempty"`
	CreatedAfter time.Time `json:"created_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}

// Store is the run log: one row per table run plus one row per record whose
// enrichment was exhausted.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, table string, kind model.RunKind) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Failures
	RecordFailure(ctx context.Context, f *model.RecordFailure) error
	ListFailures(ctx context.Context, filter FailureFilter) ([]model.RecordFailure, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = eris.New("run not found")

const defaultListLimit = 100

// Open returns the Store for driver ("sqlite" or "postgres") and migrates it.
// An empty driver or "none" returns (nil, nil): the run log is optional.
func Open(ctx context.Context, driver, dsn string, pool *PoolConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "none":
		return nil, nil
	case "sqlite":
		s, err = NewSQLite(dsn)
	case "postgres", "postgresql":
		s, err = NewPostgres(ctx, dsn, pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
