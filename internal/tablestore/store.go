// Package tablestore persists tables as header-plus-rows files and provides
// an in-memory implementation for tests.
package tablestore

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// ErrNotFound is returned by Load when the table has never been written.
var ErrNotFound = eris.New("tablestore: table not found")

// Store loads and saves whole tables.
type Store interface {
	// Load returns every record of the table described by schema. It returns
	// ErrNotFound when the table does not exist.
	Load(ctx context.Context, schema *model.Schema) (*model.Table, error)
	// Save replaces the stored table with t.
	Save(ctx context.Context, t *model.Table) error
	// Exists reports whether the table has been written before and holds at
	// least one byte of data.
	Exists(name string) bool
}

// Snapshotter is implemented by stores that can copy a table aside before
// it is overwritten.
type Snapshotter interface {
	// Snapshot copies the named table to a backup location and returns the
	// backup's path, or "" when there was nothing to copy.
	Snapshot(name string) (string, error)
}
