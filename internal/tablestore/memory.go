package tablestore

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// MemoryStore keeps tables in memory. Loads and saves copy the data, so
// callers never share records with the store.
type MemoryStore struct {
	mu        sync.Mutex
	tables    map[string]*model.Table
	saves     map[string]int
	snapshots map[string]int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:    make(map[string]*model.Table),
		saves:     make(map[string]int),
		snapshots: make(map[string]int),
	}
}

// Put seeds a table without counting it as a save.
func (m *MemoryStore) Put(t *model.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.Schema.Name] = t.Clone()
}

// Load returns a copy of the stored table.
func (m *MemoryStore) Load(ctx context.Context, schema *model.Schema) (*model.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "tablestore: load")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[schema.Name]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "%s", schema.Name)
	}
	c := t.Clone()
	c.Schema = schema
	return c, nil
}

// Save stores a copy of t.
func (m *MemoryStore) Save(ctx context.Context, t *model.Table) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "tablestore: save")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.Schema.Name] = t.Clone()
	m.saves[t.Schema.Name]++
	return nil
}

// Exists reports whether the table is present. An empty table counts as
// present only when it has been saved at least once, mirroring a file that
// holds just a header row.
func (m *MemoryStore) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[name]
	return ok
}

// Snapshot records that a backup was requested.
func (m *MemoryStore) Snapshot(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; !ok {
		return "", nil
	}
	m.snapshots[name]++
	return "memory://" + name, nil
}

// Saves returns how many times table name was saved.
func (m *MemoryStore) Saves(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[name]
}

// Snapshots returns how many backups were taken of table name.
func (m *MemoryStore) Snapshots(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[name]
}
