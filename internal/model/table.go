package model

// Table is an ordered collection of records of one schema. Order is kept
// across load/save but carries no meaning.
type Table struct {
	Schema  *Schema
	Records []*Record

	// ExtraColumns are undeclared header columns found on disk, in their
	// original order. They are written back after the declared columns.
	ExtraColumns []string
}

// NewTable returns an empty table for schema.
func NewTable(schema *Schema) *Table {
	return &Table{Schema: schema}
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.Records) }

// Index maps primary key to record. Records without a primary key are
// skipped; on duplicate keys the first occurrence wins.
func (t *Table) Index() map[string]*Record {
	idx := make(map[string]*Record, len(t.Records))
	for _, r := range t.Records {
		id := r.ID()
		if id == "" {
			continue
		}
		if _, ok := idx[id]; !ok {
			idx[id] = r
		}
	}
	return idx
}

// Header returns the declared columns followed by any extra columns.
func (t *Table) Header() []string {
	return append(t.Schema.Columns(), t.ExtraColumns...)
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	c := &Table{
		Schema:       t.Schema,
		Records:      make([]*Record, len(t.Records)),
		ExtraColumns: append([]string(nil), t.ExtraColumns...),
	}
	for i, r := range t.Records {
		c.Records[i] = r.Clone()
	}
	return c
}

// CompleteCount returns how many records pass the completeness gate.
func (t *Table) CompleteCount() int {
	n := 0
	for _, r := range t.Records {
		if t.Schema.IsComplete(r) {
			n++
		}
	}
	return n
}
