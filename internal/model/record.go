package model

import "github.com/rotisserie/eris"

// ErrUnknownField is returned when a value is assigned to a column the
// record's schema does not declare.
var ErrUnknownField = eris.New("model: unknown field")

// Record is one row of a table. Values are keyed by the schema's enumerated
// columns; undefined, null and empty all collapse to "".
type Record struct {
	schema *Schema
	values map[string]string
	extra  map[string]string // columns found on disk that the schema does not declare
}

// NewRecord returns an empty record for schema.
func NewRecord(schema *Schema) *Record {
	return &Record{
		schema: schema,
		values: make(map[string]string, len(schema.columns)),
	}
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema { return r.schema }

// Get returns the value of col, or "" when unset or unknown.
func (r *Record) Get(col string) string {
	return r.values[col]
}

// Set assigns v to col. Unknown columns are rejected with ErrUnknownField.
func (r *Record) Set(col, v string) error {
	if !r.schema.Has(col) {
		return eris.Wrapf(ErrUnknownField, "%s.%s", r.schema.Name, col)
	}
	if v == "" {
		delete(r.values, col)
		return nil
	}
	r.values[col] = v
	return nil
}

// IsEmpty reports whether col holds no value. Whitespace is a value.
func (r *Record) IsEmpty(col string) bool {
	return r.values[col] == ""
}

// ID returns the primary key value.
func (r *Record) ID() string {
	return r.values[r.schema.PrimaryKey]
}

// ForeignKey returns the value of the parent reference column, or "".
func (r *Record) ForeignKey() string {
	fk := r.schema.ForeignKey()
	if fk == "" {
		return ""
	}
	return r.values[fk]
}

// Extra returns the value of an undeclared column preserved from disk.
func (r *Record) Extra(col string) string {
	return r.extra[col]
}

// SetExtra stores an undeclared column so it survives a load/save cycle.
func (r *Record) SetExtra(col, v string) {
	if r.extra == nil {
		r.extra = make(map[string]string)
	}
	r.extra[col] = v
}

// Values returns a copy of the declared column values.
func (r *Record) Values() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := &Record{
		schema: r.schema,
		values: r.Values(),
	}
	if r.extra != nil {
		c.extra = make(map[string]string, len(r.extra))
		for k, v := range r.extra {
			c.extra[k] = v
		}
	}
	return c
}

// Equal reports whether r and o hold the same declared and extra values.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if len(r.values) != len(o.values) || len(r.extra) != len(o.extra) {
		return false
	}
	for k, v := range r.values {
		if o.values[k] != v {
			return false
		}
	}
	for k, v := range r.extra {
		if o.extra[k] != v {
			return false
		}
	}
	return true
}
