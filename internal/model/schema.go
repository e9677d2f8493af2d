package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ParentRef ties a child table to its 1-to-many parent.
type ParentRef struct {
	Table      string `yaml:"table" json:"table"`
	ForeignKey string `yaml:"foreign_key" json:"foreign_key"`
}

// FanOutRule assigns Count stubs to parents whose id or name contains any of
// the Match substrings (case-insensitive).
type FanOutRule struct {
	Match []string `yaml:"match" json:"match"`
	Count int      `yaml:"count" json:"count"`
}

// StubPolicy controls placeholder synthesis for an empty child table. A nil
// policy means the table never synthesizes stubs.
type StubPolicy struct {
	PerParent int          `yaml:"per_parent" json:"per_parent"`
	FanOut    []FanOutRule `yaml:"fan_out,omitempty" json:"fan_out,omitempty"`
}

// CountFor returns how many stubs to create for a parent identified by id
// and display name. The first matching fan-out rule wins.
func (p *StubPolicy) CountFor(parentID, parentName string) int {
	if p == nil {
		return 0
	}
	id := strings.ToLower(parentID)
	name := strings.ToLower(parentName)
	for _, rule := range p.FanOut {
		for _, m := range rule.Match {
			m = strings.ToLower(strings.TrimSpace(m))
			if m == "" {
				continue
			}
			if strings.Contains(id, m) || strings.Contains(name, m) {
				return rule.Count
			}
		}
	}
	if p.PerParent <= 0 {
		return 1
	}
	return p.PerParent
}

// Schema is the explicit definition of one table: its identifiers, its
// enrichable content fields, and how it relates to its parent.
type Schema struct {
	Name         string      `yaml:"name" json:"name"`
	PrimaryKey   string      `yaml:"primary_key" json:"primary_key"`
	IDPrefix     string      `yaml:"id_prefix" json:"id_prefix"`
	NameField    string      `yaml:"name_field,omitempty" json:"name_field,omitempty"`
	Parent       *ParentRef  `yaml:"parent,omitempty" json:"parent,omitempty"`
	Fields       []Field     `yaml:"fields" json:"fields"`
	Stubs        *StubPolicy `yaml:"stubs,omitempty" json:"stubs,omitempty"`
	Context      []string    `yaml:"context,omitempty" json:"context,omitempty"`
	SystemPrompt string      `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`

	// KeyFields lists foreign-key columns. Populated from Parent for entity
	// tables and from both sides for join tables.
	KeyFields []string `yaml:"-" json:"-"`

	columns []string
	byName  map[string]*Field
	known   map[string]struct{}
}

// Init validates the schema and builds its lookup indexes. It must be called
// before the schema is used; Catalog loading does this automatically.
func (s *Schema) Init() error {
	if s.Name == "" {
		return eris.New("model: schema without name")
	}
	if s.PrimaryKey == "" {
		return eris.Errorf("model: schema %s has no primary key", s.Name)
	}
	if s.IDPrefix == "" {
		s.IDPrefix = strings.TrimSuffix(s.Name, "s")
	}
	if s.Parent != nil {
		if s.Parent.Table == "" || s.Parent.ForeignKey == "" {
			return eris.Errorf("model: schema %s has incomplete parent reference", s.Name)
		}
		if len(s.KeyFields) == 0 {
			s.KeyFields = []string{s.Parent.ForeignKey}
		}
	}

	s.byName = make(map[string]*Field, len(s.Fields))
	s.known = make(map[string]struct{}, len(s.Fields)+4)
	s.columns = s.columns[:0]

	add := func(col string) error {
		if _, dup := s.known[col]; dup {
			return eris.Errorf("model: schema %s declares column %s twice", s.Name, col)
		}
		s.known[col] = struct{}{}
		s.columns = append(s.columns, col)
		return nil
	}

	if err := add(s.PrimaryKey); err != nil {
		return err
	}
	for _, k := range s.KeyFields {
		if err := add(k); err != nil {
			return err
		}
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == CreatedAtField || f.Name == UpdatedAtField {
			return eris.Errorf("model: schema %s uses reserved field %s", s.Name, f.Name)
		}
		if err := add(f.Name); err != nil {
			return err
		}
		if err := f.compile(); err != nil {
			return err
		}
		s.byName[f.Name] = f
	}
	if err := add(CreatedAtField); err != nil {
		return err
	}
	if err := add(UpdatedAtField); err != nil {
		return err
	}
	return nil
}

// Columns returns the ordered header: primary key, foreign keys, content
// fields, then createdAt and updatedAt.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Has reports whether col is one of the schema's declared columns.
func (s *Schema) Has(col string) bool {
	_, ok := s.known[col]
	return ok
}

// Field returns the content field definition for name, or nil.
func (s *Schema) Field(name string) *Field {
	return s.byName[name]
}

// Enrichable returns the names of the content fields, in declared order.
func (s *Schema) Enrichable() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// ForeignKey returns the column referencing the parent table, or "".
func (s *Schema) ForeignKey() string {
	if s.Parent == nil {
		return ""
	}
	return s.Parent.ForeignKey
}

// IsComplete reports whether every enrichable field of r holds a non-empty
// value.
func (s *Schema) IsComplete(r *Record) bool {
	for _, f := range s.Fields {
		if r.IsEmpty(f.Name) {
			return false
		}
	}
	return true
}

// MissingFields returns the enrichable fields of r that are still empty.
func (s *Schema) MissingFields(r *Record) []string {
	var missing []string
	for _, f := range s.Fields {
		if r.IsEmpty(f.Name) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// DisplayName returns the record's name field when the schema has one,
// falling back to its primary key.
func (s *Schema) DisplayName(r *Record) string {
	if s.NameField != "" {
		if v := r.Get(s.NameField); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return r.ID()
}
