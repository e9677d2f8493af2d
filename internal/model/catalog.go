package model

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// JoinRuleKind selects how a join table's target pairs are derived.
type JoinRuleKind string

const (
	// JoinExplicit pairs a child with the parent it already names, either
	// through its foreign key or through a "<parent_id>_" id prefix.
	JoinExplicit JoinRuleKind = "explicit"
	// JoinDelimited splits a comma-separated list field on the parent; each
	// token becomes a synthesized child id.
	JoinDelimited JoinRuleKind = "delimited"
	// JoinFanOut assigns each parent a deterministic number of children.
	JoinFanOut JoinRuleKind = "fan_out"
)

// JoinSide names one end of a many-to-many relation.
type JoinSide struct {
	Table string `yaml:"table" json:"table"`
	Key   string `yaml:"key" json:"key"`
}

// FanOutRange bounds the number of children per parent for fan-out joins.
type FanOutRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// JoinRule describes how target pairs are derived for a join table.
type JoinRule struct {
	Kind      JoinRuleKind `yaml:"kind" json:"kind"`
	ListField string       `yaml:"list_field,omitempty" json:"list_field,omitempty"`
	// ChildPrefix is the id prefix for children synthesized from list tokens.
	ChildPrefix string `yaml:"child_prefix,omitempty" json:"child_prefix,omitempty"`
	// Fallback applies a fan-out to parents whose list field is empty.
	Fallback *FanOutRange `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	FanOut   *FanOutRange `yaml:"fan_out,omitempty" json:"fan_out,omitempty"`
}

// JoinSchema defines a many-to-many join table.
type JoinSchema struct {
	Name     string   `yaml:"name" json:"name"`
	IDPrefix string   `yaml:"id_prefix" json:"id_prefix"`
	Parent   JoinSide `yaml:"parent" json:"parent"`
	Child    JoinSide `yaml:"child" json:"child"`
	Rule     JoinRule `yaml:"rule" json:"rule"`

	schema *Schema
}

// Schema returns the table schema of the join: id, both keys, timestamps.
func (j *JoinSchema) Schema() *Schema {
	return j.schema
}

func (j *JoinSchema) init() error {
	if j.Parent.Table == "" || j.Parent.Key == "" || j.Child.Table == "" || j.Child.Key == "" {
		return eris.Errorf("model: join %s has incomplete sides", j.Name)
	}
	switch j.Rule.Kind {
	case JoinExplicit:
	case JoinDelimited:
		if j.Rule.ListField == "" {
			return eris.Errorf("model: join %s: delimited rule needs list_field", j.Name)
		}
	case JoinFanOut:
		if j.Rule.FanOut == nil {
			return eris.Errorf("model: join %s: fan_out rule needs a range", j.Name)
		}
	default:
		return eris.Errorf("model: join %s: unknown rule %q", j.Name, j.Rule.Kind)
	}
	for _, r := range []*FanOutRange{j.Rule.Fallback, j.Rule.FanOut} {
		if r != nil && (r.Min < 0 || r.Max < r.Min) {
			return eris.Errorf("model: join %s: invalid fan-out range %d..%d", j.Name, r.Min, r.Max)
		}
	}
	if j.IDPrefix == "" {
		j.IDPrefix = "rel"
	}
	j.schema = &Schema{
		Name:       j.Name,
		PrimaryKey: "id",
		IDPrefix:   j.IDPrefix,
		KeyFields:  []string{j.Parent.Key, j.Child.Key},
	}
	return j.schema.Init()
}

// Catalog is the full set of entity and join table definitions.
type Catalog struct {
	Entities []*Schema     `yaml:"entities" json:"entities"`
	Joins    []*JoinSchema `yaml:"joins" json:"joins"`

	entities map[string]*Schema
	joins    map[string]*JoinSchema
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from a YAML file. An empty path returns the
// default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "model: parse catalog")
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) init() error {
	c.entities = make(map[string]*Schema, len(c.Entities))
	c.joins = make(map[string]*JoinSchema, len(c.Joins))

	for _, s := range c.Entities {
		if err := s.Init(); err != nil {
			return err
		}
		if _, dup := c.entities[s.Name]; dup {
			return eris.Errorf("model: duplicate table %s", s.Name)
		}
		c.entities[s.Name] = s
	}
	for _, s := range c.Entities {
		if s.Parent == nil {
			continue
		}
		parent, ok := c.entities[s.Parent.Table]
		if !ok {
			return eris.Errorf("model: table %s references unknown parent %s", s.Name, s.Parent.Table)
		}
		if s.Parent.ForeignKey != parent.PrimaryKey {
			return eris.Errorf("model: table %s foreign key %s does not match %s primary key %s",
				s.Name, s.Parent.ForeignKey, parent.Name, parent.PrimaryKey)
		}
	}
	for _, j := range c.Joins {
		if err := j.init(); err != nil {
			return err
		}
		if _, dup := c.entities[j.Name]; dup {
			return eris.Errorf("model: join %s collides with a table name", j.Name)
		}
		if _, dup := c.joins[j.Name]; dup {
			return eris.Errorf("model: duplicate join %s", j.Name)
		}
		for _, side := range []JoinSide{j.Parent, j.Child} {
			if _, ok := c.entities[side.Table]; !ok {
				return eris.Errorf("model: join %s references unknown table %s", j.Name, side.Table)
			}
		}
		if j.Rule.Kind == JoinDelimited {
			if !c.entities[j.Parent.Table].Has(j.Rule.ListField) {
				return eris.Errorf("model: join %s: %s has no field %s", j.Name, j.Parent.Table, j.Rule.ListField)
			}
		}
		c.joins[j.Name] = j
	}
	if _, err := c.Order(); err != nil {
		return err
	}
	return nil
}

// Entity returns the schema for table name.
func (c *Catalog) Entity(name string) (*Schema, bool) {
	s, ok := c.entities[name]
	return s, ok
}

// Join returns the join schema for name.
func (c *Catalog) Join(name string) (*JoinSchema, bool) {
	j, ok := c.joins[name]
	return j, ok
}

// Parent returns the parent schema of s, or nil for root tables.
func (c *Catalog) Parent(s *Schema) *Schema {
	if s.Parent == nil {
		return nil
	}
	return c.entities[s.Parent.Table]
}

// JoinsFor returns the joins that have table on either side.
func (c *Catalog) JoinsFor(table string) []*JoinSchema {
	var out []*JoinSchema
	for _, j := range c.Joins {
		if j.Parent.Table == table || j.Child.Table == table {
			out = append(out, j)
		}
	}
	return out
}

// Order returns entity schemas sorted so every parent precedes its
// children. Declaration order breaks ties.
func (c *Catalog) Order() ([]*Schema, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(c.Entities))
	out := make([]*Schema, 0, len(c.Entities))

	var visit func(s *Schema) error
	visit = func(s *Schema) error {
		switch state[s.Name] {
		case done:
			return nil
		case visiting:
			return eris.Errorf("model: parent cycle through %s", s.Name)
		}
		state[s.Name] = visiting
		if p := c.Parent(s); p != nil {
			if err := visit(p); err != nil {
				return err
			}
		}
		state[s.Name] = done
		out = append(out, s)
		return nil
	}
	for _, s := range c.Entities {
		if err := visit(s); err != nil {
			return nil, err
		}
	}
	return out, nil
}
