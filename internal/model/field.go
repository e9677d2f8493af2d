package model

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Field describes one enrichable content column and the constraints its
// values are checked against after a merge.
type Field struct {
	Name     string   `yaml:"name" json:"name"`
	Hint     string   `yaml:"hint,omitempty" json:"hint,omitempty"`
	Required bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Enum     []string `yaml:"enum,omitempty" json:"enum,omitempty"`
	Min      *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	patternRegex *regexp.Regexp // compiled from Pattern at catalog load
}

// Numeric reports whether the field declares a numeric range.
func (f *Field) Numeric() bool {
	return f.Min != nil || f.Max != nil
}

// AllowedValue reports whether v is a member of the field's enum. Fields
// without an enum accept anything. Comparison is case-insensitive.
func (f *Field) AllowedValue(v string) bool {
	if len(f.Enum) == 0 {
		return true
	}
	for _, e := range f.Enum {
		if strings.EqualFold(e, strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

// MatchesPattern reports whether v satisfies the field's pattern. Fields
// without a pattern always match.
func (f *Field) MatchesPattern(v string) bool {
	if f.patternRegex == nil {
		return true
	}
	return f.patternRegex.MatchString(v)
}

func (f *Field) compile() error {
	if f.Pattern == "" {
		return nil
	}
	re, err := regexp.Compile(f.Pattern)
	if err != nil {
		return eris.Wrapf(err, "model: compile pattern for field %s", f.Name)
	}
	f.patternRegex = re
	return nil
}

// Describe renders a one-line instruction for the field, used when building
// enrichment prompts.
func (f *Field) Describe() string {
	var b strings.Builder
	b.WriteString(f.Name)
	if f.Hint != "" {
		b.WriteString(": ")
		b.WriteString(f.Hint)
	}
	if len(f.Enum) > 0 {
		b.WriteString(" (one of: ")
		b.WriteString(strings.Join(f.Enum, ", "))
		b.WriteString(")")
	}
	switch {
	case f.Min != nil && f.Max != nil:
		b.WriteString(" (number between ")
		b.WriteString(formatNumber(*f.Min))
		b.WriteString(" and ")
		b.WriteString(formatNumber(*f.Max))
		b.WriteString(")")
	case f.Min != nil:
		b.WriteString(" (number >= ")
		b.WriteString(formatNumber(*f.Min))
		b.WriteString(")")
	case f.Max != nil:
		b.WriteString(" (number <= ")
		b.WriteString(formatNumber(*f.Max))
		b.WriteString(")")
	}
	return b.String()
}
