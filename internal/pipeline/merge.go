package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// Merge fills the empty content fields of r from partial and returns the
// merged copy with the names of the fields that changed. Non-empty values
// are never overwritten. updatedAt is set to now on every call, even when no
// field changed; an empty createdAt is filled as well.
func Merge(r *model.Record, partial map[string]string, now time.Time) (*model.Record, []string) {
	schema := r.Schema()
	merged := r.Clone()

	var changed []string
	for _, name := range schema.Enrichable() {
		v, ok := partial[name]
		if !ok || strings.TrimSpace(v) == "" || !merged.IsEmpty(name) {
			continue
		}
		// name comes from the schema, Set cannot fail.
		_ = merged.Set(name, v)
		changed = append(changed, name)
	}

	ts := model.FormatTimestamp(now)
	if merged.IsEmpty(model.CreatedAtField) {
		_ = merged.Set(model.CreatedAtField, ts)
	}
	_ = merged.Set(model.UpdatedAtField, ts)
	return merged, changed
}

// Violation is a constraint a record's value does not satisfy.
type Violation struct {
	Field string
	Rule  string // required, enum, number, min, max or pattern
	Value string
}

func (v Violation) String() string {
	if v.Rule == "required" {
		return fmt.Sprintf("%s: required field is empty", v.Field)
	}
	return fmt.Sprintf("%s: %q violates %s", v.Field, v.Value, v.Rule)
}

// CheckConstraints validates r against its schema's field constraints.
// Empty optional fields are not checked.
func CheckConstraints(r *model.Record) []Violation {
	schema := r.Schema()
	var out []Violation
	for i := range schema.Fields {
		f := &schema.Fields[i]
		v := strings.TrimSpace(r.Get(f.Name))
		if v == "" {
			if f.Required {
				out = append(out, Violation{Field: f.Name, Rule: "required"})
			}
			continue
		}
		if !f.AllowedValue(v) {
			out = append(out, Violation{Field: f.Name, Rule: "enum", Value: v})
		}
		if f.Numeric() {
			n, ok := parseNumber(v)
			switch {
			case !ok:
				out = append(out, Violation{Field: f.Name, Rule: "number", Value: v})
			case f.Min != nil && n < *f.Min:
				out = append(out, Violation{Field: f.Name, Rule: "min", Value: v})
			case f.Max != nil && n > *f.Max:
				out = append(out, Violation{Field: f.Name, Rule: "max", Value: v})
			}
		}
		if !f.MatchesPattern(v) {
			out = append(out, Violation{Field: f.Name, Rule: "pattern", Value: v})
		}
	}
	return out
}

// logViolations reports constraint violations. They never block a save.
func logViolations(log *zap.Logger, r *model.Record, vs []Violation) {
	for _, v := range vs {
		log.Warn("pipeline: constraint violation",
			zap.String("id", r.ID()),
			zap.String("field", v.Field),
			zap.String("rule", v.Rule),
			zap.String("value", v.Value),
		)
	}
}

// parseNumber accepts plain numbers plus thousands separators and a
// trailing percent sign.
func parseNumber(v string) (float64, bool) {
	v = strings.TrimSuffix(strings.ReplaceAll(v, ",", ""), "%")
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return n, err == nil
}
