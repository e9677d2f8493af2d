package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// defaultSystemPrompt is the shared system instruction for record enrichment.
const defaultSystemPrompt = `You are a research analyst maintaining a catalog of AI platforms, models and the products built around them.

Rules:
- Return exactly one JSON object and nothing else
- Use only the field names you are asked for
- Use null for any value you cannot determine with reasonable confidence
- For numerical values, use raw numbers without units or formatting (e.g., 128000 not "128k")
- For enumerated fields, use one of the listed values verbatim
- Be precise and factual; this data is published as reference material`

// ParentContext holds the resolved ancestors of a record, nearest first:
// the parent, then the grandparent.
type ParentContext []*model.Record

// SystemPrompt returns the system instruction for schema.
func SystemPrompt(schema *model.Schema) string {
	if schema.SystemPrompt == "" {
		return defaultSystemPrompt
	}
	return defaultSystemPrompt + "\n\n" + schema.SystemPrompt
}

// BuildPrompt renders the user prompt asking for every enrichable field of
// the record. Known values and ancestor context are included so the answer
// stays consistent with what is already recorded; Merge keeps those values.
func BuildPrompt(schema *model.Schema, r *model.Record, parents ParentContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Complete this %s record. Repeat known values unchanged and fill in the missing ones.\n", singular(schema.Name))

	if len(parents) > 0 {
		sb.WriteString("\n--- Context ---\n")
		for i, p := range parents {
			if p == nil {
				continue
			}
			writeContext(&sb, schema, p, i == 0)
		}
	}

	sb.WriteString("\n--- Known values ---\n")
	known := 0
	for _, f := range schema.Fields {
		if r.IsEmpty(f.Name) {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", f.Name, r.Get(f.Name))
		known++
	}
	if known == 0 {
		sb.WriteString("(none)\n")
	}

	sb.WriteString("\n--- Fields to provide ---\n")
	for _, f := range schema.Fields {
		sb.WriteString("- ")
		sb.WriteString(f.Describe())
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nReturn a single JSON object with exactly these keys: %s.", strings.Join(schema.Enrichable(), ", "))
	return sb.String()
}

// writeContext describes one ancestor. The direct parent contributes the
// fields the child schema asks for; every ancestor contributes its name.
func writeContext(sb *strings.Builder, child *model.Schema, p *model.Record, direct bool) {
	ps := p.Schema()
	fmt.Fprintf(sb, "%s: %s\n", singular(ps.Name), ps.DisplayName(p))
	if !direct {
		return
	}
	for _, col := range child.Context {
		if col == ps.NameField || !ps.Has(col) || p.IsEmpty(col) {
			continue
		}
		fmt.Fprintf(sb, "%s: %s\n", col, p.Get(col))
	}
}

// singular turns a table name into a readable noun: "use_cases" -> "use case".
func singular(table string) string {
	s := strings.ReplaceAll(table, "_", " ")
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}
