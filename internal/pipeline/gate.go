package pipeline

import (
	"github.com/sells-group/catalog-enricher/internal/model"
)

// GateReport summarizes completeness for a set of records.
type GateReport struct {
	Complete   int
	Incomplete int
	// Missing counts, per enrichable field, how many records lack it.
	Missing map[string]int
}

// NeedsEnrichment reports whether r has at least one empty enrichable
// field. Complete records are never sent to the generation service.
func NeedsEnrichment(schema *model.Schema, r *model.Record) bool {
	return !schema.IsComplete(r)
}

// Gate evaluates every record without side effects.
func Gate(schema *model.Schema, records []*model.Record) GateReport {
	rep := GateReport{Missing: make(map[string]int)}
	for _, r := range records {
		missing := schema.MissingFields(r)
		if len(missing) == 0 {
			rep.Complete++
			continue
		}
		rep.Incomplete++
		for _, f := range missing {
			rep.Missing[f]++
		}
	}
	return rep
}
