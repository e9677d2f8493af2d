package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// ValidateReferences drops records whose foreign key is empty or does not
// resolve in parentIndex. Root tables (no parent) pass through unchanged.
// The input slice is not modified.
func ValidateReferences(schema *model.Schema, records []*model.Record, parentIndex map[string]*model.Record) (kept, dropped []*model.Record) {
	fk := schema.ForeignKey()
	if fk == "" {
		return append([]*model.Record(nil), records...), nil
	}

	log := zap.L().With(zap.String("table", schema.Name))
	kept = make([]*model.Record, 0, len(records))
	for _, r := range records {
		ref := r.Get(fk)
		switch {
		case r.IsEmpty(fk):
			log.Warn("pipeline: dropping record with empty foreign key",
				zap.String("id", r.ID()),
				zap.String("foreign_key", fk),
			)
			dropped = append(dropped, r)
		case parentIndex[ref] == nil:
			log.Warn("pipeline: dropping orphaned record",
				zap.String("id", r.ID()),
				zap.String("foreign_key", fk),
				zap.String("ref", ref),
			)
			dropped = append(dropped, r)
		default:
			kept = append(kept, r)
		}
	}
	return kept, dropped
}
