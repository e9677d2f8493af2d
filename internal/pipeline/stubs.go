package pipeline

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// NewID returns a fresh unique id of the form <prefix>_<uuid>.
func NewID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "_" + uuid.NewString()
}

// SynthesizeStubs fabricates placeholder records for an empty child table
// so enrichment has something to fill. It returns nil unless the table is
// empty, the parent table is not, and the schema declares a stub policy.
// Each stub carries a fresh id, the parent's id as foreign key, and
// createdAt/updatedAt set to now; content fields stay empty.
func SynthesizeStubs(schema *model.Schema, existing []*model.Record, parent *model.Table, now time.Time) []*model.Record {
	if schema.Stubs == nil || schema.Parent == nil || len(existing) > 0 || parent == nil || parent.Len() == 0 {
		return nil
	}

	ts := model.FormatTimestamp(now)
	fk := schema.ForeignKey()
	var stubs []*model.Record
	for _, p := range parent.Records {
		pid := p.ID()
		if pid == "" {
			continue
		}
		n := schema.Stubs.CountFor(pid, parent.Schema.DisplayName(p))
		for i := 0; i < n; i++ {
			r := model.NewRecord(schema)
			// Columns below are always declared by schema.
			_ = r.Set(schema.PrimaryKey, NewID(schema.IDPrefix))
			_ = r.Set(fk, pid)
			_ = r.Set(model.CreatedAtField, ts)
			_ = r.Set(model.UpdatedAtField, ts)
			stubs = append(stubs, r)
		}
	}

	if len(stubs) > 0 {
		zap.L().Info("pipeline: synthesized stub records",
			zap.String("table", schema.Name),
			zap.String("parent", parent.Schema.Name),
			zap.Int("parents", parent.Len()),
			zap.Int("stubs", len(stubs)),
		)
	}
	return stubs
}
