package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/resilience"
	"github.com/sells-group/catalog-enricher/internal/tablestore"
)

// Enricher produces field values for one incomplete record.
type Enricher interface {
	Enrich(ctx context.Context, schema *model.Schema, r *model.Record, parents ParentContext) (*Result, error)
}

// Waiter spaces out generation calls. Wait runs before a call and Done
// after it returns.
type Waiter interface {
	Wait(ctx context.Context) error
	Done()
}

// RunRecorder persists run summaries and terminal per-record failures.
type RunRecorder interface {
	CreateRun(ctx context.Context, table string, kind model.RunKind) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats, errMsg string) error
	RecordFailure(ctx context.Context, f *model.RecordFailure) error
}

// TableResult summarizes one table or join run.
type TableResult struct {
	Table  string
	Kind   model.RunKind
	RunID  string
	Stats  model.RunStats
	Gate   GateReport
	DryRun bool
}

// Processor runs the per-table pipeline: validate, synthesize stubs, gate,
// enrich, merge, back up and save.
type Processor struct {
	catalog  *model.Catalog
	tables   tablestore.Store
	enricher Enricher
	throttle Waiter
	runs     RunRecorder

	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
	// DryRun reports what would happen without calling the generation
	// service or writing any table.
	DryRun bool
}

// New creates a Processor. throttle and runs may be nil.
func New(catalog *model.Catalog, tables tablestore.Store, enricher Enricher, throttle Waiter, runs RunRecorder) *Processor {
	return &Processor{
		catalog:  catalog,
		tables:   tables,
		enricher: enricher,
		throttle: throttle,
		runs:     runs,
		Now:      time.Now,
	}
}

// ProcessTable enriches every incomplete record of the named entity table.
// Configuration problems (unknown table, missing parent table) are returned
// as *ConfigError before anything is written. Per-record enrichment failures
// are logged and recorded; the record keeps its original content.
func (p *Processor) ProcessTable(ctx context.Context, name string) (*TableResult, error) {
	schema, ok := p.catalog.Entity(name)
	if !ok {
		return nil, &ConfigError{Err: eris.Wrapf(ErrUnknownTable, "%s", name)}
	}
	log := zap.L().With(zap.String("table", name))
	log.Info("pipeline: processing table")

	var parentTable, grandTable *model.Table
	if ps := p.catalog.Parent(schema); ps != nil {
		var err error
		if parentTable, err = p.requireTable(ctx, ps); err != nil {
			return nil, err
		}
		if gs := p.catalog.Parent(ps); gs != nil {
			grandTable, _, err = p.loadTable(ctx, gs)
			if err != nil {
				return nil, err
			}
		}
	}

	table, existed, err := p.loadTable(ctx, schema)
	if err != nil {
		return nil, err
	}

	result := &TableResult{Table: name, Kind: model.RunKindEnrich, DryRun: p.DryRun}
	stats := &result.Stats
	stats.Loaded = table.Len()

	// A child table that has never been written is materialized on first
	// run. A missing root table stays missing so its children fail with
	// ErrMissingParent.
	dirty := !existed && p.catalog.Parent(schema) != nil

	var parentIdx, grandIdx map[string]*model.Record
	if parentTable != nil {
		parentIdx = parentTable.Index()
		if grandTable != nil {
			grandIdx = grandTable.Index()
		}
	}

	kept, dropped := ValidateReferences(schema, table.Records, parentIdx)
	stats.Dropped = len(dropped)
	if len(dropped) > 0 {
		dirty = true
	}
	// Only a table that was empty on disk gets stubs; one emptied by the
	// orphan drop stays empty.
	if stats.Loaded == 0 {
		if stubs := SynthesizeStubs(schema, kept, parentTable, p.Now()); len(stubs) > 0 {
			kept = append(kept, stubs...)
			stats.Stubbed = len(stubs)
			dirty = true
		}
	}
	table.Records = kept

	result.Gate = Gate(schema, table.Records)
	stats.Skipped = result.Gate.Complete
	if p.DryRun {
		log.Info("pipeline: dry run",
			zap.Int("records", table.Len()),
			zap.Int("complete", result.Gate.Complete),
			zap.Int("incomplete", result.Gate.Incomplete),
			zap.Int("dropped", stats.Dropped),
			zap.Int("stubbed", stats.Stubbed),
		)
		return result, nil
	}

	run := p.startRun(ctx, name, model.RunKindEnrich)
	var runErr error
	for i, r := range table.Records {
		if !NeedsEnrichment(schema, r) {
			continue
		}
		if err := p.wait(ctx); err != nil {
			runErr = err
			break
		}

		parents := ancestors(r, parentIdx, grandIdx)
		res, err := p.enricher.Enrich(ctx, schema, r, parents)
		p.done()
		if res != nil {
			stats.InputTokens += res.Usage.Input
			stats.OutputTokens += res.Usage.Output
			stats.CostUSD += res.CostUSD
		}
		if err != nil {
			if !IsExhausted(err) {
				runErr = eris.Wrap(err, "pipeline: run interrupted")
				break
			}
			stats.Failed++
			attempts := 0
			if res != nil {
				attempts = res.Attempts
			}
			log.Error("pipeline: enrichment failed, keeping original record",
				zap.String("id", r.ID()),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			p.recordFailure(ctx, run, name, r.ID(), attempts, err)
			continue
		}

		merged, changed := Merge(r, res.Fields, p.Now())
		table.Records[i] = merged
		dirty = true
		stats.Enriched++

		vs := CheckConstraints(merged)
		stats.Warnings += len(vs)
		logViolations(log, merged, vs)

		log.Info("pipeline: record enriched",
			zap.String("id", merged.ID()),
			zap.String("model", res.Model),
			zap.Int("attempts", res.Attempts),
			zap.Strings("filled", changed),
		)
	}

	if dirty {
		path, err := p.persist(ctx, table, existed)
		if err != nil {
			p.finishRun(ctx, run, *stats, err)
			return result, err
		}
		stats.BackupPath = path
	}

	p.finishRun(ctx, run, *stats, runErr)
	if run != nil {
		result.RunID = run.ID
	}

	log.Info("pipeline: table complete",
		zap.Int("loaded", stats.Loaded),
		zap.Int("dropped", stats.Dropped),
		zap.Int("stubbed", stats.Stubbed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("enriched", stats.Enriched),
		zap.Int("failed", stats.Failed),
		zap.Int("warnings", stats.Warnings),
		zap.Float64("cost_usd", stats.CostUSD),
		zap.Bool("saved", dirty),
	)
	return result, runErr
}

// ReconcileJoin derives the relation pairs of the named join table and
// appends the missing ones. Child rows synthesized from list tokens are
// saved to the child table first.
func (p *Processor) ReconcileJoin(ctx context.Context, name string) (*TableResult, error) {
	join, ok := p.catalog.Join(name)
	if !ok {
		return nil, &ConfigError{Err: eris.Wrapf(ErrUnknownTable, "%s", name)}
	}
	parentSchema, _ := p.catalog.Entity(join.Parent.Table)
	childSchema, _ := p.catalog.Entity(join.Child.Table)
	log := zap.L().With(zap.String("join", name))

	parents, err := p.requireTable(ctx, parentSchema)
	if err != nil {
		return nil, err
	}
	children, childExisted, err := p.loadTable(ctx, childSchema)
	if err != nil {
		return nil, err
	}
	existing, existed, err := p.loadTable(ctx, join.Schema())
	if err != nil {
		return nil, err
	}

	result := &TableResult{Table: name, Kind: model.RunKindReconcile, DryRun: p.DryRun}
	stats := &result.Stats
	stats.Loaded = existing.Len()

	now := p.Now()
	d := DerivePairs(join, parents, children, now)
	added := Reconcile(join, existing, d.Pairs, now)
	stats.Added = len(added)
	stats.Stubbed = len(d.NewChildren)

	if p.DryRun {
		log.Info("pipeline: dry run",
			zap.Int("pairs", len(d.Pairs)),
			zap.Int("would_add", len(added)),
			zap.Int("new_children", len(d.NewChildren)),
		)
		return result, nil
	}

	run := p.startRun(ctx, name, model.RunKindReconcile)
	if len(d.NewChildren) > 0 {
		children.Records = append(children.Records, d.NewChildren...)
		if _, err := p.persist(ctx, children, childExisted); err != nil {
			p.finishRun(ctx, run, *stats, err)
			return result, err
		}
		log.Info("pipeline: added child records",
			zap.String("table", childSchema.Name),
			zap.Int("count", len(d.NewChildren)),
		)
	}
	if len(added) > 0 || !existed {
		path, err := p.persist(ctx, existing, existed)
		if err != nil {
			p.finishRun(ctx, run, *stats, err)
			return result, err
		}
		stats.BackupPath = path
	}
	p.finishRun(ctx, run, *stats, nil)
	if run != nil {
		result.RunID = run.ID
	}

	log.Info("pipeline: join reconciled",
		zap.Int("existing", stats.Loaded),
		zap.Int("pairs", len(d.Pairs)),
		zap.Int("added", stats.Added),
	)
	return result, nil
}

// ProcessWithJoins processes an entity table and then reconciles every join
// that touches it.
func (p *Processor) ProcessWithJoins(ctx context.Context, name string) ([]*TableResult, error) {
	res, err := p.ProcessTable(ctx, name)
	if res == nil {
		return nil, err
	}
	results := []*TableResult{res}
	if err != nil {
		return results, err
	}
	for _, j := range p.catalog.JoinsFor(name) {
		jr, err := p.ReconcileJoin(ctx, j.Name)
		if jr != nil {
			results = append(results, jr)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// RunAll processes every entity table parent-first, then every join. The
// first error stops the run.
func (p *Processor) RunAll(ctx context.Context) ([]*TableResult, error) {
	order, err := p.catalog.Order()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	var results []*TableResult
	for _, s := range order {
		res, err := p.ProcessTable(ctx, s.Name)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	for _, j := range p.catalog.Joins {
		res, err := p.ReconcileJoin(ctx, j.Name)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// loadTable loads schema's table. A table that was never written, or whose
// file holds no data, comes back empty with existed == false.
func (p *Processor) loadTable(ctx context.Context, schema *model.Schema) (*model.Table, bool, error) {
	if !p.tables.Exists(schema.Name) {
		return model.NewTable(schema), false, nil
	}
	t, err := p.tables.Load(ctx, schema)
	if eris.Is(err, tablestore.ErrNotFound) {
		return model.NewTable(schema), false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "pipeline: load %s", schema.Name)
	}
	return t, true, nil
}

// requireTable loads an upstream table that must exist.
func (p *Processor) requireTable(ctx context.Context, schema *model.Schema) (*model.Table, error) {
	t, existed, err := p.loadTable(ctx, schema)
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, &ConfigError{Err: eris.Wrapf(ErrMissingParent, "%s", schema.Name)}
	}
	return t, nil
}

// persist backs up a pre-existing table and saves t. The save is not
// cancelled with ctx so an interrupted run keeps the records it finished.
func (p *Processor) persist(ctx context.Context, t *model.Table, existed bool) (string, error) {
	var path string
	if existed {
		if s, ok := p.tables.(tablestore.Snapshotter); ok {
			var err error
			if path, err = s.Snapshot(t.Schema.Name); err != nil {
				return "", eris.Wrapf(err, "pipeline: back up %s", t.Schema.Name)
			}
		}
	}
	if err := p.tables.Save(context.WithoutCancel(ctx), t); err != nil {
		return path, eris.Wrapf(err, "pipeline: save %s", t.Schema.Name)
	}
	return path, nil
}

func (p *Processor) wait(ctx context.Context) error {
	if p.throttle == nil {
		return ctx.Err()
	}
	return p.throttle.Wait(ctx)
}

func (p *Processor) done() {
	if p.throttle != nil {
		p.throttle.Done()
	}
}

// ancestors resolves the parent and grandparent of r, nearest first.
func ancestors(r *model.Record, parentIdx, grandIdx map[string]*model.Record) ParentContext {
	parent := parentIdx[r.ForeignKey()]
	if parent == nil {
		return nil
	}
	pc := ParentContext{parent}
	if g := grandIdx[parent.ForeignKey()]; g != nil {
		pc = append(pc, g)
	}
	return pc
}

func (p *Processor) startRun(ctx context.Context, table string, kind model.RunKind) *model.Run {
	if p.runs == nil {
		return nil
	}
	run, err := p.runs.CreateRun(ctx, table, kind)
	if err != nil {
		zap.L().Warn("pipeline: failed to create run record", zap.String("table", table), zap.Error(err))
		return nil
	}
	return run
}

func (p *Processor) finishRun(ctx context.Context, run *model.Run, stats model.RunStats, runErr error) {
	if run == nil {
		return
	}
	status := model.RunStatusComplete
	msg := ""
	if runErr != nil {
		status = model.RunStatusFailed
		msg = runErr.Error()
	}
	if err := p.runs.CompleteRun(context.WithoutCancel(ctx), run.ID, status, stats, msg); err != nil {
		zap.L().Warn("pipeline: failed to complete run record", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (p *Processor) recordFailure(ctx context.Context, run *model.Run, table, recordID string, attempts int, cause error) {
	if run == nil {
		return
	}
	f := &model.RecordFailure{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		Table:     table,
		RecordID:  recordID,
		Error:     cause.Error(),
		ErrorType: string(resilience.Classify(cause)),
		Attempts:  attempts,
		CreatedAt: p.Now().UTC(),
	}
	if err := p.runs.RecordFailure(ctx, f); err != nil {
		zap.L().Warn("pipeline: failed to record failure", zap.String("record_id", recordID), zap.Error(err))
	}
}
