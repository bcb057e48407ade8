// Package orchestrator drives a mirroring run: it enumerates the table set,
// runs inspection, reconciliation, and the batch pipeline per table, and
// aggregates the run summary.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tablemirror/tablemirror/internal/catalog"
	"github.com/tablemirror/tablemirror/internal/checkpoint"
	"github.com/tablemirror/tablemirror/internal/dest"
	"github.com/tablemirror/tablemirror/internal/pipeline"
	"github.com/tablemirror/tablemirror/internal/reconcile"
	"github.com/tablemirror/tablemirror/internal/source"
	"github.com/tablemirror/tablemirror/internal/strategy"
	"github.com/tablemirror/tablemirror/internal/telemetry"
)

// TableConfig carries per-table settings from configuration.
type TableConfig struct {
	// LastModified names the column declared to advance on every row change.
	LastModified string

	// TypeOverrides extends the type mapping for this table only, keyed by
	// source-native type name.
	TypeOverrides map[string]string
}

// Options configures a run.
type Options struct {
	SourceSchema string
	DestSchema   string

	BatchSize int

	// Workers bounds how many tables sync concurrently.
	Workers int

	// FullReloadThreshold is the row count below which tables are fully
	// reloaded instead of synced incrementally.
	FullReloadThreshold int64

	// ExcludeTables lists table names to skip, matched case-insensitively.
	ExcludeTables []string

	// SkipFailed skips tables whose checkpoint is Failed from a prior run.
	SkipFailed bool

	// TypeOverrides extends the type mapping for all tables.
	TypeOverrides map[string]string

	// Tables holds per-table settings keyed by table name.
	Tables map[string]TableConfig

	Pipeline pipeline.Options
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 5000
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.FullReloadThreshold <= 0 {
		o.FullReloadThreshold = 10000
	}
	return o
}

// RunContext is the explicit per-run state handed to every worker: identity,
// durable progress, and metrics. No globals.
type RunContext struct {
	ID      string
	Store   checkpoint.Store
	Metrics *telemetry.MirrorMetrics
}

// NewRunContext creates a RunContext with a fresh run ID.
func NewRunContext(store checkpoint.Store, metrics *telemetry.MirrorMetrics) *RunContext {
	return &RunContext{
		ID:      uuid.NewString(),
		Store:   store,
		Metrics: metrics,
	}
}

// TableResult is the outcome of one table within a run.
type TableResult struct {
	Table    string
	Strategy strategy.Strategy
	Rows     int64
	Elapsed  time.Duration

	// Flagged lists schema drift the reconciler detected but deliberately
	// left in place: destination-only columns and apparent type narrowing.
	Flagged []string

	// Err is set for failed tables, Reason for skipped ones.
	Err    error
	Reason string
}

// Summary aggregates a whole run.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Elapsed   time.Duration

	Succeeded []TableResult
	Failed    []TableResult
	Skipped   []TableResult
}

// Success reports whether the run completed with zero failed tables.
func (s *Summary) Success() bool {
	return len(s.Failed) == 0
}

// Orchestrator coordinates one run over a source/destination pair.
type Orchestrator struct {
	src  source.Connector
	dst  dest.Connector
	opts Options
}

// New creates an Orchestrator.
func New(src source.Connector, dst dest.Connector, opts Options) *Orchestrator {
	return &Orchestrator{src: src, dst: dst, opts: opts.withDefaults()}
}

// Run mirrors every non-excluded source table and returns the run summary.
//
// Failures are isolated per table: one table failing is recorded and the
// rest continue. The exception is a checkpoint persistence failure, which
// cancels the whole run, because progress durability can no longer be
// trusted. In that case the returned error is non-nil alongside the partial
// summary.
func (o *Orchestrator) Run(ctx context.Context, rc *RunContext) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: rc.ID, StartedAt: start.UTC()}

	inspector := catalog.NewInspector(o.src, o.dst, reconcile.NewMapper(o.opts.TypeOverrides).DestType)
	tables, err := inspector.Tables(ctx, o.opts.SourceSchema)
	if err != nil {
		return summary, err
	}

	var mu sync.Mutex
	record := func(bucket *[]TableResult, r TableResult) {
		mu.Lock()
		defer mu.Unlock()
		*bucket = append(*bucket, r)
	}

	pipe := pipeline.New(o.src, o.dst, rc.Store, rc.Metrics, o.opts.Pipeline)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	for _, table := range tables {
		if reason := o.skipReason(ctx, rc, table); reason != "" {
			slog.Info("Skipping table", "run_id", rc.ID, "table", table, "reason", reason)
			record(&summary.Skipped, TableResult{Table: table, Reason: reason})
			continue
		}

		g.Go(func() error {
			res, fatal := o.syncTable(gctx, rc, pipe, table)
			if fatal != nil {
				record(&summary.Failed, res)
				return fatal
			}
			if res.Err != nil {
				record(&summary.Failed, res)
				return nil
			}
			record(&summary.Succeeded, res)
			return nil
		})
	}

	runErr := g.Wait()
	summary.Elapsed = time.Since(start)
	sortResults(summary)

	slog.Info("Run finished",
		"run_id", rc.ID,
		"succeeded", len(summary.Succeeded),
		"failed", len(summary.Failed),
		"skipped", len(summary.Skipped),
		"duration", summary.Elapsed)
	return summary, runErr
}

// skipReason decides up front whether a table is excluded from this run.
func (o *Orchestrator) skipReason(ctx context.Context, rc *RunContext, table string) string {
	for _, excluded := range o.opts.ExcludeTables {
		if strings.EqualFold(excluded, table) {
			return "excluded by configuration"
		}
	}
	if o.opts.SkipFailed {
		cp, err := rc.Store.Get(ctx, qualifiedName(o.opts.SourceSchema, table))
		if err == nil && cp != nil && cp.Status == checkpoint.StatusFailed {
			return "failed in a prior run"
		}
	}
	return ""
}

// syncTable runs inspect, reconcile, select, and the pipeline for one table.
// The second return is non-nil only for run-fatal errors.
func (o *Orchestrator) syncTable(ctx context.Context, rc *RunContext, pipe *pipeline.Pipeline, table string) (TableResult, error) {
	start := time.Now()
	res := TableResult{Table: table}

	ctx, span := otel.Tracer("tablemirror/orchestrator").Start(ctx, "table_sync",
		trace.WithAttributes(
			attribute.String("run.id", rc.ID),
			attribute.String("table", table),
		))
	defer span.End()

	fail := func(err error) (TableResult, error) {
		res.Err = err
		res.Elapsed = time.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Table failed", "run_id", rc.ID, "table", table, "error", err)
		var pe *checkpoint.PersistenceError
		if errors.As(err, &pe) {
			return res, err
		}
		return res, nil
	}

	mapper := reconcile.NewMapper(o.mergedOverrides(table))
	inspector := catalog.NewInspector(o.src, o.dst, mapper.DestType)

	tcfg := o.opts.Tables[table]
	srcDesc, dstDesc, err := inspector.Inspect(ctx, o.opts.SourceSchema, table, o.opts.DestSchema,
		catalog.TableOptions{LastModified: tcfg.LastModified})
	if err != nil {
		return fail(err)
	}

	reconciler := reconcile.New(o.dst, mapper)
	recon, err := reconciler.Reconcile(ctx, srcDesc, dstDesc, o.opts.DestSchema)
	if err != nil {
		return fail(err)
	}
	res.Flagged = recon.Flagged
	for _, drift := range recon.Flagged {
		slog.Warn("Schema drift left in place",
			"run_id", rc.ID, "table", table, "drift", drift)
	}

	selector := strategy.Selector{FullReloadThreshold: o.opts.FullReloadThreshold}
	strat := selector.Select(srcDesc, dstDesc)
	res.Strategy = strat

	resume, err := rc.Store.ResumeCursor(ctx, srcDesc.QualifiedName(), string(strat))
	if err != nil {
		return fail(err)
	}

	plan := strategy.NewPlan(srcDesc, strat, o.opts.BatchSize, resume)
	rows, err := pipe.Run(ctx, plan)
	res.Rows = rows
	if err != nil {
		return fail(err)
	}

	span.SetAttributes(
		attribute.String("strategy", string(strat)),
		attribute.Int64("rows", rows),
	)
	res.Elapsed = time.Since(start)
	return res, nil
}

// mergedOverrides layers table-specific type overrides over the global ones.
func (o *Orchestrator) mergedOverrides(table string) map[string]string {
	tcfg := o.opts.Tables[table]
	if len(o.opts.TypeOverrides) == 0 && len(tcfg.TypeOverrides) == 0 {
		return nil
	}
	merged := make(map[string]string, len(o.opts.TypeOverrides)+len(tcfg.TypeOverrides))
	for k, v := range o.opts.TypeOverrides {
		merged[k] = v
	}
	for k, v := range tcfg.TypeOverrides {
		merged[k] = v
	}
	return merged
}

func sortResults(s *Summary) {
	byTable := func(rs []TableResult) {
		sort.Slice(rs, func(i, j int) bool { return rs[i].Table < rs[j].Table })
	}
	byTable(s.Succeeded)
	byTable(s.Failed)
	byTable(s.Skipped)
}

func qualifiedName(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}
