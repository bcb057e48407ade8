package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/tablemirror/tablemirror/internal/catalog"
	"github.com/tablemirror/tablemirror/internal/checkpoint"
	"github.com/tablemirror/tablemirror/internal/dest"
	"github.com/tablemirror/tablemirror/internal/source"
	"github.com/tablemirror/tablemirror/internal/strategy"
	"github.com/tablemirror/tablemirror/internal/telemetry"
)

// State is the pipeline's position in the per-table lifecycle.
type State string

const (
	// StateNotStarted means Run has not been called yet.
	StateNotStarted State = "not_started"
	// StateExtracting means a batch is being pulled from the source.
	StateExtracting State = "extracting"
	// StateTransforming means a batch is being normalized for transfer.
	StateTransforming State = "transforming"
	// StateLoading means a batch is being committed to the destination.
	StateLoading State = "loading"
	// StateCompleted means the table finished cleanly.
	StateCompleted State = "completed"
	// StateFailed means the table aborted on an error.
	StateFailed State = "failed"
)

// ExtractionError reports a source-side batch failure.
type ExtractionError struct {
	Table string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for table %s: %v", e.Table, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// LoadError reports a destination-side batch failure after retries were
// exhausted.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load failed for table %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Options bound the pipeline's time and memory use.
type Options struct {
	// BatchTimeout caps each extraction query and each load attempt.
	BatchTimeout time.Duration

	// MaxRetries caps load attempts per batch before the table fails.
	MaxRetries int

	// Depth is how many transformed batches may sit between extraction and
	// load. Memory is O(batch size x depth) rows.
	Depth int
}

func (o Options) withDefaults() Options {
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 5 * time.Minute
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.Depth <= 0 {
		o.Depth = 2
	}
	return o
}

// Pipeline executes one table's sync plan: extract, transform, load, advance
// the checkpoint, repeat until the source is drained. A Pipeline is stateless
// across Run calls and safe to share between table workers.
type Pipeline struct {
	src     source.Connector
	dst     dest.Connector
	store   checkpoint.Store
	metrics *telemetry.MirrorMetrics
	opts    Options
}

// New creates a Pipeline. metrics may be nil.
func New(src source.Connector, dst dest.Connector, store checkpoint.Store,
	metrics *telemetry.MirrorMetrics, opts Options) *Pipeline {
	return &Pipeline{
		src:     src,
		dst:     dst,
		store:   store,
		metrics: metrics,
		opts:    opts.withDefaults(),
	}
}

// Run syncs one table under its plan and returns the total rows transferred,
// including rows carried over from a resumed checkpoint.
//
// Checkpoint advances are write-ahead: a batch is durably recorded only
// after its load transaction commits, and the next batch does not load until
// the record is durable. A crash loses at most the in-flight batch.
//
// A checkpoint.PersistenceError return is fatal to the whole run; any other
// error fails only this table.
func (p *Pipeline) Run(ctx context.Context, plan *strategy.Plan) (int64, error) {
	table := plan.Table
	name := table.QualifiedName()
	start := time.Now()

	var state atomic.Value
	state.Store(StateNotStarted)

	cp, err := p.store.Initialize(ctx, name, string(plan.Strategy), table.ApproxRows)
	if err != nil {
		return 0, err
	}
	transferred := cp.RowsTransferred

	slog.Info("Starting table sync",
		"table", name,
		"strategy", plan.Strategy,
		"total_rows", table.ApproxRows,
		"resumed_rows", transferred)

	if plan.Strategy == strategy.Full {
		if err := p.dst.Truncate(ctx, table.Schema, table.Name); err != nil {
			return transferred, p.fail(ctx, name, plan, &state, start, transferred,
				&LoadError{Table: name, Err: err})
		}
	}

	keyColumns := planKeyColumns(plan)
	batches := make(chan *Batch, p.opts.Depth)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		return p.produce(gctx, plan, &state, batches)
	})

	var loaded atomic.Int64
	g.Go(func() error {
		for batch := range batches {
			batchStart := time.Now()
			state.Store(StateLoading)
			if err := p.loadWithRetry(gctx, table.Schema, table.Name, table.Columns, keyColumns, batch); err != nil {
				return &LoadError{Table: name, Err: err}
			}
			if err := p.store.Advance(gctx, name, batch.Cursor, int64(batch.Rows)); err != nil {
				return err
			}
			loaded.Add(int64(batch.Rows))
			p.metrics.RecordBatch(gctx, name, string(plan.Strategy), batch.Rows, time.Since(batchStart))
			slog.Debug("Batch committed",
				"table", name,
				"rows", batch.Rows,
				"duration", time.Since(batchStart))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return transferred + loaded.Load(), p.fail(ctx, name, plan, &state, start, transferred+loaded.Load(), err)
	}
	transferred += loaded.Load()

	if err := p.store.Complete(ctx, name); err != nil {
		return transferred, err
	}
	state.Store(StateCompleted)
	p.metrics.RecordTableSync(ctx, name, string(plan.Strategy), "completed", time.Since(start))
	slog.Info("Table sync completed",
		"table", name,
		"rows", transferred,
		"duration", time.Since(start))
	return transferred, nil
}

// produce extracts and transforms batches in cursor order, handing them to
// the loader through the bounded channel. Extraction is serial: each batch's
// lower bound is the previous batch's last row.
func (p *Pipeline) produce(ctx context.Context, plan *strategy.Plan, state *atomic.Value, out chan<- *Batch) error {
	table := plan.Table
	name := table.QualifiedName()
	columns := table.ColumnNames()

	var (
		indices []int
		after   []string
		offset  int64
		err     error
	)
	if len(plan.CursorColumns) > 0 {
		indices, err = cursorIndices(plan.CursorColumns, columns)
		if err != nil {
			return &ExtractionError{Table: name, Err: err}
		}
		if plan.StartCursor != nil && len(plan.StartCursor.Tuple) > 0 {
			after = plan.StartCursor.Tuple
		}
	}

	for {
		// Stop promptly on cancellation; in-flight loads finish or fail on
		// their own context.
		if err := ctx.Err(); err != nil {
			return err
		}

		spec := source.ExtractSpec{
			Schema:       table.Schema,
			Table:        table.Name,
			Columns:      columns,
			OrderBy:      plan.CursorColumns,
			OrderByTypes: plan.CursorColumnTypes(),
			After:        after,
			Offset:       offset,
			Limit:        plan.BatchSize,
		}

		state.Store(StateExtracting)
		rows, err := p.extract(ctx, spec)
		if err != nil {
			return &ExtractionError{Table: name, Err: err}
		}
		if len(rows) == 0 {
			return nil
		}

		state.Store(StateTransforming)
		payload, err := encodeBatch(rows, len(columns))
		if err != nil {
			return &ExtractionError{Table: name, Err: err}
		}

		batch := &Batch{Payload: payload, Rows: len(rows)}
		if len(indices) > 0 {
			after = cursorTuple(rows[len(rows)-1], indices)
			batch.Cursor = &checkpoint.Cursor{Tuple: append([]string(nil), after...)}
		} else {
			offset += int64(len(rows))
			batch.Cursor = &checkpoint.Cursor{Offset: offset}
		}

		select {
		case out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}

		if len(rows) < plan.BatchSize {
			return nil
		}
	}
}

// extract pulls one batch, retrying transient source errors with exponential
// backoff. Re-running the query is side-effect free: it is bounded and lower
// bounded by the last committed cursor. Cancellation is permanent.
func (p *Pipeline) extract(ctx context.Context, spec source.ExtractSpec) ([]source.Row, error) {
	operation := func() ([]source.Row, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.BatchTimeout)
		defer cancel()

		rows, err := p.src.Extract(attemptCtx, spec)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return rows, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(p.opts.MaxRetries)))
}

// loadWithRetry commits one batch, retrying transient destination errors
// with exponential backoff. Cancellation is permanent.
func (p *Pipeline) loadWithRetry(ctx context.Context, schema, table string,
	columns []catalog.Column, keyColumns []string, batch *Batch) error {
	spec := dest.LoadSpec{
		Schema:     schema,
		Table:      table,
		Columns:    columns,
		KeyColumns: keyColumns,
		Payload:    batch.Payload,
		Rows:       batch.Rows,
	}

	operation := func() (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.BatchTimeout)
		defer cancel()

		err := p.dst.LoadBatch(attemptCtx, spec)
		if err != nil && ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(p.opts.MaxRetries)))
	return err
}

// fail records the terminal state for this table. A checkpoint persistence
// failure while recording takes precedence: it must surface as fatal.
func (p *Pipeline) fail(ctx context.Context, name string, plan *strategy.Plan,
	state *atomic.Value, start time.Time, transferred int64, cause error) error {
	state.Store(StateFailed)
	p.metrics.RecordTableSync(ctx, name, string(plan.Strategy), "failed", time.Since(start))
	slog.Error("Table sync failed",
		"table", name,
		"rows", transferred,
		"error", cause)

	var pe *checkpoint.PersistenceError
	if errors.As(cause, &pe) {
		return cause
	}
	if err := p.store.Fail(ctx, name, cause.Error()); err != nil {
		return err
	}
	return cause
}

func planKeyColumns(plan *strategy.Plan) []string {
	if plan.Strategy == strategy.Full || plan.Table.Key == nil {
		return nil
	}
	return plan.Table.Key.Columns
}
