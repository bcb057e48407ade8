package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbStore keeps checkpoints in the destination database, in the
// mirror_checkpoint tracking table (see database/migrations). This is the
// store to use when several instances may share a destination.
type dbStore struct {
	pool *pgxpool.Pool
}

// NewDBStore creates a Postgres-backed checkpoint store on the given pool.
// The caller owns the pool.
func NewDBStore(pool *pgxpool.Pool) (Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &dbStore{pool: pool}, nil
}

const upsertCheckpointSQL = `
INSERT INTO mirror_checkpoint
	(table_name, strategy, cursor_value, rows_transferred, total_rows, status, error_msg, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (table_name) DO UPDATE SET
	strategy = EXCLUDED.strategy,
	cursor_value = EXCLUDED.cursor_value,
	rows_transferred = EXCLUDED.rows_transferred,
	total_rows = EXCLUDED.total_rows,
	status = EXCLUDED.status,
	error_msg = EXCLUDED.error_msg,
	updated_at = EXCLUDED.updated_at`

const selectCheckpointSQL = `
SELECT table_name, strategy, cursor_value, rows_transferred, total_rows, status, error_msg, updated_at
FROM mirror_checkpoint`

func (d *dbStore) Initialize(ctx context.Context, table, strategy string, totalRows int64) (*Checkpoint, error) {
	// Read-modify-write inside one transaction; workers never share a
	// table, so this only guards against concurrent runs.
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, &PersistenceError{Table: table, Op: "initialize", Err: err}
	}
	defer tx.Rollback(ctx)

	prior, err := getTx(ctx, tx, table)
	if err != nil {
		return nil, &PersistenceError{Table: table, Op: "initialize", Err: err}
	}

	cp := initialized(prior, table, strategy, totalRows, time.Now().UTC())
	if err := upsertTx(ctx, tx, cp); err != nil {
		return nil, &PersistenceError{Table: table, Op: "initialize", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &PersistenceError{Table: table, Op: "initialize", Err: err}
	}
	out := *cp
	return &out, nil
}

func (d *dbStore) Advance(ctx context.Context, table string, cursor *Cursor, rowsInBatch int64) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return &PersistenceError{Table: table, Op: "advance", Err: err}
	}
	defer tx.Rollback(ctx)

	cp, err := getTx(ctx, tx, table)
	if err != nil {
		return &PersistenceError{Table: table, Op: "advance", Err: err}
	}
	if err := validateAdvance(cp, table, cursor); err != nil {
		return err
	}

	encoded, err := cursor.Encode()
	if err != nil {
		return &PersistenceError{Table: table, Op: "advance", Err: err}
	}
	cp.Cursor = encoded
	cp.RowsTransferred += rowsInBatch
	cp.UpdatedAt = time.Now().UTC()

	if err := upsertTx(ctx, tx, cp); err != nil {
		return &PersistenceError{Table: table, Op: "advance", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &PersistenceError{Table: table, Op: "advance", Err: err}
	}
	return nil
}

func (d *dbStore) Complete(ctx context.Context, table string) error {
	return d.setStatus(ctx, table, StatusCompleted, "")
}

func (d *dbStore) Fail(ctx context.Context, table, reason string) error {
	return d.setStatus(ctx, table, StatusFailed, reason)
}

func (d *dbStore) setStatus(ctx context.Context, table string, status Status, message string) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE mirror_checkpoint SET status = $2, error_msg = $3, updated_at = $4 WHERE table_name = $1`,
		table, string(status), nullIfEmpty(message), time.Now().UTC())
	if err != nil {
		return &PersistenceError{Table: table, Op: string(status), Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &PersistenceError{Table: table, Op: string(status), Err: errors.New("no checkpoint")}
	}
	return nil
}

func (d *dbStore) ResumeCursor(ctx context.Context, table, strategy string) (*Cursor, error) {
	cp, err := d.Get(ctx, table)
	if err != nil {
		return nil, err
	}
	return resumableCursor(cp, strategy)
}

func (d *dbStore) Get(ctx context.Context, table string) (*Checkpoint, error) {
	row := d.pool.QueryRow(ctx, selectCheckpointSQL+" WHERE table_name = $1", table)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Table: table, Op: "get", Err: err}
	}
	return cp, nil
}

func (d *dbStore) List(ctx context.Context) ([]*Checkpoint, error) {
	rows, err := d.pool.Query(ctx, selectCheckpointSQL+" ORDER BY table_name")
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "list", Err: err}
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return out, nil
}

func getTx(ctx context.Context, tx pgx.Tx, table string) (*Checkpoint, error) {
	row := tx.QueryRow(ctx, selectCheckpointSQL+" WHERE table_name = $1", table)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

func upsertTx(ctx context.Context, tx pgx.Tx, cp *Checkpoint) error {
	_, err := tx.Exec(ctx, upsertCheckpointSQL,
		cp.Table,
		cp.Strategy,
		nullIfEmpty(cp.Cursor),
		cp.RowsTransferred,
		cp.TotalRows,
		string(cp.Status),
		nullIfEmpty(cp.Message),
		cp.UpdatedAt,
	)
	return err
}

func scanCheckpoint(row pgx.Row) (*Checkpoint, error) {
	var (
		cp       Checkpoint
		cursor   *string
		errorMsg *string
		status   string
	)
	err := row.Scan(&cp.Table, &cp.Strategy, &cursor, &cp.RowsTransferred,
		&cp.TotalRows, &status, &errorMsg, &cp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cp.Status = Status(status)
	if cursor != nil {
		cp.Cursor = *cursor
	}
	if errorMsg != nil {
		cp.Message = *errorMsg
	}
	return &cp, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
