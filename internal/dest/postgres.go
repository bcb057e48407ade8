package dest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tablemirror/tablemirror/internal/catalog"
)

// pgConnector implements Connector on a pgx connection pool. All loads go
// through an all-text staging table fed by COPY, then a casting INSERT (or
// UPDATE plus INSERT for keyed batches), all inside one transaction.
type pgConnector struct {
	pool *pgxpool.Pool
}

// Open connects to the destination database and verifies the connection.
func Open(ctx context.Context, connString string) (Connector, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse destination connection string: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping destination: %w", err)
	}
	return &pgConnector{pool: pool}, nil
}

// NewWithPool wraps an existing pool. Close closes the pool, so exactly one
// owner should call it.
func NewWithPool(pool *pgxpool.Pool) Connector {
	return &pgConnector{pool: pool}
}

// Pool exposes the underlying pool so it can be shared with the checkpoint
// store when checkpoints live in the destination database.
func (p *pgConnector) Pool() *pgxpool.Pool {
	return p.pool
}

const describeTableSQL = `
SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

func (p *pgConnector) DescribeTable(ctx context.Context, schema, table string) ([]catalog.Column, bool, error) {
	rows, err := p.pool.Query(ctx, describeTableSQL, schema, table)
	if err != nil {
		return nil, false, fmt.Errorf("failed to describe table %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var columns []catalog.Column
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, false, fmt.Errorf("failed to scan column of %s.%s: %w", schema, table, err)
		}
		columns = append(columns, catalog.Column{
			Name:       name,
			NativeType: dataType,
			Nullable:   nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to describe table %s.%s: %w", schema, table, err)
	}
	return columns, len(columns) > 0, nil
}

func (p *pgConnector) ApplyDDL(ctx context.Context, statements []string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin DDL transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *pgConnector) Truncate(ctx context.Context, schema, table string) error {
	_, err := p.pool.Exec(ctx, "TRUNCATE TABLE "+qualified(schema, table))
	if err != nil {
		return fmt.Errorf("failed to truncate %s.%s: %w", schema, table, err)
	}
	return nil
}

func (p *pgConnector) LoadBatch(ctx context.Context, spec LoadSpec) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin load transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, createTempTableSQL(spec.Columns)); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	tag, err := tx.Conn().PgConn().CopyFrom(ctx, bytes.NewReader(spec.Payload), copySQL(spec.Columns))
	if err != nil {
		return fmt.Errorf("failed to copy batch into staging table: %w", err)
	}
	if got := tag.RowsAffected(); got != int64(spec.Rows) {
		return fmt.Errorf("staging copy row count mismatch: copied %d, expected %d", got, spec.Rows)
	}

	statements := []string{insertSQL(spec.Schema, spec.Table, spec.Columns)}
	if len(spec.KeyColumns) > 0 {
		statements = upsertSQL(spec.Schema, spec.Table, spec.Columns, spec.KeyColumns)
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to merge batch into %s.%s: %w", spec.Schema, spec.Table, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *pgConnector) Close() {
	p.pool.Close()
}
