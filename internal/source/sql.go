package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxOpenConns    = 4
	defaultConnMaxLifetime = 30 * time.Minute
)

// sqlConnector implements Connector over database/sql, so any registered
// driver with a known dialect can act as a source. Drivers are registered by
// the binary, not here.
type sqlConnector struct {
	db      *sql.DB
	dialect *dialect
}

// Open connects to a source database using the given database/sql driver
// name and DSN, and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (Connector, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open source connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping source database: %w", err)
	}

	return &sqlConnector{db: db, dialect: d}, nil
}

func (c *sqlConnector) Tables(ctx context.Context, schema string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.tablesQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables in schema %s: %w", schema, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (c *sqlConnector) Columns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.columnsQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			col      ColumnInfo
			nullable string
		)
		if err := rows.Scan(&col.Name, &col.NativeType, &nullable, &col.Position); err != nil {
			return nil, err
		}
		col.Nullable = parseNullable(nullable)
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (c *sqlConnector) Keys(ctx context.Context, schema, table string) ([]KeyInfo, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.keysQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	// Rows arrive ordered by (constraint_name, position); group them into
	// one KeyInfo per constraint.
	var keys []KeyInfo
	for rows.Next() {
		var name, ctype, column string
		var position int
		if err := rows.Scan(&name, &ctype, &column, &position); err != nil {
			return nil, err
		}
		if len(keys) == 0 || keys[len(keys)-1].Name != name {
			keys = append(keys, KeyInfo{
				Name:    name,
				Primary: c.dialect.isPrimaryConstraint(ctype),
			})
		}
		last := &keys[len(keys)-1]
		last.Columns = append(last.Columns, column)
	}
	return keys, rows.Err()
}

func (c *sqlConnector) RowCount(ctx context.Context, schema, table string) (int64, error) {
	q := "SELECT COUNT(*) FROM " + quoteQualified(schema, table)
	var count int64
	if err := c.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s.%s: %w", schema, table, err)
	}
	return count, nil
}

func (c *sqlConnector) SampleOrdered(
	ctx context.Context, schema, table, column string, orderBy []string, limit int,
) ([]any, error) {
	order := quoteIdent(column)
	if len(orderBy) > 0 {
		parts := make([]string, len(orderBy))
		for i, o := range orderBy {
			parts[i] = quoteIdent(o)
		}
		order = strings.Join(parts, ", ")
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s FETCH NEXT %d ROWS ONLY",
		quoteIdent(column), quoteQualified(schema, table), order, limit)

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s.%s.%s: %w", schema, table, column, err)
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (c *sqlConnector) Extract(ctx context.Context, spec ExtractSpec) ([]Row, error) {
	q, args, err := buildExtractQuery(c.dialect, spec)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to extract from %s.%s: %w", spec.Schema, spec.Table, err)
	}
	defer rows.Close()

	out := make([]Row, 0, spec.Limit)
	for rows.Next() {
		row := make(Row, len(spec.Columns))
		ptrs := make([]any, len(row))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}
