// Package source defines the read-side connector used to enumerate and
// extract data from the mirrored database.
package source

import (
	"context"
)

// Row is a single extracted row. Values are raw driver values; the pipeline
// is responsible for normalizing them to their transfer representation.
type Row []any

// ColumnInfo describes one column as reported by the source catalog.
type ColumnInfo struct {
	Name       string
	NativeType string
	Nullable   bool
	Position   int
}

// KeyInfo describes a unique or primary key on a source table.
type KeyInfo struct {
	Name    string
	Primary bool
	// Columns in declared key order.
	Columns []string
}

// ExtractSpec describes one bounded, ordered extraction query.
type ExtractSpec struct {
	Schema string
	Table  string

	// Columns to select, in descriptor order.
	Columns []string

	// OrderBy lists the cursor columns. When empty, extraction pages by
	// row offset instead.
	OrderBy []string

	// OrderByTypes carries the native type of each OrderBy column so
	// boundary values can be cast back from their textual checkpoint form.
	OrderByTypes []string

	// After is the exclusive lower bound for the OrderBy tuple, in textual
	// form. Nil means extract from the beginning.
	After []string

	// Offset is the starting row offset for offset paging (OrderBy empty).
	Offset int64

	// Limit bounds the number of rows returned.
	Limit int
}

// Connector is the read-side database interface. Implementations must be
// safe for concurrent use by multiple table workers.
type Connector interface {
	// Tables lists the table names in the given schema, sorted.
	Tables(ctx context.Context, schema string) ([]string, error)

	// Columns returns the ordered column metadata for a table.
	Columns(ctx context.Context, schema, table string) ([]ColumnInfo, error)

	// Keys returns the primary and unique keys declared on a table.
	Keys(ctx context.Context, schema, table string) ([]KeyInfo, error)

	// RowCount returns the number of rows in a table at call time.
	RowCount(ctx context.Context, schema, table string) (int64, error)

	// SampleOrdered returns up to limit values of column, ordered by the
	// given columns (or by column itself when orderBy is empty). Used to
	// validate that a candidate timestamp column increases reliably.
	SampleOrdered(ctx context.Context, schema, table, column string, orderBy []string, limit int) ([]any, error)

	// Extract runs one bounded extraction query and returns its rows in
	// cursor order.
	Extract(ctx context.Context, spec ExtractSpec) ([]Row, error)

	// Close releases the underlying connection pool.
	Close() error
}
