// Package dest defines the write-side connector: destination DDL, truncate,
// and transactional bulk loads.
package dest

import (
	"context"

	"github.com/tablemirror/tablemirror/internal/catalog"
)

// LoadSpec describes one transactional bulk load of a transformed batch.
type LoadSpec struct {
	Schema string
	Table  string

	// Columns carries names and destination types, in payload order.
	Columns []catalog.Column

	// KeyColumns selects upsert mode: when set, rows are inserted or
	// updated by key; when empty the batch is appended as-is.
	KeyColumns []string

	// Payload is the batch in COPY text format: tab-delimited fields,
	// newline-terminated rows, \N for null.
	Payload []byte

	// Rows is the number of rows encoded in Payload, used to verify the
	// copy count.
	Rows int
}

// Connector is the write-side database interface. Implementations must be
// safe for concurrent use by multiple table workers.
type Connector interface {
	// DescribeTable introspects a destination table for the inspector.
	DescribeTable(ctx context.Context, schema, table string) ([]catalog.Column, bool, error)

	// ApplyDDL executes a DDL batch in one transaction, rolled back
	// entirely if any statement fails.
	ApplyDDL(ctx context.Context, statements []string) error

	// Truncate empties a destination table.
	Truncate(ctx context.Context, schema, table string) error

	// LoadBatch commits one batch to the destination as a single
	// transactional bulk operation.
	LoadBatch(ctx context.Context, spec LoadSpec) error

	// Close releases the underlying connection pool.
	Close()
}
