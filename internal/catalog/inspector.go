package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tablemirror/tablemirror/internal/source"
)

// defaultSampleLimit bounds the sampling pass that validates a declared
// last-modified column.
const defaultSampleLimit = 1000

// MetadataUnavailableError reports that source metadata for one table could
// not be read. It is recoverable per table: the orchestrator records it and
// moves on.
type MetadataUnavailableError struct {
	Table string
	Err   error
}

func (e *MetadataUnavailableError) Error() string {
	return fmt.Sprintf("metadata unavailable for table %s: %v", e.Table, e.Err)
}

func (e *MetadataUnavailableError) Unwrap() error { return e.Err }

// TypeMapper maps a source-native type name to the destination type used for
// that column. The reconciler supplies the implementation.
type TypeMapper func(nativeType string) string

// DestinationCatalog is the slice of the destination connector the inspector
// needs: read-only table introspection.
type DestinationCatalog interface {
	// DescribeTable returns the destination table's columns, or exists
	// false when the table has not been created yet.
	DescribeTable(ctx context.Context, schema, table string) ([]Column, bool, error)
}

// TableOptions carries per-table inspection settings from configuration.
type TableOptions struct {
	// LastModified names the column declared to increase monotonically on
	// every row change. Empty disables timestamp-based syncing.
	LastModified string

	// SampleLimit overrides the number of rows sampled to validate the
	// last-modified column. Zero uses the default.
	SampleLimit int
}

// Inspector builds TableDescriptors from the live catalogs on both sides.
type Inspector struct {
	src     source.Connector
	dst     DestinationCatalog
	mapType TypeMapper
}

// NewInspector creates an Inspector. mapType is applied to every source
// column to record its inferred destination type on the descriptor.
func NewInspector(src source.Connector, dst DestinationCatalog, mapType TypeMapper) *Inspector {
	return &Inspector{src: src, dst: dst, mapType: mapType}
}

// Tables lists the source tables in the given schema.
func (i *Inspector) Tables(ctx context.Context, schema string) ([]string, error) {
	tables, err := i.src.Tables(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate source tables: %w", err)
	}
	return tables, nil
}

// Inspect produces the source descriptor for a table, plus the destination
// descriptor when the destination table already exists (nil otherwise).
// A source side that cannot enumerate columns yields MetadataUnavailableError.
func (i *Inspector) Inspect(
	ctx context.Context, schema, table, destSchema string, opts TableOptions,
) (*TableDescriptor, *TableDescriptor, error) {
	src, err := i.inspectSource(ctx, schema, table, opts)
	if err != nil {
		return nil, nil, err
	}

	destCols, exists, err := i.dst.DescribeTable(ctx, destSchema, table)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to inspect destination table %s: %w", table, err)
	}
	if !exists {
		return src, nil, nil
	}
	return src, &TableDescriptor{Schema: destSchema, Name: table, Columns: destCols}, nil
}

func (i *Inspector) inspectSource(
	ctx context.Context, schema, table string, opts TableOptions,
) (*TableDescriptor, error) {
	cols, err := i.src.Columns(ctx, schema, table)
	if err != nil {
		return nil, &MetadataUnavailableError{Table: table, Err: err}
	}
	if len(cols) == 0 {
		return nil, &MetadataUnavailableError{Table: table, Err: fmt.Errorf("no columns visible")}
	}

	desc := &TableDescriptor{Schema: schema, Name: table}
	for _, c := range cols {
		desc.Columns = append(desc.Columns, Column{
			Name:       c.Name,
			NativeType: c.NativeType,
			DestType:   i.mapType(c.NativeType),
			Nullable:   c.Nullable,
		})
	}

	keys, err := i.src.Keys(ctx, schema, table)
	if err != nil {
		return nil, &MetadataUnavailableError{Table: table, Err: err}
	}
	desc.Key = selectKeySet(desc, keys)

	count, err := i.src.RowCount(ctx, schema, table)
	if err != nil {
		return nil, &MetadataUnavailableError{Table: table, Err: err}
	}
	desc.ApproxRows = count

	if opts.LastModified != "" {
		desc.LastModified = opts.LastModified
		desc.TimestampReliable = i.validateTimestamp(ctx, desc, opts)
	}

	return desc, nil
}

// selectKeySet picks the usable key set: primary key preferred, otherwise the
// first unique key whose columns all exist on the descriptor.
func selectKeySet(desc *TableDescriptor, keys []source.KeyInfo) *KeySet {
	var fallback *KeySet
	for _, k := range keys {
		if len(k.Columns) == 0 || !desc.HasColumns(k.Columns) {
			continue
		}
		if k.Primary {
			return &KeySet{Columns: k.Columns, Primary: true}
		}
		if fallback == nil {
			fallback = &KeySet{Columns: k.Columns}
		}
	}
	return fallback
}

// validateTimestamp runs the sampling pass over the declared last-modified
// column. With a key set, sampled values must be non-decreasing in key order.
// Without one there is no tie-breaker for cursoring, so the column must be
// strictly increasing to guarantee resume never skips rows.
func (i *Inspector) validateTimestamp(ctx context.Context, desc *TableDescriptor, opts TableOptions) bool {
	if desc.Column(desc.LastModified) == nil {
		slog.Warn("Declared last-modified column does not exist",
			"table", desc.QualifiedName(),
			"column", desc.LastModified)
		return false
	}

	limit := opts.SampleLimit
	if limit <= 0 {
		limit = defaultSampleLimit
	}

	var orderBy []string
	strict := true
	if desc.Key != nil {
		orderBy = desc.Key.Columns
		strict = false
	}

	values, err := i.src.SampleOrdered(ctx, desc.Schema, desc.Name, desc.LastModified, orderBy, limit)
	if err != nil {
		slog.Warn("Timestamp sampling failed, treating column as unreliable",
			"table", desc.QualifiedName(),
			"column", desc.LastModified,
			"error", err)
		return false
	}

	for n := 1; n < len(values); n++ {
		c, ok := compareSampled(values[n-1], values[n])
		if !ok {
			return false
		}
		if c > 0 || (strict && c == 0) {
			return false
		}
	}
	return true
}

// compareSampled orders two sampled timestamp values. Nulls and
// incomparable value pairs disqualify the column.
func compareSampled(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Compare(bt), true
	}
	as, aok := textual(a)
	bs, bok := textual(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	default:
		return 0, true
	}
}

func textual(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	default:
		return "", false
	}
}
