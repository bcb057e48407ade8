// Package catalog builds and holds table metadata for both sides of a
// mirroring run.
package catalog

// Column describes one column of a mirrored table: its source-native type,
// the destination type it maps to, and nullability.
type Column struct {
	Name       string
	NativeType string
	DestType   string
	Nullable   bool
}

// KeySet is an orderable set of key columns used for deterministic cursoring.
// The column order is the declared key order; composite keys compare
// lexicographically over it.
type KeySet struct {
	// Columns in declared order.
	Columns []string

	// Primary is true when the set comes from the primary key rather than
	// a unique-key fallback.
	Primary bool
}

// TableDescriptor is the read-only metadata snapshot for one table, built
// fresh per run from the source (or destination) catalog.
type TableDescriptor struct {
	Schema string
	Name   string

	// Columns in ordinal order.
	Columns []Column

	// Key is the usable key set: the primary key when one exists,
	// otherwise the first unique key covering only existing columns.
	// Nil when the table has no usable key.
	Key *KeySet

	// ApproxRows is the row count observed at inspection time. It is a
	// point-in-time estimate used for strategy selection and percentage
	// reporting, never re-queried mid-run.
	ApproxRows int64

	// LastModified names the declared last-modified column, when one is
	// configured for this table.
	LastModified string

	// TimestampReliable records whether the sampling pass observed the
	// last-modified column increasing reliably.
	TimestampReliable bool
}

// QualifiedName returns the schema-qualified table name.
func (t *TableDescriptor) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Column returns the named column, or nil if the table has no such column.
func (t *TableDescriptor) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the column names in ordinal order.
func (t *TableDescriptor) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumns reports whether every named column exists on the table.
func (t *TableDescriptor) HasColumns(names []string) bool {
	for _, n := range names {
		if t.Column(n) == nil {
			return false
		}
	}
	return true
}
