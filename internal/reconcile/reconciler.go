package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tablemirror/tablemirror/internal/catalog"
)

// ReconciliationError reports a DDL delta that could not be applied. The
// whole delta is rolled back; the destination schema is never left half
// converged.
type ReconciliationError struct {
	Table     string
	Statement string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("schema reconciliation failed for table %s (statement %q): %v",
		e.Table, e.Statement, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// DDLApplier is the slice of the destination connector the reconciler needs:
// executing a DDL batch in one transaction, rolled back entirely on failure.
type DDLApplier interface {
	ApplyDDL(ctx context.Context, statements []string) error
}

// Result describes the applied delta and anything flagged for the operator.
type Result struct {
	// Created is true when the destination table was created from scratch.
	Created bool

	// AddedColumns lists columns added to an existing destination table.
	AddedColumns []string

	// Flagged lists drift that was detected but deliberately not acted on:
	// destination-only columns and apparent type narrowing. Nothing here is
	// ever dropped or altered automatically.
	Flagged []string
}

// Reconciler computes and applies the minimal additive DDL delta that lets
// the destination accept the source's rows.
type Reconciler struct {
	dest   DDLApplier
	mapper *Mapper
}

// New creates a Reconciler applying DDL through dest, using mapper for type
// resolution.
func New(dest DDLApplier, mapper *Mapper) *Reconciler {
	return &Reconciler{dest: dest, mapper: mapper}
}

// Reconcile converges the destination table toward the source descriptor.
// dst is nil when the destination table does not exist; it is then created.
// All statements run in one transaction; on failure nothing is applied and a
// ReconciliationError identifies the offending statement.
func (r *Reconciler) Reconcile(ctx context.Context, src, dst *catalog.TableDescriptor, destSchema string) (*Result, error) {
	res := &Result{}
	var statements []string

	if dst == nil {
		statements = append(statements, r.createTableDDL(src, destSchema))
		res.Created = true
	} else {
		statements = r.alterTableDDL(src, dst, res)
	}

	for _, c := range src.Columns {
		if _, known := r.mapper.Map(c.NativeType); !known {
			slog.Warn("Unmapped source type, transferring as text",
				"table", src.QualifiedName(),
				"column", c.Name,
				"native_type", c.NativeType)
		}
	}

	if len(statements) == 0 {
		return res, nil
	}

	if err := r.dest.ApplyDDL(ctx, statements); err != nil {
		return nil, &ReconciliationError{
			Table:     src.Name,
			Statement: strings.Join(statements, "; "),
			Err:       err,
		}
	}
	return res, nil
}

// createTableDDL renders CREATE TABLE for a missing destination table. A
// primary key is declared when the source has one, so key-based cursoring
// lands on an indexed tuple.
func (r *Reconciler) createTableDDL(src *catalog.TableDescriptor, destSchema string) string {
	defs := make([]string, 0, len(src.Columns)+1)
	for _, c := range src.Columns {
		def := quoteIdent(c.Name) + " " + c.DestType
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if src.Key != nil && src.Key.Primary {
		defs = append(defs, "PRIMARY KEY ("+joinIdents(src.Key.Columns)+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		qualified(destSchema, src.Name), strings.Join(defs, ", "))
}

// alterTableDDL computes ADD COLUMN statements for source columns missing on
// the destination, and flags (without acting on) destination-only columns
// and apparent type narrowing.
func (r *Reconciler) alterTableDDL(src, dst *catalog.TableDescriptor, res *Result) []string {
	var statements []string

	for _, c := range src.Columns {
		existing := dst.Column(c.Name)
		if existing == nil {
			// New columns are always nullable: existing destination rows
			// have no value for them.
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				qualified(dst.Schema, dst.Name), quoteIdent(c.Name), c.DestType))
			res.AddedColumns = append(res.AddedColumns, c.Name)
			continue
		}
		if !typesCompatible(existing.NativeType, c.DestType) {
			res.Flagged = append(res.Flagged, fmt.Sprintf(
				"column %s: destination type %s does not match mapped type %s; not altered",
				c.Name, existing.NativeType, c.DestType))
		}
	}

	for _, c := range dst.Columns {
		if src.Column(c.Name) == nil {
			res.Flagged = append(res.Flagged, fmt.Sprintf(
				"column %s exists only on the destination; not dropped", c.Name))
		}
	}

	return statements
}

// typesCompatible reports whether an existing destination column can hold
// values produced under the mapped type without loss. Identical types are
// compatible, and text holds anything.
func typesCompatible(existing, mapped string) bool {
	e := normalizeType(existing)
	m := normalizeType(mapped)
	if e == m {
		return true
	}
	return e == "TEXT" || e == "CHARACTER VARYING" || e == "VARCHAR"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func joinIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func qualified(schema, table string) string {
	if schema == "" {
		return quoteIdent(table)
	}
	return quoteIdent(schema) + "." + quoteIdent(table)
}
