// Package strategy chooses how each table is synchronized and carries the
// resulting execution plan.
package strategy

import (
	"github.com/tablemirror/tablemirror/internal/catalog"
	"github.com/tablemirror/tablemirror/internal/checkpoint"
)

// Strategy identifies the synchronization method for one table.
type Strategy string

const (
	// Full reloads the whole table: truncate once, then copy every row.
	Full Strategy = "full"
	// KeyBased copies rows with a key tuple beyond the last checkpoint,
	// upserting into the destination.
	KeyBased Strategy = "key"
	// TimestampBased copies rows whose last-modified column advanced past
	// the checkpoint, capturing in-place updates as well as inserts.
	TimestampBased Strategy = "timestamp"
)

// Plan is the immutable execution plan for one table. A new plan is required
// to change strategy.
type Plan struct {
	Table    *catalog.TableDescriptor
	Strategy Strategy

	// CursorColumns are the columns extraction orders by and the cursor
	// tuple is taken from. Empty for Full (offset paging).
	CursorColumns []string

	BatchSize int

	// StartCursor is the resume position, nil to start from the beginning.
	StartCursor *checkpoint.Cursor
}

// Selector chooses a Strategy from inspected metadata. Selection is pure:
// re-running it on unchanged metadata yields the same result.
type Selector struct {
	// FullReloadThreshold is the row count below which a full reload is
	// preferred over incremental bookkeeping.
	FullReloadThreshold int64
}

// Select returns exactly one strategy for the table. dst is nil when the
// destination table does not exist yet.
//
// Preference when several are viable: TimestampBased > KeyBased > Full.
// TimestampBased wins because it also captures in-place updates, which
// key-order cursoring cannot see.
func (s Selector) Select(src, dst *catalog.TableDescriptor) Strategy {
	if dst == nil || src.Key == nil || src.ApproxRows < s.FullReloadThreshold {
		return Full
	}
	if src.LastModified != "" && src.TimestampReliable {
		return TimestampBased
	}
	return KeyBased
}

// NewPlan builds the execution plan for a table under the chosen strategy.
// resume is the durable cursor from a prior run, nil to start fresh; it is
// ignored for Full, which always restarts from offset zero.
func NewPlan(src *catalog.TableDescriptor, strat Strategy, batchSize int, resume *checkpoint.Cursor) *Plan {
	p := &Plan{
		Table:     src,
		Strategy:  strat,
		BatchSize: batchSize,
	}
	switch strat {
	case KeyBased:
		p.CursorColumns = src.Key.Columns
		p.StartCursor = resume
	case TimestampBased:
		p.CursorColumns = append([]string{src.LastModified}, src.Key.Columns...)
		p.StartCursor = resume
	case Full:
		// Offset paging from zero; a full reload never resumes.
	}
	return p
}

// CursorColumnTypes returns the native source types of the plan's cursor
// columns, for casting checkpoint values in extraction predicates.
func (p *Plan) CursorColumnTypes() []string {
	types := make([]string, len(p.CursorColumns))
	for i, name := range p.CursorColumns {
		if col := p.Table.Column(name); col != nil {
			types[i] = col.NativeType
		}
	}
	return types
}
