// Package checkpoint persists per-table mirroring progress, enabling
// resume-after-failure and percentage reporting.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of one table's checkpoint.
type Status string

const (
	// StatusPending marks a table that has not started yet.
	StatusPending Status = "pending"
	// StatusInProgress marks a table with committed batches in flight.
	StatusInProgress Status = "in_progress"
	// StatusCompleted marks a table whose sync finished cleanly.
	StatusCompleted Status = "completed"
	// StatusFailed marks a table whose sync aborted.
	StatusFailed Status = "failed"
)

// Cursor is the last-committed extraction position. Exactly one
// representation is meaningful per strategy: Offset for full reloads, Tuple
// (textual cursor-column values, lexicographically ordered) for key- and
// timestamp-based syncs.
type Cursor struct {
	Offset int64    `json:"offset,omitempty"`
	Tuple  []string `json:"tuple,omitempty"`
}

// Encode renders the cursor to its stable textual checkpoint form.
func (c *Cursor) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return string(b), nil
}

// DecodeCursor parses a cursor from its checkpoint form. An empty value
// decodes to nil, meaning "no prior position".
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	var c Cursor
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, fmt.Errorf("failed to decode cursor %q: %w", s, err)
	}
	return &c, nil
}

// Checkpoint is the durable progress record for one table.
type Checkpoint struct {
	Table           string    `json:"table"`
	Strategy        string    `json:"strategy"`
	Cursor          string    `json:"cursor,omitempty"`
	RowsTransferred int64     `json:"rows_transferred"`
	TotalRows       int64     `json:"total_rows"`
	Status          Status    `json:"status"`
	Message         string    `json:"message,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Percent returns the completion estimate against the total row count taken
// at selection time.
func (c *Checkpoint) Percent() float64 {
	if c.TotalRows <= 0 {
		if c.Status == StatusCompleted {
			return 100
		}
		return 0
	}
	p := float64(c.RowsTransferred) / float64(c.TotalRows) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// PersistenceError wraps a checkpoint store failure. It is fatal to the run:
// once progress durability cannot be trusted, continuing risks silent data
// loss or duplication.
type PersistenceError struct {
	Table string
	Op    string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint %s failed for table %s: %v", e.Op, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store persists checkpoints. Records are keyed by table name; callers never
// contend on the same table from two workers, but implementations must still
// be safe for concurrent use across tables.
type Store interface {
	// Initialize creates the checkpoint for a run, or resets it. A prior
	// InProgress checkpoint with the same strategy is kept so the run can
	// resume; any other prior state is replaced with a fresh InProgress
	// record carrying the new total row count.
	Initialize(ctx context.Context, table, strategy string, totalRows int64) (*Checkpoint, error)

	// Advance durably records a committed batch: the cursor moves forward
	// and rows are added to the transferred count. It must return before
	// the next batch is loaded (write-ahead discipline).
	Advance(ctx context.Context, table string, cursor *Cursor, rowsInBatch int64) error

	// Complete marks the table's sync as finished.
	Complete(ctx context.Context, table string) error

	// Fail marks the table's sync as failed with a reason.
	Fail(ctx context.Context, table, reason string) error

	// ResumeCursor returns the last durable cursor for the table, or nil
	// when no prior Completed/InProgress checkpoint matches the given
	// strategy (stale checkpoints from another strategy are discarded,
	// never reused).
	ResumeCursor(ctx context.Context, table, strategy string) (*Cursor, error)

	// Get returns the checkpoint for one table, or nil if none exists.
	Get(ctx context.Context, table string) (*Checkpoint, error)

	// List returns all checkpoints, sorted by table name.
	List(ctx context.Context) ([]*Checkpoint, error)
}
