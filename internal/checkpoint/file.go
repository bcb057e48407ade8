package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"
)

// fileStore keeps all checkpoints in a single JSON file, written atomically
// (temp file + rename) on every mutation. It assumes a single process owns
// the file; multi-instance deployments should use the Postgres store.
type fileStore struct {
	path string

	mu      sync.Mutex
	records map[string]*Checkpoint
}

// NewFileStore opens (or creates) a file-backed checkpoint store at path.
func NewFileStore(path string) (Store, error) {
	s := &fileStore{
		path:    path,
		records: make(map[string]*Checkpoint),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read checkpoint file %s: %w", s.path, err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return fmt.Errorf("failed to parse checkpoint file %s: %w", s.path, err)
	}
	return nil
}

// save persists the full record set. Callers hold s.mu.
func (s *fileStore) save(table, op string) error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return &PersistenceError{Table: table, Op: op, Err: err}
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return &PersistenceError{Table: table, Op: op, Err: err}
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return &PersistenceError{Table: table, Op: op, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &PersistenceError{Table: table, Op: op, Err: err}
	}
	return nil
}

func (s *fileStore) Initialize(_ context.Context, table, strategy string, totalRows int64) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	prior := s.records[table]
	cp := initialized(prior, table, strategy, totalRows, now)
	s.records[table] = cp

	if err := s.save(table, "initialize"); err != nil {
		return nil, err
	}
	out := *cp
	return &out, nil
}

func (s *fileStore) Advance(_ context.Context, table string, cursor *Cursor, rowsInBatch int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := s.records[table]
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

	return s.save(table, "advance")
}

func (s *fileStore) Complete(_ context.Context, table string) error {
	return s.setStatus(table, StatusCompleted, "")
}

func (s *fileStore) Fail(_ context.Context, table, reason string) error {
	return s.setStatus(table, StatusFailed, reason)
}

func (s *fileStore) setStatus(table string, status Status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := s.records[table]
	if cp == nil {
		return &PersistenceError{Table: table, Op: string(status), Err: errors.New("no checkpoint")}
	}
	cp.Status = status
	cp.Message = message
	cp.UpdatedAt = time.Now().UTC()
	return s.save(table, string(status))
}

func (s *fileStore) ResumeCursor(_ context.Context, table, strategy string) (*Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := s.records[table]
	return resumableCursor(cp, strategy)
}

func (s *fileStore) Get(_ context.Context, table string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := s.records[table]
	if cp == nil {
		return nil, nil
	}
	out := *cp
	return &out, nil
}

func (s *fileStore) List(_ context.Context) ([]*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Checkpoint, 0, len(s.records))
	for _, cp := range s.records {
		c := *cp
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out, nil
}

// initialized computes the checkpoint a run starts from. A prior InProgress
// record with the same strategy resumes as-is (fresh total estimate); a
// Completed one keeps its cursor so the run picks up where the last one
// ended; anything else is replaced outright. A strategy change always starts
// clean: stale cursors are never reinterpreted under a new strategy.
func initialized(prior *Checkpoint, table, strategy string, totalRows int64, now time.Time) *Checkpoint {
	cp := &Checkpoint{
		Table:     table,
		Strategy:  strategy,
		TotalRows: totalRows,
		Status:    StatusInProgress,
		UpdatedAt: now,
	}
	if prior == nil || prior.Strategy != strategy {
		return cp
	}
	// Only tuple cursors carry across runs. Offset cursors belong to full
	// reloads, which always restart from scratch.
	if c, err := DecodeCursor(prior.Cursor); err != nil || c == nil || len(c.Tuple) == 0 {
		return cp
	}
	switch prior.Status {
	case StatusInProgress:
		cp.Cursor = prior.Cursor
		cp.RowsTransferred = prior.RowsTransferred
	case StatusCompleted:
		cp.Cursor = prior.Cursor
	}
	return cp
}

// validateAdvance enforces the forward-only cursor invariant. Offset cursors
// must grow. Tuple cursors are checked for standstill and arity changes only:
// their textual encoding does not order numeric values, so a full ordering
// comparison is left to the source engine.
func validateAdvance(cp *Checkpoint, table string, cursor *Cursor) error {
	if cp == nil || cp.Status != StatusInProgress {
		return &PersistenceError{Table: table, Op: "advance", Err: errors.New("checkpoint not in progress")}
	}
	if cursor == nil {
		return &PersistenceError{Table: table, Op: "advance", Err: errors.New("nil cursor")}
	}
	prior, err := DecodeCursor(cp.Cursor)
	if err != nil {
		return &PersistenceError{Table: table, Op: "advance", Err: err}
	}
	if prior == nil {
		return nil
	}
	if len(cursor.Tuple) == 0 {
		if cursor.Offset < prior.Offset {
			return &PersistenceError{Table: table, Op: "advance",
				Err: fmt.Errorf("cursor moved backward: offset %d < %d", cursor.Offset, prior.Offset)}
		}
		return nil
	}
	if len(prior.Tuple) > 0 {
		if len(cursor.Tuple) != len(prior.Tuple) {
			return &PersistenceError{Table: table, Op: "advance",
				Err: fmt.Errorf("cursor arity changed: %d columns, was %d", len(cursor.Tuple), len(prior.Tuple))}
		}
		if slices.Equal(cursor.Tuple, prior.Tuple) {
			return &PersistenceError{Table: table, Op: "advance", Err: errors.New("cursor did not advance")}
		}
	}
	return nil
}

// resumableCursor applies the resume rule shared by both stores: same
// strategy, Completed or InProgress, and a tuple cursor. Offset cursors are
// never resumed.
func resumableCursor(cp *Checkpoint, strategy string) (*Cursor, error) {
	if cp == nil || cp.Strategy != strategy {
		return nil, nil
	}
	if cp.Status != StatusInProgress && cp.Status != StatusCompleted {
		return nil, nil
	}
	c, err := DecodeCursor(cp.Cursor)
	if err != nil {
		return nil, err
	}
	if c == nil || len(c.Tuple) == 0 {
		return nil, nil
	}
	return c, nil
}
