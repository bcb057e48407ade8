package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "checkpoints.json"))
	require.NoError(t, err)
	return s
}

func TestFileStore_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	cp, err := s.Initialize(ctx, "app.orders", "key", 1000)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, cp.Status)
	assert.Zero(t, cp.RowsTransferred)
	assert.Equal(t, int64(1000), cp.TotalRows)

	require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"500"}}, 500))
	require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"1000"}}, 500))

	cp, err = s.Get(ctx, "app.orders")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cp.RowsTransferred)
	assert.InDelta(t, 100.0, cp.Percent(), 0.01)

	require.NoError(t, s.Complete(ctx, "app.orders"))
	cp, err = s.Get(ctx, "app.orders")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, cp.Status)
}

func TestFileStore_FailRecordsReason(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Initialize(ctx, "app.orders", "key", 10)
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, "app.orders", "connection reset"))

	cp, err := s.Get(ctx, "app.orders")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, cp.Status)
	assert.Equal(t, "connection reset", cp.Message)
}

func TestFileStore_StatusWithoutCheckpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	require.Error(t, s.Complete(ctx, "app.ghost"))
	require.Error(t, s.Fail(ctx, "app.ghost", "nope"))
	require.Error(t, s.Advance(ctx, "app.ghost", &Cursor{Offset: 1}, 1))
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Initialize(ctx, "app.orders", "key", 100)
	require.NoError(t, err)
	require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"42"}}, 42))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	cp, err := reopened.Get(ctx, "app.orders")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(42), cp.RowsTransferred)

	cursor, err := reopened.ResumeCursor(ctx, "app.orders", "key")
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, []string{"42"}, cursor.Tuple)
}

func TestFileStore_CorruptFileRejected(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "checkpoints.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path)
	require.ErrorContains(t, err, "failed to parse checkpoint file")
}

func TestFileStore_ResumeRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name     string
		prepare  func(t *testing.T, s Store)
		strategy string
		resumed  bool
	}{
		{
			name: "in progress with same strategy resumes",
			prepare: func(t *testing.T, s Store) {
				t.Helper()
				_, err := s.Initialize(ctx, "app.orders", "key", 100)
				require.NoError(t, err)
				require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"7"}}, 7))
			},
			strategy: "key",
			resumed:  true,
		},
		{
			name: "completed with same strategy resumes from final cursor",
			prepare: func(t *testing.T, s Store) {
				t.Helper()
				_, err := s.Initialize(ctx, "app.orders", "key", 100)
				require.NoError(t, err)
				require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"7"}}, 7))
				require.NoError(t, s.Complete(ctx, "app.orders"))
			},
			strategy: "key",
			resumed:  true,
		},
		{
			name: "strategy change discards cursor",
			prepare: func(t *testing.T, s Store) {
				t.Helper()
				_, err := s.Initialize(ctx, "app.orders", "key", 100)
				require.NoError(t, err)
				require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"7"}}, 7))
			},
			strategy: "timestamp",
			resumed:  false,
		},
		{
			name: "failed checkpoint never resumes",
			prepare: func(t *testing.T, s Store) {
				t.Helper()
				_, err := s.Initialize(ctx, "app.orders", "key", 100)
				require.NoError(t, err)
				require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"7"}}, 7))
				require.NoError(t, s.Fail(ctx, "app.orders", "boom"))
			},
			strategy: "key",
			resumed:  false,
		},
		{
			name: "offset cursor never resumes",
			prepare: func(t *testing.T, s Store) {
				t.Helper()
				_, err := s.Initialize(ctx, "app.orders", "full", 100)
				require.NoError(t, err)
				require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Offset: 50}, 50))
			},
			strategy: "full",
			resumed:  false,
		},
		{
			name:     "no prior checkpoint",
			prepare:  func(*testing.T, Store) {},
			strategy: "key",
			resumed:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestStore(t)
			tt.prepare(t, s)

			cursor, err := s.ResumeCursor(ctx, "app.orders", tt.strategy)
			require.NoError(t, err)
			if tt.resumed {
				require.NotNil(t, cursor)
				assert.Equal(t, []string{"7"}, cursor.Tuple)
			} else {
				assert.Nil(t, cursor)
			}
		})
	}
}

func TestFileStore_InitializeKeepsResumableProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Initialize(ctx, "app.orders", "key", 100)
	require.NoError(t, err)
	require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"40"}}, 40))

	// Second run, same strategy: progress carries over.
	cp, err := s.Initialize(ctx, "app.orders", "key", 120)
	require.NoError(t, err)
	assert.Equal(t, int64(40), cp.RowsTransferred)
	assert.Equal(t, int64(120), cp.TotalRows)
	assert.NotEmpty(t, cp.Cursor)

	// Strategy change: starts clean.
	cp, err = s.Initialize(ctx, "app.orders", "timestamp", 120)
	require.NoError(t, err)
	assert.Zero(t, cp.RowsTransferred)
	assert.Empty(t, cp.Cursor)
}

func TestFileStore_InitializeResetsFullReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Initialize(ctx, "app.orders", "full", 100)
	require.NoError(t, err)
	require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Offset: 60}, 60))

	cp, err := s.Initialize(ctx, "app.orders", "full", 100)
	require.NoError(t, err)
	assert.Zero(t, cp.RowsTransferred)
	assert.Empty(t, cp.Cursor)

	// A fresh full reload starts over, so the first advance is offset 50.
	require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Offset: 50}, 50))
}

func TestFileStore_AdvanceForwardOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Initialize(ctx, "app.orders", "full", 100)
	require.NoError(t, err)
	require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Offset: 50}, 50))

	err = s.Advance(ctx, "app.orders", &Cursor{Offset: 20}, 20)
	require.ErrorContains(t, err, "cursor moved backward")

	err = s.Advance(ctx, "app.orders", nil, 10)
	require.ErrorContains(t, err, "nil cursor")
}

func TestFileStore_AdvanceTupleMustMove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Initialize(ctx, "app.orders", "key", 100)
	require.NoError(t, err)
	require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"10", "a"}}, 10))

	err = s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"10", "a"}}, 10)
	require.ErrorContains(t, err, "cursor did not advance")

	err = s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"20"}}, 10)
	require.ErrorContains(t, err, "cursor arity changed")

	require.NoError(t, s.Advance(ctx, "app.orders", &Cursor{Tuple: []string{"20", "b"}}, 10))
}

func TestFileStore_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	for _, table := range []string{"app.zebra", "app.alpha", "app.middle"} {
		_, err := s.Initialize(ctx, table, "key", 1)
		require.NoError(t, err)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "app.alpha", list[0].Table)
	assert.Equal(t, "app.middle", list[1].Table)
	assert.Equal(t, "app.zebra", list[2].Table)
}
