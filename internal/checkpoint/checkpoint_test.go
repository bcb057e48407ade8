package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_EncodeDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cursor Cursor
	}{
		{name: "offset", cursor: Cursor{Offset: 1500}},
		{name: "single column tuple", cursor: Cursor{Tuple: []string{"42"}}},
		{name: "composite tuple", cursor: Cursor{Tuple: []string{"2024-01-02 03:04:05", "42"}}},
		{name: "tuple with delimiters", cursor: Cursor{Tuple: []string{"a\tb", `c"d`}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			encoded, err := tt.cursor.Encode()
			require.NoError(t, err)

			decoded, err := DecodeCursor(encoded)
			require.NoError(t, err)
			require.NotNil(t, decoded)
			assert.Equal(t, tt.cursor.Offset, decoded.Offset)
			assert.Equal(t, tt.cursor.Tuple, decoded.Tuple)
		})
	}
}

func TestDecodeCursor_Empty(t *testing.T) {
	t.Parallel()

	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeCursor_Garbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeCursor("{{nope")
	require.ErrorContains(t, err, "failed to decode cursor")
}

func TestCheckpoint_Percent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cp       Checkpoint
		expected float64
	}{
		{name: "zero total pending", cp: Checkpoint{TotalRows: 0}, expected: 0},
		{name: "zero total completed", cp: Checkpoint{TotalRows: 0, Status: StatusCompleted}, expected: 100},
		{name: "halfway", cp: Checkpoint{RowsTransferred: 50, TotalRows: 100}, expected: 50},
		{name: "estimate overrun clamps", cp: Checkpoint{RowsTransferred: 150, TotalRows: 100}, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.expected, tt.cp.Percent(), 0.001)
		})
	}
}
