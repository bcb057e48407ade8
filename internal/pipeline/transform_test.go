package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablemirror/tablemirror/internal/source"
)

// unescapeCopy reverses the COPY text escapes, for round-trip checks.
func unescapeCopy(s string) (string, bool) {
	if s == `\N` {
		return "", true
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		}
	}
	return b.String(), false
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 15, 10, 30, 0, 123456000, time.UTC)

	tests := []struct {
		name     string
		value    any
		expected string
		null     bool
	}{
		{name: "nil is null", value: nil, null: true},
		{name: "string passes through", value: "hello", expected: "hello"},
		{name: "empty string is not null", value: "", expected: ""},
		{name: "bytes become hex", value: []byte{0xde, 0xad}, expected: `\xdead`},
		{name: "time", value: ts, expected: "2024-03-15 10:30:00.123456+00:00"},
		{name: "true", value: true, expected: "t"},
		{name: "false", value: false, expected: "f"},
		{name: "int64", value: int64(-42), expected: "-42"},
		{name: "int32", value: int32(7), expected: "7"},
		{name: "float64", value: 3.25, expected: "3.25"},
		{name: "float64 integral", value: float64(10), expected: "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, null := formatValue(tt.value)
			assert.Equal(t, tt.null, null)
			if !tt.null {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestEncodeBatch(t *testing.T) {
	t.Parallel()

	rows := []source.Row{
		{int64(1), "plain", nil},
		{int64(2), "tab\there", "x"},
	}
	payload, err := encodeBatch(rows, 3)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(payload), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1\tplain\t\\N", lines[0])
	assert.Equal(t, `2\ttab\there\tx`, strings.ReplaceAll(lines[1], "\t", `\t`))
}

func TestEncodeBatch_RoundTripsDelimitersAndNulls(t *testing.T) {
	t.Parallel()

	values := []any{
		"with\ttab",
		"with\nnewline",
		"with\rreturn",
		`with\backslash`,
		`literal \N text`,
		nil,
		"",
	}
	row := make(source.Row, len(values))
	copy(row, values)

	payload, err := encodeBatch([]source.Row{row}, len(values))
	require.NoError(t, err)

	line := strings.TrimSuffix(string(payload), "\n")
	require.NotContains(t, line, "\n", "row delimiter must be escaped inside fields")

	fields := strings.Split(line, "\t")
	require.Len(t, fields, len(values))

	for i, want := range values {
		got, null := unescapeCopy(fields[i])
		if want == nil {
			assert.True(t, null, "field %d: null must round-trip as null", i)
			continue
		}
		require.False(t, null, "field %d: non-null must not become null", i)
		assert.Equal(t, want, got, "field %d", i)
	}
}

func TestEncodeBatch_ColumnCountMismatch(t *testing.T) {
	t.Parallel()

	_, err := encodeBatch([]source.Row{{int64(1)}}, 2)
	require.ErrorContains(t, err, "expected 2")
}

func TestCursorIndices(t *testing.T) {
	t.Parallel()

	indices, err := cursorIndices([]string{"updated_at", "id"}, []string{"id", "name", "updated_at"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, indices)

	_, err = cursorIndices([]string{"missing"}, []string{"id"})
	require.ErrorContains(t, err, `cursor column "missing"`)
}

func TestCursorTuple(t *testing.T) {
	t.Parallel()

	row := source.Row{int64(9), "bob", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	tuple := cursorTuple(row, []int{2, 0})
	assert.Equal(t, []string{"2024-01-02 00:00:00+00:00", "9"}, tuple)
}
