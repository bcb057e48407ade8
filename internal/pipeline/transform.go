// Package pipeline moves one table's rows from source to destination in
// bounded, individually committed batches.
package pipeline

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/tablemirror/tablemirror/internal/checkpoint"
	"github.com/tablemirror/tablemirror/internal/source"
)

// Batch is one transformed unit of work: a COPY text payload plus the cursor
// position reached after its last row.
type Batch struct {
	Payload []byte
	Rows    int

	// Cursor is the position to checkpoint once this batch is committed.
	Cursor *checkpoint.Cursor
}

// encodeBatch renders extracted rows as a COPY text payload: tab-delimited
// fields, newline-terminated records, backslash escapes, \N for null.
func encodeBatch(rows []source.Row, columns int) ([]byte, error) {
	var buf bytes.Buffer
	for i, row := range rows {
		if len(row) != columns {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), columns)
		}
		for j, v := range row {
			if j > 0 {
				buf.WriteByte('\t')
			}
			text, null := formatValue(v)
			if null {
				buf.WriteString(`\N`)
			} else {
				writeEscaped(&buf, text)
			}
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// formatValue normalizes one driver value to its transfer text. The second
// return is true for SQL NULL.
func formatValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", true
	case string:
		return val, false
	case []byte:
		// Hex form, so binary survives the text staging column and casts
		// back to bytea.
		return `\x` + hex.EncodeToString(val), false
	case time.Time:
		return val.Format("2006-01-02 15:04:05.999999-07:00"), false
	case bool:
		if val {
			return "t", false
		}
		return "f", false
	case int64:
		return strconv.FormatInt(val, 10), false
	case int32:
		return strconv.FormatInt(int64(val), 10), false
	case int:
		return strconv.Itoa(val), false
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), false
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), false
	default:
		return fmt.Sprintf("%v", val), false
	}
}

// writeEscaped emits s with the COPY text escapes applied. The hex prefix
// emitted for binary values contains a backslash on purpose and is escaped
// here like any other; Postgres unescapes it back on the way in.
func writeEscaped(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			buf.WriteString(`\\`)
		case '\t':
			buf.WriteString(`\t`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteByte(s[i])
		}
	}
}

// cursorTuple captures the cursor column values of the last row in a batch,
// in cursor-column order, as their textual transfer form.
func cursorTuple(row source.Row, indices []int) []string {
	tuple := make([]string, len(indices))
	for i, idx := range indices {
		text, null := formatValue(row[idx])
		if null {
			text = ""
		}
		tuple[i] = text
	}
	return tuple
}

// cursorIndices maps cursor column names to their positions in the selected
// column list.
func cursorIndices(cursorColumns, selected []string) ([]int, error) {
	indices := make([]int, len(cursorColumns))
	for i, name := range cursorColumns {
		found := -1
		for j, col := range selected {
			if col == name {
				found = j
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("cursor column %q is not in the selected column list", name)
		}
		indices[i] = found
	}
	return indices, nil
}
