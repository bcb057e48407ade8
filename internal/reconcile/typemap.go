// Package reconcile converges the destination schema toward the source
// schema with additive-only DDL.
package reconcile

import "strings"

// defaultTypeRules is the closed mapping from source-native type names to
// destination types. The bias is "safety over size": anything without a
// proven native round-trip moves as text. Character-like, exotic, and
// unknown types all land on text; binary types pass through as opaque bytes.
var defaultTypeRules = map[string]string{
	// Integers
	"INTEGER":  "integer",
	"INT":      "integer",
	"INT4":     "integer",
	"SMALLINT": "smallint",
	"INT2":     "smallint",
	"BIGINT":   "bigint",
	"INT8":     "bigint",

	// Fixed and floating point
	"DECIMAL":          "numeric",
	"NUMERIC":          "numeric",
	"NUMBER":           "numeric",
	"DOUBLE PRECISION": "double precision",
	"FLOAT":            "double precision",
	"FLOAT8":           "double precision",
	"REAL":             "double precision",
	"BINARY_DOUBLE":    "double precision",
	"BINARY_FLOAT":     "double precision",

	// Date/time variants all converge on timestamp
	"DATE":                        "timestamp",
	"DATETIME":                    "timestamp",
	"SMALLDATETIME":               "timestamp",
	"TIMESTAMP":                   "timestamp",
	"TIMESTAMP WITHOUT TIME ZONE": "timestamp",
	"TIMESTAMP WITH TIME ZONE":    "timestamptz",
	"TIMESTAMPTZ":                 "timestamptz",

	// Booleans
	"BOOLEAN": "boolean",
	"BOOL":    "boolean",
	"LOGICAL": "boolean",

	// Opaque binary passthrough
	"BLOB":           "bytea",
	"BYTEA":          "bytea",
	"RAW":            "bytea",
	"LONG RAW":       "bytea",
	"BINARY":         "bytea",
	"VARBINARY":      "bytea",
	"LONG VARBINARY": "bytea",
}

// textType is the lossless default for character-like and unmapped types.
const textType = "text"

// Mapper resolves destination types for source-native types. Per-table
// overrides extend the rule set without code changes.
type Mapper struct {
	overrides map[string]string
}

// NewMapper builds a Mapper with optional per-table overrides keyed by
// source-native type name (case-insensitive). An override key may carry a
// precision qualifier to target one shape of a type: NUMBER(1) matches only
// NUMBER(1) columns, while NUMBER matches every precision.
func NewMapper(overrides map[string]string) *Mapper {
	m := &Mapper{overrides: make(map[string]string, len(overrides))}
	for k, v := range overrides {
		m.overrides[canonicalType(k)] = v
	}
	return m
}

// Map returns the destination type for a source-native type, and whether the
// type was covered by an explicit rule. Overrides are consulted with the
// precision qualifier intact before falling back to the bare type name.
// Uncovered types fall back to text, never to a silently-truncating native
// type.
func (m *Mapper) Map(nativeType string) (string, bool) {
	if t, ok := m.overrides[canonicalType(nativeType)]; ok {
		return t, true
	}
	key := normalizeType(nativeType)
	if t, ok := m.overrides[key]; ok {
		return t, true
	}
	if t, ok := defaultTypeRules[key]; ok {
		return t, true
	}
	if isCharacterLike(key) {
		return textType, true
	}
	return textType, false
}

// DestType is the catalog.TypeMapper adapter.
func (m *Mapper) DestType(nativeType string) string {
	t, _ := m.Map(nativeType)
	return t
}

// canonicalType uppercases and trims a type name, keeping the precision
// qualifier. Spacing inside the qualifier is squeezed so NUMBER(10, 2) and
// NUMBER(10,2) compare equal.
func canonicalType(t string) string {
	key := strings.ToUpper(strings.TrimSpace(t))
	open := strings.IndexByte(key, '(')
	if open < 0 {
		return key
	}
	end := strings.LastIndexByte(key, ')')
	if end < open {
		return key
	}
	inner := strings.ReplaceAll(key[open:end+1], " ", "")
	return strings.TrimSpace(key[:open]) + inner + key[end+1:]
}

func normalizeType(t string) string {
	key := strings.ToUpper(strings.TrimSpace(t))
	// Strip precision suffixes such as NUMBER(10,2) or TIMESTAMP(6).
	if i := strings.IndexByte(key, '('); i > 0 {
		tail := key[strings.LastIndexByte(key, ')')+1:]
		key = strings.TrimSpace(key[:i] + tail)
	}
	return key
}

func isCharacterLike(key string) bool {
	switch key {
	case "CHAR", "NCHAR", "CHARACTER", "VARCHAR", "VARCHAR2", "NVARCHAR2",
		"CHARACTER VARYING", "NATIONAL CHARACTER VARYING", "LONG VARCHAR",
		"TEXT", "CLOB", "NCLOB", "LONG", "UUID", "JSON", "JSONB", "XML":
		return true
	}
	return strings.Contains(key, "CHAR")
}
