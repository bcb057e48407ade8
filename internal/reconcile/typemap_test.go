package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapper_Map(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		nativeType string
		expected   string
		known      bool
	}{
		{name: "integer", nativeType: "INTEGER", expected: "integer", known: true},
		{name: "lowercase input", nativeType: "bigint", expected: "bigint", known: true},
		{name: "number with precision", nativeType: "NUMBER(10,2)", expected: "numeric", known: true},
		{name: "timestamp with precision", nativeType: "TIMESTAMP(6)", expected: "timestamp", known: true},
		{name: "timestamp with time zone", nativeType: "TIMESTAMP WITH TIME ZONE", expected: "timestamptz", known: true},
		{name: "oracle date", nativeType: "DATE", expected: "timestamp", known: true},
		{name: "binary double", nativeType: "BINARY_DOUBLE", expected: "double precision", known: true},
		{name: "blob", nativeType: "BLOB", expected: "bytea", known: true},
		{name: "varchar2 with length", nativeType: "VARCHAR2(255)", expected: "text", known: true},
		{name: "clob", nativeType: "CLOB", expected: "text", known: true},
		{name: "padded input", nativeType: "  integer  ", expected: "integer", known: true},
		{name: "exotic type falls to text unmapped", nativeType: "SDO_GEOMETRY", expected: "text", known: false},
		{name: "interval falls to text unmapped", nativeType: "INTERVAL DAY TO SECOND", expected: "text", known: false},
	}

	m := NewMapper(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, known := m.Map(tt.nativeType)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestMapper_Overrides(t *testing.T) {
	t.Parallel()

	m := NewMapper(map[string]string{
		"number(1)":    "boolean",
		"SDO_GEOMETRY": "jsonb",
	})

	got, known := m.Map("NUMBER(1)")
	assert.Equal(t, "boolean", got)
	assert.True(t, known)

	got, known = m.Map("sdo_geometry")
	assert.Equal(t, "jsonb", got)
	assert.True(t, known)

	// Unrelated types keep the default rules.
	got, known = m.Map("NUMBER(10)")
	assert.Equal(t, "numeric", got)
	assert.True(t, known)

	got, known = m.Map("NUMBER")
	assert.Equal(t, "numeric", got)
	assert.True(t, known)
}

func TestMapper_OverrideWithoutPrecisionCoversAll(t *testing.T) {
	t.Parallel()

	m := NewMapper(map[string]string{"number": "bigint"})

	for _, native := range []string{"NUMBER", "NUMBER(1)", "NUMBER(10)", "NUMBER(12,4)"} {
		got, known := m.Map(native)
		assert.Equal(t, "bigint", got, native)
		assert.True(t, known, native)
	}
}

func TestMapper_OverrideSpacingInsidePrecision(t *testing.T) {
	t.Parallel()

	m := NewMapper(map[string]string{"NUMBER(10, 2)": "money"})

	got, known := m.Map("number(10,2)")
	assert.Equal(t, "money", got)
	assert.True(t, known)

	got, _ = m.Map("NUMBER(10,3)")
	assert.Equal(t, "numeric", got)
}

func TestMapper_DestType(t *testing.T) {
	t.Parallel()

	m := NewMapper(nil)
	assert.Equal(t, "numeric", m.DestType("DECIMAL(10,2)"))
	assert.Equal(t, "text", m.DestType("SOMETHING_ODD"))
}

func TestNormalizeType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NUMBER", normalizeType("number(10,2)"))
	assert.Equal(t, "TIMESTAMP WITH TIME ZONE", normalizeType("TIMESTAMP(6) WITH TIME ZONE"))
	assert.Equal(t, "VARCHAR2", normalizeType(" VARCHAR2(4000) "))
}

func TestCanonicalType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NUMBER(10,2)", canonicalType("number(10, 2)"))
	assert.Equal(t, "NUMBER(1)", canonicalType(" Number(1) "))
	assert.Equal(t, "TIMESTAMP(6) WITH TIME ZONE", canonicalType("timestamp(6) with time zone"))
	assert.Equal(t, "CLOB", canonicalType("clob"))
}
