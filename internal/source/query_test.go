package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExtractQuery_OffsetPaging(t *testing.T) {
	t.Parallel()

	d := dialects["pgx"]
	sql, args, err := buildExtractQuery(d, ExtractSpec{
		Schema:  "public",
		Table:   "orders",
		Columns: []string{"id", "total"},
		Offset:  200,
		Limit:   100,
	})
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.Equal(t,
		`SELECT "id", "total" FROM "public"."orders" OFFSET 200 ROWS FETCH NEXT 100 ROWS ONLY`,
		sql)
}

func TestBuildExtractQuery_CursorFirstBatch(t *testing.T) {
	t.Parallel()

	d := dialects["pgx"]
	sql, args, err := buildExtractQuery(d, ExtractSpec{
		Schema:       "public",
		Table:        "orders",
		Columns:      []string{"id", "total"},
		OrderBy:      []string{"id"},
		OrderByTypes: []string{"bigint"},
		Limit:        50,
	})
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.Equal(t,
		`SELECT "id", "total" FROM "public"."orders" ORDER BY "id" FETCH NEXT 50 ROWS ONLY`,
		sql)
}

func TestBuildExtractQuery_CompositeCursor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		driver   string
		expected string
	}{
		{
			name:   "postgres placeholders",
			driver: "pgx",
			expected: `SELECT "region", "id" FROM "public"."orders" WHERE ` +
				`(("region" > CAST($1 AS text)) OR ` +
				`("region" = CAST($2 AS text) AND "id" > CAST($3 AS bigint))) ` +
				`ORDER BY "region", "id" FETCH NEXT 10 ROWS ONLY`,
		},
		{
			name:   "oracle placeholders",
			driver: "godror",
			expected: `SELECT "region", "id" FROM "public"."orders" WHERE ` +
				`(("region" > CAST(:1 AS text)) OR ` +
				`("region" = CAST(:2 AS text) AND "id" > CAST(:3 AS bigint))) ` +
				`ORDER BY "region", "id" FETCH NEXT 10 ROWS ONLY`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := dialects[tt.driver]
			sql, args, err := buildExtractQuery(d, ExtractSpec{
				Schema:       "public",
				Table:        "orders",
				Columns:      []string{"region", "id"},
				OrderBy:      []string{"region", "id"},
				OrderByTypes: []string{"text", "bigint"},
				After:        []string{"eu", "42"},
				Limit:        10,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sql)
			// Lexicographic expansion repeats earlier bounds per disjunct.
			assert.Equal(t, []any{"eu", "eu", "42"}, args)
		})
	}
}

func TestBuildExtractQuery_Errors(t *testing.T) {
	t.Parallel()

	d := dialects["pgx"]

	_, _, err := buildExtractQuery(d, ExtractSpec{Table: "t"})
	require.ErrorContains(t, err, "no columns")

	_, _, err = buildExtractQuery(d, ExtractSpec{
		Table:        "t",
		Columns:      []string{"a", "b"},
		OrderBy:      []string{"a", "b"},
		OrderByTypes: []string{"text", "text"},
		After:        []string{"x"},
		Limit:        10,
	})
	require.ErrorContains(t, err, "cursor arity mismatch")

	_, _, err = buildExtractQuery(d, ExtractSpec{
		Table:        "t",
		Columns:      []string{"a"},
		OrderBy:      []string{"a"},
		OrderByTypes: nil,
		After:        []string{"x"},
		Limit:        10,
	})
	require.ErrorContains(t, err, "type arity mismatch")
}

func TestCastType_OracleLengths(t *testing.T) {
	t.Parallel()

	ora := dialects["godror"]
	pg := dialects["pgx"]

	assert.Equal(t, "VARCHAR2(4000)", ora.castType("VARCHAR2"))
	assert.Equal(t, "CHAR(2000)", ora.castType("CHAR"))
	assert.Equal(t, "RAW(2000)", ora.castType("RAW"))
	assert.Equal(t, "NUMBER", ora.castType("NUMBER"))
	assert.Equal(t, "text", pg.castType("text"))
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"plain"`, quoteIdent("plain"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
	assert.Equal(t, `"s"."t"`, quoteQualified("s", "t"))
	assert.Equal(t, `"t"`, quoteQualified("", "t"))
}

func TestParseNullable(t *testing.T) {
	t.Parallel()

	assert.True(t, parseNullable("YES"))
	assert.True(t, parseNullable("y"))
	assert.False(t, parseNullable("NO"))
	assert.False(t, parseNullable("N"))
	assert.False(t, parseNullable(""))
}

func TestDialectFor(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"pgx", "godror"} {
		d, err := dialectFor(driver)
		require.NoError(t, err)
		assert.Equal(t, driver, d.name)
	}

	_, err := dialectFor("mysql")
	require.ErrorContains(t, err, "unsupported source driver")
}
