package source

import (
	"fmt"
	"strings"
)

// dialect captures the per-driver differences the connector needs: catalog
// queries, placeholder style, and paging syntax. This is deliberately small;
// anything resembling SQL translation is out of scope.
type dialect struct {
	name string

	tablesQuery  string
	columnsQuery string
	keysQuery    string

	placeholder func(n int) string
}

var dialects = map[string]*dialect{
	"pgx": {
		name: "pgx",
		tablesQuery: `SELECT table_name
			FROM information_schema.tables
			WHERE table_schema = $1 AND table_type = 'BASE TABLE'
			ORDER BY table_name`,
		columnsQuery: `SELECT column_name, data_type, is_nullable, ordinal_position
			FROM information_schema.columns
			WHERE table_schema = $1 AND table_name = $2
			ORDER BY ordinal_position`,
		keysQuery: `SELECT tc.constraint_name, tc.constraint_type, kcu.column_name, kcu.ordinal_position
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name
			 AND tc.table_schema = kcu.table_schema
			 AND tc.table_name = kcu.table_name
			WHERE tc.table_schema = $1 AND tc.table_name = $2
			  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
			ORDER BY tc.constraint_name, kcu.ordinal_position`,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	},
	"godror": {
		name: "godror",
		tablesQuery: `SELECT table_name
			FROM all_tables
			WHERE owner = :1
			ORDER BY table_name`,
		columnsQuery: `SELECT column_name, data_type, nullable, column_id
			FROM all_tab_columns
			WHERE owner = :1 AND table_name = :2
			ORDER BY column_id`,
		keysQuery: `SELECT ac.constraint_name, ac.constraint_type, acc.column_name, acc.position
			FROM all_constraints ac
			JOIN all_cons_columns acc
			  ON ac.owner = acc.owner AND ac.constraint_name = acc.constraint_name
			WHERE ac.owner = :1 AND ac.table_name = :2
			  AND ac.constraint_type IN ('P', 'U')
			ORDER BY ac.constraint_name, acc.position`,
		placeholder: func(n int) string { return fmt.Sprintf(":%d", n) },
	},
}

// dialectFor returns the dialect for a database/sql driver name.
func dialectFor(driver string) (*dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported source driver %q (supported: pgx, godror)", driver)
	}
	return d, nil
}

// castType returns a type name usable inside CAST(... AS t). Oracle's
// character and raw types are unusable without a length, so one is supplied.
func (d *dialect) castType(nativeType string) string {
	if d.name != "godror" {
		return nativeType
	}
	switch strings.ToUpper(nativeType) {
	case "VARCHAR2", "NVARCHAR2":
		return nativeType + "(4000)"
	case "CHAR", "NCHAR":
		return nativeType + "(2000)"
	case "RAW":
		return nativeType + "(2000)"
	default:
		return nativeType
	}
}

// isPrimaryConstraint reports whether a catalog constraint-type value denotes
// a primary key in this dialect.
func (d *dialect) isPrimaryConstraint(constraintType string) bool {
	return constraintType == "PRIMARY KEY" || constraintType == "P"
}

// parseNullable interprets the catalog nullability flag ("YES"/"NO" in
// information_schema, "Y"/"N" in Oracle).
func parseNullable(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "YES", "Y":
		return true
	default:
		return false
	}
}

// quoteIdent double-quotes an identifier. Both supported engines use
// double-quote quoting; embedded quotes are doubled.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteQualified(schema, table string) string {
	if schema == "" {
		return quoteIdent(table)
	}
	return quoteIdent(schema) + "." + quoteIdent(table)
}
