package dest

import (
	"fmt"
	"strings"

	"github.com/tablemirror/tablemirror/internal/catalog"
)

// tempTableName is the per-transaction staging table the COPY stream lands
// in. Temp tables are connection-local and dropped on commit, so a fixed
// name cannot collide across workers.
const tempTableName = "mirror_batch"

// createTempTableSQL stages the batch as all-text columns. Values stay text
// until the final INSERT casts them, so a single malformed value fails the
// batch cleanly instead of poisoning the COPY stream.
func createTempTableSQL(columns []catalog.Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdent(c.Name) + " text"
	}
	return fmt.Sprintf("CREATE TEMP TABLE %s (%s) ON COMMIT DROP",
		tempTableName, strings.Join(defs, ", "))
}

// copySQL streams the payload into the staging table using COPY text format.
func copySQL(columns []catalog.Column) string {
	return fmt.Sprintf("COPY %s (%s) FROM STDIN",
		tempTableName, joinIdents(columnNames(columns)))
}

// insertSQL appends every staged row into the target, casting each column to
// its destination type.
func insertSQL(schema, table string, columns []catalog.Column) string {
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s AS s",
		qualified(schema, table),
		joinIdents(columnNames(columns)),
		strings.Join(castExprs("s", columns), ", "),
		tempTableName)
}

// upsertSQL merges the staged rows by key: an UPDATE joined on the key
// columns, then an INSERT of the rows no target row matched. This needs no
// unique constraint on the destination, only the logical key.
func upsertSQL(schema, table string, columns []catalog.Column, keyColumns []string) []string {
	target := qualified(schema, table)
	keyMatch := keyPredicate("t", "s", columns, keyColumns)

	var statements []string
	if sets := setClauses(columns, keyColumns); len(sets) > 0 {
		statements = append(statements, fmt.Sprintf(
			"UPDATE %s AS t SET %s FROM %s AS s WHERE %s",
			target, strings.Join(sets, ", "), tempTableName, keyMatch))
	}
	statements = append(statements, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS t WHERE %s)",
		target,
		joinIdents(columnNames(columns)),
		strings.Join(castExprs("s", columns), ", "),
		tempTableName, target, keyMatch))
	return statements
}

// setClauses builds the UPDATE assignments for the non-key columns.
func setClauses(columns []catalog.Column, keyColumns []string) []string {
	var sets []string
	for _, c := range columns {
		if isKeyColumn(c.Name, keyColumns) {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", quoteIdent(c.Name), castExpr("s", c)))
	}
	return sets
}

// keyPredicate joins target and staging rows on the key tuple. IS NOT
// DISTINCT FROM keeps the join correct for nullable key parts.
func keyPredicate(target, staging string, columns []catalog.Column, keyColumns []string) string {
	parts := make([]string, 0, len(keyColumns))
	for _, k := range keyColumns {
		c := columnByName(columns, k)
		parts = append(parts, fmt.Sprintf("%s.%s IS NOT DISTINCT FROM %s",
			target, quoteIdent(k), castExpr(staging, c)))
	}
	return strings.Join(parts, " AND ")
}

func castExprs(alias string, columns []catalog.Column) []string {
	exprs := make([]string, len(columns))
	for i, c := range columns {
		exprs[i] = castExpr(alias, c)
	}
	return exprs
}

func castExpr(alias string, c catalog.Column) string {
	return fmt.Sprintf("CAST(%s.%s AS %s)", alias, quoteIdent(c.Name), c.DestType)
}

func columnByName(columns []catalog.Column, name string) catalog.Column {
	for _, c := range columns {
		if c.Name == name {
			return c
		}
	}
	return catalog.Column{Name: name, DestType: "text"}
}

func isKeyColumn(name string, keyColumns []string) bool {
	for _, k := range keyColumns {
		if k == name {
			return true
		}
	}
	return false
}

func columnNames(columns []catalog.Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func joinIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func qualified(schema, table string) string {
	if schema == "" {
		return quoteIdent(table)
	}
	return quoteIdent(schema) + "." + quoteIdent(table)
}
