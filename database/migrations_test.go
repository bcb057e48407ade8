package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		data, err := migrationsFS.ReadFile(up)
		require.NoError(t, err)
		assert.NotEmpty(t, data)

		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		data, err = migrationsFS.ReadFile(down)
		require.NoError(t, err, "every up migration needs a down counterpart")
		assert.NotEmpty(t, data)
	}
}

func TestPgxScheme(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pgx5://u:p@host:5432/db", pgxScheme("postgres://u:p@host:5432/db"))
	assert.Equal(t, "pgx5://host/db", pgxScheme("postgresql://host/db"))
	assert.Equal(t, "pgx5://already", pgxScheme("pgx5://already"))
}
