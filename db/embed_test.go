package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	migrations, err := List()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, "migrations/001_schema.sql", migrations[0].Name)
	assert.Equal(t, "migrations/002_unconstrained_numeric.sql", migrations[1].Name)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS discount_rules")
}

func TestMigrations_MoneyColumnsKeepScale(t *testing.T) {
	migrations, err := List()
	require.NoError(t, err)

	for _, m := range migrations {
		assert.NotContains(t, strings.ToUpper(m.SQL), "NUMERIC(", m.Name)
	}
	assert.Contains(t, migrations[1].SQL, "ALTER COLUMN rate TYPE NUMERIC")
}
