package database

import (
	"testing"
	"testing/fstest"

	"housing-backend/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/002_payments.sql":     {Data: []byte("SELECT 2")},
		"sql/001_initial.sql":      {Data: []byte("SELECT 1")},
		"sql/999_reset_all.sql":    {Data: []byte("DROP TABLE x")},
		"sql/README.md":            {Data: []byte("docs")},
		"sql/003_invoices.sql":     {Data: []byte("SELECT 3")},
		"sql/nested/004_other.sql": {Data: []byte("SELECT 4")},
	}

	pending, err := PendingMigrations(fsys, "sql", map[string]bool{"002_payments.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial.sql", "003_invoices.sql"}, pending)

	_, err = PendingMigrations(fsys, "missing", nil)
	assert.Error(t, err)
}

func TestEmbeddedSchemaIsListed(t *testing.T) {
	pending, err := PendingMigrations(migrations.FS, ".", nil)
	require.NoError(t, err)
	assert.Contains(t, pending, "001_initial_schema.sql")
}
