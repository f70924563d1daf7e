package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/assistantkb/internal/config"
	"github.com/nikhilbhutani/assistantkb/migrations"
)

func TestMigrationFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"010_late.sql":  {Data: []byte("SELECT 1")},
		"002_next.sql":  {Data: []byte("SELECT 1")},
		"001_first.sql": {Data: []byte("SELECT 1")},
		"README.md":     {Data: []byte("notes")},
	}

	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_first.sql", "002_next.sql", "010_late.sql"}, files)
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := migrationFiles(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_init.sql", files[0])
}

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig(config.DatabaseConfig{URL: "postgres://u:p@localhost:5432/kb", MaxConns: 8, MinConns: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 8, cfg.MaxConns)
	assert.EqualValues(t, 2, cfg.MinConns)
	assert.Equal(t, applicationName, cfg.ConnConfig.RuntimeParams["application_name"])

	cfg, err = poolConfig(config.DatabaseConfig{URL: "postgres://localhost/kb?application_name=tests", MaxConns: 2, MinConns: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 0, cfg.MinConns)
	assert.Equal(t, "tests", cfg.ConnConfig.RuntimeParams["application_name"])

	_, err = poolConfig(config.DatabaseConfig{URL: "://bad"})
	assert.Error(t, err)
}
