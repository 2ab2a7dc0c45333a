package database

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-timeline/migrations"
)

func TestNewMigrator_Validation(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("fails with nil database", func(t *testing.T) {
		migrator, err := NewMigrator(nil, "", logger)
		assert.Nil(t, migrator)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is required")
	})

	t.Run("fails with nil pool", func(t *testing.T) {
		migrator, err := NewMigrator(&DB{}, "", logger)
		assert.Nil(t, migrator)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database pool not initialized")
	})
}

func TestMigrationSource(t *testing.T) {
	t.Run("empty dir uses embedded migrations", func(t *testing.T) {
		fsys, err := MigrationSource("")
		require.NoError(t, err)
		assert.Equal(t, migrations.FS, fsys)
	})

	t.Run("reads a directory from disk", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "000001_x.up.sql"), []byte("SELECT 1;"), 0o644))

		fsys, err := MigrationSource(dir)
		require.NoError(t, err)
		ups, err := fs.Glob(fsys, "*.up.sql")
		require.NoError(t, err)
		assert.Equal(t, []string{"000001_x.up.sql"}, ups)
	})

	t.Run("missing or non-directory path", func(t *testing.T) {
		_, err := MigrationSource(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)

		file := filepath.Join(t.TempDir(), "f.sql")
		require.NoError(t, os.WriteFile(file, nil, 0o644))
		_, err = MigrationSource(file)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})
}

func TestEmbeddedMigrations(t *testing.T) {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations.FS, "*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups), "every up migration needs a down migration")

	body, err := fs.ReadFile(migrations.FS, "000001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS papers")
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS paper_likes")
}

func TestMigrator_UpDown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	migrator, err := NewMigrator(db, "", zerolog.Nop())
	require.NoError(t, err)
	defer migrator.Close()

	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Up(), "second Up is a no-op")

	status, err := migrator.Status()
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{Version: 1, Applied: true}, status)

	require.NoError(t, migrator.Down())
	status, err = migrator.Status()
	require.NoError(t, err)
	assert.False(t, status.Applied)
}
