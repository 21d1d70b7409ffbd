package bigquery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_raw_transactions.sql", true, 1, "create_raw_transactions"},
		{"0012_add_index.sql", true, 12, "add_index"},
		{"001_invalid.sql", false, 0, ""},       // wrong number format
		{"0001_test", false, 0, ""},             // missing .sql
		{"0001.sql", false, 0, ""},              // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := ParseMigrationFilename(tt.filename)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
		})
	}
}

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0002_second.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.b` (id INT64);")
	writeMigration(t, dir, "0001_first.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.a` (id INT64);")
	writeMigration(t, dir, "README.md", "not a migration")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o700))

	migrations, err := ReadMigrations(context.Background(), dir, Dataset{ProjectID: "p1", DatasetID: "rfm"})
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE `p1.rfm.a` (id INT64);", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Len(t, migrations[0].Checksum, 64)
	assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)

	// checksum is independent of the target dataset
	other, err := ReadMigrations(context.Background(), dir, Dataset{ProjectID: "p2", DatasetID: "staging"})
	require.NoError(t, err)
	assert.Equal(t, migrations[0].Checksum, other[0].Checksum)
	assert.True(t, strings.Contains(other[0].SQL, "p2.staging.a"))
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_a.sql", "SELECT 1")
	writeMigration(t, dir, "0001_b.sql", "SELECT 2")

	_, err := ReadMigrations(context.Background(), dir, Dataset{})
	assert.Error(t, err)
}

func TestReadMigrations_MissingDir(t *testing.T) {
	_, err := ReadMigrations(context.Background(), filepath.Join(t.TempDir(), "nope"), Dataset{})
	assert.Error(t, err)
}

func TestPendingMigrations(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Filename: "0001_a.sql", Checksum: "aaa"},
		{Version: 2, Filename: "0002_b.sql", Checksum: "bbb"},
		{Version: 3, Filename: "0003_c.sql", Checksum: "ccc"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "aaa"},
		{Version: 2, Checksum: "changed"},
	}

	pending, drifted := PendingMigrations(migrations, applied)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Version)
	require.Len(t, drifted, 1)
	assert.Equal(t, 2, drifted[0].Version)
}

func TestRepoMigrationsParse(t *testing.T) {
	dir := filepath.Join("..", "..", "..", "migrations", "bigquery")
	migrations, err := ReadMigrations(context.Background(), dir, Dataset{ProjectID: "p", DatasetID: "d"})
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, m.Filename)
		assert.NotContains(t, m.SQL, "{{")
	}
}
