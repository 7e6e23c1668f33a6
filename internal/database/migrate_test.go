package database

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok, "cannot determine test file path")

	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	dir := filepath.Join(filepath.Dir(thisFile), "..", "..", "db", "migrations")
	_, err := os.Stat(dir)
	require.NoError(t, err, "migrations directory not found at %s", dir)
	return dir
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	dir := migrationsDir(t)
	upFiles, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, upFiles)

	for _, up := range upFiles {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		_, err := os.Stat(down)
		assert.NoError(t, err, "missing down migration for %s", filepath.Base(up))
	}
}

// TestMigrations_CreateRequiredTables checks that the tables the repositories
// query are created somewhere in the up migrations.
func TestMigrations_CreateRequiredTables(t *testing.T) {
	dir := migrationsDir(t)
	upFiles, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	require.NoError(t, err)

	createPattern := regexp.MustCompile("(?i)CREATE TABLE(?: IF NOT EXISTS)?\\s+`?(\\w+)`?")
	created := map[string]bool{}
	for _, f := range upFiles {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		for _, m := range createPattern.FindAllStringSubmatch(string(data), -1) {
			created[m[1]] = true
		}
	}

	for _, table := range []string{"accounts", "credentials", "security_events"} {
		assert.True(t, created[table], "no migration creates table %s", table)
	}
}

// TestMigrations_SecretColumnsPresent guards the columns the reset flow
// depends on for single-use consumption.
func TestMigrations_SecretColumnsPresent(t *testing.T) {
	dir := migrationsDir(t)
	data, err := os.ReadFile(filepath.Join(dir, "000002_create_credentials.up.sql"))
	require.NoError(t, err)

	for _, col := range []string{"password_hash", "reset_token_hash", "reset_token_expires_at", "UNIQUE KEY"} {
		assert.Contains(t, string(data), col)
	}
}
