package testutil

import (
	"path/filepath"
	"runtime"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/anmolramgarhia9/tunegrab/internal/database"
)

// MigrationsDir returns the absolute path of the repository's migration
// files, so tests can apply the real schema regardless of their working
// directory.
func MigrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "database", "migrations")
}

// SetupTestDB creates a file-backed SQLite database with the full
// schema applied, cleaned up with the test
func SetupTestDB(t *testing.T) *database.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := database.InitializeWithMigrations(dbPath, MigrationsDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// SetupLogger returns a quiet logger for tests
func SetupLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}
