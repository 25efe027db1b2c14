package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// DB wraps the sql.DB connection with additional functionality
type DB struct {
	*sql.DB
}

// DefaultMigrationsDir is where the engine looks for schema migrations
// when started from the repository or install root
const DefaultMigrationsDir = "./database/migrations"

// Initialize creates and configures the history database connection
func Initialize(dbPath string) (*DB, error) {
	return InitializeWithMigrations(dbPath, DefaultMigrationsDir)
}

// InitializeWithMigrations opens the history database and applies the
// migrations found in migrationsDir
func InitializeWithMigrations(dbPath, migrationsDir string) (*DB, error) {
	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database connection
	sqlDB, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// The history database sees little concurrent traffic
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)

	db := &DB{DB: sqlDB}

	// Run migrations
	if err := db.runMigrations(migrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logrus.Info("History database initialized")
	return db, nil
}

// runMigrations applies database migrations
func (db *DB) runMigrations(migrationsDir string) error {
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		logrus.Warn("Migrations directory not found, skipping migrations")
		return nil
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+migrationsDir,
		"sqlite3",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, _, _ := m.Version()
	logrus.Debugf("History database at migration version %d", version)

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health checks the database connection health
func (db *DB) Health() error {
	return db.Ping()
}
