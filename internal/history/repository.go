package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

// Repository persists terminal download outcomes
type Repository interface {
	Record(ctx context.Context, entry *models.HistoryEntry) error
	List(ctx context.Context, limit, offset int) ([]*models.HistoryEntry, error)
	GetByJobID(ctx context.Context, jobID string) (*models.HistoryEntry, error)
}

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-based history repository
func NewRepository(db *sql.DB) Repository {
	return &SQLiteRepository{
		db: db,
	}
}

// Record inserts a history entry for a terminal job
func (r *SQLiteRepository) Record(ctx context.Context, entry *models.HistoryEntry) error {
	query := `
		INSERT INTO download_history (
			job_id, url, title, format, final_state, bytes_downloaded,
			duration_seconds, output_path, error_kind, error_message, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.JobID, entry.URL, entry.Title, entry.Format, entry.FinalState,
		entry.BytesDownloaded, entry.DurationSeconds, entry.OutputPath,
		entry.ErrorKind, entry.ErrorMessage, entry.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	entry.ID = id
	return nil
}

// List returns history entries, newest first
func (r *SQLiteRepository) List(ctx context.Context, limit, offset int) ([]*models.HistoryEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, job_id, url, title, format, final_state, bytes_downloaded,
		       duration_seconds, output_path, error_kind, error_message, completed_at
		FROM download_history
		ORDER BY completed_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetByJobID returns the history entry for one job
func (r *SQLiteRepository) GetByJobID(ctx context.Context, jobID string) (*models.HistoryEntry, error) {
	query := `
		SELECT id, job_id, url, title, format, final_state, bytes_downloaded,
		       duration_seconds, output_path, error_kind, error_message, completed_at
		FROM download_history
		WHERE job_id = ?
	`

	row := r.db.QueryRowContext(ctx, query, jobID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*models.HistoryEntry, error) {
	var entry models.HistoryEntry
	err := s.Scan(
		&entry.ID, &entry.JobID, &entry.URL, &entry.Title, &entry.Format,
		&entry.FinalState, &entry.BytesDownloaded, &entry.DurationSeconds,
		&entry.OutputPath, &entry.ErrorKind, &entry.ErrorMessage, &entry.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
