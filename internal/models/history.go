package models

import "time"

// HistoryEntry records a job that reached a terminal state. The live
// queue itself is never persisted; history is a log of outcomes.
type HistoryEntry struct {
	ID              int64     `json:"id" db:"id"`
	JobID           string    `json:"job_id" db:"job_id"`
	URL             string    `json:"url" db:"url"`
	Title           string    `json:"title,omitempty" db:"title"`
	Format          Format    `json:"format" db:"format"`
	FinalState      JobState  `json:"final_state" db:"final_state"`
	BytesDownloaded int64     `json:"bytes_downloaded" db:"bytes_downloaded"`
	DurationSeconds int       `json:"duration_seconds" db:"duration_seconds"`
	OutputPath      string    `json:"output_path,omitempty" db:"output_path"`
	ErrorKind       ErrorKind `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage    string    `json:"error_message,omitempty" db:"error_message"`
	CompletedAt     time.Time `json:"completed_at" db:"completed_at"`
}
