package models

import (
	"time"

	"github.com/google/uuid"
)

// JobState represents the lifecycle state of a download job
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateRetrying  JobState = "retrying"
	JobStatePaused    JobState = "paused"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// IsTerminal reports whether no further transitions can occur from the state
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// Format identifies the requested output container
type Format string

const (
	// FormatAudio is an audio-only download (single stream)
	FormatAudio Format = "audio"
	// FormatVideo is a merged audio+video container
	FormatVideo Format = "video"
)

// IsValid reports whether the format is one the engine understands
func (f Format) IsValid() bool {
	return f == FormatAudio || f == FormatVideo
}

// NeedsMux reports whether the format requires merging separate
// audio and video streams
func (f Format) NeedsMux() bool {
	return f == FormatVideo
}

// QualityBest selects the highest available quality tier
const QualityBest = "best"

// DownloadRequest describes one media item to fetch. It is immutable
// once submitted.
type DownloadRequest struct {
	URL            string `json:"url" binding:"required,url"`
	Title          string `json:"title,omitempty"`
	Format         Format `json:"format,omitempty"`
	Quality        string `json:"quality,omitempty"`
	BitrateKbps    int    `json:"bitrate_kbps,omitempty"`
	DestinationDir string `json:"destination_dir,omitempty"`
}

// JobSnapshot is a read-only view of a job published to observers and
// the presentation layer. All fields are copies; mutating a snapshot
// has no effect on the job.
type JobSnapshot struct {
	ID              uuid.UUID       `json:"id"`
	Request         DownloadRequest `json:"request"`
	State           JobState        `json:"state"`
	Attempt         int             `json:"attempt"`
	MaxAttempts     int             `json:"max_attempts"`
	BytesDownloaded int64           `json:"bytes_downloaded"`
	TotalBytes      int64           `json:"total_bytes,omitempty"`
	Percent         int             `json:"percent"`
	SpeedKBPS       float64         `json:"speed_kbps,omitempty"`
	ETASeconds      int             `json:"eta_seconds,omitempty"`
	StatusText      string          `json:"status_text,omitempty"`
	OutputPath      string          `json:"output_path,omitempty"`
	ErrorKind       ErrorKind       `json:"error_kind,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// ProgressUpdate is a single throttled progress notification for a job
type ProgressUpdate struct {
	JobID           uuid.UUID `json:"job_id"`
	BytesDownloaded int64     `json:"bytes_downloaded"`
	TotalBytes      int64     `json:"total_bytes,omitempty"`
	Percent         int       `json:"percent"`
	SpeedKBPS       float64   `json:"speed_kbps,omitempty"`
	ETASeconds      int       `json:"eta_seconds,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
