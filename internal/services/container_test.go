package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

func TestHistoryEntryFromSnapshot(t *testing.T) {
	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	completed := started.Add(95 * time.Second)

	snapshot := models.JobSnapshot{
		ID: uuid.New(),
		Request: models.DownloadRequest{
			URL:    "https://example.com/track",
			Title:  "Artist - Track",
			Format: models.FormatAudio,
		},
		State:           models.JobStateSucceeded,
		BytesDownloaded: 5 << 20,
		OutputPath:      "/music/Artist - Track.mp3",
		StartedAt:       &started,
		CompletedAt:     &completed,
	}

	entry := historyEntryFromSnapshot(snapshot)

	assert.Equal(t, snapshot.ID.String(), entry.JobID)
	assert.Equal(t, "https://example.com/track", entry.URL)
	assert.Equal(t, models.JobStateSucceeded, entry.FinalState)
	assert.Equal(t, int64(5<<20), entry.BytesDownloaded)
	assert.Equal(t, 95, entry.DurationSeconds)
	assert.Equal(t, completed, entry.CompletedAt)
}

func TestHistoryEntryFromSnapshotWithoutTimestamps(t *testing.T) {
	// An immediately-failed job never started; it still gets a history
	// row with a completion time
	err := errors.New("invalid download URL")
	snapshot := models.JobSnapshot{
		ID:           uuid.New(),
		State:        models.JobStateFailed,
		ErrorKind:    models.ErrorKindFatalRequest,
		ErrorMessage: err.Error(),
	}

	entry := historyEntryFromSnapshot(snapshot)

	assert.Equal(t, models.JobStateFailed, entry.FinalState)
	assert.Equal(t, models.ErrorKindFatalRequest, entry.ErrorKind)
	assert.Zero(t, entry.DurationSeconds)
	assert.False(t, entry.CompletedAt.IsZero())
}
