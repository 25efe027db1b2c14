package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anmolramgarhia9/tunegrab/internal/history"
	"github.com/anmolramgarhia9/tunegrab/internal/models"
	"github.com/anmolramgarhia9/tunegrab/internal/testutil"
)

func testEntry(state models.JobState) *models.HistoryEntry {
	return &models.HistoryEntry{
		JobID:           uuid.New().String(),
		URL:             "https://example.com/track",
		Title:           "Artist - Track",
		Format:          models.FormatAudio,
		FinalState:      state,
		BytesDownloaded: 4 << 20,
		DurationSeconds: 12,
		OutputPath:      "/music/Artist - Track.mp3",
		CompletedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func TestRecordAndGetByJobID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := history.NewRepository(db.DB)
	ctx := context.Background()

	entry := testEntry(models.JobStateSucceeded)
	require.NoError(t, repo.Record(ctx, entry))
	assert.NotZero(t, entry.ID)

	got, err := repo.GetByJobID(ctx, entry.JobID)
	require.NoError(t, err)
	assert.Equal(t, entry.URL, got.URL)
	assert.Equal(t, entry.Title, got.Title)
	assert.Equal(t, models.JobStateSucceeded, got.FinalState)
	assert.Equal(t, entry.BytesDownloaded, got.BytesDownloaded)
	assert.Equal(t, entry.OutputPath, got.OutputPath)
}

func TestRecordFailureKeepsErrorDetails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := history.NewRepository(db.DB)
	ctx := context.Background()

	entry := testEntry(models.JobStateFailed)
	entry.OutputPath = ""
	entry.ErrorKind = models.ErrorKindTransientNetwork
	entry.ErrorMessage = "timeout after 3 retries"
	require.NoError(t, repo.Record(ctx, entry))

	got, err := repo.GetByJobID(ctx, entry.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.ErrorKindTransientNetwork, got.ErrorKind)
	assert.Equal(t, "timeout after 3 retries", got.ErrorMessage)
}

func TestGetByJobIDNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := history.NewRepository(db.DB)

	_, err := repo.GetByJobID(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestListNewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := history.NewRepository(db.DB)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		entry := testEntry(models.JobStateSucceeded)
		entry.Title = string(rune('a' + i))
		entry.CompletedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Record(ctx, entry))
	}

	entries, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Title)
	assert.Equal(t, "b", entries[1].Title)
	assert.Equal(t, "a", entries[2].Title)
}

func TestListPagination(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := history.NewRepository(db.DB)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Record(ctx, testEntry(models.JobStateCancelled)))
	}

	page1, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page3, err := repo.List(ctx, 2, 4)
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	// Out-of-range limits fall back to the default
	all, err := repo.List(ctx, -1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
