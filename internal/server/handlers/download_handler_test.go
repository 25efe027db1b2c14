package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anmolramgarhia9/tunegrab/internal/config"
	"github.com/anmolramgarhia9/tunegrab/internal/models"
	"github.com/anmolramgarhia9/tunegrab/internal/server/handlers"
	"github.com/anmolramgarhia9/tunegrab/internal/services"
	"github.com/anmolramgarhia9/tunegrab/internal/testutil"
)

func newTestRouter(t *testing.T) (*gin.Engine, *services.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	cfg := &config.Config{
		Environment: "test",
		Downloads: config.DownloadConfig{
			Directory:     t.TempDir(),
			MaxConcurrent: 2,
			MaxRetries:    1,
			UserAgent:     "TuneGrab-test/1.0",
		},
		Formats: config.FormatConfig{
			DefaultFormat:    "audio",
			AudioBitrateKbps: 320,
			VideoQuality:     "best",
		},
	}

	container := services.NewContainer(db.DB, cfg, testutil.SetupLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		container.GetDownloadManager().Shutdown(ctx)
	})

	router := gin.New()
	handler := handlers.NewDownloadHandler(container)
	router.POST("/downloads", handler.SubmitJob)
	router.GET("/downloads", handler.ListJobs)
	router.GET("/downloads/settings", handler.GetSettings)
	router.PUT("/downloads/settings", handler.UpdateSettings)
	router.GET("/downloads/history", handler.GetHistory)
	router.GET("/downloads/:id", handler.GetJob)
	router.DELETE("/downloads/:id", handler.CancelJob)
	router.POST("/downloads/:id/pause", handler.PauseJob)
	router.POST("/downloads/:id/resume", handler.ResumeJob)

	return router, container
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/downloads", map[string]string{"title": "no url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitUnusableURLYieldsFailedJob(t *testing.T) {
	router, _ := newTestRouter(t)

	// Well-formed JSON but a scheme the engine cannot serve: accepted,
	// and the handle comes back already failed
	w := doJSON(router, http.MethodPost, "/downloads", map[string]string{
		"url":    "ftp://example.com/track.mp3",
		"format": "audio",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var snap models.JobSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, models.JobStateFailed, snap.State)
	assert.Equal(t, models.ErrorKindFatalRequest, snap.ErrorKind)
}

func TestSubmitAppliesFormatDefaults(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/downloads", map[string]string{
		"url": "ftp://example.com/track",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var snap models.JobSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, models.FormatAudio, snap.Request.Format)
	assert.Equal(t, 320, snap.Request.BitrateKbps)
}

func TestGetJobNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/downloads/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/downloads/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelJobNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodDelete, "/downloads/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelFinishedJobConflicts(t *testing.T) {
	router, container := newTestRouter(t)

	entry := &models.HistoryEntry{
		JobID:       uuid.New().String(),
		URL:         "https://example.com/track",
		Format:      models.FormatAudio,
		FinalState:  models.JobStateSucceeded,
		CompletedAt: time.Now().UTC(),
	}
	require.NoError(t, container.GetHistoryRepository().Record(context.Background(), entry))

	w := doJSON(router, http.MethodDelete, "/downloads/"+entry.JobID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPauseJobNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/downloads/"+uuid.New().String()+"/pause", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodPost, "/downloads/not-a-uuid/pause", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResumeJobNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/downloads/"+uuid.New().String()+"/resume", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/downloads/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var settings struct {
		ConcurrencyLimit int `json:"concurrency_limit"`
		ConcurrencyMin   int `json:"concurrency_min"`
		ConcurrencyMax   int `json:"concurrency_max"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, 2, settings.ConcurrencyLimit)
	assert.Equal(t, 1, settings.ConcurrencyMin)
	assert.Equal(t, 16, settings.ConcurrencyMax)

	// Out-of-range values are clamped, not rejected
	w = doJSON(router, http.MethodPut, "/downloads/settings", map[string]int{"concurrency_limit": 99})
	require.Equal(t, http.StatusOK, w.Code)

	var updated struct {
		ConcurrencyLimit int `json:"concurrency_limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, 16, updated.ConcurrencyLimit)
}

func TestHistoryEndpoint(t *testing.T) {
	router, container := newTestRouter(t)

	for i := 0; i < 3; i++ {
		entry := &models.HistoryEntry{
			JobID:       uuid.New().String(),
			URL:         "https://example.com/track",
			Format:      models.FormatAudio,
			FinalState:  models.JobStateSucceeded,
			CompletedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, container.GetHistoryRepository().Record(context.Background(), entry))
	}

	w := doJSON(router, http.MethodGet, "/downloads/history?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		History []models.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.History, 2)
}

func TestListJobsShape(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/downloads", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Jobs             []models.JobSnapshot `json:"jobs"`
		Running          int                  `json:"running"`
		ConcurrencyLimit int                  `json:"concurrency_limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Jobs)
	assert.Equal(t, 2, resp.ConcurrencyLimit)
}
