package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anmolramgarhia9/tunegrab/internal/downloads"
	"github.com/anmolramgarhia9/tunegrab/internal/models"
	"github.com/anmolramgarhia9/tunegrab/internal/services"
)

// DownloadHandler handles download-related endpoints
type DownloadHandler struct {
	container *services.Container
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(container *services.Container) *DownloadHandler {
	return &DownloadHandler{
		container: container,
	}
}

// SubmitJob enqueues a new download. Submission always yields a job
// handle; a request the engine rejects comes back as an
// immediately-failed job rather than an HTTP error, so clients track
// every outcome through the same snapshot shape.
func (h *DownloadHandler) SubmitJob(c *gin.Context) {
	var request models.DownloadRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	if request.Format == "" {
		request.Format = models.Format(h.container.GetConfig().Formats.DefaultFormat)
	}
	if request.BitrateKbps == 0 {
		request.BitrateKbps = h.container.GetConfig().Formats.AudioBitrateKbps
	}

	job := h.container.GetDownloadManager().Submit(request)
	c.JSON(http.StatusAccepted, job.Snapshot())
}

// ListJobs returns a snapshot of every job the manager is tracking
func (h *DownloadHandler) ListJobs(c *gin.Context) {
	manager := h.container.GetDownloadManager()

	c.JSON(http.StatusOK, gin.H{
		"jobs":              manager.Jobs(),
		"running":           manager.RunningCount(),
		"concurrency_limit": manager.ConcurrencyLimit(),
	})
}

// GetJob returns details for a specific job
func (h *DownloadHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	job, ok := h.container.GetDownloadManager().Get(jobID)
	if !ok {
		// Terminal jobs leave the manager; fall back to history
		entry, err := h.container.GetHistoryRepository().GetByJobID(c.Request.Context(), jobID.String())
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusOK, entry)
		return
	}

	c.JSON(http.StatusOK, job.Snapshot())
}

// CancelJob requests cooperative cancellation of a job
func (h *DownloadHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	err = h.container.GetDownloadManager().Cancel(jobID)
	switch {
	case errors.Is(err, models.ErrJobNotFound):
		// A job the manager no longer tracks either never existed or
		// already reached a terminal state
		if _, histErr := h.container.GetHistoryRepository().GetByJobID(c.Request.Context(), jobID.String()); histErr == nil {
			c.JSON(http.StatusConflict, gin.H{"error": models.ErrJobAlreadyDone.Error()})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case err != nil:
		h.container.GetLogger().Errorf("Failed to cancel job %s: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel job"})
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
	}
}

// PauseJob interrupts a job while keeping its partial output. The job
// stays tracked until it is resumed or cancelled.
func (h *DownloadHandler) PauseJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	err = h.container.GetDownloadManager().Pause(jobID)
	switch {
	case errors.Is(err, models.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case err != nil:
		h.container.GetLogger().Errorf("Failed to pause job %s: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pause job"})
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "pausing"})
	}
}

// ResumeJob re-enters a paused job at the tail of the wait queue
func (h *DownloadHandler) ResumeJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	err = h.container.GetDownloadManager().Resume(jobID)
	switch {
	case errors.Is(err, models.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, models.ErrJobNotPaused):
		c.JSON(http.StatusConflict, gin.H{"error": models.ErrJobNotPaused.Error()})
	case err != nil:
		h.container.GetLogger().Errorf("Failed to resume job %s: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resume job"})
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	}
}

// GetSettings returns the current engine settings
func (h *DownloadHandler) GetSettings(c *gin.Context) {
	manager := h.container.GetDownloadManager()
	cfg := h.container.GetConfig()

	c.JSON(http.StatusOK, gin.H{
		"concurrency_limit": manager.ConcurrencyLimit(),
		"concurrency_min":   downloads.MinConcurrency,
		"concurrency_max":   downloads.MaxConcurrency,
		"max_retries":       cfg.Downloads.MaxRetries,
		"download_dir":      cfg.Downloads.Directory,
	})
}

// UpdateSettings adjusts the engine settings at runtime. Lowering the
// concurrency limit never interrupts running jobs; the pool shrinks as
// they finish.
func (h *DownloadHandler) UpdateSettings(c *gin.Context) {
	var request struct {
		ConcurrencyLimit int `json:"concurrency_limit" binding:"required"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	effective := h.container.GetDownloadManager().Configure(request.ConcurrencyLimit)
	c.JSON(http.StatusOK, gin.H{"concurrency_limit": effective})
}

// GetHistory returns terminal download outcomes, newest first
func (h *DownloadHandler) GetHistory(c *gin.Context) {
	limit := 50
	offset := 0

	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v >= 1 && v <= 100 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p >= 1 {
			offset = (p - 1) * limit
		}
	}

	entries, err := h.container.GetHistoryRepository().List(c.Request.Context(), limit, offset)
	if err != nil {
		h.container.GetLogger().Errorf("Failed to get download history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get download history",
			"details": err.Error(),
		})
		return
	}

	if entries == nil {
		entries = []*models.HistoryEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"history": entries,
		"pagination": gin.H{
			"current_page": (offset / limit) + 1,
			"per_page":     limit,
		},
	})
}
