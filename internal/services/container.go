package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anmolramgarhia9/tunegrab/internal/config"
	"github.com/anmolramgarhia9/tunegrab/internal/downloads"
	"github.com/anmolramgarhia9/tunegrab/internal/history"
	"github.com/anmolramgarhia9/tunegrab/internal/models"
	"github.com/anmolramgarhia9/tunegrab/internal/transfer"
)

// Container holds all the application services and manages their lifecycle
type Container struct {
	// Configuration
	config *config.Config
	logger *logrus.Logger

	// Infrastructure
	db *sql.DB

	// Repositories
	historyRepo history.Repository

	// Core services
	downloadManager *downloads.Manager
	capabilities    transfer.Capabilities

	// WebSocket hub for real-time updates
	wsHub *WebSocketHub

	// Lifecycle management
	startedAt time.Time
	wg        sync.WaitGroup
	mu        sync.RWMutex
}

// NewContainer creates a new service container
func NewContainer(db *sql.DB, cfg *config.Config, logger *logrus.Logger) *Container {
	container := &Container{
		config:    cfg,
		logger:    logger,
		db:        db,
		startedAt: time.Now(),
	}

	if cfg.Downloads.AcceleratorEnabled {
		container.capabilities = transfer.DetectCapabilities(cfg.Downloads.AcceleratorConns)
	}

	container.historyRepo = history.NewRepository(db)
	container.wsHub = NewWebSocketHub(logger)
	container.downloadManager = buildDownloadManager(cfg, container.capabilities, logger)

	// Everything a job emits flows through one sink: throttled progress
	// and state changes to the hub, terminal outcomes to history.
	container.downloadManager.SetEventSink(&jobEventSink{
		hub:     container.wsHub,
		history: container.historyRepo,
		logger:  logger,
	})

	return container
}

// buildDownloadManager assembles the transfer engines and the bounded
// worker pool from configuration.
func buildDownloadManager(cfg *config.Config, caps transfer.Capabilities, logger *logrus.Logger) *downloads.Manager {
	selector := transfer.NewSelector(cfg.Downloads.UserAgent, caps, cfg.Downloads.KeepPartial, logger)

	managerCfg := downloads.Config{
		ConcurrencyLimit: cfg.Downloads.MaxConcurrent,
		MaxRetries:       cfg.Downloads.MaxRetries,
		StallTimeout:     time.Duration(cfg.Downloads.StallTimeoutSeconds) * time.Second,
		DownloadDir:      cfg.Downloads.Directory,
	}

	return downloads.NewManager(managerCfg, selector, caps, logger)
}

// Start starts all background services
func (c *Container) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("Starting service container")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.wsHub.Start()
	}()

	c.logger.Info("Service container started successfully")
}

// Stop gracefully stops all services
func (c *Container) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("Stopping service container")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.downloadManager.Shutdown(ctx)

	c.wsHub.Stop()

	// Wait for all goroutines to finish
	c.wg.Wait()

	c.logger.Info("Service container stopped")
}

// GetDownloadManager returns the download manager
func (c *Container) GetDownloadManager() *downloads.Manager {
	return c.downloadManager
}

// GetHistoryRepository returns the download history repository
func (c *Container) GetHistoryRepository() history.Repository {
	return c.historyRepo
}

// GetCapabilities returns the probed transfer capabilities
func (c *Container) GetCapabilities() transfer.Capabilities {
	return c.capabilities
}

// GetWebSocketHub returns the WebSocket hub
func (c *Container) GetWebSocketHub() *WebSocketHub {
	return c.wsHub
}

// GetLogger returns the logger instance
func (c *Container) GetLogger() *logrus.Logger {
	return c.logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetDB returns the database connection
func (c *Container) GetDB() *sql.DB {
	return c.db
}

// HealthCheck performs a health check on all services
func (c *Container) HealthCheck(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"services":  map[string]interface{}{},
	}

	// Check database
	if err := c.db.PingContext(ctx); err != nil {
		health["services"].(map[string]interface{})["database"] = map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		}
		health["status"] = "degraded"
	} else {
		health["services"].(map[string]interface{})["database"] = map[string]interface{}{
			"status": "healthy",
		}
	}

	// Check download manager
	health["services"].(map[string]interface{})["download_manager"] = map[string]interface{}{
		"status":            "healthy",
		"running":           c.downloadManager.RunningCount(),
		"concurrency_limit": c.downloadManager.ConcurrencyLimit(),
	}

	health["services"].(map[string]interface{})["websocket_hub"] = map[string]interface{}{
		"status":  "healthy",
		"clients": c.wsHub.GetClientCount(),
	}

	return health
}

// GetMetrics returns application metrics
func (c *Container) GetMetrics(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"timestamp":         time.Now().UTC(),
		"uptime_seconds":    int(time.Since(c.startedAt).Seconds()),
		"running_downloads": c.downloadManager.RunningCount(),
		"concurrency_limit": c.downloadManager.ConcurrencyLimit(),
		"ws_clients":        c.wsHub.GetClientCount(),
	}
}

// jobEventSink bridges manager notifications to the WebSocket hub and,
// for terminal states, to the history repository.
type jobEventSink struct {
	hub     *WebSocketHub
	history history.Repository
	logger  *logrus.Logger
}

func (s *jobEventSink) OnJobProgress(update models.ProgressUpdate) {
	s.hub.BroadcastJobProgress(update)
}

func (s *jobEventSink) OnJobUpdate(snapshot models.JobSnapshot) {
	s.hub.BroadcastJobStatus(snapshot)

	if !snapshot.State.IsTerminal() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.history.Record(ctx, historyEntryFromSnapshot(snapshot)); err != nil {
		s.logger.WithError(err).WithField("job_id", snapshot.ID).
			Error("Failed to record download history")
	}
}

func historyEntryFromSnapshot(snapshot models.JobSnapshot) *models.HistoryEntry {
	entry := &models.HistoryEntry{
		JobID:           snapshot.ID.String(),
		URL:             snapshot.Request.URL,
		Title:           snapshot.Request.Title,
		Format:          snapshot.Request.Format,
		FinalState:      snapshot.State,
		BytesDownloaded: snapshot.BytesDownloaded,
		OutputPath:      snapshot.OutputPath,
		ErrorKind:       snapshot.ErrorKind,
		ErrorMessage:    snapshot.ErrorMessage,
		CompletedAt:     time.Now().UTC(),
	}

	if snapshot.CompletedAt != nil {
		entry.CompletedAt = *snapshot.CompletedAt
		if snapshot.StartedAt != nil {
			entry.DurationSeconds = int(snapshot.CompletedAt.Sub(*snapshot.StartedAt).Seconds())
		}
	}

	return entry
}
