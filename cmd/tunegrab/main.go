package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/anmolramgarhia9/tunegrab/internal/config"
	"github.com/anmolramgarhia9/tunegrab/internal/database"
	"github.com/anmolramgarhia9/tunegrab/internal/server"
	"github.com/anmolramgarhia9/tunegrab/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging
	logger := setupLogging(cfg.Log.Level)

	logger.Info("Starting TuneGrab engine...")

	// Initialize database
	db, err := database.Initialize(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize services
	serviceContainer := services.NewContainer(db.DB, cfg, logger)

	// Initialize HTTP server
	httpServer := server.NewHTTPServer(cfg, serviceContainer)

	// Start services
	logger.Info("Starting background services...")
	serviceContainer.Start()

	// Start HTTP server
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down TuneGrab engine...")

	// Graceful shutdown
	if err := httpServer.Shutdown(); err != nil {
		logger.Errorf("Error during HTTP server shutdown: %v", err)
	}

	serviceContainer.Stop()
	logger.Info("TuneGrab engine stopped")
}

func setupLogging(level string) *logrus.Logger {
	logger := logrus.StandardLogger()

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.Info("Logging initialized")
	return logger
}
