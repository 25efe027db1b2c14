package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anmolramgarhia9/tunegrab/internal/config"
	"github.com/anmolramgarhia9/tunegrab/internal/server/handlers"
	"github.com/anmolramgarhia9/tunegrab/internal/services"
)

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config    *config.Config
	container *services.Container
	router    *gin.Engine
	server    *http.Server
	logger    *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.Config, container *services.Container) *HTTPServer {
	// Set Gin mode based on configuration
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	logger := container.GetLogger()

	server := &HTTPServer{
		config:    cfg,
		container: container,
		router:    router,
		logger:    logger,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	// Create HTTP server
	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	return server
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Infof("Starting HTTP server on %s", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Router exposes the underlying gin engine
func (s *HTTPServer) Router() *gin.Engine {
	return s.router
}

// setupMiddleware configures middleware
func (s *HTTPServer) setupMiddleware() {
	// Logger middleware
	s.router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.TimeStamp.Format("2006-01-02 15:04:05"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	// Recovery middleware
	s.router.Use(gin.Recovery())

	// CORS middleware for the local UI shell
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Cache-Control, X-Requested-With")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Request ID middleware
	s.router.Use(func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	})
}

// setupRoutes configures all API routes
func (s *HTTPServer) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.healthCheckHandler)
	s.router.GET("/metrics", s.metricsHandler)

	// API v1 routes
	v1 := s.router.Group("/api/v1")

	// WebSocket endpoint for job progress and status events
	v1.GET("/ws", s.websocketHandler)

	// Download management
	downloadGroup := v1.Group("/downloads")
	{
		downloadHandler := handlers.NewDownloadHandler(s.container)
		downloadGroup.GET("", downloadHandler.ListJobs)
		downloadGroup.POST("", downloadHandler.SubmitJob)
		downloadGroup.GET("/settings", downloadHandler.GetSettings)
		downloadGroup.PUT("/settings", downloadHandler.UpdateSettings)
		downloadGroup.GET("/history", downloadHandler.GetHistory)
		downloadGroup.GET("/:id", downloadHandler.GetJob)
		downloadGroup.DELETE("/:id", downloadHandler.CancelJob)
		downloadGroup.POST("/:id/pause", downloadHandler.PauseJob)
		downloadGroup.POST("/:id/resume", downloadHandler.ResumeJob)
	}

	// System status
	systemGroup := v1.Group("/system")
	{
		systemHandler := handlers.NewSystemHandler(s.container)
		systemGroup.GET("/status", systemHandler.GetSystemStatus)
	}
}

// healthCheckHandler handles health check requests
func (s *HTTPServer) healthCheckHandler(c *gin.Context) {
	ctx := c.Request.Context()
	health := s.container.HealthCheck(ctx)

	status := http.StatusOK
	if health["status"] != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, health)
}

// metricsHandler handles metrics requests
func (s *HTTPServer) metricsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	metrics := s.container.GetMetrics(ctx)
	c.JSON(http.StatusOK, metrics)
}

// websocketHandler handles WebSocket upgrade requests
func (s *HTTPServer) websocketHandler(c *gin.Context) {
	wsHub := s.container.GetWebSocketHub()
	wsHub.HandleWebSocket(c.Writer, c.Request)
}
