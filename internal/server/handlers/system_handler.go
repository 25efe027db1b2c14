package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anmolramgarhia9/tunegrab/internal/services"
)

// SystemHandler handles system management endpoints
type SystemHandler struct {
	container *services.Container
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(container *services.Container) *SystemHandler {
	return &SystemHandler{
		container: container,
	}
}

// GetSystemStatus returns the engine environment: which transfer paths
// are available and what the pool is doing right now
func (h *SystemHandler) GetSystemStatus(c *gin.Context) {
	caps := h.container.GetCapabilities()
	manager := h.container.GetDownloadManager()
	cfg := h.container.GetConfig()

	c.JSON(http.StatusOK, gin.H{
		"environment": cfg.Environment,
		"capabilities": gin.H{
			"accelerator":             caps.Accelerator,
			"accelerator_connections": caps.Connections,
		},
		"downloads": gin.H{
			"running":           manager.RunningCount(),
			"concurrency_limit": manager.ConcurrencyLimit(),
			"directory":         cfg.Downloads.Directory,
		},
	})
}
