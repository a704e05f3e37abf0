package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/denix0/applaunchd/internal/api/middleware"
	"github.com/denix0/applaunchd/internal/domain/catalog"
	"github.com/denix0/applaunchd/internal/domain/launcher"
	"github.com/denix0/applaunchd/internal/infrastructure/logging"
)

// Handlers holds the control-plane HTTP handlers.
type Handlers struct {
	launcher *launcher.Launcher
	catalog  *catalog.Catalog
	log      *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(l *launcher.Launcher, cat *catalog.Catalog, log *logging.Logger) *Handlers {
	return &Handlers{launcher: l, catalog: cat, log: log}
}

// Root returns service identification
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "applaunchd",
		"status":  "running",
	})
}

// Health returns liveness information
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"applications": h.catalog.Len(),
	})
}

// ListApplications returns the catalog entries in catalog order,
// restricted to graphical applications when ?graphical=true
func (h *Handlers) ListApplications(c *gin.Context) {
	graphicalOnly := c.Query("graphical") == "true"

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"applications": h.catalog.List(graphicalOnly),
	})
}

// StartApplication requests the application in the path to start
func (h *Handlers) StartApplication(c *gin.Context) {
	id := c.Param("id")

	err := h.launcher.Start(c.Request.Context(), id)
	if err != nil {
		h.log.Warn("Start request failed",
			zap.String("app_id", id),
			zap.String("request_id", middleware.GetRequestID(c.Request.Context())),
			zap.Error(err),
		)
	}
	switch {
	case err == nil:
		status, _ := h.launcher.Status(id)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"app_id":  id,
			"status":  status.String(),
		})
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
	}
}

// GetApplicationStatus returns the lifecycle status of one application
func (h *Handlers) GetApplicationStatus(c *gin.Context) {
	id := c.Param("id")

	status, err := h.launcher.Status(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"app_id":  id,
		"status":  status.String(),
	})
}
