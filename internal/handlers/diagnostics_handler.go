package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shc-library/kiosk-agent/internal/services"
)

// DiagnosticsHandler backs the operator debug panel. It is only mounted in development.
type DiagnosticsHandler struct {
	service *services.DiagnosticsService
	info    gin.H
}

func NewDiagnosticsHandler(service *services.DiagnosticsService, info gin.H) *DiagnosticsHandler {
	return &DiagnosticsHandler{service: service, info: info}
}

// RegisterRoutes mounts the debug endpoints on rg
func (h *DiagnosticsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	debug := rg.Group("/debug")
	debug.GET("/info", h.Info)
	debug.POST("/health", h.HealthCheck)
	debug.POST("/toggle", h.TestToggle)
	debug.POST("/integration", h.RunIntegration)
}

func (h *DiagnosticsHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}

func (h *DiagnosticsHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.RunHealthCheck(c.Request.Context()))
}

func (h *DiagnosticsHandler) TestToggle(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.TestToggle(c.Request.Context()))
}

func (h *DiagnosticsHandler) RunIntegration(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.RunIntegration(c.Request.Context()))
}
