package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shc-library/kiosk-agent/internal/models"
	"github.com/shc-library/kiosk-agent/internal/services"
)

// ConnectionHandler serves the connection banner
type ConnectionHandler struct {
	monitor services.ConnectionMonitorInterface
}

func NewConnectionHandler(monitor services.ConnectionMonitorInterface) *ConnectionHandler {
	return &ConnectionHandler{monitor: monitor}
}

func (h *ConnectionHandler) GetStatus(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	c.JSON(http.StatusOK, models.NewConnectionView(h.monitor.Status()))
}

// Check is the banner's tap-to-retry
func (h *ConnectionHandler) Check(c *gin.Context) {
	status := h.monitor.CheckConnection(c.Request.Context())
	c.JSON(http.StatusOK, models.NewConnectionView(status))
}
