package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shc-library/kiosk-agent/internal/models"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// ActivitySource lists recent sign-in/out events
type ActivitySource interface {
	Recent(limit int) []models.ToggleEvent
}

// ActivityHandler serves the recent activity feed shown on the idle screen
type ActivityHandler struct {
	source ActivitySource
}

func NewActivityHandler(source ActivitySource) *ActivityHandler {
	return &ActivityHandler{source: source}
}

func (h *ActivityHandler) GetRecent(c *gin.Context) {
	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxActivityLimit {
			respondError(c, http.StatusBadRequest, "limit must be between 1 and 100", err)
			return
		}
		limit = n
	}

	events := h.source.Recent(limit)
	for i := range events {
		events[i].StudentID = maskStudentID(events[i].StudentID)
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// maskStudentID keeps the last two characters, the way receipts show card numbers
func maskStudentID(id string) string {
	runes := []rune(id)
	if len(runes) <= 2 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-2:])
}
