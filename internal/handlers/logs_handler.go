package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/shc-library/kiosk-agent/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogsHandler struct {
	out io.WriteCloser
	mu  sync.Mutex
}

type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level" binding:"omitempty,oneof=debug info warn error"`
	Message   string                 `json:"message" binding:"required,max=2000"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

type LogBatchRequest struct {
	Logs []LogEntry `json:"logs" binding:"required,max=100,dive"`
}

// NewLogsHandler writes kiosk UI logs to a rotated kiosk-ui.log in logDir
func NewLogsHandler(logDir string) *LogsHandler {
	return NewLogsHandlerWithWriter(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "kiosk-ui.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
}

// NewLogsHandlerWithWriter writes kiosk UI logs to out
func NewLogsHandlerWithWriter(out io.WriteCloser) *LogsHandler {
	return &LogsHandler{out: out}
}

func (h *LogsHandler) ReceiveFrontendLogs(c *gin.Context) {
	var req LogBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, "Invalid request body", ParseValidationErrors(err), err)
		return
	}

	if len(req.Logs) == 0 {
		respondError(c, http.StatusBadRequest, "No logs provided", nil)
		return
	}

	if err := h.writeLogs(req.Logs); err != nil {
		logger.Error("Failed to write kiosk UI logs", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to write logs", err)
		return
	}

	logger.Debug("Received kiosk UI logs", zap.Int("count", len(req.Logs)))
	c.JSON(http.StatusOK, gin.H{"success": true, "received": len(req.Logs)})
}

// Close releases the log file
func (h *LogsHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out.Close()
}

func (h *LogsHandler) writeLogs(logs []LogEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// One JSON line per entry, shaped like the agent's own log lines
	encoder := json.NewEncoder(h.out)
	for _, entry := range logs {
		level := entry.Level
		if level == "" {
			level = "info"
		}
		logLine := map[string]interface{}{
			"ts":      entry.Timestamp,
			"level":   level,
			"msg":     entry.Message,
			"service": "kiosk-ui",
		}
		for k, v := range entry.Context {
			if _, reserved := logLine[k]; !reserved {
				logLine[k] = v
			}
		}

		if err := encoder.Encode(logLine); err != nil {
			return fmt.Errorf("failed to encode log entry: %w", err)
		}
	}

	return nil
}
