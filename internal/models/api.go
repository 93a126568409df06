package models

import (
	"encoding/json"
	"time"
)

// Action is the direction a toggle took on the server
type Action string

const (
	ActionSignIn  Action = "sign-in"
	ActionSignOut Action = "sign-out"
)

// APIResponse is the envelope every library API operation returns.
// Success=false is a normal outcome that carries a user-facing Message.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *T     `json:"data,omitempty"`
	Action  Action `json:"action,omitempty"`
}

// StudentStatus is the data payload of the status lookup
type StudentStatus struct {
	StudentID   string `json:"studentId"`
	IsInLibrary bool   `json:"isInLibrary"`
}

// ToggleResponse is the toggle call's envelope; Action reports the direction taken
type ToggleResponse = APIResponse[json.RawMessage]

// StatusResponse is the status lookup envelope
type StatusResponse = APIResponse[StudentStatus]

// ToggleRequest is the body of the toggle call. Reason and class code are
// omitted entirely on sign-out.
type ToggleRequest struct {
	StudentID string      `json:"studentId"`
	Reason    VisitReason `json:"reason,omitempty"`
	ClassCode string      `json:"classCode,omitempty"`
}

// HealthResponse accepts both health-check shapes the backend has used:
// {"success": true} and the legacy {"status": "ok"}.
type HealthResponse struct {
	APIResponse[json.RawMessage]
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Healthy reports whether either health-check shape signals a live backend
func (h *HealthResponse) Healthy() bool {
	return h.Success || h.Status == "ok"
}

// ToggleEvent is published to flow consumers after a successful toggle
type ToggleEvent struct {
	AttemptID string      `json:"attemptId"`
	KioskID   string      `json:"kioskId,omitempty"`
	StudentID string      `json:"studentId"`
	Action    Action      `json:"action,omitempty"`
	Reason    VisitReason `json:"reason,omitempty"`
	ClassCode string      `json:"classCode,omitempty"`
	Message   string      `json:"message,omitempty"`
	At        time.Time   `json:"at"`
}
