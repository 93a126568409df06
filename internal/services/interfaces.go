package services

import (
	"context"

	"github.com/shc-library/kiosk-agent/internal/libraryapi"
	"github.com/shc-library/kiosk-agent/internal/models"
)

// LibraryAPI is the part of the library API client the sign-in flow uses
type LibraryAPI interface {
	ToggleStudentSignInOut(ctx context.Context, studentID string, reason models.VisitReason, classCode string) (*models.ToggleResponse, error)
	GetStudentStatus(ctx context.Context, studentID string) (*models.StatusResponse, error)
}

// ConnectionTester reports backend reachability; it never fails
type ConnectionTester interface {
	TestConnection(ctx context.Context) bool
}

// DiagnosticsAPI is everything the diagnostics runner calls
type DiagnosticsAPI interface {
	LibraryAPI
	CheckHealth(ctx context.Context) (*models.HealthResponse, error)
}

// ToggleListener is notified after every successful toggle
type ToggleListener func(ctx context.Context, event models.ToggleEvent)

// SignInFlowInterface defines the operations the kiosk front-end drives
type SignInFlowInterface interface {
	Open() models.FlowView
	View() models.FlowView
	SubmitStudentID(ctx context.Context, studentID string) (models.FlowView, error)
	SubmitClassCode(classCode string) (models.FlowView, error)
	SelectReason(ctx context.Context, reason models.VisitReason) (models.FlowView, error)
	Back() (models.FlowView, error)
	Acknowledge() (models.FlowView, error)
	Cancel() (models.FlowView, error)
}

// ConnectionMonitorInterface defines the connection banner operations
type ConnectionMonitorInterface interface {
	Status() models.ConnectionStatus
	CheckConnection(ctx context.Context) models.ConnectionStatus
}

// Ensure the client and services implement their interfaces
var _ LibraryAPI = (*libraryapi.Client)(nil)
var _ ConnectionTester = (*libraryapi.Client)(nil)
var _ DiagnosticsAPI = (*libraryapi.Client)(nil)
var _ SignInFlowInterface = (*SignInFlow)(nil)
var _ ConnectionMonitorInterface = (*ConnectionMonitor)(nil)
