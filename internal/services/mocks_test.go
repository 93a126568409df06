package services_test

import (
	"context"
	"sync/atomic"

	"github.com/shc-library/kiosk-agent/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockLibraryAPI is a mock implementation of DiagnosticsAPI
type MockLibraryAPI struct {
	mock.Mock
}

func (m *MockLibraryAPI) ToggleStudentSignInOut(ctx context.Context, studentID string, reason models.VisitReason, classCode string) (*models.ToggleResponse, error) {
	args := m.Called(ctx, studentID, reason, classCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ToggleResponse), args.Error(1)
}

func (m *MockLibraryAPI) GetStudentStatus(ctx context.Context, studentID string) (*models.StatusResponse, error) {
	args := m.Called(ctx, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatusResponse), args.Error(1)
}

func (m *MockLibraryAPI) CheckHealth(ctx context.Context) (*models.HealthResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HealthResponse), args.Error(1)
}

// fakeTester returns a scripted connection result and counts calls
type fakeTester struct {
	connected atomic.Bool
	calls     atomic.Int32
	block     chan struct{}
}

func (f *fakeTester) TestConnection(ctx context.Context) bool {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return f.connected.Load()
}

func statusResponse(inLibrary bool) *models.StatusResponse {
	return &models.StatusResponse{
		Success: true,
		Data:    &models.StudentStatus{StudentID: "12345", IsInLibrary: inLibrary},
	}
}

func toggleResponse(success bool, action models.Action, message string) *models.ToggleResponse {
	return &models.ToggleResponse{Success: success, Action: action, Message: message}
}
