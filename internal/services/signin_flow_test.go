package services_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shc-library/kiosk-agent/internal/libraryapi"
	"github.com/shc-library/kiosk-agent/internal/models"
	"github.com/shc-library/kiosk-agent/internal/services"
	apperrors "github.com/shc-library/kiosk-agent/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func transportFailure() error {
	return &libraryapi.RequestError{
		Kind:    libraryapi.KindTransport,
		Message: "dial tcp 10.0.0.5:3000: connect: connection refused",
		Err:     errors.New("connection refused"),
	}
}

// openAtReason drives a fresh flow to the reason step
func openAtReason(t *testing.T, api *MockLibraryAPI, flow *services.SignInFlow) {
	t.Helper()
	api.On("GetStudentStatus", mock.Anything, "12345").Return(statusResponse(false), nil).Once()

	flow.Open()
	_, err := flow.SubmitStudentID(context.Background(), "12345")
	require.NoError(t, err)
	view, err := flow.SubmitClassCode("12ENG")
	require.NoError(t, err)
	require.Equal(t, models.StepSelectingReason, view.Step)
}

func TestSignInFlow_Open(t *testing.T) {
	flow := services.NewSignInFlow(new(MockLibraryAPI), "front-desk")

	assert.False(t, flow.View().Open)

	view := flow.Open()
	assert.True(t, view.Open)
	assert.Equal(t, models.StepCollectingID, view.Step)
	assert.NotEmpty(t, view.AttemptID)
	assert.Empty(t, view.StudentID)
	assert.Nil(t, view.Dialog)

	// Re-opening keeps the running attempt
	assert.Equal(t, view.AttemptID, flow.Open().AttemptID)
}

func TestSignInFlow_SubmitStudentID_EmptyRejectedBeforeNetwork(t *testing.T) {
	for _, id := range []string{"", "   ", "\t\n"} {
		api := new(MockLibraryAPI)
		flow := services.NewSignInFlow(api, "front-desk")
		flow.Open()

		view, err := flow.SubmitStudentID(context.Background(), id)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
		assert.Equal(t, models.StepCollectingID, view.Step)
		assert.False(t, view.Busy)

		api.AssertNotCalled(t, "GetStudentStatus", mock.Anything, mock.Anything)
		api.AssertNotCalled(t, "ToggleStudentSignInOut", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestSignInFlow_SubmitStudentID_TrimsID(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	flow.Open()

	api.On("GetStudentStatus", mock.Anything, "12345").Return(statusResponse(false), nil).Once()

	view, err := flow.SubmitStudentID(context.Background(), "  12345 ")
	require.NoError(t, err)
	assert.Equal(t, "12345", view.StudentID)
	api.AssertExpectations(t)
}

func TestSignInFlow_InLibrary_SignsOutImmediately(t *testing.T) {
	api := new(MockLibraryAPI)
	var events []models.ToggleEvent
	flow := services.NewSignInFlow(api, "front-desk", func(_ context.Context, e models.ToggleEvent) {
		events = append(events, e)
	})
	flow.Open()

	api.On("GetStudentStatus", mock.Anything, "12345").Return(statusResponse(true), nil).Once()
	api.On("ToggleStudentSignInOut", mock.Anything, "12345", models.VisitReason(""), "").
		Return(toggleResponse(true, models.ActionSignOut, "Signed out"), nil).Once()

	view, err := flow.SubmitStudentID(context.Background(), "12345")
	require.NoError(t, err)

	require.NotNil(t, view.Dialog)
	assert.Equal(t, models.DialogSuccess, view.Dialog.Kind)
	assert.Equal(t, services.SuccessTitle, view.Dialog.Title)
	assert.Equal(t, models.ActionSignOut, view.Dialog.Action)
	assert.Equal(t, "Signed out", view.Dialog.Message)

	// Fields are reset but the confirmation keeps the flow open
	assert.True(t, view.Open)
	assert.Equal(t, models.StepCollectingID, view.Step)
	assert.Empty(t, view.StudentID)

	require.Len(t, events, 1)
	assert.Equal(t, "12345", events[0].StudentID)
	assert.Equal(t, "front-desk", events[0].KioskID)
	assert.Equal(t, models.ActionSignOut, events[0].Action)
	assert.Equal(t, view.AttemptID, events[0].AttemptID)

	api.AssertNumberOfCalls(t, "ToggleStudentSignInOut", 1)
	api.AssertExpectations(t)
}

func TestSignInFlow_InLibrary_IgnoresStaleClassCode(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	flow.Open()

	// First lookup says not in library, so a class code gets entered
	api.On("GetStudentStatus", mock.Anything, "12345").Return(statusResponse(false), nil).Once()
	_, err := flow.SubmitStudentID(context.Background(), "12345")
	require.NoError(t, err)
	_, err = flow.SubmitClassCode("12ENG")
	require.NoError(t, err)
	_, err = flow.Back()
	require.NoError(t, err)
	view, err := flow.Back()
	require.NoError(t, err)
	require.Equal(t, models.StepCollectingID, view.Step)
	require.Equal(t, "12ENG", view.ClassCode)

	// Second lookup says in library: the stored class code must not be sent
	api.On("GetStudentStatus", mock.Anything, "12345").Return(statusResponse(true), nil).Once()
	api.On("ToggleStudentSignInOut", mock.Anything, "12345", models.VisitReason(""), "").
		Return(toggleResponse(true, models.ActionSignOut, ""), nil).Once()

	_, err = flow.SubmitStudentID(context.Background(), "12345")
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestSignInFlow_NotInLibrary_GoesToClassCode(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	flow.Open()

	api.On("GetStudentStatus", mock.Anything, "12345").Return(statusResponse(false), nil).Once()

	view, err := flow.SubmitStudentID(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, models.StepCollectingClassCode, view.Step)
	assert.Equal(t, "12345", view.StudentID)
	assert.Nil(t, view.Dialog)
	assert.False(t, view.Busy)

	view, err = flow.SubmitClassCode("12ENG")
	require.NoError(t, err)
	assert.Equal(t, models.StepSelectingReason, view.Step)
	assert.Equal(t, models.VisitReasons, view.Reasons)

	api.AssertNotCalled(t, "ToggleStudentSignInOut", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignInFlow_StatusWithoutData_GoesToClassCode(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	flow.Open()

	api.On("GetStudentStatus", mock.Anything, "12345").
		Return(&models.StatusResponse{Success: false, Message: "Student not found"}, nil).Once()

	view, err := flow.SubmitStudentID(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, models.StepCollectingClassCode, view.Step)
	api.AssertNotCalled(t, "ToggleStudentSignInOut", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignInFlow_StatusLookupFails_FailsOpen(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	flow.Open()

	api.On("GetStudentStatus", mock.Anything, "12345").Return(nil, transportFailure()).Once()
	api.On("ToggleStudentSignInOut", mock.Anything, "12345", models.VisitReason(""), "").
		Return(toggleResponse(true, models.ActionSignIn, "Signed in"), nil).Once()

	view, err := flow.SubmitStudentID(context.Background(), "12345")
	require.NoError(t, err)
	require.NotNil(t, view.Dialog)
	assert.Equal(t, models.DialogSuccess, view.Dialog.Kind)

	api.AssertNumberOfCalls(t, "ToggleStudentSignInOut", 1)
	api.AssertExpectations(t)
}

func TestSignInFlow_SubmitClassCode_Empty(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	flow.Open()
	api.On("GetStudentStatus", mock.Anything, "12345").Return(statusResponse(false), nil).Once()
	_, err := flow.SubmitStudentID(context.Background(), "12345")
	require.NoError(t, err)

	view, err := flow.SubmitClassCode("  ")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, models.StepCollectingClassCode, view.Step)
}

func TestSignInFlow_Back(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	openAtReason(t, api, flow)

	view, err := flow.Back()
	require.NoError(t, err)
	assert.Equal(t, models.StepCollectingClassCode, view.Step)
	assert.Equal(t, "12ENG", view.ClassCode)
	assert.Nil(t, view.Reasons)

	view, err = flow.Back()
	require.NoError(t, err)
	assert.Equal(t, models.StepCollectingID, view.Step)
	assert.Equal(t, "12345", view.StudentID)

	_, err = flow.Back()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestSignInFlow_SelectReason_Invalid(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	openAtReason(t, api, flow)

	view, err := flow.SelectReason(context.Background(), "napping")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, models.StepSelectingReason, view.Step)
	api.AssertNotCalled(t, "ToggleStudentSignInOut", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignInFlow_WrongStep(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")

	_, err := flow.SubmitStudentID(context.Background(), "12345")
	assert.ErrorIs(t, err, services.ErrFlowClosed)

	flow.Open()
	_, err = flow.SubmitClassCode("12ENG")
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	_, err = flow.SelectReason(context.Background(), models.ReasonBooks)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	api.AssertExpectations(t)
}

func TestSignInFlow_EndToEnd_SignIn(t *testing.T) {
	api := new(MockLibraryAPI)
	var mu sync.Mutex
	var events []models.ToggleEvent
	flow := services.NewSignInFlow(api, "front-desk", func(_ context.Context, e models.ToggleEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	openAtReason(t, api, flow)

	api.On("ToggleStudentSignInOut", mock.Anything, "12345", models.ReasonBooks, "12ENG").
		Return(toggleResponse(true, models.ActionSignIn, "Welcome to the library"), nil).Once()

	view, err := flow.SelectReason(context.Background(), models.ReasonBooks)
	require.NoError(t, err)

	require.NotNil(t, view.Dialog)
	assert.Equal(t, models.DialogSuccess, view.Dialog.Kind)
	assert.Equal(t, models.ActionSignIn, view.Dialog.Action)
	assert.True(t, view.Open)

	// Confirmation stays until acknowledged
	_, err = flow.SubmitStudentID(context.Background(), "67890")
	assert.ErrorIs(t, err, services.ErrDialogPending)
	assert.True(t, flow.View().Open)

	view, err = flow.Acknowledge()
	require.NoError(t, err)
	assert.False(t, view.Open)
	assert.Equal(t, models.StepCollectingID, view.Step)
	assert.Empty(t, view.StudentID)
	assert.Empty(t, view.ClassCode)
	assert.Nil(t, view.Dialog)

	require.Len(t, events, 1)
	assert.Equal(t, models.ReasonBooks, events[0].Reason)
	assert.Equal(t, "12ENG", events[0].ClassCode)
	assert.False(t, events[0].At.IsZero())

	api.AssertExpectations(t)
}

func TestSignInFlow_EndToEnd_Rejected(t *testing.T) {
	api := new(MockLibraryAPI)
	called := false
	flow := services.NewSignInFlow(api, "front-desk", func(context.Context, models.ToggleEvent) { called = true })
	openAtReason(t, api, flow)

	api.On("ToggleStudentSignInOut", mock.Anything, "12345", models.ReasonBooks, "12ENG").
		Return(toggleResponse(false, "", "Invalid class code"), nil).Once()

	view, err := flow.SelectReason(context.Background(), models.ReasonBooks)
	require.NoError(t, err)

	require.NotNil(t, view.Dialog)
	assert.Equal(t, models.DialogRejection, view.Dialog.Kind)
	assert.Equal(t, services.RejectionTitle, view.Dialog.Title)
	assert.Equal(t, "Invalid class code", view.Dialog.Message)
	assert.Equal(t, models.StepSelectingReason, view.Step)
	assert.Equal(t, "12345", view.StudentID)
	assert.Equal(t, "12ENG", view.ClassCode)
	assert.False(t, called)

	// Dismissing the rejection keeps the state so the student can retry
	view, err = flow.Acknowledge()
	require.NoError(t, err)
	assert.True(t, view.Open)
	assert.Equal(t, models.StepSelectingReason, view.Step)
	assert.Nil(t, view.Dialog)

	api.On("ToggleStudentSignInOut", mock.Anything, "12345", models.ReasonStudy, "12ENG").
		Return(toggleResponse(true, models.ActionSignIn, ""), nil).Once()

	view, err = flow.SelectReason(context.Background(), models.ReasonStudy)
	require.NoError(t, err)
	assert.Equal(t, models.DialogSuccess, view.Dialog.Kind)
	assert.True(t, called)
	api.AssertExpectations(t)
}

func TestSignInFlow_RejectedWithoutMessage(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	flow.Open()

	api.On("GetStudentStatus", mock.Anything, "12345").Return(statusResponse(true), nil).Once()
	api.On("ToggleStudentSignInOut", mock.Anything, "12345", models.VisitReason(""), "").
		Return(toggleResponse(false, "", ""), nil).Once()

	view, err := flow.SubmitStudentID(context.Background(), "12345")
	require.NoError(t, err)
	require.NotNil(t, view.Dialog)
	assert.Equal(t, services.RejectionFallback, view.Dialog.Message)
	assert.Equal(t, models.StepCollectingID, view.Step)
	assert.Equal(t, "12345", view.StudentID)
}

func TestSignInFlow_ConnectionErrorPreservesState(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	openAtReason(t, api, flow)

	api.On("ToggleStudentSignInOut", mock.Anything, "12345", models.ReasonHealth, "12ENG").
		Return(nil, transportFailure()).Once()

	view, err := flow.SelectReason(context.Background(), models.ReasonHealth)
	require.NoError(t, err)
	require.NotNil(t, view.Dialog)
	assert.Equal(t, models.DialogConnectionError, view.Dialog.Kind)
	assert.Equal(t, services.ConnectionErrorTitle, view.Dialog.Title)
	assert.Contains(t, view.Dialog.Message, "connection refused")
	assert.Equal(t, models.StepSelectingReason, view.Step)
	assert.Equal(t, "12ENG", view.ClassCode)
}

func TestSignInFlow_ToggleTimeoutThenRetry(t *testing.T) {
	var mu sync.Mutex
	slow := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/student/status/12345":
			_, _ = w.Write([]byte(`{"success":true,"data":{"studentId":"12345","isInLibrary":false}}`))
		case "/api/student/toggle":
			mu.Lock()
			wait := slow
			mu.Unlock()
			if wait {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"action":"sign-in","message":"Signed in"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := libraryapi.NewClient(srv.URL, nil, 50*time.Millisecond)
	require.NoError(t, err)

	flow := services.NewSignInFlow(client, "front-desk")
	flow.Open()
	_, err = flow.SubmitStudentID(context.Background(), "12345")
	require.NoError(t, err)
	_, err = flow.SubmitClassCode("12ENG")
	require.NoError(t, err)

	view, err := flow.SelectReason(context.Background(), models.ReasonBooks)
	require.NoError(t, err)
	require.NotNil(t, view.Dialog)
	assert.Equal(t, models.DialogConnectionError, view.Dialog.Kind)
	assert.Equal(t, libraryapi.TimeoutMessage, view.Dialog.Message)
	assert.Equal(t, models.StepSelectingReason, view.Step)
	assert.Equal(t, "12345", view.StudentID)
	assert.Equal(t, "12ENG", view.ClassCode)
	assert.False(t, view.Busy)

	mu.Lock()
	slow = false
	mu.Unlock()

	_, err = flow.Acknowledge()
	require.NoError(t, err)
	view, err = flow.SelectReason(context.Background(), models.ReasonBooks)
	require.NoError(t, err)
	assert.Equal(t, models.DialogSuccess, view.Dialog.Kind)
	assert.Equal(t, models.ActionSignIn, view.Dialog.Action)
}

func TestSignInFlow_Cancel(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	openAtReason(t, api, flow)

	view, err := flow.Cancel()
	require.NoError(t, err)
	assert.False(t, view.Open)
	assert.Equal(t, models.StepCollectingID, view.Step)
	assert.Empty(t, view.StudentID)
	assert.Empty(t, view.ClassCode)
	assert.Empty(t, view.AttemptID)

	api.AssertNotCalled(t, "ToggleStudentSignInOut", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// Cancelling a closed flow is harmless
	_, err = flow.Cancel()
	assert.NoError(t, err)
}

func TestSignInFlow_BusyRejectsConcurrentActions(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	flow.Open()

	release := make(chan struct{})
	entered := make(chan struct{})
	api.On("GetStudentStatus", mock.Anything, "12345").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(statusResponse(false), nil).Once()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = flow.SubmitStudentID(context.Background(), "12345")
	}()

	<-entered
	assert.True(t, flow.View().Busy)

	_, err := flow.SubmitStudentID(context.Background(), "12345")
	assert.ErrorIs(t, err, services.ErrFlowBusy)
	_, err = flow.Cancel()
	assert.ErrorIs(t, err, services.ErrFlowBusy)

	close(release)
	<-done

	view := flow.View()
	assert.False(t, view.Busy)
	assert.Equal(t, models.StepCollectingClassCode, view.Step)
	api.AssertNumberOfCalls(t, "GetStudentStatus", 1)
}

func TestSignInFlow_CallerCancellationDoesNotAbortCall(t *testing.T) {
	api := new(MockLibraryAPI)
	flow := services.NewSignInFlow(api, "front-desk")
	flow.Open()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api.On("GetStudentStatus", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), "12345").
		Return(statusResponse(false), nil).Once()

	view, err := flow.SubmitStudentID(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, models.StepCollectingClassCode, view.Step)
	api.AssertExpectations(t)
}

func TestSignInFlow_AcknowledgeWithoutDialog(t *testing.T) {
	flow := services.NewSignInFlow(new(MockLibraryAPI), "front-desk")

	_, err := flow.Acknowledge()
	assert.ErrorIs(t, err, services.ErrFlowClosed)

	flow.Open()
	view, err := flow.Acknowledge()
	require.NoError(t, err)
	assert.True(t, view.Open)
	assert.Equal(t, models.StepCollectingID, view.Step)
}
