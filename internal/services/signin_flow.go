package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shc-library/kiosk-agent/internal/libraryapi"
	"github.com/shc-library/kiosk-agent/internal/models"
	apperrors "github.com/shc-library/kiosk-agent/pkg/errors"
	"github.com/shc-library/kiosk-agent/pkg/logger"
	"github.com/shc-library/kiosk-agent/pkg/metrics"
	"go.uber.org/zap"
)

// Dialog titles and fallbacks shown by the kiosk
const (
	SuccessTitle         = "Status Updated Successfully"
	RejectionTitle       = "Sign-in Error"
	ConnectionErrorTitle = "Connection Error"
	RejectionFallback    = "Failed to sign in/out"
)

// Submission paths, used as metric labels
const (
	pathSignOut  = "sign_out"
	pathFailOpen = "fail_open"
	pathSignIn   = "sign_in"
)

var (
	// ErrFlowClosed is returned for actions on a flow that has not been opened
	ErrFlowClosed = apperrors.ConflictError("sign-in flow is not open")
	// ErrFlowBusy is returned while a library API call is in flight
	ErrFlowBusy = apperrors.ConflictError("a request is already in progress")
	// ErrDialogPending is returned until the shown message is acknowledged
	ErrDialogPending = apperrors.ConflictError("acknowledge the current message first")
)

// SignInFlow is the single state machine behind the sign-in/out modal.
// The server-reported presence decides whether the attempt becomes a sign-out
// (immediate toggle) or a sign-in (class code, then visit reason).
type SignInFlow struct {
	api       LibraryAPI
	kioskID   string
	listeners []ToggleListener
	now       func() time.Time
	newID     func() string

	mu        sync.Mutex
	open      bool
	attemptID string
	step      models.FlowStep
	studentID string
	classCode string
	busy      bool
	dialog    *models.Dialog
}

// NewSignInFlow creates a closed flow; listeners run after each successful toggle
func NewSignInFlow(api LibraryAPI, kioskID string, listeners ...ToggleListener) *SignInFlow {
	return &SignInFlow{
		api:       api,
		kioskID:   kioskID,
		listeners: listeners,
		now:       time.Now,
		newID:     uuid.NewString,
		step:      models.StepCollectingID,
	}
}

// Open starts a fresh attempt. Opening an already open flow returns it unchanged.
func (f *SignInFlow) Open() models.FlowView {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		f.resetLocked()
		f.open = true
		f.attemptID = f.newID()
		logger.Debug("Sign-in flow opened", zap.String("attempt_id", f.attemptID))
	}
	return f.viewLocked()
}

// View returns a snapshot of the flow
func (f *SignInFlow) View() models.FlowView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

// SubmitStudentID looks up the student's presence and either signs them out
// straight away or moves on to the class code step. A failed lookup does not
// block the student: the toggle is submitted without reason or class code.
func (f *SignInFlow) SubmitStudentID(ctx context.Context, studentID string) (models.FlowView, error) {
	id := strings.TrimSpace(studentID)

	f.mu.Lock()
	if err := f.guardLocked(models.StepCollectingID); err != nil {
		view := f.viewLocked()
		f.mu.Unlock()
		return view, err
	}
	if id == "" {
		view := f.viewLocked()
		f.mu.Unlock()
		return view, apperrors.InvalidInputError("studentId", "must not be empty")
	}
	f.studentID = id
	f.busy = true
	attemptID := f.attemptID
	f.mu.Unlock()

	// The front-end cannot abort a call once issued; only the client deadline can.
	ctx = context.WithoutCancel(ctx)

	status, err := f.api.GetStudentStatus(ctx, id)
	switch {
	case err != nil:
		metrics.StatusLookups.WithLabelValues("error").Inc()
		logger.Warn("Status lookup failed, submitting toggle directly",
			zap.String("attempt_id", attemptID),
			zap.String("kind", string(libraryapi.KindOf(err))),
			zap.Error(err))
		return f.submit(ctx, "", "", pathFailOpen)

	case status.Data != nil && status.Data.IsInLibrary:
		metrics.StatusLookups.WithLabelValues("in_library").Inc()
		return f.submit(ctx, "", "", pathSignOut)

	default:
		metrics.StatusLookups.WithLabelValues("not_in_library").Inc()
		f.mu.Lock()
		defer f.mu.Unlock()
		f.busy = false
		f.step = models.StepCollectingClassCode
		return f.viewLocked(), nil
	}
}

// SubmitClassCode records the class code and moves to reason selection
func (f *SignInFlow) SubmitClassCode(classCode string) (models.FlowView, error) {
	code := strings.TrimSpace(classCode)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guardLocked(models.StepCollectingClassCode); err != nil {
		return f.viewLocked(), err
	}
	if code == "" {
		return f.viewLocked(), apperrors.InvalidInputError("classCode", "must not be empty")
	}

	f.classCode = code
	f.step = models.StepSelectingReason
	return f.viewLocked(), nil
}

// SelectReason submits the sign-in with the chosen reason and the stored class code
func (f *SignInFlow) SelectReason(ctx context.Context, reason models.VisitReason) (models.FlowView, error) {
	f.mu.Lock()
	if err := f.guardLocked(models.StepSelectingReason); err != nil {
		view := f.viewLocked()
		f.mu.Unlock()
		return view, err
	}
	if !reason.Valid() {
		view := f.viewLocked()
		f.mu.Unlock()
		return view, apperrors.InvalidInputError("reason", fmt.Sprintf("unknown visit reason %q", reason))
	}
	f.busy = true
	classCode := f.classCode
	f.mu.Unlock()

	return f.submit(context.WithoutCancel(ctx), reason, classCode, pathSignIn)
}

// Back returns to the previous step, keeping what was entered
func (f *SignInFlow) Back() (models.FlowView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guardLocked(""); err != nil {
		return f.viewLocked(), err
	}

	switch f.step {
	case models.StepCollectingClassCode:
		f.step = models.StepCollectingID
	case models.StepSelectingReason:
		f.step = models.StepCollectingClassCode
	default:
		return f.viewLocked(), apperrors.ConflictError("already at the first step")
	}
	return f.viewLocked(), nil
}

// Acknowledge dismisses the current dialog. Dismissing a success
// confirmation closes the flow.
func (f *SignInFlow) Acknowledge() (models.FlowView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return f.viewLocked(), ErrFlowClosed
	}
	if f.dialog == nil {
		return f.viewLocked(), nil
	}

	if f.dialog.Kind == models.DialogSuccess {
		f.resetLocked()
		f.open = false
		f.attemptID = ""
		return f.viewLocked(), nil
	}

	f.dialog = nil
	return f.viewLocked(), nil
}

// Cancel closes the flow from any step without calling the library API
func (f *SignInFlow) Cancel() (models.FlowView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.busy {
		return f.viewLocked(), ErrFlowBusy
	}
	if f.open && (f.dialog == nil || f.dialog.Kind != models.DialogSuccess) {
		metrics.FlowCancellations.WithLabelValues(string(f.step)).Inc()
		logger.Debug("Sign-in flow cancelled",
			zap.String("attempt_id", f.attemptID),
			zap.String("step", string(f.step)))
	}

	f.resetLocked()
	f.open = false
	f.attemptID = ""
	return f.viewLocked(), nil
}

// submit performs the toggle. The caller has set busy and released the lock.
func (f *SignInFlow) submit(ctx context.Context, reason models.VisitReason, classCode, path string) (models.FlowView, error) {
	f.mu.Lock()
	studentID := f.studentID
	attemptID := f.attemptID
	f.mu.Unlock()

	resp, err := f.api.ToggleStudentSignInOut(ctx, studentID, reason, classCode)

	f.mu.Lock()
	f.busy = false

	switch {
	case err != nil:
		metrics.ToggleSubmissions.WithLabelValues(path, "connection_error").Inc()
		logger.Error("Sign-in/out request failed",
			zap.String("attempt_id", attemptID),
			zap.String("path", path),
			zap.String("kind", string(libraryapi.KindOf(err))),
			zap.Error(err))
		f.dialog = &models.Dialog{
			Kind:    models.DialogConnectionError,
			Title:   ConnectionErrorTitle,
			Message: libraryapi.UserMessage(err),
		}
		view := f.viewLocked()
		f.mu.Unlock()
		return view, nil

	case !resp.Success:
		metrics.ToggleSubmissions.WithLabelValues(path, "rejected").Inc()
		message := resp.Message
		if message == "" {
			message = RejectionFallback
		}
		logger.Warn("Sign-in/out rejected by library API",
			zap.String("attempt_id", attemptID),
			zap.String("path", path),
			zap.String("message", message))
		f.dialog = &models.Dialog{
			Kind:    models.DialogRejection,
			Title:   RejectionTitle,
			Message: message,
		}
		view := f.viewLocked()
		f.mu.Unlock()
		return view, nil
	}

	metrics.ToggleSubmissions.WithLabelValues(path, "success").Inc()
	if resp.Action != "" {
		metrics.SignInOutActions.WithLabelValues(string(resp.Action)).Inc()
	}
	if reason != "" {
		metrics.VisitReasons.WithLabelValues(string(reason)).Inc()
	}

	event := models.ToggleEvent{
		AttemptID: attemptID,
		KioskID:   f.kioskID,
		StudentID: studentID,
		Action:    resp.Action,
		Reason:    reason,
		ClassCode: classCode,
		Message:   resp.Message,
		At:        f.now(),
	}
	logger.Info("Student status updated",
		zap.String("attempt_id", attemptID),
		zap.String("path", path),
		zap.String("action", string(resp.Action)))

	f.resetLocked()
	f.dialog = &models.Dialog{
		Kind:    models.DialogSuccess,
		Title:   SuccessTitle,
		Message: resp.Message,
		Action:  resp.Action,
	}
	view := f.viewLocked()
	f.mu.Unlock()

	for _, listener := range f.listeners {
		listener(ctx, event)
	}
	return view, nil
}

// guardLocked rejects actions the front-end should not offer right now.
// An empty step skips the step check.
func (f *SignInFlow) guardLocked(step models.FlowStep) error {
	switch {
	case !f.open:
		return ErrFlowClosed
	case f.busy:
		return ErrFlowBusy
	case f.dialog != nil:
		return ErrDialogPending
	case step != "" && f.step != step:
		return apperrors.ConflictError(fmt.Sprintf("action needs step %s, flow is at %s", step, f.step))
	}
	return nil
}

// resetLocked clears the attempt's fields; open and attemptID are left to the caller
func (f *SignInFlow) resetLocked() {
	f.step = models.StepCollectingID
	f.studentID = ""
	f.classCode = ""
	f.busy = false
	f.dialog = nil
}

func (f *SignInFlow) viewLocked() models.FlowView {
	view := models.FlowView{
		Open:      f.open,
		AttemptID: f.attemptID,
		Step:      f.step,
		StudentID: f.studentID,
		ClassCode: f.classCode,
		Busy:      f.busy,
	}
	if f.dialog != nil {
		d := *f.dialog
		view.Dialog = &d
	}
	if f.step == models.StepSelectingReason {
		view.Reasons = models.VisitReasons
	}
	return view
}
