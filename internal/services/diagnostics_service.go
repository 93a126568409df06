package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shc-library/kiosk-agent/internal/models"
	"github.com/shc-library/kiosk-agent/pkg/logger"
	"go.uber.org/zap"
)

// Diagnostic step names
const (
	StepHealthCheck = "health_check"
	StepToggle      = "toggle"
	StepStatus      = "status_lookup"
)

// DiagnosticsService runs operator checks against the library API.
// Toggles are sent for a dedicated test student, never a real one.
type DiagnosticsService struct {
	api       DiagnosticsAPI
	baseURL   string
	studentID string
}

// NewDiagnosticsService creates a diagnostics runner for the test student
func NewDiagnosticsService(api DiagnosticsAPI, baseURL, studentID string) *DiagnosticsService {
	return &DiagnosticsService{
		api:       api,
		baseURL:   baseURL,
		studentID: studentID,
	}
}

// StudentID returns the test student the toggles are sent for
func (s *DiagnosticsService) StudentID() string {
	return s.studentID
}

// RunHealthCheck calls the health endpoint once
func (s *DiagnosticsService) RunHealthCheck(ctx context.Context) models.DiagnosticReport {
	return s.report(ctx, s.healthStep)
}

// TestToggle flips the test student's presence once
func (s *DiagnosticsService) TestToggle(ctx context.Context) models.DiagnosticReport {
	return s.report(ctx, s.toggleStep)
}

// RunIntegration runs the health check, a toggle and a status lookup in order.
// Later steps run even when an earlier one fails.
func (s *DiagnosticsService) RunIntegration(ctx context.Context) models.DiagnosticReport {
	return s.report(ctx, s.healthStep, s.toggleStep, s.statusStep)
}

func (s *DiagnosticsService) report(ctx context.Context, steps ...func(context.Context) models.DiagnosticStep) models.DiagnosticReport {
	report := models.DiagnosticReport{
		BaseURL: s.baseURL,
		Passed:  true,
		Steps:   make([]models.DiagnosticStep, 0, len(steps)),
	}

	for _, run := range steps {
		start := time.Now()
		step := run(ctx)
		step.Elapsed = time.Since(start).Round(time.Millisecond).String()

		if !step.Passed {
			report.Passed = false
		}
		report.Steps = append(report.Steps, step)

		logger.Info("Diagnostic step finished",
			zap.String("step", step.Name),
			zap.Bool("passed", step.Passed),
			zap.String("detail", step.Detail),
			zap.String("elapsed", step.Elapsed))
	}

	return report
}

func (s *DiagnosticsService) healthStep(ctx context.Context) models.DiagnosticStep {
	step := models.DiagnosticStep{Name: StepHealthCheck}

	resp, err := s.api.CheckHealth(ctx)
	switch {
	case err != nil:
		step.Detail = err.Error()
	case resp.Healthy():
		step.Passed = true
		step.Detail = "health check passed"
	default:
		step.Detail = fmt.Sprintf("health check failed: %s", firstNonEmpty(resp.Message, resp.Status, "unhealthy"))
	}
	return step
}

func (s *DiagnosticsService) toggleStep(ctx context.Context) models.DiagnosticStep {
	step := models.DiagnosticStep{Name: StepToggle}

	resp, err := s.api.ToggleStudentSignInOut(ctx, s.studentID, "", "")
	switch {
	case err != nil:
		step.Detail = err.Error()
	case resp.Success:
		step.Passed = true
		step.Detail = fmt.Sprintf("toggle successful, action %s", firstNonEmpty(string(resp.Action), "unknown"))
		if resp.Message != "" {
			step.Detail += ": " + resp.Message
		}
	default:
		step.Detail = fmt.Sprintf("toggle failed: %s", firstNonEmpty(resp.Message, RejectionFallback))
	}
	return step
}

func (s *DiagnosticsService) statusStep(ctx context.Context) models.DiagnosticStep {
	step := models.DiagnosticStep{Name: StepStatus}

	resp, err := s.api.GetStudentStatus(ctx, s.studentID)
	switch {
	case err != nil:
		step.Detail = err.Error()
	case resp.Success && resp.Data != nil:
		step.Passed = true
		step.Detail = fmt.Sprintf("status lookup successful, in library: %t", resp.Data.IsInLibrary)
	default:
		step.Detail = fmt.Sprintf("status lookup failed: %s", firstNonEmpty(resp.Message, "no data"))
	}
	return step
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
