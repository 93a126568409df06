package libraryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shc-library/kiosk-agent/internal/models"
	"github.com/shc-library/kiosk-agent/pkg/httpclient"
	"github.com/shc-library/kiosk-agent/pkg/logger"
	"github.com/shc-library/kiosk-agent/pkg/metrics"
	"github.com/shc-library/kiosk-agent/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds every library API call
	DefaultTimeout = 10 * time.Second

	serviceName = "library-api"

	// MaxResponseSize caps the body read from the library API; larger bodies fail with ErrResponseTooLarge
	MaxResponseSize = 1 << 20
)

// DefaultHeaders is the header baseline of every call; per-call headers override it.
var DefaultHeaders = map[string]string{
	"Content-Type": "application/json",
}

// Operation names used in logs, metrics and spans
const (
	OpToggle = "toggle_student"
	OpStatus = "get_student_status"
	OpHealth = "check_health"
)

// Request describes one library API call
type Request struct {
	Operation string
	Method    string
	URL       string
	Body      any
	Headers   map[string]string
	// Quiet logs the call at debug level; set for the periodic health check
	Quiet bool
}

// Client calls the library sign-in/out API.
// It holds no per-call state and is shared by the whole process.
type Client struct {
	httpClient httpclient.Client
	endpoints  Endpoints
	timeout    time.Duration
}

// NewClient creates a library API client for baseURL.
// A non-positive timeout falls back to DefaultTimeout.
func NewClient(baseURL string, httpClient httpclient.Client, timeout time.Duration) (*Client, error) {
	endpoints, err := NewEndpoints(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = httpclient.NewStandardClient()
	}

	return &Client{
		httpClient: httpClient,
		endpoints:  endpoints,
		timeout:    timeout,
	}, nil
}

// Endpoints returns the resolved endpoint set
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// ToggleStudentSignInOut flips the student's presence. An empty reason or
// class code is left out of the body.
func (c *Client) ToggleStudentSignInOut(ctx context.Context, studentID string, reason models.VisitReason, classCode string) (*models.ToggleResponse, error) {
	return Call[models.ToggleResponse](ctx, c, Request{
		Operation: OpToggle,
		Method:    http.MethodPost,
		URL:       c.endpoints.Toggle(),
		Body: models.ToggleRequest{
			StudentID: studentID,
			Reason:    reason,
			ClassCode: classCode,
		},
	})
}

// GetStudentStatus reports whether the student is currently inside the library
func (c *Client) GetStudentStatus(ctx context.Context, studentID string) (*models.StatusResponse, error) {
	return Call[models.StatusResponse](ctx, c, Request{
		Operation: OpStatus,
		Method:    http.MethodGet,
		URL:       c.endpoints.StudentStatus(studentID),
	})
}

// CheckHealth calls the backend health endpoint
func (c *Client) CheckHealth(ctx context.Context) (*models.HealthResponse, error) {
	return Call[models.HealthResponse](ctx, c, Request{
		Operation: OpHealth,
		Method:    http.MethodGet,
		URL:       c.endpoints.Health(),
		Quiet:     true,
	})
}

// TestConnection reports whether the backend answered its health check with
// either accepted shape. It never returns an error: every failure is false.
func (c *Client) TestConnection(ctx context.Context) bool {
	resp, err := c.CheckHealth(ctx)
	if err != nil {
		logger.Debug("Connection test failed", zap.Error(err), zap.String("kind", string(KindOf(err))))
		return false
	}
	return resp.Healthy()
}

// Call performs req with the client's deadline and header policy and decodes
// a successful JSON body into T.
func Call[T any](ctx context.Context, c *Client, req Request) (*T, error) {
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "libraryapi."+req.Operation,
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", req.URL),
	)
	defer span.End()

	decoded, status, err := callAndDecode[T](ctx, c, req)

	duration := metrics.MeasureDuration(start)
	result := "success"
	if err != nil {
		result = string(KindOf(err))
		if result == "" {
			result = "error"
		}
		tracing.RecordError(span, err)
	}
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	metrics.LibraryAPIRequestDuration.WithLabelValues(req.Operation, result).Observe(duration)
	metrics.LibraryAPIRequestTotal.WithLabelValues(req.Operation, result).Inc()

	fields := []zap.Field{zap.Int("status_code", status)}
	if err != nil {
		fields = append(fields, zap.String("kind", result), zap.Error(err))
	}
	switch {
	case req.Quiet:
		logger.Debug("API call", append(fields,
			zap.String("service", serviceName),
			zap.String("operation", req.Operation),
			zap.String("status", result),
			zap.Float64("duration", duration))...)
	case err != nil:
		logger.LogAPICall(serviceName, req.Operation, "error", duration, fields...)
	default:
		logger.LogAPICall(serviceName, req.Operation, "success", duration, fields...)
	}

	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func callAndDecode[T any](ctx context.Context, c *Client, req Request) (*T, int, error) {
	raw, status, err := c.do(ctx, req)
	if err != nil {
		return nil, status, err
	}

	var decoded T
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, status, decodeError(req.Operation, status, err)
	}
	return &decoded, status, nil
}

// do sends the request and returns the raw 2xx body
func (c *Client) do(ctx context.Context, req Request) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode %s request: %w", req.Operation, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, 0, transportError(req.Operation, err)
	}
	for k, v := range DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	tracing.InjectHeaders(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, classifyTransport(ctx, req.Operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, resp.StatusCode, classifyTransport(ctx, req.Operation, err)
	}
	if len(raw) > MaxResponseSize {
		return nil, resp.StatusCode, decodeError(req.Operation, resp.StatusCode,
			fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, MaxResponseSize))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &envelope) //nolint:errcheck // fall back to the generic message
		return nil, resp.StatusCode, rejectionError(req.Operation, resp.StatusCode, envelope.Message)
	}

	return raw, resp.StatusCode, nil
}

// classifyTransport separates our own deadline from other transport failures
func classifyTransport(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(op, err)
	}
	return transportError(op, err)
}
