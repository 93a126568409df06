package libraryapi

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	togglePath = "/api/student/toggle"
	statusPath = "/api/student/status/"
	healthPath = "/health"
)

// Endpoints resolves library API URLs against one configured origin
type Endpoints struct {
	base string
}

// NewEndpoints validates baseURL and returns the resolver for it
func NewEndpoints(baseURL string) (Endpoints, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return Endpoints{}, fmt.Errorf("invalid library API base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Endpoints{}, fmt.Errorf("library API base URL must be absolute: %q", baseURL)
	}
	return Endpoints{base: baseURL}, nil
}

// Base returns the configured origin
func (e Endpoints) Base() string {
	return e.base
}

// Toggle is the sign-in/out toggle endpoint
func (e Endpoints) Toggle() string {
	return e.base + togglePath
}

// StudentStatus is the status lookup endpoint for one student
func (e Endpoints) StudentStatus(studentID string) string {
	return e.base + statusPath + url.PathEscape(studentID)
}

// Health is the backend health endpoint
func (e Endpoints) Health() string {
	return e.base + healthPath
}
