package models

// DiagnosticStep is the result of one diagnostics check
type DiagnosticStep struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Detail  string `json:"detail,omitempty"`
	Elapsed string `json:"elapsed"`
}

// DiagnosticReport collects the steps of a diagnostics run
type DiagnosticReport struct {
	BaseURL string           `json:"baseUrl"`
	Passed  bool             `json:"passed"`
	Steps   []DiagnosticStep `json:"steps"`
}
