package models

import (
	"errors"
	"time"
)

// ErrorResponse is the uniform error envelope returned on any failed run.
type ErrorResponse struct {
	Status     string `json:"status"` // always "error"
	Code       string `json:"code"`
	Stage      string `json:"stage"`
	FailedStep string `json:"failedStep,omitempty"`
	Error      string `json:"error"`
	Timestamp  string `json:"timestamp"`

	// Details carries a stack trace and is only set in development mode.
	Details string `json:"details,omitempty"`
}

// NewErrorResponse builds the envelope for err. Stack traces from a
// StepFailure are attached only when includeDetails is set.
func NewErrorResponse(err error, includeDetails bool, now time.Time) ErrorResponse {
	resp := ErrorResponse{
		Status:     "error",
		Code:       ErrorCode(err),
		Stage:      ErrorStage(err),
		FailedStep: FailedStep(err),
		Error:      err.Error(),
		Timestamp:  now.UTC().Format(time.RFC3339Nano),
	}
	if includeDetails {
		resp.Details = errorTrace(err)
	}
	return resp
}

func errorTrace(err error) string {
	var stepErr *StepFailure
	if errors.As(err, &stepErr) && stepErr.Trace != "" {
		return stepErr.Trace
	}
	return err.Error()
}

// TestResponse is the body of the liveness probe.
type TestResponse struct {
	Message string `json:"message"`
	Time    string `json:"time"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status         string   `json:"status"` // "healthy" or "degraded"
	Uptime         string   `json:"uptime"`
	Engine         string   `json:"engine"`
	ActiveSessions int      `json:"active_sessions"`
	MaxSessions    int      `json:"max_sessions"`
	LastRun        *RunInfo `json:"last_run,omitempty"`
	Version        string   `json:"version"`
}

// RunInfo summarises the most recent run.
type RunInfo struct {
	At         time.Time `json:"at"`
	Success    bool      `json:"success"`
	ID         string    `json:"id,omitempty"`
	FailedStep string    `json:"failed_step,omitempty"`
	Error      string    `json:"error,omitempty"`
}
