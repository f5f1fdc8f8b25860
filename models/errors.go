package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeResolution       = "RESOLUTION_FAILED"
	ErrCodeStep             = "STEP_FAILED"
	ErrCodeExtractionEmpty  = "EXTRACTION_EMPTY"
	ErrCodePersistence      = "PERSISTENCE_FAILED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeTooManySessions  = "TOO_MANY_SESSIONS"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// Failure stages reported in the error envelope.
const (
	StageConfig  = "config"
	StageScrape  = "scrape"
	StagePersist = "persist"
	StageRequest = "request"
)

// ConfigurationError reports required settings that are absent.
// It is raised before any browser or network activity.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing environment variables: " + strings.Join(e.Missing, ", ")
}

// ResolutionFailure means no candidate locator matched before the timeout.
type ResolutionFailure struct {
	Candidates []string
	Timeout    time.Duration
}

func (e *ResolutionFailure) Error() string {
	return fmt.Sprintf("could not find element with selectors [%s] within %s",
		strings.Join(e.Candidates, ", "), e.Timeout)
}

// ExtractionEmptyError means trend containers were located but none of
// them yielded readable text.
type ExtractionEmptyError struct {
	Located int
}

func (e *ExtractionEmptyError) Error() string {
	return fmt.Sprintf("no trends were found (%d elements located, 0 readable)", e.Located)
}

// StepFailure attaches the name of a failed automation step to the
// underlying error. Trace holds the goroutine stack at the point of failure.
type StepFailure struct {
	Step    string
	Message string
	Trace   string
	Err     error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %q failed: %s", e.Step, e.Message)
}

func (e *StepFailure) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed write to the result sink. A scrape
// that succeeded but could not be saved surfaces as this error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the API error code for err.
func ErrorCode(err error) string {
	var (
		cfgErr     *ConfigurationError
		persistErr *PersistenceError
		emptyErr   *ExtractionEmptyError
		resErr     *ResolutionFailure
		stepErr    *StepFailure
	)
	switch {
	case errors.As(err, &cfgErr):
		return ErrCodeConfiguration
	case errors.As(err, &persistErr):
		return ErrCodePersistence
	case errors.As(err, &emptyErr):
		return ErrCodeExtractionEmpty
	case errors.As(err, &resErr):
		return ErrCodeResolution
	case errors.As(err, &stepErr):
		return ErrCodeStep
	default:
		return ErrCodeInternal
	}
}

// ErrorStage returns which stage of a run err belongs to.
func ErrorStage(err error) string {
	var (
		cfgErr     *ConfigurationError
		persistErr *PersistenceError
	)
	switch {
	case errors.As(err, &cfgErr):
		return StageConfig
	case errors.As(err, &persistErr):
		return StagePersist
	default:
		return StageScrape
	}
}

// FailedStep returns the automation step name carried by err, if any.
func FailedStep(err error) string {
	var stepErr *StepFailure
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}
