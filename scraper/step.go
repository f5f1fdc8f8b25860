package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/use-agent/trendscraper/models"
)

// Executor runs named automation steps and attaches the step name to any
// failure.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an Executor. A nil logger uses slog.Default().
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger}
}

// Execute runs action as step and logs exactly one record: success or
// failure. Errors (and panics) come back as *models.StepFailure wrapping
// the original error.
func Execute[T any](ctx context.Context, x *Executor, step string, action func(context.Context) (T, error)) (out T, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			out = zero
			err = &models.StepFailure{
				Step:    step,
				Message: fmt.Sprintf("panic: %v", p),
				Trace:   string(debug.Stack()),
				Err:     fmt.Errorf("panic: %v", p),
			}
			x.logger.ErrorContext(ctx, "step failed", "step", step, "error", err)
		}
	}()

	out, err = action(ctx)
	if err != nil {
		failure := &models.StepFailure{
			Step:    step,
			Message: err.Error(),
			Trace:   string(debug.Stack()),
			Err:     err,
		}
		x.logger.ErrorContext(ctx, "step failed", "step", step, "error", err)
		var zero T
		return zero, failure
	}

	x.logger.InfoContext(ctx, "step succeeded", "step", step)
	return out, nil
}

// ExecuteErr is Execute for steps that produce no value.
func ExecuteErr(ctx context.Context, x *Executor, step string, action func(context.Context) error) error {
	_, err := Execute(ctx, x, step, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, action(ctx)
	})
	return err
}
