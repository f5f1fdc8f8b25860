package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/trendscraper/models"
)

// captureLogger returns a logger writing JSON lines into buf.
func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestExecute_SuccessLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	x := NewExecutor(captureLogger(&buf))

	got, err := Execute(context.Background(), x, "read value", func(context.Context) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)

	recs := logRecords(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "INFO", recs[0]["level"])
	assert.Equal(t, "step succeeded", recs[0]["msg"])
	assert.Equal(t, "read value", recs[0]["step"])
}

func TestExecute_FailureWrapsAndLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	x := NewExecutor(captureLogger(&buf))
	cause := errors.New("element detached")

	got, err := Execute(context.Background(), x, "click next", func(context.Context) (string, error) {
		return "partial", cause
	})

	assert.Empty(t, got, "value is zeroed on failure")
	var failure *models.StepFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "click next", failure.Step)
	assert.Equal(t, "element detached", failure.Message)
	assert.NotEmpty(t, failure.Trace)
	assert.ErrorIs(t, err, cause)

	recs := logRecords(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "ERROR", recs[0]["level"])
	assert.Equal(t, "step failed", recs[0]["msg"])
	assert.Equal(t, "click next", recs[0]["step"])
}

func TestExecute_PanicBecomesStepFailure(t *testing.T) {
	var buf bytes.Buffer
	x := NewExecutor(captureLogger(&buf))

	_, err := Execute(context.Background(), x, "extract trends", func(context.Context) ([]string, error) {
		panic("nil node")
	})

	var failure *models.StepFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "extract trends", failure.Step)
	assert.Contains(t, failure.Message, "nil node")
	assert.Len(t, logRecords(t, &buf), 1)
}

func TestExecuteErr(t *testing.T) {
	x := NewExecutor(nil)

	assert.NoError(t, ExecuteErr(context.Background(), x, "noop", func(context.Context) error { return nil }))

	err := ExecuteErr(context.Background(), x, "open login page", func(context.Context) error {
		return context.DeadlineExceeded
	})
	assert.Equal(t, "open login page", models.FailedStep(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
