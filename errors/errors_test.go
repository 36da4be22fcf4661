package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.class.String())
	}
}

func TestWrapFormat(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Pipeline", "ProcessOneFrame", "frame capture")

	assert.Equal(t, "Pipeline.ProcessOneFrame: frame capture failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "C", "M", "a"))
	assert.Nil(t, WrapTransient(nil, "C", "M", "a"))
	assert.Nil(t, WrapInvalid(nil, "C", "M", "a"))
	assert.Nil(t, WrapFatal(nil, "C", "M", "a"))
}

func TestClassificationPreservedThroughChain(t *testing.T) {
	err := WrapFatal(ErrMissingConfig, "Coordinator", "New", "camera index validation")
	wrapped := fmt.Errorf("startup: %w", err)

	assert.True(t, IsFatal(wrapped))
	assert.False(t, IsTransient(wrapped))

	var ce *ClassifiedError
	require.True(t, stderrors.As(wrapped, &ce))
	assert.Equal(t, ErrorFatal, ce.Class)
	assert.Equal(t, "Coordinator", ce.Component)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"frame miss", ErrNoFrame, true},
		{"inference", ErrInferenceFailed, true},
		{"context deadline", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"pattern match", stderrors.New("dial tcp: connection refused"), true},
		{"invalid config", ErrInvalidConfig, false},
		{"classified invalid", WrapInvalid(stderrors.New("bad"), "C", "M", "a"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorInvalid, Classify(WrapInvalid(stderrors.New("x"), "C", "M", "a")))
	assert.Equal(t, ErrorTransient, Classify(nil))
}

func TestRetryConfigShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.True(t, cfg.ShouldRetry(ErrConnectionTimeout, 0))
	assert.True(t, cfg.ShouldRetry(ErrConnectionTimeout, 2))
	assert.False(t, cfg.ShouldRetry(ErrConnectionTimeout, 3), "max retries reached")
	assert.False(t, cfg.ShouldRetry(ErrInvalidConfig, 0), "fatal errors are not retried")
	assert.False(t, cfg.ShouldRetry(nil, 0))
}

func TestRetryConfigBackoffDelay(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:    5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
	}

	assert.Equal(t, 100*time.Millisecond, cfg.BackoffDelay(0))
	assert.Equal(t, 200*time.Millisecond, cfg.BackoffDelay(1))
	assert.Equal(t, 400*time.Millisecond, cfg.BackoffDelay(2))
	assert.Equal(t, 1*time.Second, cfg.BackoffDelay(10), "capped at max delay")
}
