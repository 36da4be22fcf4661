package inference

import (
	"context"
	"sync"
	"time"
)

// Engine runs a loaded model over a raw frame buffer and returns the
// flat output tensor. Implementations wrap the platform inference API;
// callers are expected to hold their accelerator slot for the duration
// of Infer.
type Engine interface {
	// Infer submits one frame and blocks until the output tensor is
	// ready or ctx is done.
	Infer(ctx context.Context, frame []byte) ([]float32, error)

	// Close releases the model and any accelerator resources.
	Close() error
}

// Timing accumulates per-run inference latency. Safe for concurrent use.
type Timing struct {
	mu    sync.Mutex
	count int64
	total time.Duration
	last  time.Duration
}

// Record adds one run's duration.
func (t *Timing) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	t.total += d
	t.last = d
}

// Average returns the mean run duration, or zero before the first run.
func (t *Timing) Average() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return 0
	}
	return t.total / time.Duration(t.count)
}

// Last returns the most recent run duration.
func (t *Timing) Last() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Count returns the number of recorded runs.
func (t *Timing) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
