// Package accelerator coordinates access to the shared inference chip
// between independent pipeline instances on the same device.
//
// Coordination is pure time-division scheduling agreed by convention:
// each instance is configured with a distinct index and only submits work
// during its fixed slot within a repeating cycle. There is no broker and
// no kernel-enforced lock; an instance that ignores the scheme can still
// collide. All sharers must use the same slot timing and clock source.
package accelerator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oneshot2001/axion/errors"
)

// Default slot timing. A 200ms slot in a 1s cycle supports up to five
// pipeline instances per accelerator.
const (
	DefaultSlotDuration  = 200 * time.Millisecond
	DefaultCycleDuration = 1000 * time.Millisecond
)

// Coordinator arbitrates one pipeline instance's access window to the
// shared accelerator.
type Coordinator struct {
	cameraID      string
	index         int
	slotOffset    time.Duration
	slotDuration  time.Duration
	cycleDuration time.Duration
	logger        *slog.Logger

	// Injectable for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	waitCount int64
	totalWait time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithSlotTiming overrides the default slot and cycle durations.
// The cycle must be a positive multiple of the slot duration.
func WithSlotTiming(slot, cycle time.Duration) Option {
	return func(c *Coordinator) error {
		if slot <= 0 || cycle <= 0 || cycle%slot != 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig,
				"Coordinator", "WithSlotTiming", "slot timing validation")
		}
		c.slotDuration = slot
		c.cycleDuration = cycle
		return nil
	}
}

// WithLogger sets the structured logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		c.logger = logger
		return nil
	}
}

// New creates a slot coordinator for the instance at the given index.
// The index selects the instance's fixed offset within the cycle and must
// be in [0, cycle/slot).
func New(cameraID string, index int, opts ...Option) (*Coordinator, error) {
	if cameraID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Coordinator", "New", "camera id validation")
	}

	c := &Coordinator{
		cameraID:      cameraID,
		index:         index,
		slotDuration:  DefaultSlotDuration,
		cycleDuration: DefaultCycleDuration,
		logger:        slog.Default(),
		now:           time.Now,
		sleep:         sleepContext,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	maxInstances := int(c.cycleDuration / c.slotDuration)
	if index < 0 || index >= maxInstances {
		return nil, errors.WrapInvalid(
			fmt.Errorf("index %d outside valid range 0-%d", index, maxInstances-1),
			"Coordinator", "New", "instance index validation")
	}

	c.slotOffset = time.Duration(index) * c.slotDuration

	c.logger.Info("Accelerator slot coordinator initialized",
		"camera_id", cameraID,
		"index", index,
		"slot_offset_ms", c.slotOffset.Milliseconds(),
		"slot_ms", c.slotDuration.Milliseconds(),
		"cycle_ms", c.cycleDuration.Milliseconds())

	return c, nil
}

// WaitForSlot blocks until the instance's slot window is current, then
// returns. If the current cycle phase already lies within the window it
// returns immediately; otherwise it sleeps until the window opens in this
// cycle or the next. The wait is bounded by one full cycle. The only
// error condition is context cancellation.
func (c *Coordinator) WaitForSlot(ctx context.Context) error {
	start := c.now()

	phase := time.Duration(start.UnixMilli()%c.cycleDuration.Milliseconds()) * time.Millisecond

	var wait time.Duration
	switch {
	case phase < c.slotOffset:
		// Slot is coming up in this cycle.
		wait = c.slotOffset - phase
	case phase >= c.slotOffset+c.slotDuration:
		// Slot missed, wait for its occurrence in the next cycle.
		wait = (c.cycleDuration - phase) + c.slotOffset
	default:
		// Already inside the window.
	}

	if wait > 0 {
		if err := c.sleep(ctx, wait); err != nil {
			return errors.WrapTransient(err, "Coordinator", "WaitForSlot", "slot wait")
		}
	}

	actual := c.now().Sub(start)

	c.mu.Lock()
	c.waitCount++
	c.totalWait += actual
	c.mu.Unlock()

	return nil
}

// ReleaseSlot is a no-op for time-division scheduling. It is kept as a
// symmetric call so a lock-based backend can be substituted without
// changing call sites.
func (c *Coordinator) ReleaseSlot() {}

// AverageWait returns the mean time spent in WaitForSlot, or zero if no
// waits have been recorded.
func (c *Coordinator) AverageWait() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.waitCount == 0 {
		return 0
	}
	return c.totalWait / time.Duration(c.waitCount)
}

// Stats returns the cumulative wait count and total wait time.
func (c *Coordinator) Stats() (count int64, total time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitCount, c.totalWait
}

// SlotOffset returns the instance's fixed offset within the cycle.
func (c *Coordinator) SlotOffset() time.Duration { return c.slotOffset }

// Close logs cumulative wait statistics.
func (c *Coordinator) Close() {
	count, _ := c.Stats()
	c.logger.Info("Accelerator slot coordinator closing",
		"camera_id", c.cameraID,
		"waits", count,
		"avg_wait_ms", c.AverageWait().Milliseconds())
}

// sleepContext sleeps for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
