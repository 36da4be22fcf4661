// Package health tracks runtime counters for the status endpoint.
package health

import (
	"sync"
	"time"
)

// Tracker accumulates tick outcomes. Safe for concurrent use; the
// pipeline writes while the HTTP API reads.
type Tracker struct {
	mu           sync.RWMutex
	startedAt    time.Time
	processed    int64
	dropped      int64
	lastSequence int64
	now          func() time.Time
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	FramesProcessed int64   `json:"frames_processed"`
	FramesDropped   int64   `json:"frames_dropped"`
	EffectiveFPS    float64 `json:"effective_fps"`
	LastSequence    int64   `json:"last_sequence"`
}

// NewTracker starts the uptime clock.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.startedAt = t.now()
	return t
}

// RecordProcessed counts one published tick.
func (t *Tracker) RecordProcessed(sequence int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed++
	t.lastSequence = sequence
}

// RecordDropped counts one tick that produced no record.
func (t *Tracker) RecordDropped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped++
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	uptime := t.now().Sub(t.startedAt).Seconds()
	fps := 0.0
	if uptime > 0 {
		fps = float64(t.processed) / uptime
	}

	return Snapshot{
		UptimeSeconds:   uptime,
		FramesProcessed: t.processed,
		FramesDropped:   t.dropped,
		EffectiveFPS:    fps,
		LastSequence:    t.lastSequence,
	}
}
