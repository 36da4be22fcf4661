// Package motion computes a sampled frame-difference motion score and a
// coarse scene hash used to flag scene changes.
package motion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oneshot2001/axion/frame"
	"github.com/oneshot2001/axion/metadata"
	"github.com/oneshot2001/axion/module"
)

// Name is the registry name of this module.
const Name = "motion"

// Sampling and thresholds. The scene hash reads every 1000th byte; the
// motion score compares every 100th byte against the previous frame and
// counts samples that moved by more than the pixel threshold.
const (
	defaultHashStride   = 1000
	defaultMotionStride = 100
	defaultPixelDelta   = 30
	djb2Seed            = 5381
)

// Module tracks per-frame change against the previous frame. It holds
// the previous frame's samples, so one instance serves one source.
type Module struct {
	hashStride   int
	motionStride int
	pixelDelta   int

	logger *slog.Logger

	prevHash    uint64
	prevSamples []byte
	hasPrev     bool
}

// New creates an uninitialized motion module.
func New() module.Module { return &Module{} }

// Descriptor implements module.Module.
func (m *Module) Descriptor() module.Descriptor {
	return module.Descriptor{Name: Name, Version: "1.0.0", Priority: 20}
}

// Init reads the sampling configuration.
func (m *Module) Init(_ context.Context, deps module.Dependencies, cfg module.Config) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = slog.Default()
	}

	m.hashStride = cfg.GetInt("hash_stride", defaultHashStride)
	m.motionStride = cfg.GetInt("motion_stride", defaultMotionStride)
	m.pixelDelta = cfg.GetInt("pixel_delta", defaultPixelDelta)
	if m.hashStride < 1 || m.motionStride < 1 || m.pixelDelta < 0 {
		return fmt.Errorf("motion.Init: sampling config out of range")
	}
	return nil
}

// Process hashes the frame, scores motion against the previous frame and
// records both.
func (m *Module) Process(_ context.Context, f *frame.Frame, rec *metadata.Record) (module.Status, error) {
	if len(f.Buffer) == 0 {
		return module.StatusSkip, nil
	}

	// The first frame always counts as a scene change.
	hash := m.sceneHash(f.Buffer)
	changed := !m.hasPrev || hash != m.prevHash

	score, samples := m.motionScore(f.Buffer)

	rec.SetScene(fmt.Sprintf("%016x", hash), changed)
	rec.SetMotionScore(score)
	rec.SetModuleData(Name, map[string]any{
		"scene_hash":    fmt.Sprintf("%016x", hash),
		"scene_changed": changed,
		"motion_score":  score,
	})

	m.prevHash = hash
	m.retainSamples(f.Buffer, samples)
	m.hasPrev = true

	return module.StatusSuccess, nil
}

// Cleanup implements module.Module.
func (m *Module) Cleanup(context.Context) error {
	m.prevSamples = nil
	m.hasPrev = false
	return nil
}

// sceneHash is djb2 over the sampled bytes.
func (m *Module) sceneHash(buf []byte) uint64 {
	hash := uint64(djb2Seed)
	for i := 0; i < len(buf); i += m.hashStride {
		hash = hash*33 + uint64(buf[i])
	}
	return hash
}

// motionScore returns the fraction of sampled bytes that moved by more
// than the pixel threshold since the previous frame, and the sample
// count of the current frame.
func (m *Module) motionScore(buf []byte) (float64, int) {
	samples := (len(buf) + m.motionStride - 1) / m.motionStride
	if !m.hasPrev || len(m.prevSamples) != samples {
		return 0, samples
	}

	moved := 0
	for i, j := 0, 0; i < len(buf); i, j = i+m.motionStride, j+1 {
		diff := int(buf[i]) - int(m.prevSamples[j])
		if diff < 0 {
			diff = -diff
		}
		if diff > m.pixelDelta {
			moved++
		}
	}
	return float64(moved) / float64(samples), samples
}

func (m *Module) retainSamples(buf []byte, samples int) {
	if cap(m.prevSamples) < samples {
		m.prevSamples = make([]byte, samples)
	}
	m.prevSamples = m.prevSamples[:samples]
	for i, j := 0, 0; i < len(buf); i, j = i+m.motionStride, j+1 {
		m.prevSamples[j] = buf[i]
	}
}
