// Package detection runs the object detection model on every frame and
// appends decoded detections to the metadata record.
package detection

import (
	"context"
	"log/slog"
	"time"

	"github.com/oneshot2001/axion/errors"
	"github.com/oneshot2001/axion/frame"
	"github.com/oneshot2001/axion/inference"
	"github.com/oneshot2001/axion/metadata"
	"github.com/oneshot2001/axion/module"
)

// Name is the registry name of this module.
const Name = "detection"

// Module runs first in the chain so later modules can read its
// detections from the record.
type Module struct {
	engine    inference.Engine
	decoder   *inference.Decoder
	threshold float64
	logger    *slog.Logger
	metrics   moduleMetrics
	timing    inference.Timing
}

type moduleMetrics interface {
	RecordInference(d time.Duration, detections int)
}

// New creates an uninitialized detection module.
func New() module.Module { return &Module{} }

// Descriptor implements module.Module.
func (m *Module) Descriptor() module.Descriptor {
	return module.Descriptor{Name: Name, Version: "1.0.0", Priority: 10}
}

// Init builds the decoder from configuration and captures the inference
// engine.
func (m *Module) Init(_ context.Context, deps module.Dependencies, cfg module.Config) error {
	m.engine = deps.Engine
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if deps.Metrics != nil {
		m.metrics = deps.Metrics
	}

	decoder, err := inference.NewDecoder(
		cfg.GetInt("input_width", 640),
		cfg.GetInt("input_height", 640),
		cfg.GetInt("num_classes", 80),
		cfg.GetFloat("threshold", 0.25),
		inference.WithMaxDetections(cfg.GetInt("max_detections", inference.DefaultMaxDetections)),
	)
	if err != nil {
		return errors.Wrap(err, "detection", "Init", "decoder construction")
	}
	m.decoder = decoder
	m.threshold = cfg.GetFloat("threshold", 0.25)

	m.logger.Info("Detection module initialized",
		"threshold", m.threshold,
		"classes", cfg.GetInt("num_classes", 80))
	return nil
}

// Process runs inference and decodes the output into the record.
func (m *Module) Process(ctx context.Context, f *frame.Frame, rec *metadata.Record) (module.Status, error) {
	if m.engine == nil {
		return module.StatusNotReady, nil
	}

	start := time.Now()
	output, err := m.engine.Infer(ctx, f.Buffer)
	if err != nil {
		return module.StatusError, errors.WrapTransient(err, "detection", "Process", "model inference")
	}
	elapsed := time.Since(start)
	m.timing.Record(elapsed)

	detections, err := m.decoder.Decode(output)
	if err != nil {
		return module.StatusError, errors.Wrap(err, "detection", "Process", "tensor decode")
	}

	for _, det := range detections {
		rec.AddDetection(det)
	}
	rec.SetModuleData(Name, map[string]any{
		"num_detections":       len(detections),
		"inference_ms":         elapsed.Milliseconds(),
		"confidence_threshold": m.threshold,
	})

	if m.metrics != nil {
		m.metrics.RecordInference(elapsed, len(detections))
	}
	return module.StatusSuccess, nil
}

// Cleanup logs the accumulated inference timing.
func (m *Module) Cleanup(context.Context) error {
	m.logger.Info("Detection module cleanup",
		"inferences", m.timing.Count(),
		"avg_inference_ms", m.timing.Average().Milliseconds())
	return nil
}

// AverageInference returns the mean inference latency so far.
func (m *Module) AverageInference() time.Duration {
	return m.timing.Average()
}
