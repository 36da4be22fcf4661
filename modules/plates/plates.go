// Package plates sends frames containing vehicles to an external plate
// recognition service and records the returned plate reads.
package plates

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/oneshot2001/axion/errors"
	"github.com/oneshot2001/axion/frame"
	"github.com/oneshot2001/axion/metadata"
	"github.com/oneshot2001/axion/module"
)

// Name is the registry name of this module.
const Name = "plates"

// COCO class ids counted as vehicles: car, motorcycle, bus, truck.
var defaultVehicleClasses = []int{2, 3, 5, 7}

const (
	defaultFrameInterval = 10
	defaultJPEGQuality   = 80
	defaultMinConfidence = 0.4
)

// request is the payload sent to the recognition service.
type request struct {
	Sequence  int64   `json:"sequence"`
	Timestamp int64   `json:"timestamp"`
	Vehicles  int     `json:"vehicles"`
	Image     string  `json:"image"`
	MinScore  float64 `json:"min_score"`
}

// response is the subset of the service reply the module keeps.
type response struct {
	Plates []plateRead `json:"plates"`
}

type plateRead struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Module runs after detection and only engages when the record holds
// vehicle detections.
type Module struct {
	poster module.HTTPPoster
	logger *slog.Logger

	apiURL        string
	vehicleSet    map[int]bool
	frameInterval int
	quality       int
	minConfidence float64

	sinceLast int
}

// New creates an uninitialized plates module.
func New() module.Module { return &Module{} }

// Descriptor implements module.Module.
func (m *Module) Descriptor() module.Descriptor {
	return module.Descriptor{Name: Name, Version: "1.0.0", Priority: 30}
}

// Init reads the service endpoint and gating configuration.
func (m *Module) Init(_ context.Context, deps module.Dependencies, cfg module.Config) error {
	m.poster = deps.Poster
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = slog.Default()
	}

	m.apiURL = cfg.GetString("api_url", "")
	m.frameInterval = cfg.GetInt("frame_interval", defaultFrameInterval)
	m.quality = cfg.GetInt("jpeg_quality", defaultJPEGQuality)
	m.minConfidence = cfg.GetFloat("min_confidence", defaultMinConfidence)
	if m.frameInterval < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "plates", "Init", "frame interval validation")
	}

	m.vehicleSet = make(map[int]bool)
	for _, id := range cfg.GetIntSlice("vehicle_classes", defaultVehicleClasses) {
		m.vehicleSet[id] = true
	}

	// First eligible frame posts immediately.
	m.sinceLast = m.frameInterval

	if m.apiURL == "" {
		m.logger.Warn("Plate recognition has no api_url configured, module stays idle")
	}
	return nil
}

// Process posts the frame to the recognition service when it holds
// vehicles and the frame interval has elapsed.
func (m *Module) Process(ctx context.Context, f *frame.Frame, rec *metadata.Record) (module.Status, error) {
	if m.apiURL == "" || m.poster == nil {
		return module.StatusNotReady, nil
	}

	vehicles := 0
	for _, det := range rec.Detections() {
		if m.vehicleSet[det.ClassID] {
			vehicles++
		}
	}
	if vehicles == 0 {
		return module.StatusSkip, nil
	}

	m.sinceLast++
	if m.sinceLast < m.frameInterval {
		return module.StatusSkip, nil
	}
	// Reset on attempt, not success, so a failing service is retried at
	// the interval rate instead of on every vehicle frame.
	m.sinceLast = 0

	img, err := frame.EncodeJPEG(f, m.quality)
	if err != nil {
		return module.StatusError, errors.Wrap(err, "plates", "Process", "frame encode")
	}

	payload, err := json.Marshal(request{
		Sequence:  rec.Sequence(),
		Timestamp: rec.TimestampUS(),
		Vehicles:  vehicles,
		Image:     base64.StdEncoding.EncodeToString(img),
		MinScore:  m.minConfidence,
	})
	if err != nil {
		return module.StatusError, errors.WrapInvalid(err, "plates", "Process", "request serialization")
	}

	body, err := m.poster.Post(ctx, m.apiURL, "application/json", payload)
	if err != nil {
		return module.StatusError, errors.WrapTransient(err, "plates", "Process", "recognition request")
	}

	var reply response
	if err := json.Unmarshal(body, &reply); err != nil {
		return module.StatusError, errors.WrapInvalid(err, "plates", "Process", "response decode")
	}

	reads := make([]map[string]any, 0, len(reply.Plates))
	for _, p := range reply.Plates {
		if p.Confidence < m.minConfidence {
			continue
		}
		reads = append(reads, map[string]any{
			"text":       p.Text,
			"confidence": p.Confidence,
		})
	}

	rec.SetModuleData(Name, map[string]any{
		"vehicles": vehicles,
		"plates":   reads,
	})
	return module.StatusSuccess, nil
}

// Cleanup implements module.Module.
func (m *Module) Cleanup(context.Context) error { return nil }
