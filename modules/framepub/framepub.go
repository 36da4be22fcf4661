// Package framepub publishes rate-limited JPEG snapshots of the live
// frames on the message bus, for preview consumers that cannot read the
// raw stream.
package framepub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oneshot2001/axion/errors"
	"github.com/oneshot2001/axion/frame"
	"github.com/oneshot2001/axion/metadata"
	"github.com/oneshot2001/axion/module"
)

// Name is the registry name of this module.
const Name = "frame_publisher"

const (
	defaultRateLimit   = 1.0
	defaultBurst       = 1
	defaultJPEGQuality = 80
)

// snapshot is the wire form of a published frame.
type snapshot struct {
	ID        string `json:"id"`
	Instance  string `json:"instance"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	Image     string `json:"image"`
}

// Module publishes at most rate_limit frames per second and skips the
// rest.
type Module struct {
	bus     module.BusPublisher
	logger  *slog.Logger
	limiter *rate.Limiter

	subject  string
	quality  int
	instance string

	published int64
}

// New creates an uninitialized frame publisher.
func New() module.Module { return &Module{} }

// Descriptor implements module.Module.
func (m *Module) Descriptor() module.Descriptor {
	return module.Descriptor{Name: Name, Version: "1.0.0", Priority: 40}
}

// Init reads the subject and rate configuration. The instance id is
// generated fresh per process so consumers can detect restarts.
func (m *Module) Init(_ context.Context, deps module.Dependencies, cfg module.Config) error {
	m.bus = deps.Bus
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = slog.Default()
	}

	m.subject = cfg.GetString("subject", "")
	m.quality = cfg.GetInt("jpeg_quality", defaultJPEGQuality)
	limit := cfg.GetFloat("rate_limit", defaultRateLimit)
	burst := cfg.GetInt("burst", defaultBurst)
	if limit <= 0 || burst < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "frame_publisher", "Init", "rate validation")
	}

	m.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	m.instance = uuid.NewString()

	if m.subject == "" {
		m.logger.Warn("Frame publisher has no subject configured, module stays idle")
	}
	return nil
}

// Process publishes the frame when the rate limiter admits it.
func (m *Module) Process(_ context.Context, f *frame.Frame, rec *metadata.Record) (module.Status, error) {
	if m.bus == nil || m.subject == "" {
		return module.StatusNotReady, nil
	}
	if !m.limiter.Allow() {
		return module.StatusSkip, nil
	}

	img, err := frame.EncodeJPEG(f, m.quality)
	if err != nil {
		return module.StatusError, errors.Wrap(err, "frame_publisher", "Process", "frame encode")
	}

	id := uuid.NewString()
	payload, err := json.Marshal(snapshot{
		ID:        id,
		Instance:  m.instance,
		Sequence:  f.Sequence,
		Timestamp: f.TimestampUS,
		Width:     f.Width,
		Height:    f.Height,
		Format:    "jpeg",
		Image:     base64.StdEncoding.EncodeToString(img),
	})
	if err != nil {
		return module.StatusError, errors.WrapInvalid(err, "frame_publisher", "Process", "snapshot serialization")
	}

	if err := m.bus.Publish(m.subject, payload); err != nil {
		return module.StatusError, errors.WrapTransient(err, "frame_publisher", "Process", "snapshot publish")
	}
	m.published++

	rec.SetModuleData(Name, map[string]any{
		"request_id": id,
		"bytes":      len(payload),
	})
	return module.StatusSuccess, nil
}

// Cleanup logs the publish count.
func (m *Module) Cleanup(context.Context) error {
	m.logger.Info("Frame publisher cleanup", "published", m.published)
	return nil
}
