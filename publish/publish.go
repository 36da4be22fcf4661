// Package publish serializes finalized metadata records and instance
// status events onto the message bus.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oneshot2001/axion/errors"
	"github.com/oneshot2001/axion/metadata"
	"github.com/oneshot2001/axion/metric"
)

// Publisher delivers pipeline output. PublishMetadata is called once per
// successful tick, before the frame is released.
type Publisher interface {
	PublishMetadata(ctx context.Context, snap metadata.Snapshot) error
	PublishStatus(ctx context.Context, online bool) error
	Close() error
}

// StatusEvent is the wire form of an instance status change.
type StatusEvent struct {
	CameraID  string `json:"camera_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// sender is the part of the NATS client the publisher uses.
type sender interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes records on <prefix>.<camera>.metadata and
// status events on <prefix>.<camera>.status.
type NATSPublisher struct {
	client   sender
	cameraID string

	metadataSubject string
	statusSubject   string

	logger  *slog.Logger
	metrics *metric.Metrics
	retry   errors.RetryConfig
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewNATSPublisher creates a publisher for one camera instance.
func NewNATSPublisher(client sender, prefix, cameraID string, logger *slog.Logger, metrics *metric.Metrics) (*NATSPublisher, error) {
	if client == nil || prefix == "" || cameraID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"NATSPublisher", "NewNATSPublisher", "publisher configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &NATSPublisher{
		client:          client,
		cameraID:        cameraID,
		metadataSubject: fmt.Sprintf("%s.%s.metadata", prefix, cameraID),
		statusSubject:   fmt.Sprintf("%s.%s.status", prefix, cameraID),
		logger:          logger,
		metrics:         metrics,
		retry:           errors.DefaultRetryConfig(),
		now:             time.Now,
		sleep:           sleepContext,
	}, nil
}

// send publishes on subject, retrying transient broker errors with
// backoff until the retry budget or the context runs out.
func (p *NATSPublisher) send(ctx context.Context, subject string, data []byte) error {
	for attempt := 0; ; attempt++ {
		err := p.client.Publish(subject, data)
		if err == nil {
			return nil
		}
		if !p.retry.ShouldRetry(err, attempt) {
			return err
		}
		if p.sleep(ctx, p.retry.BackoffDelay(attempt)) != nil {
			return err
		}
	}
}

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

// MetadataSubject returns the subject metadata records are published on.
func (p *NATSPublisher) MetadataSubject() string { return p.metadataSubject }

// PublishMetadata serializes and publishes one record.
func (p *NATSPublisher) PublishMetadata(ctx context.Context, snap metadata.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.WrapInvalid(err, "NATSPublisher", "PublishMetadata", "record serialization")
	}

	if err := p.send(ctx, p.metadataSubject, data); err != nil {
		if p.metrics != nil {
			p.metrics.RecordPublishError()
		}
		return errors.WrapTransient(err, "NATSPublisher", "PublishMetadata", "record publish")
	}

	if p.metrics != nil {
		p.metrics.RecordPublished(p.metadataSubject)
	}
	return nil
}

// PublishStatus publishes an online or offline event.
func (p *NATSPublisher) PublishStatus(ctx context.Context, online bool) error {
	status := "offline"
	if online {
		status = "online"
	}

	data, err := json.Marshal(StatusEvent{
		CameraID:  p.cameraID,
		Status:    status,
		Timestamp: p.now().Unix(),
	})
	if err != nil {
		return errors.WrapInvalid(err, "NATSPublisher", "PublishStatus", "event serialization")
	}

	if err := p.send(ctx, p.statusSubject, data); err != nil {
		return errors.WrapTransient(err, "NATSPublisher", "PublishStatus", "event publish")
	}

	p.logger.Info("Instance status published", "camera_id", p.cameraID, "status", status)
	return nil
}

// Close is a no-op; the NATS client's lifecycle is owned by the caller.
func (p *NATSPublisher) Close() error { return nil }

// LogPublisher writes records to the log instead of a broker. Used when
// the pipeline runs without connectivity.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a log-backed publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// PublishMetadata logs the record summary.
func (p *LogPublisher) PublishMetadata(_ context.Context, snap metadata.Snapshot) error {
	p.logger.Info("Metadata record",
		"sequence", snap.Sequence,
		"detections", len(snap.Detections),
		"motion_score", snap.MotionScore,
		"scene_changed", snap.SceneChanged)
	return nil
}

// PublishStatus logs the status change.
func (p *LogPublisher) PublishStatus(_ context.Context, online bool) error {
	p.logger.Info("Instance status", "online", online)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
