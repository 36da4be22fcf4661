package publish

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneshot2001/axion/errors"
	"github.com/oneshot2001/axion/metadata"
)

type fakeSender struct {
	subjects []string
	payloads [][]byte
	calls    int
	failures int
	err      error
}

func (f *fakeSender) Publish(subject string, data []byte) error {
	f.calls++
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func newTestPublisher(t *testing.T, s sender) *NATSPublisher {
	t.Helper()
	p, err := NewNATSPublisher(s, "axion", "camera0",
		slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.NoError(t, err)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestNewNATSPublisherValidation(t *testing.T) {
	_, err := NewNATSPublisher(nil, "axion", "camera0", nil, nil)
	require.Error(t, err)

	_, err = NewNATSPublisher(&fakeSender{}, "", "camera0", nil, nil)
	require.Error(t, err)

	_, err = NewNATSPublisher(&fakeSender{}, "axion", "", nil, nil)
	require.Error(t, err)
}

func TestPublishMetadataSubjectAndPayload(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPublisher(t, sender)

	rec := metadata.New(12, 3456)
	rec.AddDetection(metadata.Detection{ClassID: 2, Confidence: 0.8})

	require.NoError(t, p.PublishMetadata(context.Background(), rec.Finalize()))
	require.Len(t, sender.subjects, 1)
	assert.Equal(t, "axion.camera0.metadata", sender.subjects[0])
	assert.Equal(t, "axion.camera0.metadata", p.MetadataSubject())

	var snap metadata.Snapshot
	require.NoError(t, json.Unmarshal(sender.payloads[0], &snap))
	assert.Equal(t, int64(12), snap.Sequence)
	require.Len(t, snap.Detections, 1)
	assert.Equal(t, 2, snap.Detections[0].ClassID)
}

func TestPublishMetadataError(t *testing.T) {
	sender := &fakeSender{err: errors.ErrNoConnection}
	p := newTestPublisher(t, sender)

	err := p.PublishMetadata(context.Background(), metadata.New(1, 0).Finalize())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	// A transient broker error is retried until the budget runs out.
	assert.Equal(t, 1+errors.DefaultRetryConfig().MaxRetries, sender.calls)
}

func TestPublishMetadataRecoversAfterRetry(t *testing.T) {
	sender := &fakeSender{err: errors.ErrNoConnection, failures: 2}
	p := newTestPublisher(t, sender)

	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	require.NoError(t, p.PublishMetadata(context.Background(), metadata.New(1, 0).Finalize()))
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestPublishMetadataNoRetryOnPermanentError(t *testing.T) {
	sender := &fakeSender{err: errors.ErrInvalidConfig}
	p := newTestPublisher(t, sender)

	err := p.PublishMetadata(context.Background(), metadata.New(1, 0).Finalize())
	require.Error(t, err)
	assert.Equal(t, 1, sender.calls)
}

func TestPublishStatus(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPublisher(t, sender)
	p.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	require.NoError(t, p.PublishStatus(context.Background(), true))
	require.NoError(t, p.PublishStatus(context.Background(), false))

	require.Len(t, sender.subjects, 2)
	assert.Equal(t, "axion.camera0.status", sender.subjects[0])

	var ev StatusEvent
	require.NoError(t, json.Unmarshal(sender.payloads[0], &ev))
	assert.Equal(t, StatusEvent{CameraID: "camera0", Status: "online", Timestamp: 1_700_000_000}, ev)

	require.NoError(t, json.Unmarshal(sender.payloads[1], &ev))
	assert.Equal(t, "offline", ev.Status)
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, p.PublishMetadata(context.Background(), metadata.New(1, 0).Finalize()))
	require.NoError(t, p.PublishStatus(context.Background(), true))
	require.NoError(t, p.Close())
}
