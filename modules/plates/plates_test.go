package plates

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneshot2001/axion/frame"
	"github.com/oneshot2001/axion/metadata"
	"github.com/oneshot2001/axion/module"
)

type fakePoster struct {
	calls    int
	lastURL  string
	lastBody []byte
	reply    []byte
	err      error
}

func (f *fakePoster) Post(_ context.Context, url, _ string, body []byte) ([]byte, error) {
	f.calls++
	f.lastURL = url
	f.lastBody = body
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func nv12Frame() *frame.Frame {
	return &frame.Frame{
		Buffer:      make([]byte, 64*64*3/2),
		Width:       64,
		Height:      64,
		Format:      frame.FormatNV12,
		Sequence:    5,
		TimestampUS: 1000,
	}
}

func vehicleRecord(classID int) *metadata.Record {
	rec := metadata.New(5, 1000)
	rec.AddDetection(metadata.Detection{ClassID: classID, Confidence: 0.9})
	return rec
}

func newInitialized(t *testing.T, poster module.HTTPPoster, cfg module.Config) module.Module {
	t.Helper()
	m := New()
	deps := module.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Poster: poster,
	}
	require.NoError(t, m.Init(context.Background(), deps, cfg))
	return m
}

func TestDescriptor(t *testing.T) {
	desc := New().Descriptor()
	assert.Equal(t, "plates", desc.Name)
	assert.Equal(t, 30, desc.Priority)
}

func TestNotReadyWithoutURL(t *testing.T) {
	m := newInitialized(t, &fakePoster{}, module.Config{})

	status, err := m.Process(context.Background(), nv12Frame(), vehicleRecord(2))
	require.NoError(t, err)
	assert.Equal(t, module.StatusNotReady, status)
}

func TestSkipsFramesWithoutVehicles(t *testing.T) {
	poster := &fakePoster{reply: []byte(`{"plates":[]}`)}
	m := newInitialized(t, poster, module.Config{"api_url": "http://vision/plates"})

	rec := metadata.New(5, 1000)
	rec.AddDetection(metadata.Detection{ClassID: 0, Confidence: 0.9}) // person

	status, err := m.Process(context.Background(), nv12Frame(), rec)
	require.NoError(t, err)
	assert.Equal(t, module.StatusSkip, status)
	assert.Zero(t, poster.calls)
}

func TestPostsVehicleFrames(t *testing.T) {
	poster := &fakePoster{reply: []byte(`{"plates":[{"text":"ABC123","confidence":0.92},{"text":"??","confidence":0.1}]}`)}
	m := newInitialized(t, poster, module.Config{"api_url": "http://vision/plates"})

	rec := vehicleRecord(7) // truck
	status, err := m.Process(context.Background(), nv12Frame(), rec)
	require.NoError(t, err)
	assert.Equal(t, module.StatusSuccess, status)
	assert.Equal(t, "http://vision/plates", poster.lastURL)

	var req request
	require.NoError(t, json.Unmarshal(poster.lastBody, &req))
	assert.Equal(t, int64(5), req.Sequence)
	assert.Equal(t, 1, req.Vehicles)
	assert.NotEmpty(t, req.Image)

	data, ok := rec.ModuleData(Name)
	require.True(t, ok)
	fields := data.(map[string]any)
	assert.Equal(t, 1, fields["vehicles"])

	// Low-confidence read is filtered out.
	reads := fields["plates"].([]map[string]any)
	require.Len(t, reads, 1)
	assert.Equal(t, "ABC123", reads[0]["text"])
}

func TestFrameIntervalGates(t *testing.T) {
	poster := &fakePoster{reply: []byte(`{"plates":[]}`)}
	m := newInitialized(t, poster, module.Config{
		"api_url":        "http://vision/plates",
		"frame_interval": 3,
	})

	for i := 0; i < 7; i++ {
		_, err := m.Process(context.Background(), nv12Frame(), vehicleRecord(2))
		require.NoError(t, err)
	}

	// First eligible frame posts, then every 3rd vehicle frame after.
	assert.Equal(t, 3, poster.calls)
}

func TestPosterFailure(t *testing.T) {
	poster := &fakePoster{err: assert.AnError}
	m := newInitialized(t, poster, module.Config{"api_url": "http://vision/plates"})

	status, err := m.Process(context.Background(), nv12Frame(), vehicleRecord(2))
	require.Error(t, err)
	assert.Equal(t, module.StatusError, status)
}

func TestFailedPostWaitsFullInterval(t *testing.T) {
	poster := &fakePoster{err: assert.AnError}
	m := newInitialized(t, poster, module.Config{
		"api_url":        "http://vision/plates",
		"frame_interval": 3,
	})

	status, err := m.Process(context.Background(), nv12Frame(), vehicleRecord(2))
	require.Error(t, err)
	assert.Equal(t, module.StatusError, status)
	assert.Equal(t, 1, poster.calls)

	// The failed attempt consumed the interval; the next two vehicle
	// frames skip instead of hammering the failing service.
	for i := 0; i < 2; i++ {
		status, err = m.Process(context.Background(), nv12Frame(), vehicleRecord(2))
		require.NoError(t, err)
		assert.Equal(t, module.StatusSkip, status)
	}
	assert.Equal(t, 1, poster.calls)

	_, _ = m.Process(context.Background(), nv12Frame(), vehicleRecord(2))
	assert.Equal(t, 2, poster.calls, "retry happens once the interval elapses")
}

func TestCustomVehicleClasses(t *testing.T) {
	poster := &fakePoster{reply: []byte(`{"plates":[]}`)}
	m := newInitialized(t, poster, module.Config{
		"api_url":         "http://vision/plates",
		"vehicle_classes": []any{1},
	})

	status, err := m.Process(context.Background(), nv12Frame(), vehicleRecord(2))
	require.NoError(t, err)
	assert.Equal(t, module.StatusSkip, status, "class 2 is not in the custom set")

	status, err = m.Process(context.Background(), nv12Frame(), vehicleRecord(1))
	require.NoError(t, err)
	assert.Equal(t, module.StatusSuccess, status)
}
