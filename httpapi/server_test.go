package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneshot2001/axion/health"
	"github.com/oneshot2001/axion/metadata"
	"github.com/oneshot2001/axion/metric"
	"github.com/oneshot2001/axion/module"
)

type fakeView struct {
	descs   []module.Descriptor
	latest  metadata.Snapshot
	hasRec  bool
	tracker *health.Tracker
}

func (v *fakeView) Descriptors() []module.Descriptor  { return v.descs }
func (v *fakeView) Latest() (metadata.Snapshot, bool) { return v.latest, v.hasRec }
func (v *fakeView) Health() *health.Tracker           { return v.tracker }

func newTestServer(t *testing.T, view *fakeView) *httptest.Server {
	t.Helper()
	if view.tracker == nil {
		view.tracker = health.NewTracker()
	}
	s, err := NewServer(":0", "camera0", view, metric.New(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer("", "cam", &fakeView{}, nil, nil)
	require.Error(t, err)

	_, err = NewServer(":8080", "cam", nil, nil, nil)
	require.Error(t, err)
}

func TestStatusEndpoint(t *testing.T) {
	view := &fakeView{
		descs:   []module.Descriptor{{Name: "detection", Priority: 10}},
		tracker: health.NewTracker(),
	}
	view.tracker.RecordProcessed(41)
	view.tracker.RecordProcessed(42)

	srv := newTestServer(t, view)
	resp := get(t, srv, "/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "camera0", status.CameraID)
	assert.Equal(t, 1, status.Modules)
	assert.Equal(t, int64(2), status.Health.FramesProcessed)
	assert.Equal(t, int64(42), status.Health.LastSequence)
}

func TestModulesEndpoint(t *testing.T) {
	view := &fakeView{descs: []module.Descriptor{
		{Name: "detection", Version: "1.0.0", Priority: 10},
		{Name: "motion", Version: "1.0.0", Priority: 20},
	}}

	srv := newTestServer(t, view)
	resp := get(t, srv, "/modules")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var mods []moduleInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mods))
	require.Len(t, mods, 2)
	assert.Equal(t, "detection", mods[0].Name)
	assert.Equal(t, 20, mods[1].Priority)
}

func TestDetectionsEndpoint(t *testing.T) {
	rec := metadata.New(9, 100)
	rec.AddDetection(metadata.Detection{ClassID: 2, Confidence: 0.7})

	view := &fakeView{latest: rec.Finalize(), hasRec: true}
	srv := newTestServer(t, view)

	resp := get(t, srv, "/detections")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap metadata.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(9), snap.Sequence)
	require.Len(t, snap.Detections, 1)
}

func TestDetectionsEndpointNoRecord(t *testing.T) {
	srv := newTestServer(t, &fakeView{})
	resp := get(t, srv, "/detections")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeView{})
	resp := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeView{})
	resp := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
