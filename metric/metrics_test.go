package metric

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFrameProcessed(t *testing.T) {
	m := New()

	m.RecordFrameProcessed(10 * time.Millisecond)
	m.RecordFrameProcessed(20 * time.Millisecond)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.FramesProcessed), 1e-9)
}

func TestRecordFrameDropped(t *testing.T) {
	m := New()

	m.RecordFrameDropped("no_frame")
	m.RecordFrameDropped("no_frame")
	m.RecordFrameDropped("publish_failed")

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues("no_frame")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues("publish_failed")), 1e-9)
}

func TestRecordModuleOutcome(t *testing.T) {
	m := New()

	m.RecordModuleOutcome("detection", "success", time.Millisecond)
	m.RecordModuleOutcome("detection", "error", time.Millisecond)
	m.RecordModuleOutcome("motion", "success", time.Millisecond)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ModuleOutcomes.WithLabelValues("detection", "success")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ModuleOutcomes.WithLabelValues("detection", "error")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ModuleOutcomes.WithLabelValues("motion", "success")), 1e-9)
}

func TestRecordNATSStatus(t *testing.T) {
	m := New()

	m.RecordNATSStatus(true)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.NATSConnected), 1e-9)

	m.RecordNATSStatus(false)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.NATSConnected), 1e-9)
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.RecordPublished("axion.camera0.metadata")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	count, err := testutil.GatherAndCount(m.Registry(), "axion_publish_records_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
