package inference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneshot2001/axion/errors"
)

// candidate builds one tensor row: box in model input pixels, objectness,
// then class scores.
func candidate(x, y, w, h, obj float32, scores ...float32) []float32 {
	row := []float32{x, y, w, h, obj}
	return append(row, scores...)
}

func newTestDecoder(t *testing.T, opts ...DecoderOption) *Decoder {
	t.Helper()
	d, err := NewDecoder(640, 640, 3, 0.5, opts...)
	require.NoError(t, err)
	return d
}

func TestNewDecoderValidation(t *testing.T) {
	_, err := NewDecoder(0, 640, 3, 0.5)
	require.Error(t, err)

	_, err = NewDecoder(640, 640, 0, 0.5)
	require.Error(t, err)

	_, err = NewDecoder(640, 640, 3, 1.5)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDecodeConfidenceProduct(t *testing.T) {
	d := newTestDecoder(t)

	// Objectness 0.9 with best class score 0.9 passes at threshold 0.5
	// with combined confidence 0.81.
	out := candidate(320, 320, 64, 128, 0.9, 0.1, 0.9, 0.2)

	dets, err := d.Decode(out)
	require.NoError(t, err)
	require.Len(t, dets, 1)

	assert.Equal(t, 1, dets[0].ClassID)
	assert.InDelta(t, 0.81, dets[0].Confidence, 1e-9)
	assert.InDelta(t, 0.5, dets[0].X, 1e-9)
	assert.InDelta(t, 0.5, dets[0].Y, 1e-9)
	assert.InDelta(t, 0.1, dets[0].Width, 1e-9)
	assert.InDelta(t, 0.2, dets[0].Height, 1e-9)
}

func TestDecodeObjectnessGate(t *testing.T) {
	d := newTestDecoder(t)

	// Objectness below threshold is skipped without looking at class
	// scores, even when a class score alone would pass.
	out := candidate(0, 0, 10, 10, 0.4, 0.99, 0.0, 0.0)

	dets, err := d.Decode(out)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDecodeCombinedGate(t *testing.T) {
	d := newTestDecoder(t)

	// Objectness passes but 0.6*0.6 = 0.36 misses the threshold.
	out := candidate(0, 0, 10, 10, 0.6, 0.6, 0.1, 0.1)

	dets, err := d.Decode(out)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDecodeBestClassWins(t *testing.T) {
	d := newTestDecoder(t)

	out := candidate(0, 0, 10, 10, 0.95, 0.7, 0.85, 0.8)

	dets, err := d.Decode(out)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 1, dets[0].ClassID)
	assert.InDelta(t, 0.95*0.85, dets[0].Confidence, 1e-9)
}

func TestDecodePreservesCandidateOrder(t *testing.T) {
	d := newTestDecoder(t)

	var out []float32
	out = append(out, candidate(10, 0, 5, 5, 0.9, 0.9, 0, 0)...)
	out = append(out, candidate(0, 0, 5, 5, 0.4, 0, 0, 0)...) // gated
	out = append(out, candidate(20, 0, 5, 5, 0.9, 0, 0.9, 0)...)
	out = append(out, candidate(30, 0, 5, 5, 0.9, 0, 0, 0.9)...)

	dets, err := d.Decode(out)
	require.NoError(t, err)
	require.Len(t, dets, 3)
	assert.Equal(t, 0, dets[0].ClassID)
	assert.Equal(t, 1, dets[1].ClassID)
	assert.Equal(t, 2, dets[2].ClassID)
}

func TestDecodeCapsDetections(t *testing.T) {
	d := newTestDecoder(t, WithMaxDetections(5))

	var out []float32
	for i := 0; i < 20; i++ {
		out = append(out, candidate(float32(i), 0, 5, 5, 0.9, 0.9, 0, 0)...)
	}

	dets, err := d.Decode(out)
	require.NoError(t, err)
	assert.Len(t, dets, 5)
	// First candidates in tensor order survive the cap.
	assert.InDelta(t, 0.0, dets[0].X, 1e-9)
	assert.InDelta(t, 4.0/640.0, dets[4].X, 1e-9)
}

func TestDecodeRejectsMalformedTensor(t *testing.T) {
	d := newTestDecoder(t)

	_, err := d.Decode(make([]float32, 7))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrTensorShape)
}

func TestDecodeEmptyTensor(t *testing.T) {
	d := newTestDecoder(t)

	dets, err := d.Decode(nil)
	require.NoError(t, err)
	assert.NotNil(t, dets)
	assert.Empty(t, dets)
}

func TestTiming(t *testing.T) {
	var timing Timing
	assert.Equal(t, time.Duration(0), timing.Average())

	timing.Record(10 * time.Millisecond)
	timing.Record(30 * time.Millisecond)

	assert.Equal(t, int64(2), timing.Count())
	assert.Equal(t, 20*time.Millisecond, timing.Average())
	assert.Equal(t, 30*time.Millisecond, timing.Last())
}

func TestStaticEngine(t *testing.T) {
	engine := &StaticEngine{Output: []float32{1, 2, 3}}

	out, err := engine.Infer(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, out)

	// Returned tensor is a copy.
	out[0] = 99
	assert.Equal(t, float32(1), engine.Output[0])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Infer(ctx, nil)
	assert.Error(t, err)

	assert.NoError(t, engine.Close())
}
