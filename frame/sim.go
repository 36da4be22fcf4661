package frame

import (
	"context"
	"sync"
	"time"

	"github.com/oneshot2001/axion/errors"
)

// SimSource generates synthetic NV12 frames deterministically from the
// sequence number. It enforces the get/release protocol strictly so
// pipeline tests catch leaks and double releases, and recycles released
// buffers.
type SimSource struct {
	width  int
	height int

	// sceneShiftEvery changes the base pattern every N frames so scene
	// hash and motion modules see periodic change. Zero disables.
	sceneShiftEvery int64

	maxFrames int64
	now       func() time.Time

	mu          sync.Mutex
	sequence    int64
	outstanding map[int64]*Frame
	pool        [][]byte
	closed      bool
}

// SimOption configures a SimSource.
type SimOption func(*SimSource)

// WithMaxFrames makes the source report exhaustion after n frames.
func WithMaxFrames(n int64) SimOption {
	return func(s *SimSource) { s.maxFrames = n }
}

// WithSceneShiftEvery changes the synthetic scene every n frames.
func WithSceneShiftEvery(n int64) SimOption {
	return func(s *SimSource) { s.sceneShiftEvery = n }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) SimOption {
	return func(s *SimSource) { s.now = now }
}

// NewSimSource creates a synthetic source producing width x height NV12
// frames.
func NewSimSource(width, height int, opts ...SimOption) (*SimSource, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"SimSource", "NewSimSource", "frame dimension validation")
	}

	s := &SimSource{
		width:           width,
		height:          height,
		sceneShiftEvery: 50,
		now:             time.Now,
		outstanding:     make(map[int64]*Frame),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the next synthetic frame.
func (s *SimSource) Get(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "SimSource", "Get", "frame wait")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.WrapFatal(errors.ErrSourceStopped, "SimSource", "Get", "frame acquisition")
	}
	if s.maxFrames > 0 && s.sequence >= s.maxFrames {
		return nil, errors.WrapFatal(errors.ErrSourceExhausted, "SimSource", "Get", "frame acquisition")
	}

	seq := s.sequence
	s.sequence++

	buf := s.takeBufferLocked()
	s.fill(buf, seq)

	f := &Frame{
		Buffer:      buf,
		Width:       s.width,
		Height:      s.height,
		Format:      FormatNV12,
		Sequence:    seq,
		TimestampUS: s.now().UnixMicro(),
	}
	s.outstanding[seq] = f
	return f, nil
}

// Release returns a frame's buffer to the source. Releasing a frame that
// is not outstanding is an error.
func (s *SimSource) Release(f *Frame) error {
	if f == nil {
		return errors.WrapInvalid(errors.ErrNoFrame, "SimSource", "Release", "frame validation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outstanding[f.Sequence]; !ok {
		return errors.WrapInvalid(errors.ErrFrameReleased, "SimSource", "Release", "release accounting")
	}
	delete(s.outstanding, f.Sequence)

	s.pool = append(s.pool, f.Buffer)
	f.Buffer = nil
	return nil
}

// Close stops the source. Outstanding frames may still be released.
func (s *SimSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Outstanding returns the number of frames handed out and not yet
// released.
func (s *SimSource) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding)
}

func (s *SimSource) takeBufferLocked() []byte {
	if n := len(s.pool); n > 0 {
		buf := s.pool[n-1]
		s.pool = s.pool[:n-1]
		return buf
	}
	// NV12: full-resolution Y plane plus half-resolution UV plane.
	return make([]byte, s.width*s.height*3/2)
}

// fill writes a deterministic pattern: a diagonal gradient shifted by the
// sequence for frame-to-frame motion, with a larger jump at each scene
// shift boundary.
func (s *SimSource) fill(buf []byte, seq int64) {
	shift := seq
	if s.sceneShiftEvery > 0 {
		shift += (seq / s.sceneShiftEvery) * 128
	}
	for i := range buf {
		buf[i] = byte((int64(i)/64 + shift) % 251)
	}
}
