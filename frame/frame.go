// Package frame defines the capture-side contract of the pipeline: a
// frame with its buffer and identity, and a Source that hands frames out
// on a strict get/release protocol.
package frame

import "context"

// Format identifies the pixel layout of a frame buffer.
type Format string

const (
	// FormatNV12 is planar Y followed by interleaved UV at half
	// resolution, the native capture format on the target device.
	FormatNV12 Format = "nv12"
	// FormatRGB is packed 8-bit RGB, used by off-device sources.
	FormatRGB Format = "rgb"
)

// Frame is one captured image plus its identity. The buffer is owned by
// the Source; callers must Release exactly once and must not touch the
// buffer afterwards.
type Frame struct {
	Buffer      []byte
	Width       int
	Height      int
	Format      Format
	Sequence    int64
	TimestampUS int64
}

// Source produces frames. Get blocks until a frame is available or ctx
// is done. Every frame obtained from Get must be returned with Release,
// on every code path, before the next Get.
type Source interface {
	Get(ctx context.Context) (*Frame, error)
	Release(f *Frame) error
	Close() error
}
