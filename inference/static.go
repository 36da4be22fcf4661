package inference

import "context"

// StaticEngine returns a fixed output tensor on every run. It stands in
// for the hardware engine when the pipeline runs off-device, for demos
// and integration tests.
type StaticEngine struct {
	Output []float32
	Err    error
}

// Infer returns a copy of the configured tensor.
func (s *StaticEngine) Infer(ctx context.Context, _ []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]float32, len(s.Output))
	copy(out, s.Output)
	return out, nil
}

// Close is a no-op.
func (s *StaticEngine) Close() error { return nil }
