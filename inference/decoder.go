// Package inference decodes raw accelerator output tensors into
// detections and tracks per-run timing.
package inference

import (
	"fmt"

	"github.com/oneshot2001/axion/errors"
	"github.com/oneshot2001/axion/metadata"
)

// DefaultMaxDetections caps decoded detections per frame. Candidates past
// the cap are dropped in tensor order.
const DefaultMaxDetections = 100

// boxFields is the per-candidate prefix: center x, center y, width,
// height, objectness.
const boxFields = 5

// Decoder converts a flat single-scale detection tensor into normalized
// detections. The tensor holds N candidates of (4 box coords, objectness,
// numClasses class scores); box coordinates are in model input pixels.
type Decoder struct {
	inputWidth    int
	inputHeight   int
	numClasses    int
	threshold     float64
	maxDetections int
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxDetections overrides the per-frame detection cap.
func WithMaxDetections(n int) DecoderOption {
	return func(d *Decoder) { d.maxDetections = n }
}

// NewDecoder creates a decoder for a model with the given input
// dimensions and class count. Threshold applies twice: to raw objectness
// and to the combined confidence.
func NewDecoder(inputWidth, inputHeight, numClasses int, threshold float64, opts ...DecoderOption) (*Decoder, error) {
	if inputWidth <= 0 || inputHeight <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("input dimensions %dx%d", inputWidth, inputHeight),
			"Decoder", "NewDecoder", "model input validation")
	}
	if numClasses <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("class count %d", numClasses),
			"Decoder", "NewDecoder", "class count validation")
	}
	if threshold < 0 || threshold > 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("threshold %v outside [0,1]", threshold),
			"Decoder", "NewDecoder", "threshold validation")
	}

	return &Decoder{
		inputWidth:    inputWidth,
		inputHeight:   inputHeight,
		numClasses:    numClasses,
		threshold:     threshold,
		maxDetections: DefaultMaxDetections,
	}, nil
}

// Stride returns the number of tensor values per candidate.
func (d *Decoder) Stride() int { return boxFields + d.numClasses }

// Decode walks the tensor in candidate order and returns the detections
// that pass both threshold gates, capped at the configured maximum.
// No suppression of overlapping boxes is applied.
func (d *Decoder) Decode(output []float32) ([]metadata.Detection, error) {
	stride := d.Stride()
	if len(output)%stride != 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d values not divisible by stride %d",
				errors.ErrTensorShape, len(output), stride),
			"Decoder", "Decode", "tensor shape check")
	}

	candidates := len(output) / stride
	detections := make([]metadata.Detection, 0, initialDecodeCapacity)

	for i := 0; i < candidates; i++ {
		base := i * stride

		objectness := float64(output[base+4])
		if objectness < d.threshold {
			continue
		}

		bestClass := 0
		bestScore := float64(output[base+boxFields])
		for c := 1; c < d.numClasses; c++ {
			if score := float64(output[base+boxFields+c]); score > bestScore {
				bestScore = score
				bestClass = c
			}
		}

		confidence := objectness * bestScore
		if confidence < d.threshold {
			continue
		}

		detections = append(detections, metadata.Detection{
			ClassID:    bestClass,
			Confidence: confidence,
			X:          float64(output[base+0]) / float64(d.inputWidth),
			Y:          float64(output[base+1]) / float64(d.inputHeight),
			Width:      float64(output[base+2]) / float64(d.inputWidth),
			Height:     float64(output[base+3]) / float64(d.inputHeight),
		})

		if len(detections) >= d.maxDetections {
			break
		}
	}

	return detections, nil
}

const initialDecodeCapacity = 32
