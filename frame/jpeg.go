package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/oneshot2001/axion/errors"
)

// EncodeJPEG renders a frame to JPEG at the given quality (1-100).
func EncodeJPEG(f *Frame, quality int) ([]byte, error) {
	if f == nil || len(f.Buffer) == 0 {
		return nil, errors.WrapInvalid(errors.ErrNoFrame, "Frame", "EncodeJPEG", "frame validation")
	}
	if quality < 1 || quality > 100 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("quality %d outside 1-100", quality),
			"Frame", "EncodeJPEG", "quality validation")
	}

	img, err := toImage(f)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "Frame", "EncodeJPEG", "jpeg encode")
	}
	return buf.Bytes(), nil
}

func toImage(f *Frame) (image.Image, error) {
	switch f.Format {
	case FormatNV12:
		return nv12ToYCbCr(f)
	case FormatRGB:
		return rgbToImage(f)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("format %q not encodable", f.Format),
			"Frame", "EncodeJPEG", "format check")
	}
}

// nv12ToYCbCr deinterleaves the NV12 UV plane into the separate Cb and
// Cr planes of a 4:2:0 image.
func nv12ToYCbCr(f *Frame) (*image.YCbCr, error) {
	ySize := f.Width * f.Height
	uvSize := ySize / 2
	if len(f.Buffer) < ySize+uvSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("buffer %d short of %d for %dx%d nv12", len(f.Buffer), ySize+uvSize, f.Width, f.Height),
			"Frame", "EncodeJPEG", "buffer size check")
	}

	img := image.NewYCbCr(image.Rect(0, 0, f.Width, f.Height), image.YCbCrSubsampleRatio420)
	copy(img.Y, f.Buffer[:ySize])

	uv := f.Buffer[ySize : ySize+uvSize]
	for i := 0; i < len(uv)/2; i++ {
		img.Cb[i] = uv[2*i]
		img.Cr[i] = uv[2*i+1]
	}
	return img, nil
}

func rgbToImage(f *Frame) (image.Image, error) {
	if len(f.Buffer) < f.Width*f.Height*3 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("buffer %d short for %dx%d rgb", len(f.Buffer), f.Width, f.Height),
			"Frame", "EncodeJPEG", "buffer size check")
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * 3
			img.SetRGBA(x, y, color.RGBA{R: f.Buffer[i], G: f.Buffer[i+1], B: f.Buffer[i+2], A: 255})
		}
	}
	return img, nil
}
