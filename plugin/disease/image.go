package disease

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const (
	// MaxImageBytes is the largest upload accepted for analysis.
	MaxImageBytes = 4_000_000
	// MaxDimension bounds both sides of the image sent to the model.
	MaxDimension = 4096
	// JPEGQuality is the quality of the re-encoded image.
	JPEGQuality = 85
)

// Preprocess converts an uploaded PNG or JPEG into the JPEG the model expects:
// transparency flattened onto white, both sides at most MaxDimension.
func Preprocess(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.Wrap(ErrUnsupportedImage, "empty image")
	}
	if len(raw) > MaxImageBytes {
		return nil, errors.Wrapf(ErrUnsupportedImage, "image is %d bytes, limit is %d", len(raw), MaxImageBytes)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedImage, "decode config: %v", err)
	}
	if format != "png" && format != "jpeg" {
		return nil, errors.Wrapf(ErrUnsupportedImage, "format %q", format)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedImage, "decode: %v", err)
	}

	b := img.Bounds()
	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	if b.Dx() > MaxDimension || b.Dy() > MaxDimension {
		flat = imaging.Fit(flat, MaxDimension, MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, errors.Wrap(err, "failed to encode jpeg")
	}
	return buf.Bytes(), nil
}
