// Package imaging normalises uploaded raster images before they are embedded in a PDF.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	// Registered decoders
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned for data no registered decoder understands
var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

// Image is a decoded image re-encoded as lossless PNG
type Image struct {
	Format string // source format as reported by the decoder
	Width  int
	Height int
	PNG    []byte
}

// Reader returns the PNG bytes as a reader
func (i *Image) Reader() io.Reader {
	return bytes.NewReader(i.PNG)
}

// NormaliseToPNG decodes any supported raster format and re-encodes it as PNG.
// JPEG, PNG, GIF (first frame), BMP, TIFF and WebP are accepted.
func NormaliseToPNG(r io.Reader) (*Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrUnsupportedImage)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}

	return &Image{
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		PNG:    buf.Bytes(),
	}, nil
}
