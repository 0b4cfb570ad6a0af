package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/BUNny0021/PDF-Ofice/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func encodeWith(t *testing.T, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 7))
	img.Set(3, 3, color.RGBA{G: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	return buf.Bytes()
}

func TestNormaliseToPNG(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		format string
		width  int
		height int
	}{
		{"jpeg", testutils.JPEG(t, 30, 20), "jpeg", 30, 20},
		{"png", testutils.PNG(t, 5, 9), "png", 5, 9},
		{"gif", encodeWith(t, func(b *bytes.Buffer, i image.Image) error { return gif.Encode(b, i, nil) }), "gif", 12, 7},
		{"bmp", encodeWith(t, func(b *bytes.Buffer, i image.Image) error { return bmp.Encode(b, i) }), "bmp", 12, 7},
		{"tiff", encodeWith(t, func(b *bytes.Buffer, i image.Image) error { return tiff.Encode(b, i, nil) }), "tiff", 12, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := NormaliseToPNG(bytes.NewReader(tt.data))
			require.NoError(t, err)

			assert.Equal(t, tt.format, img.Format)
			assert.Equal(t, tt.width, img.Width)
			assert.Equal(t, tt.height, img.Height)

			decoded, err := png.Decode(img.Reader())
			require.NoError(t, err)
			assert.Equal(t, tt.width, decoded.Bounds().Dx())
			assert.Equal(t, tt.height, decoded.Bounds().Dy())
		})
	}
}

func TestNormaliseToPNG_RejectsGarbage(t *testing.T) {
	_, err := NormaliseToPNG(bytes.NewReader([]byte("%PDF-1.4 definitely not an image")))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}
