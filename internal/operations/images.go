package operations

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/BUNny0021/PDF-Ofice/internal/imaging"
	"github.com/BUNny0021/PDF-Ofice/internal/pipeline"
	"github.com/BUNny0021/PDF-Ofice/internal/staging"
	"github.com/sirupsen/logrus"
)

// ImagesToPDF places each uploaded image on its own page, sized to the image, in upload order
type ImagesToPDF struct{ Deps }

func (o *ImagesToPDF) Definition() pipeline.Definition {
	return multiple("jpgtopdf", "Combine images into a PDF, one page per image", "Error converting JPG to PDF.")
}

func (o *ImagesToPDF) Execute(_ context.Context, req *pipeline.Request) (pipeline.Result, error) {
	pages := make([]io.Reader, 0, len(req.Files))
	for _, f := range req.Files {
		img, err := decode(f)
		if err != nil {
			return nil, err
		}
		o.Logger.WithFields(logrus.Fields{
			"request_id": req.RequestID,
			"image":      f.OriginalName,
			"format":     img.Format,
			"width":      img.Width,
			"height":     img.Height,
		}).Debug("Decoded image")
		pages = append(pages, img.Reader())
	}

	return buffer("converted.pdf", func(w io.Writer) error {
		return o.Engine.ImagesToPDF(pages, w)
	})
}

func decode(f *staging.File) (*imaging.Image, error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.OriginalName, err)
	}
	defer func() {
		_ = src.Close()
	}()

	img, err := imaging.NormaliseToPNG(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.OriginalName, err)
	}
	return img, nil
}
