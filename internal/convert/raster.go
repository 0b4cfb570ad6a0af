package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultDPI is the resolution used when rasterising pages
const DefaultDPI = 150

// Rasteriser renders PDF pages to JPEG with poppler's pdftoppm
type Rasteriser struct {
	runner *Runner
	binary string
	dpi    int
}

// NewRasteriser creates a rasteriser for the given pdftoppm binary
func NewRasteriser(runner *Runner, binary string, dpi int) *Rasteriser {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Rasteriser{runner: runner, binary: binary, dpi: dpi}
}

// Binary returns the configured pdftoppm location
func (r *Rasteriser) Binary() string {
	return r.binary
}

// FirstPage renders page 1 of input to outPrefix.jpg and returns that path
func (r *Rasteriser) FirstPage(ctx context.Context, input, outPrefix string) (string, error) {
	args := []string{
		"-jpeg",
		"-r", strconv.Itoa(r.dpi),
		"-f", "1",
		"-l", "1",
		"-singlefile",
		input,
		outPrefix,
	}

	if err := r.runner.Run(ctx, r.binary, args...); err != nil {
		return "", err
	}

	output := outPrefix + ".jpg"
	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoOutput, filepath.Base(output))
	}
	return output, nil
}
