package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Target formats understood by the office suite
const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"

	// FilterPDFImport makes the office suite open a PDF in the text document editor
	FilterPDFImport = "writer_pdf_import"
)

// Office converts documents with a headless office suite (soffice)
type Office struct {
	runner *Runner
	binary string
}

// NewOffice creates an office converter for the given soffice binary
func NewOffice(runner *Runner, binary string) *Office {
	return &Office{runner: runner, binary: binary}
}

// Binary returns the configured soffice location
func (o *Office) Binary() string {
	return o.binary
}

// OfficeJob describes one office conversion
type OfficeJob struct {
	Input  string
	OutDir string
	// ProfileDir is a private user installation so concurrent conversions do not share a profile lock
	ProfileDir string
	Format     string
	Filter     string // optional input filter
}

// Convert runs the conversion and returns the path of the produced file.
// The output is named after the input with the target extension, inside OutDir.
func (o *Office) Convert(ctx context.Context, job OfficeJob) (string, error) {
	args := []string{"--headless", "--norestore", "--nolockcheck"}
	if job.ProfileDir != "" {
		args = append(args, "-env:UserInstallation="+fileURL(job.ProfileDir))
	}
	if job.Filter != "" {
		args = append(args, "--infilter="+job.Filter)
	}
	args = append(args, "--convert-to", job.Format, "--outdir", job.OutDir, job.Input)

	if err := o.runner.Run(ctx, o.binary, args...); err != nil {
		return "", err
	}

	output := filepath.Join(job.OutDir, outputName(job.Input, job.Format))
	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoOutput, filepath.Base(output))
	}
	return output, nil
}

// outputName mirrors how soffice names converted files: input base name plus the format extension
func outputName(input, format string) string {
	ext := format
	if i := strings.IndexByte(ext, ':'); i >= 0 {
		ext = ext[:i]
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "." + ext
}

func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
