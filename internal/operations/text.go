package operations

import (
	"bytes"
	"context"
	"strings"

	"github.com/BUNny0021/PDF-Ofice/internal/pipeline"
	"github.com/BUNny0021/PDF-Ofice/internal/spreadsheet"
)

// PDFToExcel writes each extracted text line into its own row of a single-sheet workbook
type PDFToExcel struct{ Deps }

func (o *PDFToExcel) Definition() pipeline.Definition {
	return single("pdftoexcel", "Extract PDF text into a workbook, one line per row", "Error converting PDF to Excel.")
}

func (o *PDFToExcel) Execute(_ context.Context, req *pipeline.Request) (pipeline.Result, error) {
	lines, err := extract(o.Deps, req)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := spreadsheet.FromLines(lines, &buf); err != nil {
		return nil, err
	}
	return &pipeline.BufferResult{Data: buf.Bytes(), Name: "converted.xlsx", ContentType: ContentTypeXLSX}, nil
}

// PDFToText returns the extracted text as a plain text file
type PDFToText struct{ Deps }

func (o *PDFToText) Definition() pipeline.Definition {
	return single("pdftotext", "Extract the text of a PDF", "Error extracting text from PDF.")
}

func (o *PDFToText) Execute(_ context.Context, req *pipeline.Request) (pipeline.Result, error) {
	lines, err := extract(o.Deps, req)
	if err != nil {
		return nil, err
	}

	text := strings.Join(lines, "\n")
	if text != "" {
		text += "\n"
	}
	return &pipeline.BufferResult{
		Data:        []byte(text),
		Name:        req.File().BaseName() + ".txt",
		ContentType: ContentTypeText,
	}, nil
}

// extract pulls the text lines of the uploaded PDF through a tracked work directory
func extract(d Deps, req *pipeline.Request) ([]string, error) {
	work, err := d.Area.TempDir("extract")
	if err != nil {
		return nil, err
	}
	req.Track(work)

	return d.Engine.ExtractText(req.File().Path, work)
}
