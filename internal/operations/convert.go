package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BUNny0021/PDF-Ofice/internal/convert"
	"github.com/BUNny0021/PDF-Ofice/internal/pipeline"
)

// OfficeConversion converts one document with the office suite
type OfficeConversion struct {
	Deps
	def         pipeline.Definition
	format      string
	filter      string
	contentType string
}

// NewPDFToWord opens the PDF in the text editor and saves it as DOCX
func NewPDFToWord(d Deps) *OfficeConversion {
	return &OfficeConversion{
		Deps:        d,
		def:         single("pdftoword", "Convert a PDF to a Word document", "Error converting file to docx."),
		format:      convert.FormatDOCX,
		filter:      convert.FilterPDFImport,
		contentType: ContentTypeDOCX,
	}
}

// NewWordToPDF renders a word processing document as PDF
func NewWordToPDF(d Deps) *OfficeConversion {
	return &OfficeConversion{
		Deps:        d,
		def:         single("wordtopdf", "Convert a Word document to PDF", "Error converting file to pdf."),
		format:      convert.FormatPDF,
		contentType: ContentTypePDF,
	}
}

// NewExcelToPDF renders a spreadsheet as PDF
func NewExcelToPDF(d Deps) *OfficeConversion {
	return &OfficeConversion{
		Deps:        d,
		def:         single("exceltopdf", "Convert a spreadsheet to PDF", "Error converting file to pdf."),
		format:      convert.FormatPDF,
		contentType: ContentTypePDF,
	}
}

func (o *OfficeConversion) Definition() pipeline.Definition {
	return o.def
}

func (o *OfficeConversion) Execute(ctx context.Context, req *pipeline.Request) (pipeline.Result, error) {
	f := req.File()

	work, err := o.Area.TempDir(o.def.Name)
	if err != nil {
		return nil, err
	}
	req.Track(work)

	outDir := filepath.Join(work, "out")
	if err := os.Mkdir(outDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	output, err := o.Office.Convert(ctx, convert.OfficeJob{
		Input:      f.Path,
		OutDir:     outDir,
		ProfileDir: filepath.Join(work, "profile"),
		Format:     o.format,
		Filter:     o.filter,
	})
	if err != nil {
		return nil, err
	}

	return &pipeline.FileResult{
		Path:        output,
		Name:        f.BaseName() + "." + o.format,
		ContentType: o.contentType,
	}, nil
}

// PDFToJPG rasterises the first page of a PDF
type PDFToJPG struct{ Deps }

func (o *PDFToJPG) Definition() pipeline.Definition {
	return single("pdftojpg", "Render the first page of a PDF as JPEG", "Error converting PDF to JPG.")
}

func (o *PDFToJPG) Execute(ctx context.Context, req *pipeline.Request) (pipeline.Result, error) {
	f := req.File()

	work, err := o.Area.TempDir("pdftojpg")
	if err != nil {
		return nil, err
	}
	req.Track(work)

	output, err := o.Rasteriser.FirstPage(ctx, f.Path, filepath.Join(work, "page"))
	if err != nil {
		return nil, err
	}

	return &pipeline.FileResult{Path: output, Name: f.BaseName() + ".jpg", ContentType: ContentTypeJPEG}, nil
}
