// Package operations implements every conversion endpoint on top of the PDF engine,
// the external converters, and the image and spreadsheet helpers.
package operations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/BUNny0021/PDF-Ofice/internal/convert"
	"github.com/BUNny0021/PDF-Ofice/internal/pdf"
	"github.com/BUNny0021/PDF-Ofice/internal/pipeline"
	"github.com/BUNny0021/PDF-Ofice/internal/staging"
	"github.com/sirupsen/logrus"
)

// Content types of the produced artifacts
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeJPEG = "image/jpeg"
	ContentTypeText = "text/plain; charset=utf-8"
)

const (
	noFileMessage   = "No file uploaded."
	noFilesMessage  = "No files uploaded."
	passwordMissing = "Password is required."
	passwordField   = "password"
)

// Deps are the collaborators shared by all operations
type Deps struct {
	Area       *staging.Area
	Engine     *pdf.Engine
	Office     *convert.Office
	Rasteriser *convert.Rasteriser
	Logger     *logrus.Logger
}

// All returns every operation, in the order they are listed to clients
func All(d Deps) []pipeline.Operation {
	return []pipeline.Operation{
		&Merge{d},
		&Split{d},
		&Compress{d},
		NewPDFToWord(d),
		NewWordToPDF(d),
		NewExcelToPDF(d),
		&ImagesToPDF{d},
		&PDFToJPG{d},
		&Rotate{d},
		&Protect{d},
		&Unlock{d},
		&PDFToExcel{d},
		&PDFToText{d},
		&Info{d},
	}
}

// single returns the definition shared by single-file operations
func single(name, description, failure string, required ...pipeline.Field) pipeline.Definition {
	return pipeline.Definition{
		Name:           name,
		Path:           "/api/" + name,
		Description:    description,
		Input:          pipeline.InputSingle,
		Required:       required,
		NoFilesMessage: noFileMessage,
		FailureMessage: failure,
	}
}

// multiple returns the definition shared by multi-file operations
func multiple(name, description, failure string) pipeline.Definition {
	return pipeline.Definition{
		Name:           name,
		Path:           "/api/" + name,
		Description:    description,
		Input:          pipeline.InputMultiple,
		NoFilesMessage: noFilesMessage,
		FailureMessage: failure,
	}
}

func passwordRequired() pipeline.Field {
	return pipeline.Field{Name: passwordField, Message: passwordMissing}
}

// buffer runs write into memory and wraps the bytes as a PDF result
func buffer(name string, write func(w io.Writer) error) (pipeline.Result, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%s: empty output", name)
	}
	return &pipeline.BufferResult{Data: buf.Bytes(), Name: name, ContentType: ContentTypePDF}, nil
}

// jsonResult serves v inline as a JSON document
func jsonResult(v any) (pipeline.Result, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &pipeline.BufferResult{Data: data, Name: "info.json", ContentType: "application/json; charset=utf-8", Inline: true}, nil
}
