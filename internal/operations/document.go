package operations

import (
	"context"
	"errors"
	"io"

	"github.com/BUNny0021/PDF-Ofice/internal/pdf"
	"github.com/BUNny0021/PDF-Ofice/internal/pipeline"
	"github.com/sirupsen/logrus"
)

// Merge concatenates every page of every uploaded PDF, in upload order
type Merge struct{ Deps }

func (o *Merge) Definition() pipeline.Definition {
	return multiple("merge", "Merge PDFs into one document, keeping upload order", "Error merging PDFs.")
}

func (o *Merge) Execute(_ context.Context, req *pipeline.Request) (pipeline.Result, error) {
	return buffer("merged.pdf", func(w io.Writer) error {
		return o.Engine.Merge(req.Paths(), w)
	})
}

// Split validates the document and returns it unchanged; producing separate files is not supported
type Split struct{ Deps }

func (o *Split) Definition() pipeline.Definition {
	return single("split", "Validate a PDF and return it unchanged", "Error splitting PDF.")
}

func (o *Split) Execute(_ context.Context, req *pipeline.Request) (pipeline.Result, error) {
	f := req.File()
	pages, err := o.Engine.PageCount(f.Path)
	if err != nil {
		return nil, err
	}

	o.Logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"pages":      pages,
	}).Info("Split requested, returning the original document")

	return &pipeline.FileResult{Path: f.Path, Name: "split-result.pdf", ContentType: ContentTypePDF}, nil
}

// Compress returns the upload unchanged under a compressed- name
type Compress struct{ Deps }

func (o *Compress) Definition() pipeline.Definition {
	return single("compress", "Return the file unchanged under a compressed- name", "Error compressing file.")
}

func (o *Compress) Execute(_ context.Context, req *pipeline.Request) (pipeline.Result, error) {
	f := req.File()
	o.Logger.WithField("request_id", req.RequestID).Debug("Compression returns the original file")
	return &pipeline.FileResult{Path: f.Path, Name: "compressed-" + f.OriginalName, ContentType: f.MIME}, nil
}

// Rotate turns every page 90 degrees clockwise relative to its current rotation
type Rotate struct{ Deps }

// rotationStep is added to each page's rotation
const rotationStep = 90

func (o *Rotate) Definition() pipeline.Definition {
	return single("rotate", "Rotate every page by 90 degrees", "Error rotating PDF.")
}

func (o *Rotate) Execute(_ context.Context, req *pipeline.Request) (pipeline.Result, error) {
	return buffer("rotated.pdf", func(w io.Writer) error {
		return o.Engine.Rotate(req.File().Path, rotationStep, w)
	})
}

// Protect encrypts the document with the password as both user and owner password
type Protect struct{ Deps }

func (o *Protect) Definition() pipeline.Definition {
	return single("protect", "Encrypt a PDF with a password", "Error protecting PDF.", passwordRequired())
}

func (o *Protect) Execute(_ context.Context, req *pipeline.Request) (pipeline.Result, error) {
	f := req.File()
	return buffer("protected-"+f.OriginalName, func(w io.Writer) error {
		return o.Engine.Encrypt(f.Path, req.Param(passwordField), w)
	})
}

// Unlock removes the encryption of a password protected document
type Unlock struct{ Deps }

const unlockFailure = "Error unlocking PDF. It might not be encrypted."

func (o *Unlock) Definition() pipeline.Definition {
	return single("unlock", "Remove the password from an encrypted PDF", unlockFailure, passwordRequired())
}

func (o *Unlock) Execute(_ context.Context, req *pipeline.Request) (pipeline.Result, error) {
	f := req.File()
	result, err := buffer("unlocked-"+f.OriginalName, func(w io.Writer) error {
		return o.Engine.Decrypt(f.Path, req.Param(passwordField), w)
	})
	if errors.Is(err, pdf.ErrIncorrectPassword) {
		return nil, pipeline.Auth("Incorrect password.", err)
	}
	return result, err
}

// Info reports page count, encryption and per-page geometry as JSON
type Info struct{ Deps }

func (o *Info) Definition() pipeline.Definition {
	return single("info", "Describe a PDF: page count, encryption and page geometry", "Error reading PDF.")
}

func (o *Info) Execute(_ context.Context, req *pipeline.Request) (pipeline.Result, error) {
	info, err := o.Engine.Info(req.File().Path)
	if err != nil {
		return nil, err
	}
	return jsonResult(info)
}
