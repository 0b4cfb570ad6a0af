// Package testutils holds fixtures shared by the package tests.
package testutils

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// CreateTestLogger creates a logger suitable for testing
func CreateTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

// Upload is one file part of a multipart request
type Upload struct {
	Field    string
	Filename string
	Content  []byte
}

// MultipartBody builds a multipart body from uploads and plain form fields
func MultipartBody(t *testing.T, uploads []Upload, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for _, u := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, u.Field, u.Filename))
		h.Set("Content-Type", "application/octet-stream")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(u.Content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	return body, w.FormDataContentType()
}

// NewUploadRequest builds a POST request carrying a multipart body
func NewUploadRequest(t *testing.T, target string, uploads []Upload, fields map[string]string) *http.Request {
	t.Helper()

	body, contentType := MultipartBody(t, uploads, fields)
	req, err := http.NewRequest(http.MethodPost, target, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	return req
}

// FileHeaders parses uploads into multipart file headers, as a server would receive them
func FileHeaders(t *testing.T, uploads ...Upload) []*multipart.FileHeader {
	t.Helper()

	body, contentType := MultipartBody(t, uploads, nil)
	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)

	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = form.RemoveAll()
	})

	var headers []*multipart.FileHeader
	seen := map[string]bool{}
	for _, u := range uploads {
		if seen[u.Field] {
			continue
		}
		seen[u.Field] = true
		headers = append(headers, form.File[u.Field]...)
	}
	return headers
}

// WriteScript writes an executable shell script, used to fake external converters
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

// DirEntries returns the names inside dir
func DirEntries(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// PNG encodes a solid w x h image
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

// JPEG encodes a solid w x h image
func JPEG(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h), &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return img
}
