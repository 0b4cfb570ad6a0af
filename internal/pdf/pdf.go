// Package pdf performs in-process PDF mutations on top of pdfcpu.
package pdf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sirupsen/logrus"
)

// AESKeyLength is the key size used when protecting documents
const AESKeyLength = 256

var (
	ErrNoInput           = errors.New("no input documents")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrNotEncrypted      = errors.New("document is not encrypted")
	ErrPasswordRequired  = errors.New("password is required")
)

// contentFilePattern matches the per-page files written by pdfcpu content extraction
var contentFilePattern = regexp.MustCompile(`_Content_page_(\d+)(?:_(\d+))?\.txt$`)

// Engine wraps the pdfcpu API with the configuration used across the service
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates a PDF engine
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger}
}

// PageInfo describes a single page
type PageInfo struct {
	Number   int     `json:"number"`
	Rotation int     `json:"rotation"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// Info summarises a document
type Info struct {
	PageCount int        `json:"page_count"`
	Encrypted bool       `json:"encrypted"`
	Pages     []PageInfo `json:"pages"`
}

// configuration returns a fresh pdfcpu configuration; pdfcpu mutates it per command
func (e *Engine) configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Merge writes all pages of every input, in input order, to w
func (e *Engine) Merge(paths []string, w io.Writer) error {
	if len(paths) == 0 {
		return ErrNoInput
	}

	files, err := openAll(paths)
	defer closeAll(files)
	if err != nil {
		return err
	}

	conf := e.configuration()
	if len(files) == 1 {
		// Nothing to merge with, still validate and rewrite the single document
		if err := api.Optimize(files[0], w, conf); err != nil {
			return fmt.Errorf("failed to process %s: %w", filepath.Base(paths[0]), err)
		}
		return nil
	}

	readers := make([]io.ReadSeeker, len(files))
	for i, f := range files {
		readers[i] = f
	}

	e.logger.WithField("inputs", len(paths)).Debug("Merging documents")
	if err := api.MergeRaw(readers, w, false, conf); err != nil {
		return fmt.Errorf("failed to merge documents: %w", err)
	}
	return nil
}

// PageCount returns the number of pages of the document at path
func (e *Engine) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open document: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	count, err := api.PageCount(f, e.configuration())
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return count, nil
}

// Rotate turns every page by degrees relative to its current rotation.
// degrees must be a multiple of 90.
func (e *Engine) Rotate(path string, degrees int, w io.Writer) error {
	if degrees%90 != 0 {
		return fmt.Errorf("rotation must be a multiple of 90, got %d", degrees)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := api.Rotate(f, w, degrees, nil, e.configuration()); err != nil {
		return fmt.Errorf("failed to rotate pages: %w", err)
	}
	return nil
}

// Encrypt protects the document with AES-256, using password as both user and owner password
func (e *Engine) Encrypt(path, password string, w io.Writer) error {
	if password == "" {
		return ErrPasswordRequired
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	conf := model.NewAESConfiguration(password, password, AESKeyLength)
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Encrypt(f, w, conf); err != nil {
		return fmt.Errorf("failed to encrypt document: %w", err)
	}
	return nil
}

// Decrypt removes the protection from a document.
// A wrong password yields ErrIncorrectPassword, a document without protection yields ErrNotEncrypted.
func (e *Engine) Decrypt(path, password string, w io.Writer) error {
	if password == "" {
		return ErrPasswordRequired
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	conf := e.configuration()
	conf.UserPW = password
	conf.OwnerPW = password

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return classifyDecryptError(err)
	}
	if ctx.Encrypt == nil {
		return ErrNotEncrypted
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind document: %w", err)
	}

	conf = e.configuration()
	conf.UserPW = password
	conf.OwnerPW = password
	if err := api.Decrypt(f, w, conf); err != nil {
		return classifyDecryptError(err)
	}
	return nil
}

func classifyDecryptError(err error) error {
	switch {
	case errors.Is(err, pdfcpu.ErrWrongPassword):
		return fmt.Errorf("%w: %v", ErrIncorrectPassword, err)
	case strings.Contains(strings.ToLower(err.Error()), "not encrypted"):
		return fmt.Errorf("%w: %v", ErrNotEncrypted, err)
	default:
		return fmt.Errorf("failed to decrypt document: %w", err)
	}
}

// ImagesToPDF creates a document with one page per image, each page sized to its image
func (e *Engine) ImagesToPDF(images []io.Reader, w io.Writer) error {
	if len(images) == 0 {
		return ErrNoInput
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	if err := api.ImportImages(nil, w, images, imp, e.configuration()); err != nil {
		return fmt.Errorf("failed to import images: %w", err)
	}
	return nil
}

// Info reads page count, encryption state and per-page geometry
func (e *Engine) Info(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	ctx, err := api.ReadValidateAndOptimize(f, e.configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to read page count: %w", err)
	}

	info := &Info{
		PageCount: ctx.PageCount,
		Encrypted: ctx.Encrypt != nil,
		Pages:     make([]PageInfo, 0, ctx.PageCount),
	}

	for i := 1; i <= ctx.PageCount; i++ {
		_, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		page := PageInfo{Number: i}
		if inh != nil {
			page.Rotation = normaliseRotation(inh.Rotate)
			if inh.MediaBox != nil {
				page.Width = inh.MediaBox.Width()
				page.Height = inh.MediaBox.Height()
			}
		}
		info.Pages = append(info.Pages, page)
	}

	return info, nil
}

// ExtractText returns the document text, one entry per reconstructed line, in page order.
// pdfcpu writes one content file per page into workDir, which the caller owns.
func (e *Engine) ExtractText(path, workDir string) ([]string, error) {
	if err := api.ExtractContentFile(path, workDir, nil, e.configuration()); err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}

	files, err := contentFiles(workDir)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"path":  path,
		"files": len(files),
	}).Debug("Extracted page content")

	var lines []string
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(workDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read extracted content: %w", err)
		}
		lines = append(lines, TextLines(content)...)
	}
	return lines, nil
}

// contentFiles lists extracted content files ordered by page and stream number
func contentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction directory: %w", err)
	}

	type contentFile struct {
		name   string
		page   int
		stream int
	}

	var found []contentFile
	for _, entry := range entries {
		m := contentFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		page, _ := strconv.Atoi(m[1])
		stream := 0
		if m[2] != "" {
			stream, _ = strconv.Atoi(m[2])
		}
		found = append(found, contentFile{name: entry.Name(), page: page, stream: stream})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].page != found[j].page {
			return found[i].page < found[j].page
		}
		return found[i].stream < found[j].stream
	})

	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}
	return names, nil
}

func normaliseRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

func openAll(paths []string) ([]*os.File, error) {
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return files, fmt.Errorf("failed to open %s: %w", filepath.Base(p), err)
		}
		files = append(files, f)
	}
	return files, nil
}

func closeAll(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
