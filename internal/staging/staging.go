// Package staging owns the directory that holds request-scoped temporary files.
// Every upload and every intermediate artifact lives here until the request that created it completes.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// maxNameLength bounds the sanitised part of a staged file name
	maxNameLength = 100

	// createAttempts is how often a colliding name is regenerated before giving up
	createAttempts = 3
)

var (
	ErrNoFiles         = errors.New("no files were uploaded")
	ErrFileTooLarge    = errors.New("uploaded file exceeds the size limit")
	ErrFileIsEmpty     = errors.New("uploaded file is empty")
	ErrOutsideStaging  = errors.New("path is outside the staging directory")
	ErrNameUnavailable = errors.New("could not allocate a unique staged file name")
)

// File is one uploaded file written to the staging area
type File struct {
	Path         string
	OriginalName string
	Ext          string // lower-case extension of OriginalName, including the dot
	MIME         string
	Size         int64
	CreatedAt    time.Time
}

// BaseName returns the original file name without its extension
func (f *File) BaseName() string {
	return strings.TrimSuffix(f.OriginalName, filepath.Ext(f.OriginalName))
}

// Option configures an Area
type Option func(*Area)

// WithMaxFileSize sets the per-file limit enforced while staging
func WithMaxFileSize(size int64) Option {
	return func(a *Area) {
		a.maxFileSize = size
	}
}

// WithCleanupFailureHook registers a callback invoked whenever a path cannot be removed
func WithCleanupFailureHook(hook func(path string, err error)) Option {
	return func(a *Area) {
		a.onCleanupFailure = hook
	}
}

// WithSweepHook registers a callback receiving the number of entries each janitor pass removed
func WithSweepHook(hook func(removed int)) Option {
	return func(a *Area) {
		a.onSweep = hook
	}
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(a *Area) {
		a.now = now
	}
}

// Area is the process-wide staging directory.
// It is safe for concurrent use. Entries created through it stay in-flight until Cleanup removes
// them, and the janitor never sweeps an in-flight entry.
type Area struct {
	dir              string
	logger           *logrus.Logger
	maxFileSize      int64
	onCleanupFailure func(path string, err error)
	onSweep          func(removed int)
	now              func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

// NewArea creates the staging directory if needed and returns an Area rooted in it
func NewArea(dir string, logger *logrus.Logger, opts ...Option) (*Area, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve staging directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", abs, err)
	}

	a := &Area{
		dir:    abs,
		logger: logger,
		now:    time.Now,
		active: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Dir returns the absolute path of the staging directory
func (a *Area) Dir() string {
	return a.dir
}

// Stage writes a single multipart upload into the staging area
func (a *Area) Stage(fh *multipart.FileHeader) (*File, error) {
	if fh == nil {
		return nil, ErrNoFiles
	}
	if a.maxFileSize > 0 && fh.Size > a.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, fh.Filename, fh.Size, a.maxFileSize)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer func() {
		_ = src.Close()
	}()

	return a.StageReader(fh.Filename, src)
}

// StageAll stages uploads in order. If any upload fails, the ones already staged are removed.
func (a *Area) StageAll(fhs []*multipart.FileHeader) ([]*File, error) {
	if len(fhs) == 0 {
		return nil, ErrNoFiles
	}

	files := make([]*File, 0, len(fhs))
	for _, fh := range fhs {
		f, err := a.Stage(fh)
		if err != nil {
			a.Cleanup(files)
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// StageReader copies r into a new staged file named after originalName
func (a *Area) StageReader(originalName string, r io.Reader) (*File, error) {
	original := originalBaseName(originalName)

	dst, path, err := a.create(sanitiseName(original))
	if err != nil {
		return nil, err
	}

	src := r
	if a.maxFileSize > 0 {
		src = io.LimitReader(r, a.maxFileSize+1)
	}

	written, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()

	switch {
	case copyErr != nil:
		a.Cleanup(path)
		return nil, fmt.Errorf("failed to write staged file for %s: %w", original, copyErr)
	case closeErr != nil:
		a.Cleanup(path)
		return nil, fmt.Errorf("failed to close staged file for %s: %w", original, closeErr)
	case a.maxFileSize > 0 && written > a.maxFileSize:
		a.Cleanup(path)
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, original, a.maxFileSize)
	case written == 0:
		a.Cleanup(path)
		return nil, fmt.Errorf("%w: %s", ErrFileIsEmpty, original)
	}

	f := &File{
		Path:         path,
		OriginalName: original,
		Ext:          strings.ToLower(filepath.Ext(original)),
		Size:         written,
		CreatedAt:    a.now(),
	}

	if mt, err := mimetype.DetectFile(path); err == nil {
		f.MIME = mt.String()
	} else {
		f.MIME = "application/octet-stream"
	}

	a.logger.WithFields(logrus.Fields{
		"path":     path,
		"original": original,
		"size":     written,
		"mime":     f.MIME,
	}).Debug("Staged upload")

	return f, nil
}

// TempDir creates a fresh directory inside the staging area
func (a *Area) TempDir(prefix string) (string, error) {
	for range createAttempts {
		dir := filepath.Join(a.dir, a.uniqueName(sanitiseName(prefix)))
		err := os.Mkdir(dir, 0700)
		if err == nil {
			a.acquire(dir)
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create staging subdirectory: %w", err)
		}
	}
	return "", ErrNameUnavailable
}

// Contains reports whether path resolves to an entry inside the staging directory
func (a *Area) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(a.dir, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// create opens a new exclusive file for the given sanitised name
func (a *Area) create(name string) (*os.File, string, error) {
	for range createAttempts {
		path := filepath.Join(a.dir, a.uniqueName(name))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			a.acquire(path)
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create staged file: %w", err)
		}
	}
	return nil, "", ErrNameUnavailable
}

// acquire marks a top-level entry as owned by a running request
func (a *Area) acquire(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active[filepath.Clean(path)] = struct{}{}
}

// release hands an entry back once its request has removed it
func (a *Area) release(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, filepath.Clean(path))
}

// inFlight reports whether path is a staged entry whose request has not cleaned it up yet
func (a *Area) inFlight(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.active[filepath.Clean(path)]
	return ok
}

// uniqueName builds a time-ordered name: <unix millis>-<8 random hex>-<name>
func (a *Area) uniqueName(name string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s-%s", a.now().UnixMilli(), id, name)
}

// originalBaseName strips any client-supplied directory components
func originalBaseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return "upload"
	}
	return name
}

// sanitiseName keeps a file name safe for use on disk
func sanitiseName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	safe := strings.Trim(b.String(), ".")
	if safe == "" {
		safe = "upload"
	}
	if len(safe) > maxNameLength {
		safe = safe[len(safe)-maxNameLength:]
	}
	return safe
}

// RunJanitor periodically removes orphaned entries older than maxAge until ctx is cancelled
func (a *Area) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		a.logger.Debug("Staging janitor disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := a.Sweep(maxAge); err != nil {
				a.logger.WithError(err).Warn("Staging sweep failed")
			} else if removed > 0 {
				a.logger.WithField("removed", removed).Info("Staging sweep removed orphaned entries")
				if a.onSweep != nil {
					a.onSweep(removed)
				}
			}
		}
	}
}
