// Package pipeline runs every conversion endpoint through the same sequence:
// stage the uploads, execute the operation, emit the result, then clean up.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BUNny0021/PDF-Ofice/internal/staging"
)

// InputMode says which multipart parts an operation reads its files from
type InputMode int

const (
	// InputSingle reads exactly one file from the "file" part
	InputSingle InputMode = iota
	// InputMultiple reads one or more files from the "files" (or "files[]") parts
	InputMultiple
)

func (m InputMode) String() string {
	if m == InputMultiple {
		return "multiple"
	}
	return "single"
}

// MarshalText renders the mode for JSON listings
func (m InputMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Field is a required form value and the message returned when it is missing
type Field struct {
	Name    string `json:"name"`
	Message string `json:"-"`
}

// Definition describes an operation for routing, validation and listings
type Definition struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Description string    `json:"description"`
	Input       InputMode `json:"input"`
	Required    []Field   `json:"required,omitempty"`

	// NoFilesMessage is returned when the request carries no usable upload
	NoFilesMessage string `json:"-"`
	// FailureMessage is returned when the operation fails with an unclassified error
	FailureMessage string `json:"-"`
}

// Operation is the interface every conversion endpoint implements
type Operation interface {
	// Definition returns the operation's routing and validation metadata
	Definition() Definition

	// Execute transforms the staged request into a result. Any intermediate file it creates
	// inside the staging area must be registered with Request.Track.
	Execute(ctx context.Context, req *Request) (Result, error)
}

// Request is the input of one operation invocation
type Request struct {
	Operation string
	RequestID string
	Files     []*staging.File
	Params    map[string]string

	mu      sync.Mutex
	tracked []string
}

// File returns the first staged file, or nil
func (r *Request) File() *staging.File {
	if len(r.Files) == 0 {
		return nil
	}
	return r.Files[0]
}

// Paths returns the staged file paths in upload order
func (r *Request) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// Param returns a trimmed form value
func (r *Request) Param(name string) string {
	return strings.TrimSpace(r.Params[name])
}

// Track registers intermediate paths for removal when the request completes
func (r *Request) Track(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range paths {
		if p != "" {
			r.tracked = append(r.tracked, p)
		}
	}
}

// cleanupPaths returns every path owned by the request, each once
func (r *Request) cleanupPaths(extra ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}

	for _, f := range r.Files {
		if f != nil {
			add(f.Path)
		}
	}
	for _, p := range r.tracked {
		add(p)
	}
	for _, p := range extra {
		add(p)
	}
	return dropNested(paths)
}

// dropNested removes paths lying inside another listed path, which is removed as a whole
func dropNested(paths []string) []string {
	kept := paths[:0]
	for _, p := range paths {
		nested := false
		for _, parent := range paths {
			if parent != p && strings.HasPrefix(p, parent+string(filepath.Separator)) {
				nested = true
				break
			}
		}
		if !nested {
			kept = append(kept, p)
		}
	}
	return kept
}

// Result is the output of an operation: either a *FileResult or a *BufferResult
type Result interface {
	result()
}

// FileResult is an artifact on disk inside the staging area, streamed to the client
type FileResult struct {
	Path        string
	Name        string
	ContentType string
}

// BufferResult is an artifact held in memory
type BufferResult struct {
	Data        []byte
	Name        string
	ContentType string
	// Inline serves the body with an inline disposition instead of as an attachment
	Inline bool
}

func (*FileResult) result()   {}
func (*BufferResult) result() {}
