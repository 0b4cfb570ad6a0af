package registry

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/BUNny0021/PDF-Ofice/internal/pipeline"
	"github.com/sirupsen/logrus"
)

// DisabledOperationsEnv lists operations, comma separated, that are not served
const DisabledOperationsEnv = "DISABLED_OPERATIONS"

// Registry holds the operations the server exposes
type Registry struct {
	mu         sync.RWMutex
	operations map[string]pipeline.Operation
	disabled   map[string]bool
	logger     *logrus.Logger
}

// New creates a registry. Operations named in disabled or in DISABLED_OPERATIONS are never registered.
func New(logger *logrus.Logger, disabled []string) *Registry {
	r := &Registry{
		operations: make(map[string]pipeline.Operation),
		disabled:   make(map[string]bool),
		logger:     logger,
	}
	r.parseDisabledOperations(disabled)
	return r
}

// parseDisabledOperations merges the configured list with the DISABLED_OPERATIONS environment variable
func (r *Registry) parseDisabledOperations(configured []string) {
	add := func(name, source string) {
		name = normaliseName(name)
		if name == "" {
			return
		}
		r.disabled[name] = true
		if r.logger != nil {
			r.logger.WithField("operation", name).WithField("source", source).Debug("Operation disabled")
		}
	}

	for _, name := range configured {
		add(name, "config")
	}

	if env := os.Getenv(DisabledOperationsEnv); env != "" {
		for name := range strings.SplitSeq(env, ",") {
			add(name, DisabledOperationsEnv)
		}
	}

	if r.logger != nil && len(r.disabled) > 0 {
		r.logger.WithField("count", len(r.disabled)).Debug("Parsed disabled operations")
	}
}

// normaliseName lowercases a name and strips separators so "PDF-to-Word" matches "pdftoword"
func normaliseName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(name)
}

// IsDisabled reports whether the operation has been switched off
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled[normaliseName(name)]
}

// Register adds an operation unless it is disabled. It returns whether the operation was registered.
func (r *Registry) Register(op pipeline.Operation) bool {
	name := op.Definition().Name

	if r.IsDisabled(name) {
		if r.logger != nil {
			r.logger.WithField("operation", name).Debug("Operation not registered (disabled)")
		}
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.operations[name]; exists && r.logger != nil {
		r.logger.WithField("operation", name).Warn("Operation registered twice, replacing the earlier one")
	}
	r.operations[name] = op
	if r.logger != nil {
		r.logger.WithField("operation", name).Debug("Operation successfully registered")
	}
	return true
}

// Get retrieves an operation by name
func (r *Registry) Get(name string) (pipeline.Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.operations[name]
	return op, ok
}

// Operations returns the registered operations sorted by name
func (r *Registry) Operations() []pipeline.Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]pipeline.Operation, 0, len(r.operations))
	for _, op := range r.operations {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Definition().Name < ops[j].Definition().Name
	})
	return ops
}

// Definitions returns the definitions of the registered operations sorted by name
func (r *Registry) Definitions() []pipeline.Definition {
	ops := r.Operations()
	defs := make([]pipeline.Definition, 0, len(ops))
	for _, op := range ops {
		defs = append(defs, op.Definition())
	}
	return defs
}

// Names returns a sorted list of registered operation names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.operations))
	for name := range r.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
