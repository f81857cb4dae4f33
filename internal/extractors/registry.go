package extractors

import (
	"context"

	"github.com/kirides/daedalus-index/internal/symbols"
)

// File is one input handed to an extractor.
type File struct {
	// Path is the absolute path on disk.
	Path string
	// Rel is the path recorded as declaration source (workspace-relative, slash separated).
	Rel     string
	Content []byte
}

// Result is what an extractor found in a single file.
type Result struct {
	Declarations []symbols.Declaration
	Entries      []symbols.Entry
}

// Extractor turns the content of one file into index entries.
type Extractor interface {
	// Name returns the extractor identifier (e.g. "daedalus", "catalog").
	Name() string
	// Accepts reports whether the extractor handles the file at path.
	Accepts(path string) bool
	// Extract parses a file. Errors are reported as diagnostics by the caller.
	Extract(ctx context.Context, f File) (Result, error)
}

// Registry holds registered extractors.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a new extractor registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an extractor to the registry.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// All returns all registered extractors.
func (r *Registry) All() []Extractor {
	return r.extractors
}

// For returns the first registered extractor accepting path, or nil.
func (r *Registry) For(path string) Extractor {
	for _, e := range r.extractors {
		if e.Accepts(path) {
			return e
		}
	}
	return nil
}
