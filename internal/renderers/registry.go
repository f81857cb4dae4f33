package renderers

import (
	"context"

	"github.com/kirides/daedalus-index/internal/symbols"
)

// Artifact represents a generated output file.
type Artifact struct {
	Name    string `json:"name"`    // e.g. "summary.md"
	Content []byte `json:"-"`       // Raw content
	Type    string `json:"type"`    // MIME type hint
}

// Renderer produces output artifacts from a snapshot.
type Renderer interface {
	// Name returns the renderer identifier (e.g. "summary").
	Name() string
	// Render produces artifacts from the given snapshot.
	Render(ctx context.Context, snap *symbols.Snapshot) ([]Artifact, error)
}

// Registry holds registered renderers.
type Registry struct {
	renderers []Renderer
}

// NewRegistry creates a new renderer registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a renderer to the registry.
func (r *Registry) Register(rnd Renderer) {
	r.renderers = append(r.renderers, rnd)
}

// Get returns the renderer with the given name, or nil if not found.
func (r *Registry) Get(name string) Renderer {
	for _, rnd := range r.renderers {
		if rnd.Name() == name {
			return rnd
		}
	}
	return nil
}

// All returns all registered renderers.
func (r *Registry) All() []Renderer {
	return r.renderers
}
