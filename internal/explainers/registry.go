package explainers

import (
	"context"

	"github.com/kirides/daedalus-index/internal/diag"
	"github.com/kirides/daedalus-index/internal/symbols"
)

// Explainer inspects a freshly built snapshot and reports problems with the
// workspace that are visible only across files.
type Explainer interface {
	// Name returns the explainer identifier (e.g. "cycles", "shadowing").
	Name() string
	// Explain analyzes the snapshot and returns diagnostics.
	Explain(ctx context.Context, snap *symbols.Snapshot) ([]diag.Diagnostic, error)
}

// Registry holds registered explainers.
type Registry struct {
	explainers []Explainer
}

// NewRegistry creates a new explainer registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an explainer to the registry.
func (r *Registry) Register(e Explainer) {
	r.explainers = append(r.explainers, e)
}

// Get returns the explainer with the given name, or nil if not found.
func (r *Registry) Get(name string) Explainer {
	for _, e := range r.explainers {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

// All returns all registered explainers.
func (r *Registry) All() []Explainer {
	return r.explainers
}
