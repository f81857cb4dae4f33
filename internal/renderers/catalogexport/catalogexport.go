// Package catalogexport writes the declarations of a snapshot in the catalog
// format, so an indexed workspace can ship as a catalog for another one.
package catalogexport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirides/daedalus-index/internal/extractors/catalog"
	"github.com/kirides/daedalus-index/internal/renderers"
	"github.com/kirides/daedalus-index/internal/symbols"
)

// ArtifactName is the file written by the renderer.
const ArtifactName = "methods.json"

// Renderer produces methods.json.
type Renderer struct {
	includeCatalogs bool
}

// New creates a Renderer. With includeCatalogs unset only declarations
// parsed from workspace files are exported.
func New(includeCatalogs bool) *Renderer {
	return &Renderer{includeCatalogs: includeCatalogs}
}

func (r *Renderer) Name() string {
	return "catalog_export"
}

func (r *Renderer) Render(ctx context.Context, snap *symbols.Snapshot) ([]renderers.Artifact, error) {
	var decls []symbols.Declaration
	for _, d := range snap.Declarations() {
		if !r.includeCatalogs && !d.HasLocation() {
			continue
		}
		decls = append(decls, d)
	}

	data, err := json.MarshalIndent(catalog.Records(decls), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling catalog: %w", err)
	}
	return []renderers.Artifact{{
		Name:    ArtifactName,
		Content: data,
		Type:    "application/json",
	}}, ctx.Err()
}
