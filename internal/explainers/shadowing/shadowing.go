// Package shadowing reports declarations dropped because an earlier file
// already declared the same name.
package shadowing

import (
	"context"
	"fmt"

	"github.com/kirides/daedalus-index/internal/diag"
	"github.com/kirides/daedalus-index/internal/symbols"
)

// Explainer turns recorded duplicates into diagnostics.
type Explainer struct{}

// New creates a new shadowing Explainer.
func New() *Explainer {
	return &Explainer{}
}

func (e *Explainer) Name() string {
	return "shadowing"
}

func (e *Explainer) Explain(ctx context.Context, snap *symbols.Snapshot) ([]diag.Diagnostic, error) {
	out := make([]diag.Diagnostic, 0, len(snap.Meta.Duplicates))
	for _, d := range snap.Meta.Duplicates {
		out = append(out, diag.Diagnostic{
			Kind: diag.KindDuplicate,
			Path: d.Discarded.Source,
			Message: fmt.Sprintf("%s at %s ignored, already declared at %s",
				d.Discarded.Name, location(d.Discarded), location(d.Kept)),
		})
	}
	return out, ctx.Err()
}

func location(d symbols.Declaration) string {
	if d.Line < 0 {
		return d.Source
	}
	return fmt.Sprintf("%s:%d", d.Source, d.Line+1)
}
