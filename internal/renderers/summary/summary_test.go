package summary

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirides/daedalus-index/internal/diag"
	"github.com/kirides/daedalus-index/internal/symbols"
)

func makeSnapshot(nDecls int, meta symbols.Meta) *symbols.Snapshot {
	b := symbols.NewBuilder()
	for i := 0; i < nDecls; i++ {
		b.AddDeclarations(symbols.Declaration{
			Name:   fmt.Sprintf("Func_%03d", i),
			Source: fmt.Sprintf("content/story/file_%02d.d", i%40),
			Line:   i,
		})
	}
	b.AddEntries(symbols.KindKeyword, symbols.Entry{Name: "func"})
	return b.Build(meta)
}

func render(t *testing.T, r *Renderer, snap *symbols.Snapshot) string {
	t.Helper()
	artifacts, err := r.Render(context.Background(), snap)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Name != ArtifactName {
		t.Fatalf("unexpected artifacts: %+v", artifacts)
	}
	return string(artifacts[0].Content)
}

func TestRender_Sections(t *testing.T) {
	snap := makeSnapshot(5, symbols.Meta{
		Workspace:     "/ws",
		Manifest:      "Gothic.src",
		Files:         []string{"a.d", "b.d"},
		CatalogsFirst: true,
		Includes:      []symbols.IncludeEdge{{From: "Gothic.src", To: "AI/AI.src"}},
		Diagnostics: []diag.Diagnostic{
			{Kind: diag.KindMissingFile, Path: "x.src", Message: "read manifest x.src: file does not exist"},
		},
	})

	out := render(t, New(0), snap)
	for _, want := range []string{
		"# Daedalus Index",
		"- Manifest: `Gothic.src`",
		"- Source files: 2",
		"- Functions: 5",
		"### missing_file (1)",
		"| Source | Functions |",
		"`Gothic.src` includes `AI/AI.src`",
		"catalogs before sources",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRender_Fallback(t *testing.T) {
	out := render(t, New(0), makeSnapshot(1, symbols.Meta{Fallback: true}))
	if !strings.Contains(out, "none found") {
		t.Errorf("fallback not reported:\n%s", out)
	}
	if strings.Contains(out, "## Diagnostics") || strings.Contains(out, "## Include Graph") {
		t.Errorf("empty sections should be skipped:\n%s", out)
	}
}

func TestRender_BudgetEnforced(t *testing.T) {
	snap := makeSnapshot(200, symbols.Meta{Workspace: "/ws"})

	out := render(t, New(600), snap)
	if len(out) > 600 {
		t.Errorf("output exceeds budget: %d chars", len(out))
	}
	if !strings.Contains(out, "*[Truncated in:") && !strings.Contains(out, "*[Omitted:") {
		t.Errorf("expected truncation marker:\n%s", out)
	}
	if !strings.Contains(out, "## Index") {
		t.Error("highest-priority section should survive truncation")
	}
}

func TestRender_SourcesCapped(t *testing.T) {
	out := render(t, New(100000), makeSnapshot(200, symbols.Meta{}))
	if !strings.Contains(out, "_10 more_") {
		t.Errorf("expected sources table to be capped at %d rows:\n%s", maxSources, out)
	}
}

func TestRender_TruncatesOnRuneBoundary(t *testing.T) {
	b := symbols.NewBuilder()
	for i := 0; i < 40; i++ {
		b.AddDeclarations(symbols.Declaration{
			Name:   fmt.Sprintf("Func_%03d", i),
			Source: fmt.Sprintf("Inhalt/Geschichte/Überfälle_ßäöü_%02d.d", i),
			Line:   i,
		})
	}
	snap := b.Build(symbols.Meta{Workspace: "/ws"})

	for budget := 400; budget < 1400; budget++ {
		out := render(t, New(budget), snap)
		if !utf8.ValidString(out) {
			t.Fatalf("budget %d: truncation split a rune", budget)
		}
	}
}
