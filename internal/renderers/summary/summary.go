// Package summary renders a compact markdown overview of an index snapshot.
package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirides/daedalus-index/internal/diag"
	"github.com/kirides/daedalus-index/internal/renderers"
	"github.com/kirides/daedalus-index/internal/symbols"
)

// ArtifactName is the file written by the renderer.
const ArtifactName = "summary.md"

const (
	maxSources         = 30
	maxDiagnosticsKind = 10
)

// Renderer produces summary.md.
type Renderer struct {
	maxChars int
}

// New creates a Renderer that keeps output under maxChars.
func New(maxChars int) *Renderer {
	if maxChars <= 0 {
		maxChars = 16000
	}
	return &Renderer{maxChars: maxChars}
}

func (r *Renderer) Name() string {
	return "summary"
}

type section struct {
	name    string
	content string
}

// Render builds the summary. Sections are ordered by priority; lower-priority
// sections are truncated or omitted first when the budget is tight.
func (r *Renderer) Render(ctx context.Context, snap *symbols.Snapshot) ([]renderers.Artifact, error) {
	sections := []section{
		{"Index", renderIndex(snap)},
		{"Diagnostics", renderDiagnostics(snap)},
		{"Sources", renderSources(snap)},
		{"Include Graph", renderIncludes(snap)},
		{"Meta", renderMeta(snap)},
	}

	header := "# Daedalus Index\n\n"
	remaining := r.maxChars - len(header)

	var sb strings.Builder
	sb.WriteString(header)

	for i, sec := range sections {
		if sec.content == "" {
			continue
		}
		if len(sec.content) <= remaining {
			sb.WriteString(sec.content)
			remaining -= len(sec.content)
		} else if remaining > 200 {
			cut := remaining - 100
			for cut > 0 && !utf8.RuneStart(sec.content[cut]) {
				cut--
			}
			sb.WriteString(sec.content[:cut])
			sb.WriteString(fmt.Sprintf("\n\n---\n*[Truncated in: %s]*\n", sec.name))
			break
		} else {
			var omitted []string
			for _, s := range sections[i:] {
				if s.content != "" {
					omitted = append(omitted, s.name)
				}
			}
			sb.WriteString(fmt.Sprintf("\n\n---\n*[Omitted: %s]*\n", strings.Join(omitted, ", ")))
			break
		}
	}

	return []renderers.Artifact{{
		Name:    ArtifactName,
		Content: []byte(sb.String()),
		Type:    "text/markdown",
	}}, ctx.Err()
}

func renderIndex(snap *symbols.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("## Index\n\n")

	m := snap.Meta
	if m.Workspace != "" {
		sb.WriteString(fmt.Sprintf("- Workspace: `%s`\n", m.Workspace))
	}
	switch {
	case m.Fallback:
		sb.WriteString("- Manifest: _none found, every source file was scanned_\n")
	case m.Manifest != "":
		sb.WriteString(fmt.Sprintf("- Manifest: `%s`\n", m.Manifest))
	}
	sb.WriteString(fmt.Sprintf("- Source files: %d\n", len(m.Files)))
	sb.WriteString(fmt.Sprintf("- Catalogs: %d\n", len(m.Catalogs)))
	sb.WriteString(fmt.Sprintf("- Functions: %d\n", len(snap.Declarations())))
	sb.WriteString(fmt.Sprintf("- Keywords: %d, constants: %d, variables: %d\n",
		len(snap.Keywords()), len(snap.Constants()), len(snap.Variables())))
	if len(m.Duplicates) > 0 {
		sb.WriteString(fmt.Sprintf("- Ignored duplicate declarations: %d\n", len(m.Duplicates)))
	}
	sb.WriteString("\n")
	return sb.String()
}

func renderDiagnostics(snap *symbols.Snapshot) string {
	if len(snap.Meta.Diagnostics) == 0 {
		return ""
	}

	byKind := make(map[diag.Kind][]diag.Diagnostic)
	var kinds []diag.Kind
	for _, d := range snap.Meta.Diagnostics {
		if _, ok := byKind[d.Kind]; !ok {
			kinds = append(kinds, d.Kind)
		}
		byKind[d.Kind] = append(byKind[d.Kind], d)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var sb strings.Builder
	sb.WriteString("## Diagnostics\n\n")
	for _, k := range kinds {
		items := byKind[k]
		sb.WriteString(fmt.Sprintf("### %s (%d)\n\n", k, len(items)))
		for i, d := range items {
			if i == maxDiagnosticsKind {
				sb.WriteString(fmt.Sprintf("- ... and %d more\n", len(items)-maxDiagnosticsKind))
				break
			}
			sb.WriteString(fmt.Sprintf("- %s\n", d.Message))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderSources(snap *symbols.Snapshot) string {
	counts := snap.DeclarationsBySource()
	if len(counts) == 0 {
		return ""
	}

	type row struct {
		source string
		n      int
	}
	rows := make([]row, 0, len(counts))
	for s, n := range counts {
		rows = append(rows, row{s, n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].n != rows[j].n {
			return rows[i].n > rows[j].n
		}
		return rows[i].source < rows[j].source
	})

	var sb strings.Builder
	sb.WriteString("## Sources\n\n")
	sb.WriteString("| Source | Functions |\n|---|---|\n")
	for i, r := range rows {
		if i == maxSources {
			sb.WriteString(fmt.Sprintf("| _%d more_ | |\n", len(rows)-maxSources))
			break
		}
		sb.WriteString(fmt.Sprintf("| `%s` | %d |\n", r.source, r.n))
	}
	sb.WriteString("\n")
	return sb.String()
}

func renderIncludes(snap *symbols.Snapshot) string {
	if len(snap.Meta.Includes) == 0 {
		return ""
	}

	children := make(map[string][]string)
	var parents []string
	for _, e := range snap.Meta.Includes {
		if _, ok := children[e.From]; !ok {
			parents = append(parents, e.From)
		}
		children[e.From] = append(children[e.From], e.To)
	}

	var sb strings.Builder
	sb.WriteString("## Include Graph\n\n")
	for _, p := range parents {
		sb.WriteString(fmt.Sprintf("- `%s` includes %s\n", p, quoteAll(children[p])))
	}
	sb.WriteString("\n")
	return sb.String()
}

func renderMeta(snap *symbols.Snapshot) string {
	m := snap.Meta
	order := "sources before catalogs"
	if m.CatalogsFirst {
		order = "catalogs before sources"
	}
	return fmt.Sprintf("## Meta\n\n- Generation: %d\n- Built at: %s\n- Duration: %s\n- Fold order: %s\n- Fingerprint: `%s`\n",
		m.Generation, m.BuiltAt, m.Duration, order, m.Fingerprint)
}

func quoteAll(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = "`" + s + "`"
	}
	return strings.Join(q, ", ")
}
