// Package query answers editor-style requests against the published index.
// Every method loads the current snapshot once and never blocks on a rebuild.
package query

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/kirides/daedalus-index/internal/symbols"
)

// SnapshotSource provides the most recently published snapshot.
type SnapshotSource interface {
	Snapshot() *symbols.Snapshot
}

// Service is the read-only query surface.
type Service struct {
	src SnapshotSource
}

// New creates a Service reading from src.
func New(src SnapshotSource) *Service {
	return &Service{src: src}
}

// CompletionItem is one completion candidate.
type CompletionItem struct {
	Label         string       `json:"label"`
	Kind          symbols.Kind `json:"kind"`
	Detail        string       `json:"detail,omitempty"`
	Documentation string       `json:"documentation,omitempty"`
}

// Completion returns keywords, declarations, constants and variables whose
// name starts with prefix (case-insensitive), sorted case-insensitively.
// An empty prefix returns everything.
func (s *Service) Completion(prefix string) []CompletionItem {
	snap := s.src.Snapshot()
	want := strings.ToUpper(prefix)
	match := func(name string) bool {
		return want == "" || strings.HasPrefix(strings.ToUpper(name), want)
	}

	var items []CompletionItem
	addEntries := func(ee []symbols.Entry) {
		for _, e := range ee {
			if match(e.Name) {
				items = append(items, CompletionItem{Label: e.Name, Kind: e.Kind, Documentation: e.Doc})
			}
		}
	}

	addEntries(snap.Keywords())
	for _, d := range snap.Declarations() {
		if !match(d.Name) {
			continue
		}
		items = append(items, CompletionItem{
			Label:         d.Name,
			Kind:          symbols.KindMethod,
			Detail:        d.Signature,
			Documentation: "Source: " + d.Source + "\n\n" + d.Doc,
		})
	}
	addEntries(snap.Constants())
	addEntries(snap.Variables())

	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToUpper(items[i].Label) < strings.ToUpper(items[j].Label)
	})
	return items
}

// SignatureHelp describes the call surrounding the cursor.
type SignatureHelp struct {
	Name            string   `json:"name"`
	Signature       string   `json:"signature"`
	Doc             string   `json:"doc,omitempty"`
	Parameters      []string `json:"parameters"`
	ActiveParameter int      `json:"active_parameter"`
}

var (
	nestedCallRe = regexp.MustCompile(`(\(|,\s*)[\w.]+\([^()]*\)`)
	funcHeaderRe = regexp.MustCompile(`(?i)^\s*func\s+`)
	callOpenRe   = regexp.MustCompile(`(\w+)\s*\(`)
)

// CollapseCalls replaces closed calls that appear as arguments with the
// placeholder C, innermost first, until nothing changes.
func CollapseCalls(linePrefix string) string {
	for {
		next := nestedCallRe.ReplaceAllString(linePrefix, "${1}C")
		if next == linePrefix {
			return next
		}
		linePrefix = next
	}
}

// SignatureHelp resolves the innermost open call in linePrefix, the text of
// the current line up to the cursor.
func (s *Service) SignatureHelp(linePrefix string) (SignatureHelp, bool) {
	text := CollapseCalls(linePrefix)
	if funcHeaderRe.MatchString(text) {
		return SignatureHelp{}, false
	}

	locs := callOpenRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return SignatureHelp{}, false
	}
	last := locs[len(locs)-1]
	name := text[last[2]:last[3]]

	d, ok := s.src.Snapshot().DeclarationFold(name)
	if !ok {
		return SignatureHelp{}, false
	}

	args := text[last[1]:]
	return SignatureHelp{
		Name:            d.Name,
		Signature:       d.Signature,
		Doc:             d.Doc,
		Parameters:      d.Params,
		ActiveParameter: strings.Count(args, ","),
	}, true
}

// Hover renders the signature of the declaration named exactly word.
func (s *Service) Hover(word string) (string, bool) {
	d, ok := s.src.Snapshot().Declaration(word)
	if !ok {
		return "", false
	}
	sig := d.Signature
	if strings.TrimSpace(sig) == "" {
		sig = d.Name
	}
	return "```\n" + sig + "\n```", true
}

// Location is a position in a workspace file. Line and Column are 0-based.
type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Definition resolves the declaration named exactly word to its file.
// Declarations from catalogs or without a line do not resolve.
func (s *Service) Definition(word string) (Location, bool) {
	snap := s.src.Snapshot()
	d, ok := snap.Declaration(word)
	if !ok || !d.HasLocation() {
		return Location{}, false
	}
	// Sources included from outside the workspace are stored absolute.
	path := filepath.FromSlash(d.Source)
	if !filepath.IsAbs(path) {
		path = filepath.Join(snap.Meta.Workspace, path)
	}
	return Location{Path: path, Line: d.Line}, true
}

// Lookup returns the declaration named exactly word.
func (s *Service) Lookup(word string) (symbols.Declaration, bool) {
	return s.src.Snapshot().Declaration(word)
}

func isWordByte(c byte) bool {
	return c == '_' || c == '@' || c == '^' ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// WordAt returns the identifier touching byte column col of line.
func WordAt(line string, col int) string {
	if col < 0 || col > len(line) {
		return ""
	}
	start, end := col, col
	for start > 0 && isWordByte(line[start-1]) {
		start--
	}
	for end < len(line) && isWordByte(line[end]) {
		end++
	}
	return line[start:end]
}

// Suggest returns up to n declaration names closest to name by edit
// distance, ignoring case. Names too far away to be a likely typo are left out.
func (s *Service) Suggest(name string, n int) []string {
	if n <= 0 || name == "" {
		return nil
	}
	key := symbols.Key(name)
	limit := max(2, len(key)/3)

	type candidate struct {
		name string
		dist int
	}
	var cands []candidate
	for _, d := range s.src.Snapshot().Declarations() {
		dist := edlib.LevenshteinDistance(key, d.NameKey)
		if dist <= limit {
			cands = append(cands, candidate{d.Name, dist})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return strings.ToUpper(cands[i].name) < strings.ToUpper(cands[j].name)
	})

	out := make([]string, 0, min(n, len(cands)))
	for i := 0; i < len(cands) && i < n; i++ {
		out = append(out, cands[i].name)
	}
	return out
}
