// Package flatlist reads keyword, constant and variable lists: one entry per
// line, optional documentation after an "@" separator.
package flatlist

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kirides/daedalus-index/internal/extractors"
	"github.com/kirides/daedalus-index/internal/symbols"
)

// Extractor maps list file names to entry kinds.
type Extractor struct {
	kinds map[string]symbols.Kind // lower-cased base name -> kind
}

// New creates an Extractor. files maps a list file name (e.g. "keywords.csv")
// to the kind of entries it holds.
func New(files map[string]symbols.Kind) *Extractor {
	kinds := make(map[string]symbols.Kind, len(files))
	for name, kind := range files {
		if name == "" {
			continue
		}
		kinds[strings.ToLower(name)] = kind
	}
	return &Extractor{kinds: kinds}
}

func (e *Extractor) Name() string {
	return "flatlist"
}

func (e *Extractor) Accepts(path string) bool {
	_, ok := e.KindOf(path)
	return ok
}

// KindOf returns the entry kind of the list file at path.
func (e *Extractor) KindOf(path string) (symbols.Kind, bool) {
	kind, ok := e.kinds[strings.ToLower(filepath.Base(path))]
	return kind, ok
}

func (e *Extractor) Extract(ctx context.Context, f extractors.File) (extractors.Result, error) {
	kind, ok := e.KindOf(f.Path)
	if !ok {
		return extractors.Result{}, nil
	}
	return extractors.Result{Entries: Parse(kind, f.Content)}, ctx.Err()
}

// Parse reads every entry of a list.
func Parse(kind symbols.Kind, content []byte) []symbols.Entry {
	var entries []symbols.Entry
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimRight(line, " \t") == "" || strings.HasPrefix(line, "//") {
			continue
		}
		name, doc := ParseLine(line)
		if name == "" {
			continue
		}
		entries = append(entries, symbols.Entry{Kind: kind, Name: name, Doc: doc})
	}
	return entries
}

// ParseLine splits "NAME@doc@more" into the trimmed name and the remaining
// segments joined by newlines. An "@" at position 0 is not a separator.
func ParseLine(line string) (name, doc string) {
	if strings.Index(line, "@") <= 0 {
		return strings.TrimSpace(line), ""
	}
	parts := strings.Split(line, "@")
	rest := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		rest = append(rest, strings.TrimRight(p, " \t"))
	}
	return strings.TrimSpace(parts[0]), strings.Join(rest, "\n")
}
