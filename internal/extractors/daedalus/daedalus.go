// Package daedalus extracts function declarations from Daedalus script files.
package daedalus

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kirides/daedalus-index/internal/extractors"
	"github.com/kirides/daedalus-index/internal/symbols"
)

var (
	// funcRe matches a declaration header up to the first closing paren and
	// an optional comment on the same line. Groups: header, name, doc.
	funcRe  = regexp.MustCompile(`(?im)^[ \t]*func\s+(\w+\s+([\w@^]+)\s*\([^)]*\))(?:[ \t]*//(.*))?`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Extractor scans .d files for func declarations.
type Extractor struct {
	ext string
}

// New creates an Extractor for files with the given extension (e.g. ".d").
func New(ext string) *Extractor {
	if ext == "" {
		ext = ".d"
	}
	return &Extractor{ext: ext}
}

func (e *Extractor) Name() string {
	return "daedalus"
}

// Accepts matches the source extension case-insensitively.
func (e *Extractor) Accepts(path string) bool {
	return strings.EqualFold(filepath.Ext(path), e.ext)
}

// Extract returns every declaration in file order. Duplicates within the file
// are kept; the index builder decides which one wins.
func (e *Extractor) Extract(ctx context.Context, f extractors.File) (extractors.Result, error) {
	return extractors.Result{Declarations: Parse(f.Rel, f.Content)}, ctx.Err()
}

// Parse scans content and tags every declaration with source.
func Parse(source string, content []byte) []symbols.Declaration {
	text := string(content)
	matches := funcRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	decls := make([]symbols.Declaration, 0, len(matches))
	line, pos := 0, 0
	for _, m := range matches {
		line += strings.Count(text[pos:m[0]], "\n")
		pos = m[0]

		header := text[m[2]:m[3]]
		name := text[m[4]:m[5]]
		var doc string
		if m[6] >= 0 {
			doc = strings.TrimSuffix(text[m[6]:m[7]], "\r")
		}

		sig := Normalize(header)
		decls = append(decls, symbols.Declaration{
			Name:      name,
			NameKey:   symbols.Key(name),
			Signature: sig,
			Params:    SplitParams(sig),
			Doc:       doc,
			Source:    source,
			Line:      line,
		})
	}
	return decls
}

// Normalize collapses whitespace runs in a header to single spaces and
// removes the padding just inside parentheses.
func Normalize(header string) string {
	s := spaceRe.ReplaceAllString(strings.TrimSpace(header), " ")
	s = strings.ReplaceAll(s, "( ", "(")
	s = strings.ReplaceAll(s, " )", ")")
	return s
}

// SplitParams returns the trimmed, comma-separated parameters between the
// first "(" and the first ")" of a signature.
func SplitParams(signature string) []string {
	params := []string{}
	open := strings.Index(signature, "(")
	if open < 0 {
		return params
	}
	rest := signature[open+1:]
	if end := strings.Index(rest, ")"); end >= 0 {
		rest = rest[:end]
	}
	inner := strings.TrimSpace(rest)
	if inner == "" {
		return params
	}
	for _, p := range strings.Split(inner, ",") {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, p)
		}
	}
	return params
}
