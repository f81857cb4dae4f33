// Package catalog loads precomputed declaration catalogs for built-in and
// library functions.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirides/daedalus-index/internal/diag"
	"github.com/kirides/daedalus-index/internal/extractors"
	"github.com/kirides/daedalus-index/internal/extractors/daedalus"
	"github.com/kirides/daedalus-index/internal/symbols"
)

// DefaultSuffix is the file name suffix identifying catalog files.
const DefaultSuffix = "methods.json"

// Record is one catalog entry as stored on disk.
type Record struct {
	Name   string   `json:"name"`
	Detail string   `json:"detail"`
	Desc   string   `json:"desc"`
	Source string   `json:"source"`
	Params []string `json:"params,omitempty"`
}

// Extractor reads catalog files.
type Extractor struct {
	suffix string
}

// New creates an Extractor for files ending in suffix.
func New(suffix string) *Extractor {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return &Extractor{suffix: strings.ToLower(suffix)}
}

func (e *Extractor) Name() string {
	return "catalog"
}

func (e *Extractor) Accepts(path string) bool {
	return IsCatalog(path, e.suffix)
}

// IsCatalog reports whether the base name of path ends with suffix, ignoring case.
func IsCatalog(path, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(filepath.Base(path)), strings.ToLower(suffix))
}

func (e *Extractor) Extract(ctx context.Context, f extractors.File) (extractors.Result, error) {
	decls, err := Parse(filepath.Base(f.Path), f.Content)
	if err != nil {
		return extractors.Result{}, fmt.Errorf("%w: %s: %v", diag.ErrMalformedCatalog, f.Rel, err)
	}
	return extractors.Result{Declarations: decls}, ctx.Err()
}

// Parse decodes a catalog. fileName supplies the fallback source tag.
func Parse(fileName string, content []byte) ([]symbols.Declaration, error) {
	var records []Record
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, err
	}

	fallback := SourceTag(fileName)
	decls := make([]symbols.Declaration, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.Name) == "" {
			continue
		}
		source := strings.TrimSpace(r.Source)
		if source == "" {
			source = fallback
		}
		// Records without a detail still need something to show on hover.
		signature := strings.TrimSpace(r.Detail)
		if signature == "" {
			signature = r.Name
		}
		params := r.Params
		if params == nil {
			params = []string{}
			if len(r.Detail) > 2 {
				params = daedalus.SplitParams(r.Detail)
			}
		}
		decls = append(decls, symbols.Declaration{
			Name:      r.Name,
			NameKey:   symbols.Key(r.Name),
			Signature: signature,
			Params:    params,
			Doc:       r.Desc,
			Source:    source,
			Line:      symbols.UnknownLine,
		})
	}
	return decls, nil
}

// SourceTag derives the source of catalog entries without an explicit one:
// the first dot segment when the file name has more than two, else "internal".
func SourceTag(fileName string) string {
	parts := strings.Split(filepath.Base(fileName), ".")
	if len(parts) > 2 && parts[0] != "" {
		return parts[0]
	}
	return symbols.SourceInternal
}

// Records converts declarations back into catalog records.
func Records(decls []symbols.Declaration) []Record {
	out := make([]Record, 0, len(decls))
	for _, d := range decls {
		out = append(out, Record{
			Name:   d.Name,
			Detail: d.Signature,
			Desc:   d.Doc,
			Source: d.Source,
			Params: d.Params,
		})
	}
	return out
}
