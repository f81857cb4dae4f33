package symbols

import (
	"strings"

	"github.com/kirides/daedalus-index/internal/diag"
)

const (
	// SourceInternal tags declarations that have no file in the workspace.
	SourceInternal = "internal"
	// UnknownLine is the line of declarations that come from catalogs.
	UnknownLine = -1
)

// Kind classifies index entries.
type Kind string

const (
	KindKeyword  Kind = "keyword"
	KindMethod   Kind = "method"
	KindConstant Kind = "constant"
	KindVariable Kind = "variable"
)

// Declaration is a callable function known to the index.
type Declaration struct {
	Name      string   `json:"name"`
	NameKey   string   `json:"name_key"`
	Signature string   `json:"signature"`
	Params    []string `json:"params"`
	Doc       string   `json:"doc,omitempty"`
	Source    string   `json:"source"`
	Line      int      `json:"line"`
}

// HasLocation reports whether d points at a concrete position in a workspace file.
func (d Declaration) HasLocation() bool {
	return d.Source != "" && d.Source != SourceInternal && d.Line >= 0
}

// Entry is a keyword, constant or variable.
type Entry struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
	Doc  string `json:"doc,omitempty"`
}

// Key returns the case-insensitive identity of a name.
func Key(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Duplicate records a declaration discarded because its key was already taken.
type Duplicate struct {
	Key       string      `json:"key"`
	Kept      Declaration `json:"kept"`
	Discarded Declaration `json:"discarded"`
}

// IncludeEdge is a manifest including another manifest, as workspace-relative paths.
type IncludeEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Meta describes how a snapshot was produced.
type Meta struct {
	Generation    uint64            `json:"generation"`
	Workspace     string            `json:"workspace"`
	Manifest      string            `json:"manifest,omitempty"`
	Fallback      bool              `json:"fallback"`
	CatalogsFirst bool              `json:"catalogs_first"`
	Files         []string          `json:"files"`
	Catalogs      []string          `json:"catalogs,omitempty"`
	Includes      []IncludeEdge     `json:"includes,omitempty"`
	Duplicates    []Duplicate       `json:"duplicates,omitempty"`
	Diagnostics   []diag.Diagnostic `json:"diagnostics,omitempty"`
	BuiltAt       string            `json:"built_at,omitempty"`
	Duration      string            `json:"duration,omitempty"`
	Fingerprint   string            `json:"fingerprint,omitempty"`
}
