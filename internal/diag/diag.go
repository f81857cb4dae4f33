package diag

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"sync"
)

// Kind classifies a non-fatal problem found while rebuilding the index.
type Kind string

const (
	KindMissingFile      Kind = "missing_file"
	KindUnreadableFile   Kind = "unreadable_file"
	KindMalformedCatalog Kind = "malformed_catalog"
	KindIncludeCycle     Kind = "include_cycle"
	KindDuplicate        Kind = "duplicate_declaration"
)

// ErrMalformedCatalog marks catalog files whose content cannot be decoded.
var ErrMalformedCatalog = errors.New("malformed catalog")

// Diagnostic is a recorded problem. Diagnostics never abort a rebuild.
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Path == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Kind, d.Path, d.Message)
}

// FileError wraps a filesystem failure with the operation and path involved.
type FileError struct {
	Op   string
	Path string
	Err  error
}

// NewFileError creates a FileError.
func NewFileError(op, path string, err error) *FileError {
	return &FileError{Op: op, Path: path, Err: err}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Kind reports KindMissingFile for not-exist errors and KindUnreadableFile otherwise.
func (e *FileError) Kind() Kind {
	if errors.Is(e.Err, fs.ErrNotExist) {
		return KindMissingFile
	}
	return KindUnreadableFile
}

// Classify maps an error returned by a reader or extractor to a diagnostic kind.
func Classify(err error) Kind {
	var fe *FileError
	switch {
	case errors.Is(err, ErrMalformedCatalog):
		return KindMalformedCatalog
	case errors.As(err, &fe):
		return fe.Kind()
	case errors.Is(err, fs.ErrNotExist):
		return KindMissingFile
	default:
		return KindUnreadableFile
	}
}

// Collector records diagnostics from concurrent workers and logs each one.
type Collector struct {
	mu     sync.Mutex
	prefix string
	items  []Diagnostic
}

// NewCollector creates a Collector whose log lines carry the given component prefix.
func NewCollector(prefix string) *Collector {
	return &Collector{prefix: prefix}
}

// Add records d.
func (c *Collector) Add(d Diagnostic) {
	log.Printf("[%s] %s", c.prefix, d)
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
}

// Report records err against path, classifying it with Classify.
func (c *Collector) Report(path string, err error) {
	c.Add(Diagnostic{Kind: Classify(err), Path: path, Message: err.Error()})
}

// Len returns the number of recorded diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Items returns the recorded diagnostics ordered by path, then kind.
// Workers report in completion order, so the sort keeps snapshots comparable.
func (c *Collector) Items() []Diagnostic {
	c.mu.Lock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
