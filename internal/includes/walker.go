// Package includes resolves the set of script files reachable from a
// project's entry manifest.
package includes

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/kirides/daedalus-index/internal/diag"
)

// Options configures a walk.
type Options struct {
	// Root is the absolute workspace directory.
	Root string
	// Manifest overrides root manifest discovery when set.
	Manifest string
	// ManifestName is looked up case-insensitively in Root (e.g. "Gothic.src").
	ManifestName string
	SourceExt    string
	ManifestExt  string
	// Ignore holds doublestar patterns, relative to Root, skipped by the fallback scan.
	Ignore []string
	// Diagnostics receives unreadable manifests. Optional.
	Diagnostics *diag.Collector
}

// Edge is a manifest including another manifest, as absolute paths.
type Edge struct {
	From string
	To   string
}

// Result is the flattened include graph.
type Result struct {
	// Manifest is the root manifest, empty when Fallback is set.
	Manifest string
	// Fallback is set when no root manifest was found and every source file was scanned.
	Fallback bool
	// Files are absolute source paths in traversal order, each at most once.
	Files []string
	Edges []Edge
}

type itemKind int

const (
	itemSource itemKind = iota
	itemManifest
)

type item struct {
	kind itemKind
	path string
}

type manifestNode struct {
	items []item
	err   error
}

// walker expands manifests concurrently. The visited map is the only shared
// state; each node is written by exactly one goroutine before Wait returns.
type walker struct {
	opts Options
	ctx  context.Context
	g    *errgroup.Group

	mu        sync.Mutex
	manifests map[string]*manifestNode
}

// Walk resolves every reachable source file.
func Walk(ctx context.Context, opts Options) (*Result, error) {
	if opts.SourceExt == "" {
		opts.SourceExt = ".d"
	}
	if opts.ManifestExt == "" {
		opts.ManifestExt = ".src"
	}

	manifest := opts.Manifest
	if manifest != "" && !filepath.IsAbs(manifest) {
		manifest = filepath.Join(opts.Root, manifest)
	}
	if manifest == "" {
		m, ok, err := FindManifest(opts.Root, opts.ManifestName)
		if err != nil {
			return nil, err
		}
		if ok {
			manifest = m
		}
	}

	if manifest == "" {
		log.Printf("[walker] no %s in %s, scanning all %s files", opts.ManifestName, opts.Root, opts.SourceExt)
		files, err := scanAll(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &Result{Fallback: true, Files: files}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	w := &walker{
		opts:      opts,
		ctx:       gctx,
		g:         g,
		manifests: make(map[string]*manifestNode),
	}
	w.visit(manifest)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return w.flatten(manifest), nil
}

// FindManifest returns the first entry of root whose name equals name ignoring case.
func FindManifest(root, name string) (string, bool, error) {
	if name == "" {
		return "", false, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false, fmt.Errorf("listing workspace %s: %w", root, err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), name) {
			return filepath.Join(root, e.Name()), true, nil
		}
	}
	return "", false, nil
}

func (w *walker) visit(path string) {
	key := filepath.Clean(path)

	w.mu.Lock()
	if _, seen := w.manifests[key]; seen {
		w.mu.Unlock()
		return
	}
	node := &manifestNode{}
	w.manifests[key] = node
	w.mu.Unlock()

	w.g.Go(func() error {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		node.items, node.err = w.readManifest(path)
		for _, it := range node.items {
			if it.kind == itemManifest {
				w.visit(it.path)
			}
		}
		return nil
	})
}

// readManifest resolves the lines of one manifest relative to its directory.
func (w *walker) readManifest(path string) ([]item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.NewFileError("read manifest", path, err)
	}

	dir := filepath.Dir(path)
	var items []item
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		line = strings.ReplaceAll(line, `\`, "/")

		ext := filepath.Ext(line)
		switch {
		case strings.EqualFold(ext, w.opts.SourceExt):
			// Glob covers both cases: a plain path resolves to zero or one file.
			for _, p := range Glob(dir, line) {
				items = append(items, item{kind: itemSource, path: p})
			}
		case strings.EqualFold(ext, w.opts.ManifestExt):
			if HasMeta(line) {
				for _, p := range Glob(dir, line) {
					items = append(items, item{kind: itemManifest, path: p})
				}
				continue
			}
			target := filepath.Join(dir, filepath.FromSlash(line))
			if found := Glob(dir, line); len(found) > 0 {
				target = found[0]
			}
			items = append(items, item{kind: itemManifest, path: target})
		}
	}
	return items, nil
}

// flatten walks the expanded manifests depth-first in line order.
func (w *walker) flatten(root string) *Result {
	res := &Result{Manifest: root}
	seenFiles := make(map[string]struct{})
	expanded := make(map[string]struct{})

	var expand func(m string)
	expand = func(m string) {
		key := filepath.Clean(m)
		if _, ok := expanded[key]; ok {
			return
		}
		expanded[key] = struct{}{}

		node := w.manifests[key]
		if node == nil {
			return
		}
		if node.err != nil {
			if w.opts.Diagnostics != nil {
				w.opts.Diagnostics.Report(RelTo(w.opts.Root, m), node.err)
			}
			return
		}
		for _, it := range node.items {
			switch it.kind {
			case itemSource:
				k := filepath.Clean(it.path)
				if _, ok := seenFiles[k]; ok {
					continue
				}
				seenFiles[k] = struct{}{}
				res.Files = append(res.Files, it.path)
			case itemManifest:
				res.Edges = append(res.Edges, Edge{From: m, To: it.path})
				expand(it.path)
			}
		}
	}
	expand(root)

	log.Printf("[walker] %s: %d files, %d manifests", RelTo(w.opts.Root, root), len(res.Files), len(expanded))
	return res
}

// scanAll lists every source file under the workspace, sorted by path.
func scanAll(ctx context.Context, opts Options) ([]string, error) {
	var files []string
	err := filepath.WalkDir(opts.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == opts.Root {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := RelTo(opts.Root, p)
		if d.IsDir() {
			if p != opts.Root && isIgnored(opts.Ignore, rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), opts.SourceExt) && !isIgnored(opts.Ignore, rel, false) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", opts.Root, err)
	}
	sort.Strings(files)
	return files, nil
}

// isIgnored matches a slash-separated relative path against doublestar patterns.
func isIgnored(patterns []string, rel string, isDir bool) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if isDir {
			if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}

// RelTo returns path relative to root with forward slashes, or path itself
// when it lies outside root.
func RelTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
