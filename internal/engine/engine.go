package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kirides/daedalus-index/internal/config"
	"github.com/kirides/daedalus-index/internal/diag"
	"github.com/kirides/daedalus-index/internal/explainers"
	"github.com/kirides/daedalus-index/internal/extractors"
	"github.com/kirides/daedalus-index/internal/includes"
	"github.com/kirides/daedalus-index/internal/renderers"
	"github.com/kirides/daedalus-index/internal/symbols"
)

// Artifact names written next to renderer output.
const (
	SymbolsArtifact     = "symbols.jsonl"
	DiagnosticsArtifact = "diagnostics.json"
)

// Engine orchestrates the rebuild pipeline: walk -> extract -> fold -> explain.
// Rebuilds are serialized; published snapshots are swapped atomically and
// can be read concurrently.
type Engine struct {
	cfg        *config.Config
	root       string
	extractors *extractors.Registry
	explainers *explainers.Registry
	renderers  *renderers.Registry

	mu    sync.Mutex // serializes builds
	cache map[string]cacheEntry

	pubMu      sync.Mutex
	generation uint64
	current    atomic.Pointer[symbols.Snapshot]
}

// cacheEntry is the extraction result of one file keyed by its content hash.
type cacheEntry struct {
	hash   uint64
	result extractors.Result
}

// job is one file to read and extract.
type job struct {
	path  string
	rel   string
	stage stage
}

type stage int

const (
	stageList stage = iota
	stageCatalog
	stageSource
)

// New creates a new Engine with the given config.
// Extractors, explainers, and renderers must be registered after creation.
func New(cfg *config.Config) (*Engine, error) {
	root, err := cfg.WorkspaceRoot()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:        cfg,
		root:       root,
		extractors: extractors.NewRegistry(),
		explainers: explainers.NewRegistry(),
		renderers:  renderers.NewRegistry(),
		cache:      make(map[string]cacheEntry),
	}
	e.current.Store(emptySnapshot(root))
	return e, nil
}

func emptySnapshot(root string) *symbols.Snapshot {
	s := symbols.Empty()
	s.Meta.Workspace = root
	return s
}

// RegisterExtractor adds an extractor to the engine.
func (e *Engine) RegisterExtractor(ext extractors.Extractor) {
	e.extractors.Register(ext)
}

// RegisterExplainer adds an explainer to the engine.
func (e *Engine) RegisterExplainer(exp explainers.Explainer) {
	e.explainers.Register(exp)
}

// RegisterRenderer adds a renderer to the engine.
func (e *Engine) RegisterRenderer(rnd renderers.Renderer) {
	e.renderers.Register(rnd)
}

// Config returns the engine config.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Root returns the absolute workspace root.
func (e *Engine) Root() string {
	return e.root
}

// Snapshot returns the published snapshot. It is never nil.
func (e *Engine) Snapshot() *symbols.Snapshot {
	return e.current.Load()
}

// SetSnapshot publishes a snapshot produced elsewhere, such as a dump loaded
// from disk at startup.
func (e *Engine) SetSnapshot(s *symbols.Snapshot) {
	e.Publish(s)
}

// Publish assigns the next generation number to s and makes it current.
func (e *Engine) Publish(s *symbols.Snapshot) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	e.generation++
	s.Meta.Generation = e.generation
	e.current.Store(s)
	log.Printf("[engine] published generation %d (%d entries)", s.Meta.Generation, s.Count())
}

// Published reports whether any snapshot has been published.
func (e *Engine) Published() bool {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	return e.generation > 0
}

// Rebuild builds a new snapshot and publishes it.
func (e *Engine) Rebuild(ctx context.Context) (*symbols.Snapshot, error) {
	s, err := e.Build(ctx)
	if err != nil {
		return nil, err
	}
	e.Publish(s)
	return s, nil
}

// Build runs the full pipeline without publishing. File-level problems
// become diagnostics; only cancellation or an unusable workspace fail.
func (e *Engine) Build(ctx context.Context) (*symbols.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	col := diag.NewCollector("engine")

	// 1. Walk the include graph
	walk, err := includes.Walk(ctx, includes.Options{
		Root:         e.root,
		Manifest:     e.cfg.Manifest,
		ManifestName: e.cfg.ManifestName,
		SourceExt:    e.cfg.SourceExt,
		ManifestExt:  e.cfg.ManifestExt,
		Ignore:       e.cfg.Ignore,
		Diagnostics:  col,
	})
	if err != nil {
		return nil, fmt.Errorf("walking workspace: %w", err)
	}
	log.Printf("[engine] found %d source files in %s", len(walk.Files), e.root)

	// 2. Collect jobs: lists, catalogs, sources
	jobs := e.completionJobs()
	for _, p := range walk.Files {
		jobs = append(jobs, job{path: p, rel: includes.RelTo(e.root, p), stage: stageSource})
	}

	// 3. Read and extract concurrently, in traversal order
	results, nextCache, err := e.extractAll(ctx, jobs, col)
	if err != nil {
		return nil, err
	}

	// 4. Fold in the fixed order
	b := symbols.NewBuilder()
	fold := func(st stage) {
		for i, j := range jobs {
			if j.stage != st {
				continue
			}
			r := results[i]
			if st == stageList {
				for _, en := range r.Entries {
					b.AddEntries(en.Kind, en)
				}
			}
			b.AddDeclarations(r.Declarations...)
		}
	}
	fold(stageList)
	if e.cfg.CatalogsFirst {
		fold(stageCatalog)
		fold(stageSource)
	} else {
		fold(stageSource)
		fold(stageCatalog)
	}

	meta := symbols.Meta{
		Workspace:     e.root,
		Fallback:      walk.Fallback,
		CatalogsFirst: e.cfg.CatalogsFirst,
		Files:         make([]string, 0, len(walk.Files)),
		BuiltAt:       time.Now().UTC().Format(time.RFC3339),
	}
	if walk.Manifest != "" {
		meta.Manifest = includes.RelTo(e.root, walk.Manifest)
	}
	for _, j := range jobs {
		switch j.stage {
		case stageSource:
			meta.Files = append(meta.Files, j.rel)
		case stageCatalog:
			meta.Catalogs = append(meta.Catalogs, j.rel)
		}
	}
	for _, edge := range walk.Edges {
		meta.Includes = append(meta.Includes, symbols.IncludeEdge{
			From: includes.RelTo(e.root, edge.From),
			To:   includes.RelTo(e.root, edge.To),
		})
	}

	snap := b.Build(meta)

	// 5. Explainers add cross-file diagnostics
	snap.Meta.Diagnostics = append(col.Items(), e.runExplainers(ctx, snap)...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.cache = nextCache
	snap.Meta.Duration = time.Since(start).String()
	log.Printf("[engine] built %d functions, %d entries, %d diagnostics in %s",
		len(snap.Declarations()), snap.Count(), len(snap.Meta.Diagnostics), snap.Meta.Duration)
	return snap, nil
}

// completionJobs lists the flat lists and catalogs of the completion directory.
func (e *Engine) completionJobs() []job {
	if e.cfg.CompletionDir == "" {
		return nil
	}
	dir := e.cfg.Resolve(e.cfg.CompletionDir)

	var jobs []job
	for _, name := range []string{e.cfg.Lists.Keywords, e.cfg.Lists.Constants, e.cfg.Lists.Variables} {
		if name == "" {
			continue
		}
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			log.Printf("[engine] warning: no file at %s", p)
			continue
		}
		jobs = append(jobs, job{path: p, rel: e.relCompletion(dir, p), stage: stageList})
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("[engine] warning: reading completion dir %s: %v", dir, err)
		return jobs
	}
	var catalogs []string
	for _, en := range entries {
		if !en.IsDir() && strings.HasSuffix(strings.ToLower(en.Name()), strings.ToLower(e.cfg.CatalogSuffix)) {
			catalogs = append(catalogs, en.Name())
		}
	}
	sort.Strings(catalogs)
	for _, name := range catalogs {
		p := filepath.Join(dir, name)
		jobs = append(jobs, job{path: p, rel: e.relCompletion(dir, p), stage: stageCatalog})
	}
	return jobs
}

// relCompletion names completion files relative to the workspace when they
// live inside it and relative to the completion dir otherwise.
func (e *Engine) relCompletion(dir, p string) string {
	rel := includes.RelTo(e.root, p)
	if !filepath.IsAbs(filepath.FromSlash(rel)) {
		return rel
	}
	return includes.RelTo(dir, p)
}

// extractAll reads every job with a bounded worker pool. Results are stored
// by job index so the fold stays in traversal order.
func (e *Engine) extractAll(ctx context.Context, jobs []job, col *diag.Collector) ([]extractors.Result, map[string]cacheEntry, error) {
	results := make([]extractors.Result, len(jobs))
	hashes := make([]uint64, len(jobs))
	ok := make([]bool, len(jobs))
	var reused atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(j.path)
			if err != nil {
				col.Report(j.rel, diag.NewFileError("read", j.rel, err))
				return nil
			}
			h := xxhash.Sum64(content)
			if prev, hit := e.cache[j.path]; hit && prev.hash == h {
				results[i], hashes[i], ok[i] = prev.result, h, true
				reused.Add(1)
				return nil
			}
			ext := e.extractors.For(j.path)
			if ext == nil {
				return nil
			}
			res, err := ext.Extract(gctx, extractors.File{Path: j.path, Rel: j.rel, Content: content})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				col.Report(j.rel, err)
				return nil
			}
			results[i], hashes[i], ok[i] = res, h, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	next := make(map[string]cacheEntry, len(jobs))
	for i, j := range jobs {
		if ok[i] {
			next[j.path] = cacheEntry{hash: hashes[i], result: results[i]}
		}
	}
	if n := reused.Load(); n > 0 {
		log.Printf("[engine] %d of %d files unchanged since last build", n, len(jobs))
	}
	return results, next, nil
}

func (e *Engine) workers() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return 1
}

// runExplainers runs all enabled explainers.
func (e *Engine) runExplainers(ctx context.Context, snap *symbols.Snapshot) []diag.Diagnostic {
	var all []diag.Diagnostic
	for _, exp := range e.explainers.All() {
		if !e.cfg.IsExplainerEnabled(exp.Name()) {
			continue
		}
		found, err := exp.Explain(ctx, snap)
		if err != nil {
			log.Printf("[engine] explainer %s error: %v", exp.Name(), err)
			continue
		}
		all = append(all, found...)
	}
	return all
}

// Render runs all enabled renderers over the published snapshot.
func (e *Engine) Render(ctx context.Context) ([]renderers.Artifact, error) {
	snap := e.Snapshot()
	var artifacts []renderers.Artifact
	for _, rnd := range e.renderers.All() {
		if !e.cfg.IsRendererEnabled(rnd.Name()) {
			continue
		}
		out, err := rnd.Render(ctx, snap)
		if err != nil {
			log.Printf("[engine] renderer %s error: %v", rnd.Name(), err)
			continue
		}
		artifacts = append(artifacts, out...)
	}
	return artifacts, nil
}

// OutputDir returns the absolute artifact directory.
func (e *Engine) OutputDir() string {
	return e.cfg.Resolve(e.cfg.Output.Dir)
}

// WriteArtifacts writes the published snapshot's artifacts to the output
// directory, including symbols.jsonl and diagnostics.json.
func (e *Engine) WriteArtifacts(ctx context.Context) error {
	outDir := e.OutputDir()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	artifacts, err := e.Render(ctx)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		path := filepath.Join(outDir, a.Name)
		if err := os.WriteFile(path, a.Content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", a.Name, err)
		}
		log.Printf("[engine] wrote %s (%d bytes)", path, len(a.Content))
	}

	snap := e.Snapshot()
	symbolsPath := filepath.Join(outDir, SymbolsArtifact)
	if err := snap.WriteJSONLFile(symbolsPath); err != nil {
		return fmt.Errorf("writing %s: %w", SymbolsArtifact, err)
	}
	log.Printf("[engine] wrote %s", symbolsPath)

	diagJSON, err := e.diagnosticsJSON(snap)
	if err != nil {
		return err
	}
	diagPath := filepath.Join(outDir, DiagnosticsArtifact)
	if err := os.WriteFile(diagPath, diagJSON, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", DiagnosticsArtifact, err)
	}
	log.Printf("[engine] wrote %s (%d bytes)", diagPath, len(diagJSON))
	return nil
}

// GetArtifact returns the content of a named artifact of the published snapshot.
func (e *Engine) GetArtifact(ctx context.Context, name string) ([]byte, error) {
	snap := e.Snapshot()
	switch name {
	case SymbolsArtifact:
		var buf bytes.Buffer
		if err := snap.WriteJSONL(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case DiagnosticsArtifact:
		return e.diagnosticsJSON(snap)
	}

	artifacts, err := e.Render(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		if a.Name == name {
			return a.Content, nil
		}
	}
	return nil, fmt.Errorf("artifact %q not found", name)
}

func (e *Engine) diagnosticsJSON(snap *symbols.Snapshot) ([]byte, error) {
	items := snap.Meta.Diagnostics
	if items == nil {
		items = []diag.Diagnostic{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling diagnostics: %w", err)
	}
	return data, nil
}

// LoadSymbols publishes the symbols.jsonl dump of a previous run, if any.
// The next rebuild replaces it.
func (e *Engine) LoadSymbols() error {
	path := filepath.Join(e.OutputDir(), SymbolsArtifact)
	snap, err := symbols.ReadJSONLFile(path, symbols.Meta{Workspace: e.root, CatalogsFirst: e.cfg.CatalogsFirst})
	if err != nil {
		return err
	}
	e.SetSnapshot(snap)
	log.Printf("[engine] loaded %d entries from %s", snap.Count(), path)
	return nil
}
