package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kirides/daedalus-index/internal/config"
	"github.com/kirides/daedalus-index/internal/diag"
	"github.com/kirides/daedalus-index/internal/symbols"
)

// writeFiles creates files (slash-separated relative paths) under root.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// setupWorkspace creates a small script project plus a completion directory
// outside of it and returns a config pointing at both.
func setupWorkspace(t *testing.T) *config.Config {
	t.Helper()
	ws := t.TempDir()
	writeFiles(t, ws, map[string]string{
		"Gothic.src": "_intern\\*.d\r\nAI\\AI.src\r\nStory\\*.d\r\nStory\\Story.src\r\n",
		"_intern/Constants.d": "const int TRUE = 1;\n" +
			"func void Print(var string s) // shadowed by the catalog\n",
		"AI/AI.src":       "ai_*.d\n..\\Gothic.src\n",
		"AI/ai_helpers.d": "func int AI_Helper(var C_NPC slf, var int x) //helps\n",
		"Story/Story.src": "b_say.d\nmissing.d\n",
		"Story/b_say.d": "func void B_Say(var C_NPC slf, var C_NPC oth, var string text)\n{\n};\n" +
			"func void B_SAY(var int dup)\n",
	})

	comp := t.TempDir()
	writeFiles(t, comp, map[string]string{
		"keywords.csv":        "// keywords\nfunc@declares a function\nvar\n",
		"constants.csv":       "TRUE@1\n",
		"methods.json":        `[{"name":"Print","detail":"void Print(var string s)","desc":"prints","source":""}]`,
		"ikarus.methods.json": `[{"name":"MEM_Alloc","detail":"int MEM_Alloc(var int size)","desc":"","source":""}]`,
		"broken.methods.json": `{`,
	})

	cfg := config.Default()
	cfg.Workspace = ws
	cfg.CompletionDir = comp
	cfg.Workers = 4
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	eng, err := NewDefault(cfg)
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	return eng
}

func countKind(items []diag.Diagnostic, kind diag.Kind) int {
	n := 0
	for _, d := range items {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func TestRebuild_EndToEnd(t *testing.T) {
	cfg := setupWorkspace(t)
	eng := newEngine(t, cfg)

	snap, err := eng.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if eng.Snapshot() != snap {
		t.Error("rebuilt snapshot should be published")
	}
	if snap.Meta.Generation != 1 {
		t.Errorf("generation = %d, want 1", snap.Meta.Generation)
	}

	wantFiles := []string{"_intern/Constants.d", "AI/ai_helpers.d", "Story/b_say.d"}
	if len(snap.Meta.Files) != len(wantFiles) {
		t.Fatalf("files = %v, want %v", snap.Meta.Files, wantFiles)
	}
	for i, f := range wantFiles {
		if snap.Meta.Files[i] != f {
			t.Errorf("files[%d] = %q, want %q", i, snap.Meta.Files[i], f)
		}
	}
	if snap.Meta.Manifest != "Gothic.src" || snap.Meta.Fallback {
		t.Errorf("unexpected manifest meta: %q fallback=%v", snap.Meta.Manifest, snap.Meta.Fallback)
	}

	// Catalog entries are folded before sources.
	p, ok := snap.Declaration("Print")
	if !ok {
		t.Fatal("Print missing")
	}
	if p.Source != symbols.SourceInternal || p.Line != symbols.UnknownLine {
		t.Errorf("Print should come from the catalog, got %s:%d", p.Source, p.Line)
	}
	if mem, ok := snap.Declaration("MEM_Alloc"); !ok || mem.Source != "ikarus" {
		t.Errorf("MEM_Alloc = %+v, ok=%v", mem, ok)
	}

	helper, ok := snap.DeclarationFold("ai_helper")
	if !ok {
		t.Fatal("AI_Helper missing")
	}
	if helper.Source != "AI/ai_helpers.d" || helper.Line != 0 || helper.Doc != "helps" || len(helper.Params) != 2 {
		t.Errorf("unexpected AI_Helper: %+v", helper)
	}

	say, _ := snap.Declaration("B_Say")
	if len(say.Params) != 3 {
		t.Errorf("B_Say params = %v", say.Params)
	}
	if _, ok := snap.Declaration("B_SAY"); ok {
		t.Error("later duplicate B_SAY must be discarded")
	}

	if kw := snap.Keywords(); len(kw) != 2 || kw[0].Doc != "declares a function" {
		t.Errorf("unexpected keywords: %+v", kw)
	}
	if c := snap.Constants(); len(c) != 1 || c[0].Name != "TRUE" {
		t.Errorf("unexpected constants: %+v", c)
	}

	d := snap.Meta.Diagnostics
	if n := countKind(d, diag.KindMalformedCatalog); n != 1 {
		t.Errorf("malformed catalog diagnostics = %d, want 1: %+v", n, d)
	}
	if n := countKind(d, diag.KindDuplicate); n != 2 {
		t.Errorf("duplicate diagnostics = %d, want 2: %+v", n, d)
	}
	if n := countKind(d, diag.KindIncludeCycle); n != 1 {
		t.Errorf("include cycle diagnostics = %d, want 1: %+v", n, d)
	}
	if n := countKind(d, diag.KindMissingFile); n != 0 {
		t.Errorf("missing single source files must be skipped silently: %+v", d)
	}
	wantCatalogs := []string{"broken.methods.json", "ikarus.methods.json", "methods.json"}
	if len(snap.Meta.Catalogs) != 3 || snap.Meta.Catalogs[0] != wantCatalogs[0] || snap.Meta.Catalogs[2] != wantCatalogs[2] {
		t.Errorf("catalogs = %v, want %v", snap.Meta.Catalogs, wantCatalogs)
	}
}

func TestRebuild_SourcesFirst(t *testing.T) {
	cfg := setupWorkspace(t)
	cfg.CatalogsFirst = false
	eng := newEngine(t, cfg)

	snap, err := eng.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	p, ok := snap.Declaration("Print")
	if !ok {
		t.Fatal("Print missing")
	}
	if p.Source != "_intern/Constants.d" || p.Line != 1 {
		t.Errorf("Print should come from the parsed source, got %s:%d", p.Source, p.Line)
	}
	if snap.Meta.CatalogsFirst {
		t.Error("meta should record the fold order")
	}
}

func TestRebuild_Idempotent(t *testing.T) {
	eng := newEngine(t, setupWorkspace(t))

	first, err := eng.Rebuild(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.Rebuild(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var a, b bytes.Buffer
	if err := first.WriteJSONL(&a); err != nil {
		t.Fatal(err)
	}
	if err := second.WriteJSONL(&b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Errorf("rebuild without changes must produce a byte-equal dump\nfirst:\n%s\nsecond:\n%s", a.String(), b.String())
	}
	if first.Meta.Fingerprint != second.Meta.Fingerprint {
		t.Error("fingerprints differ")
	}
	if second.Meta.Generation != 2 {
		t.Errorf("generation = %d, want 2", second.Meta.Generation)
	}
}

func TestRebuild_PicksUpChanges(t *testing.T) {
	cfg := setupWorkspace(t)
	eng := newEngine(t, cfg)
	if _, err := eng.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeFiles(t, cfg.Workspace, map[string]string{
		"AI/ai_helpers.d": "func int AI_Helper(var C_NPC slf, var int x) //helps\nfunc void AI_Wait(var float secs)\n",
	})
	snap, err := eng.Rebuild(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := snap.Declaration("AI_Wait"); !ok {
		t.Error("changed file should be re-extracted")
	}
	if _, ok := snap.Declaration("B_Say"); !ok {
		t.Error("unchanged files should still be present")
	}
}

func TestRebuild_Fallback(t *testing.T) {
	ws := t.TempDir()
	writeFiles(t, ws, map[string]string{
		"b.d":                  "func void B()\n",
		"a/a.D":                "func void A()\n",
		"node_modules/x/dep.d": "func void Dep()\n",
	})
	cfg := config.Default()
	cfg.Workspace = ws

	snap, err := newEngine(t, cfg).Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if !snap.Meta.Fallback {
		t.Error("expected fallback scan")
	}
	if len(snap.Meta.Files) != 2 || snap.Meta.Files[0] != "a/a.D" || snap.Meta.Files[1] != "b.d" {
		t.Errorf("files = %v", snap.Meta.Files)
	}
	if _, ok := snap.Declaration("Dep"); ok {
		t.Error("ignored directories must not be scanned")
	}
}

func TestRebuild_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace = filepath.Join(t.TempDir(), "missing")
	if _, err := newEngine(t, cfg).Rebuild(context.Background()); err == nil {
		t.Error("expected error for missing workspace")
	}

	eng := newEngine(t, setupWorkspace(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.Rebuild(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
	if eng.Published() {
		t.Error("failed rebuilds must not publish")
	}
	if eng.Snapshot() == nil || eng.Snapshot().Count() != 0 {
		t.Error("engine should still serve the empty snapshot")
	}
}

func TestNewDefault_UnknownComponents(t *testing.T) {
	cfg := config.Default()
	cfg.Explainers = []string{"cycles", "layering"}
	if _, err := NewDefault(cfg); err == nil || !strings.Contains(err.Error(), `unknown explainer "layering"`) {
		t.Errorf("expected unknown explainer error, got %v", err)
	}

	cfg = config.Default()
	cfg.Renderers = []string{"summary", "llm_context"}
	if _, err := NewDefault(cfg); err == nil || !strings.Contains(err.Error(), `unknown renderer "llm_context"`) {
		t.Errorf("expected unknown renderer error, got %v", err)
	}

	cfg = config.Default()
	cfg.Explainers = nil
	cfg.Renderers = []string{"catalog_export"}
	if _, err := NewDefault(cfg); err != nil {
		t.Errorf("subset of known components should be accepted: %v", err)
	}
}

func TestRebuild_ConcurrentCallsSerialized(t *testing.T) {
	eng := newEngine(t, setupWorkspace(t))

	const n = 4
	var wg sync.WaitGroup
	gens := make([]uint64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := eng.Rebuild(context.Background())
			errs[i] = err
			if err == nil {
				gens[i] = snap.Meta.Generation
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("rebuild %d: %v", i, errs[i])
		}
		if seen[gens[i]] {
			t.Errorf("generation %d published twice", gens[i])
		}
		seen[gens[i]] = true
	}
	if eng.Snapshot().Meta.Generation != n {
		t.Errorf("final generation = %d, want %d", eng.Snapshot().Meta.Generation, n)
	}
}

func TestWriteArtifactsAndLoadSymbols(t *testing.T) {
	cfg := setupWorkspace(t)
	eng := newEngine(t, cfg)
	snap, err := eng.Rebuild(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.WriteArtifacts(context.Background()); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}

	for _, name := range []string{SymbolsArtifact, DiagnosticsArtifact, "summary.md", "methods.json"} {
		if _, err := os.Stat(filepath.Join(eng.OutputDir(), name)); err != nil {
			t.Errorf("artifact %s not written: %v", name, err)
		}
	}

	summary, err := eng.GetArtifact(context.Background(), "summary.md")
	if err != nil || len(summary) == 0 {
		t.Errorf("GetArtifact(summary.md) = %d bytes, %v", len(summary), err)
	}
	if _, err := eng.GetArtifact(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown artifact")
	}

	reloaded := newEngine(t, cfg)
	if err := reloaded.LoadSymbols(); err != nil {
		t.Fatalf("LoadSymbols: %v", err)
	}
	if got := reloaded.Snapshot(); got.Count() != snap.Count() || got.Fingerprint() != snap.Fingerprint() {
		t.Errorf("reloaded snapshot differs: %d vs %d entries", got.Count(), snap.Count())
	}
	if !reloaded.Published() {
		t.Error("loaded dump should count as published")
	}
}
