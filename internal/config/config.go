package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "daedalus-index.yaml"

// Config represents the daedalus-index configuration.
type Config struct {
	// Workspace is the project root containing the entry manifest.
	Workspace string `yaml:"workspace" toml:"workspace"`
	// Manifest is an explicit root manifest; empty means look up ManifestName.
	Manifest     string `yaml:"manifest" toml:"manifest"`
	ManifestName string `yaml:"manifest_name" toml:"manifest_name"`
	SourceExt    string `yaml:"source_ext" toml:"source_ext"`
	ManifestExt  string `yaml:"manifest_ext" toml:"manifest_ext"`

	// CompletionDir holds catalogs and flat lists. Relative paths resolve
	// against Workspace. Empty disables both.
	CompletionDir string      `yaml:"completion_dir" toml:"completion_dir"`
	CatalogSuffix string      `yaml:"catalog_suffix" toml:"catalog_suffix"`
	Lists         ListsConfig `yaml:"lists" toml:"lists"`
	// CatalogsFirst folds catalogs before parsed sources, so catalog entries
	// win on duplicate names.
	CatalogsFirst bool `yaml:"catalogs_first" toml:"catalogs_first"`

	// Ignore holds doublestar patterns skipped by the fallback scan.
	Ignore  []string `yaml:"ignore" toml:"ignore"`
	Workers int      `yaml:"workers" toml:"workers"`

	Watch      WatchConfig  `yaml:"watch" toml:"watch"`
	Explainers []string     `yaml:"explainers" toml:"explainers"`
	Renderers  []string     `yaml:"renderers" toml:"renderers"`
	Output     OutputConfig `yaml:"output" toml:"output"`
}

// ListsConfig names the flat list files inside CompletionDir.
type ListsConfig struct {
	Keywords  string `yaml:"keywords" toml:"keywords"`
	Constants string `yaml:"constants" toml:"constants"`
	Variables string `yaml:"variables" toml:"variables"`
}

// WatchConfig controls the filesystem watcher.
type WatchConfig struct {
	Enabled    bool     `yaml:"enabled" toml:"enabled"`
	DebounceMs int      `yaml:"debounce_ms" toml:"debounce_ms"`
	IgnoreDirs []string `yaml:"ignore_dirs" toml:"ignore_dirs"`
}

// Debounce returns the debounce interval.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// OutputConfig controls where and how output artifacts are generated.
type OutputConfig struct {
	Dir             string `yaml:"dir" toml:"dir"`
	SummaryMaxChars int    `yaml:"summary_max_chars" toml:"summary_max_chars"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Workspace:     ".",
		ManifestName:  "Gothic.src",
		SourceExt:     ".d",
		ManifestExt:   ".src",
		CatalogSuffix: "methods.json",
		Lists: ListsConfig{
			Keywords:  "keywords.csv",
			Constants: "constants.csv",
			Variables: "variables.csv",
		},
		CatalogsFirst: true,
		Ignore: []string{
			"**/node_modules/**",
			"**/vendor/**",
			"**/.git/**",
			".daedalus-index/**",
		},
		Workers: 8,
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMs: 200,
			IgnoreDirs: []string{"node_modules", "vendor", ".git"},
		},
		Explainers: []string{"cycles", "shadowing"},
		Renderers:  []string{"summary", "catalog_export"},
		Output: OutputConfig{
			Dir:             ".daedalus-index",
			SummaryMaxChars: 16000,
		},
	}
}

// Load reads a configuration file from the given path. Files ending in
// .toml are decoded as TOML, everything else as YAML.
// Missing fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults restores required values a file may have blanked.
func (c *Config) fillDefaults() {
	def := Default()
	if c.Workspace == "" {
		c.Workspace = def.Workspace
	}
	if c.ManifestName == "" {
		c.ManifestName = def.ManifestName
	}
	c.SourceExt = dotted(c.SourceExt, def.SourceExt)
	c.ManifestExt = dotted(c.ManifestExt, def.ManifestExt)
	if c.CatalogSuffix == "" {
		c.CatalogSuffix = def.CatalogSuffix
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.Watch.DebounceMs < 0 {
		c.Watch.DebounceMs = 0
	}
	if c.Output.Dir == "" {
		c.Output.Dir = def.Output.Dir
	}
	if c.Output.SummaryMaxChars <= 0 {
		c.Output.SummaryMaxChars = def.Output.SummaryMaxChars
	}
}

func dotted(ext, fallback string) string {
	if ext == "" {
		return fallback
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

// WorkspaceRoot returns the absolute workspace directory.
func (c *Config) WorkspaceRoot() (string, error) {
	abs, err := filepath.Abs(c.Workspace)
	if err != nil {
		return "", fmt.Errorf("resolving workspace %s: %w", c.Workspace, err)
	}
	return abs, nil
}

// Resolve makes p absolute relative to the workspace root.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	root, err := c.WorkspaceRoot()
	if err != nil {
		return p
	}
	return filepath.Join(root, p)
}

// IsExplainerEnabled returns true if the named explainer is enabled.
func (c *Config) IsExplainerEnabled(name string) bool {
	return slices.Contains(c.Explainers, name)
}

// IsRendererEnabled returns true if the named renderer is enabled.
func (c *Config) IsRendererEnabled(name string) bool {
	return slices.Contains(c.Renderers, name)
}
