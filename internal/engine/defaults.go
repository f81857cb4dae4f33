package engine

import (
	"fmt"

	"github.com/kirides/daedalus-index/internal/config"
	"github.com/kirides/daedalus-index/internal/explainers/cycles"
	"github.com/kirides/daedalus-index/internal/explainers/shadowing"
	"github.com/kirides/daedalus-index/internal/extractors/catalog"
	"github.com/kirides/daedalus-index/internal/extractors/daedalus"
	"github.com/kirides/daedalus-index/internal/extractors/flatlist"
	"github.com/kirides/daedalus-index/internal/renderers/catalogexport"
	"github.com/kirides/daedalus-index/internal/renderers/summary"
	"github.com/kirides/daedalus-index/internal/symbols"
)

// NewDefault creates an Engine with every built-in extractor, explainer and
// renderer registered. Explainers and renderers still honor the config.
func NewDefault(cfg *config.Config) (*Engine, error) {
	eng, err := New(cfg)
	if err != nil {
		return nil, err
	}

	// Lists are matched by exact file name, so they go before the suffix-based catalog.
	eng.RegisterExtractor(flatlist.New(map[string]symbols.Kind{
		cfg.Lists.Keywords:  symbols.KindKeyword,
		cfg.Lists.Constants: symbols.KindConstant,
		cfg.Lists.Variables: symbols.KindVariable,
	}))
	eng.RegisterExtractor(catalog.New(cfg.CatalogSuffix))
	eng.RegisterExtractor(daedalus.New(cfg.SourceExt))

	eng.RegisterExplainer(cycles.New())
	eng.RegisterExplainer(shadowing.New())

	eng.RegisterRenderer(summary.New(cfg.Output.SummaryMaxChars))
	eng.RegisterRenderer(catalogexport.New(false))

	if err := eng.checkEnabled(); err != nil {
		return nil, err
	}
	return eng, nil
}

// checkEnabled rejects configured explainer and renderer names that no
// registered component answers to.
func (e *Engine) checkEnabled() error {
	for _, name := range e.cfg.Explainers {
		if e.explainers.Get(name) == nil {
			return fmt.Errorf("unknown explainer %q in config", name)
		}
	}
	for _, name := range e.cfg.Renderers {
		if e.renderers.Get(name) == nil {
			return fmt.Errorf("unknown renderer %q in config", name)
		}
	}
	return nil
}
