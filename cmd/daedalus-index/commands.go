package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/kirides/daedalus-index/internal/engine"
	"github.com/kirides/daedalus-index/internal/query"
	"github.com/kirides/daedalus-index/internal/server"
	"github.com/kirides/daedalus-index/internal/symbols"
	"github.com/kirides/daedalus-index/internal/watcher"
)

func serveCommand(c *cli.Context) error {
	ctx, stop := signalContext(c.Context)
	defer stop()

	eng, err := newEngine(c)
	if err != nil {
		return err
	}
	cfg := eng.Config()

	// Serve the previous dump until the first rebuild lands.
	if err := eng.LoadSymbols(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[main] warning: failed to load previous symbols: %v", err)
	}

	ctl := engine.NewController(eng)
	if c.Bool("write") {
		ctl.OnBuild = func(_ *symbols.Snapshot, published bool) {
			if !published {
				return
			}
			if err := eng.WriteArtifacts(ctx); err != nil {
				log.Printf("[main] warning: failed to write artifacts: %v", err)
			}
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctl.Run(ctx)
	}()

	if cfg.Watch.Enabled && !c.Bool("no-watch") {
		w, err := watcher.New(watcher.Options{
			Root:       eng.Root(),
			Extensions: []string{cfg.SourceExt, cfg.ManifestExt},
			IgnoreDirs: cfg.Watch.IgnoreDirs,
			Debounce:   cfg.Watch.Debounce(),
		}, func() { ctl.Trigger() })
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			log.Printf("[main] warning: file watching disabled: %v", err)
		}
		defer w.Stop()
	}

	srv, err := server.New(eng, ctl, cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	err = srv.Run(ctx)
	stop()
	<-done
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func indexCommand(c *cli.Context) error {
	ctx, stop := signalContext(c.Context)
	defer stop()

	eng, err := newEngine(c)
	if err != nil {
		return err
	}
	snap, err := eng.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if c.Bool("write") {
		if err := eng.WriteArtifacts(ctx); err != nil {
			return fmt.Errorf("failed to write artifacts: %w", err)
		}
	}

	w := c.App.Writer
	manifest := snap.Meta.Manifest
	if snap.Meta.Fallback {
		manifest = "(none, scanned all sources)"
	}
	fmt.Fprintf(w, "Index complete:\n")
	fmt.Fprintf(w, "  Workspace:    %s\n", snap.Meta.Workspace)
	fmt.Fprintf(w, "  Manifest:     %s\n", manifest)
	fmt.Fprintf(w, "  Files:        %d\n", len(snap.Meta.Files))
	fmt.Fprintf(w, "  Catalogs:     %d\n", len(snap.Meta.Catalogs))
	fmt.Fprintf(w, "  Functions:    %d\n", len(snap.Declarations()))
	fmt.Fprintf(w, "  Keywords:     %d\n", len(snap.Keywords()))
	fmt.Fprintf(w, "  Constants:    %d\n", len(snap.Constants()))
	fmt.Fprintf(w, "  Variables:    %d\n", len(snap.Variables()))
	fmt.Fprintf(w, "  Diagnostics:  %d\n", len(snap.Meta.Diagnostics))
	fmt.Fprintf(w, "  Duration:     %s\n", snap.Meta.Duration)
	if c.Bool("write") {
		fmt.Fprintf(w, "  Output:       %s\n", eng.OutputDir())
	}
	return nil
}

func lookupCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return cli.Exit("usage: daedalus-index lookup NAME", 2)
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	eng, err := newEngine(c)
	if err != nil {
		return err
	}
	if _, err := eng.Rebuild(ctx); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	q := query.New(eng)
	hover, ok := q.Hover(name)
	if !ok {
		msg := fmt.Sprintf("no function named %q", name)
		if sugg := q.Suggest(name, 5); len(sugg) > 0 {
			msg += "; did you mean: " + strings.Join(sugg, ", ")
		}
		return cli.Exit(msg, 1)
	}

	w := c.App.Writer
	fmt.Fprintln(w, hover)
	d, _ := q.Lookup(name)
	if d.Doc != "" {
		fmt.Fprintf(w, "%s\n", strings.TrimSpace(d.Doc))
	}
	if loc, ok := q.Definition(name); ok {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.Path, loc.Line+1, loc.Column+1)
	} else {
		fmt.Fprintf(w, "source: %s\n", d.Source)
	}
	return nil
}

func exportCommand(c *cli.Context) error {
	ctx, stop := signalContext(c.Context)
	defer stop()

	eng, err := newEngine(c)
	if err != nil {
		return err
	}
	if _, err := eng.Rebuild(ctx); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if err := eng.WriteArtifacts(ctx); err != nil {
		return fmt.Errorf("failed to write artifacts: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Artifacts written to %s\n", eng.OutputDir())
	return nil
}
