package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/kirides/daedalus-index/internal/config"
	"github.com/kirides/daedalus-index/internal/engine"
)

var version = "0.1.0"

func main() {
	// Ensure log output goes to stderr, never stdout (MCP uses stdout for JSON-RPC)
	log.SetOutput(os.Stderr)

	app := &cli.App{
		Name:    "daedalus-index",
		Usage:   "Index Daedalus scripts and answer completion, signature, hover and definition queries",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (.yaml or .toml)",
				Value:   config.DefaultFile,
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Workspace root containing the script manifest (overrides config)",
			},
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Index the workspace, watch it for changes and serve queries over MCP on stdio",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "write",
						Usage: "Write artifacts after every published rebuild",
					},
					&cli.BoolFlag{
						Name:  "no-watch",
						Usage: "Disable the filesystem watcher",
					},
				},
				Action: serveCommand,
			},
			{
				Name:  "index",
				Usage: "Build the index once and print statistics",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "write",
						Usage: "Write artifacts to the output directory",
					},
				},
				Action: indexCommand,
			},
			{
				Name:      "lookup",
				Usage:     "Show the signature and definition of a function",
				ArgsUsage: "NAME",
				Action:    lookupCommand,
			},
			{
				Name:   "export",
				Usage:  "Build the index and write all artifacts",
				Action: exportCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies flag overrides. A missing
// default config file falls back to defaults; an explicit one must exist.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfgPath := c.String("config")
	rootFlag := c.String("root")

	// With --root and the default config name, look for the config in the root.
	if rootFlag != "" && !c.IsSet("config") {
		cfgPath = filepath.Join(rootFlag, config.DefaultFile)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if c.IsSet("config") || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		log.Printf("[main] no config at %s, using defaults", cfgPath)
		cfg = config.Default()
	}

	if rootFlag != "" {
		absRoot, err := filepath.Abs(rootFlag)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", rootFlag, err)
		}
		cfg.Workspace = absRoot
	}
	return cfg, nil
}

func newEngine(c *cli.Context) (*engine.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	eng, err := engine.NewDefault(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return eng, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
