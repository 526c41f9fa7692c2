package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ericselin/dashserve/browser"
	"github.com/ericselin/dashserve/store"
	"github.com/ericselin/dashserve/sweep"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	backendSQLite  = "sqlite"
	backendBrowser = "browser"
)

type globalFlags struct {
	backend     string
	db          string
	controlURL  string
	headless    bool
	origins     []string
	originsFile string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "swsweep",
		Short:         "Clear caches and service worker registrations of an origin",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if g.verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Level(level)
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&g.backend, "backend", backendBrowser, "Storage backend: browser or sqlite")
	pf.StringVar(&g.db, "db", "storage.db", "Storage profile DB file name (sqlite backend)")
	pf.StringVar(&g.controlURL, "control-url", "", "DevTools websocket URL of a running browser (browser backend)")
	pf.BoolVar(&g.headless, "headless", true, "Run a launched browser headless (browser backend)")
	pf.StringSliceVar(&g.origins, "origin", nil, "Origin to sweep (repeatable)")
	pf.StringVar(&g.originsFile, "origins-file", "", "YAML file with an `origins` list")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Debug logging")

	cmd.AddCommand(newSweepCmd(g), newListCmd(g), newRecordCmd(g))
	return cmd
}

// allOrigins merges --origin and --origins-file.
func (g *globalFlags) allOrigins() ([]string, error) {
	origins := append([]string{}, g.origins...)
	if g.originsFile != "" {
		var config struct {
			Origins []string `yaml:"origins"`
		}
		configBytes, err := os.ReadFile(g.originsFile)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return nil, fmt.Errorf("%s: %w", g.originsFile, err)
		}
		origins = append(origins, config.Origins...)
	}
	if len(origins) == 0 {
		return nil, errors.New("no origin given, use --origin or --origins-file")
	}
	return origins, nil
}

// target is the storage of one origin.
type target struct {
	caches  sweep.CacheStore
	workers sweep.WorkerRegistry
	close   func() error
}

// open returns the storage of origin in the selected backend.
func (g *globalFlags) open(ctx context.Context, origin string) (target, error) {
	switch g.backend {
	case backendSQLite:
		db, err := store.NewSQLiteStore(g.db)
		if err != nil {
			return target{}, fmt.Errorf("open %s: %w", g.db, err)
		}
		o, err := store.For(db, origin)
		if err != nil {
			db.Close()
			return target{}, err
		}
		return target{caches: o, workers: o, close: db.Close}, nil
	case backendBrowser:
		s, err := browser.Open(ctx, browser.Options{
			ControlURL: g.controlURL,
			Headless:   g.headless,
			Origin:     origin,
		})
		if err != nil {
			return target{}, err
		}
		return target{caches: s, workers: s, close: s.Close}, nil
	}
	return target{}, fmt.Errorf("unsupported backend %q", g.backend)
}
