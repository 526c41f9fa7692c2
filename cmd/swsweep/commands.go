package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ericselin/dashserve/store"
	"github.com/ericselin/dashserve/sweep"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSweepCmd(g *globalFlags) *cobra.Command {
	policy := sweep.WaitAll
	var cachesOnly, workersOnly bool
	var concurrency int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete all caches and unregister all service workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cachesOnly && workersOnly {
				return errors.New("--caches-only and --workers-only are exclusive")
			}
			origins, err := g.allOrigins()
			if err != nil {
				return err
			}
			var errs []error
			for _, origin := range origins {
				t, err := g.open(cmd.Context(), origin)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", origin, err))
					continue
				}
				logger := log.With().Str("origin", origin).Logger()
				s, err := sweep.Sweep(cmd.Context(), t.caches, t.workers,
					sweep.WithPolicy(policy),
					sweep.WithLogger(logger),
					sweep.WithCaches(!workersOnly),
					sweep.WithWorkers(!cachesOnly),
					sweep.WithConcurrency(concurrency),
				)
				closeTarget(t, origin)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", origin, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d caches and %d registrations\n",
					origin, s.CachesDeleted, s.Unregistered)
			}
			return errors.Join(errs...)
		},
	}
	f := cmd.Flags()
	f.Var(&policy, "policy", "Failure policy: wait (stop at first failure) or best-effort")
	f.BoolVar(&cachesOnly, "caches-only", false, "Only delete caches")
	f.BoolVar(&workersOnly, "workers-only", false, "Only unregister service workers")
	f.IntVar(&concurrency, "concurrency", 0, "Maximum concurrent deletions (0 = unlimited)")
	return cmd
}

func newListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List caches and service worker registrations without deleting them",
		RunE: func(cmd *cobra.Command, args []string) error {
			origins, err := g.allOrigins()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, origin := range origins {
				t, err := g.open(cmd.Context(), origin)
				if err != nil {
					return fmt.Errorf("%s: %w", origin, err)
				}
				names, err := t.caches.Keys(cmd.Context())
				if err != nil {
					closeTarget(t, origin)
					return fmt.Errorf("%s: %w", origin, err)
				}
				regs, err := t.workers.Registrations(cmd.Context())
				closeTarget(t, origin)
				if err != nil {
					return fmt.Errorf("%s: %w", origin, err)
				}
				fmt.Fprintf(out, "%s\n", origin)
				for _, name := range names {
					fmt.Fprintf(out, "  cache   %s\n", name)
				}
				for _, reg := range regs {
					fmt.Fprintf(out, "  worker  %s (%s)\n", reg.Scope, reg.ScriptURL)
				}
			}
			return nil
		},
	}
}

// newRecordCmd writes caches and registrations into a storage profile,
// either given on the command line or captured from a live browser.
func newRecordCmd(g *globalFlags) *cobra.Command {
	var caches, workers []string
	var fromBrowser bool
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record caches and registrations into a storage profile DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			origins, err := g.allOrigins()
			if err != nil {
				return err
			}
			db, err := store.NewSQLiteStore(g.db)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, origin := range origins {
				o, err := store.For(db, origin)
				if err != nil {
					return err
				}
				names := append([]string{}, caches...)
				regs := make([]sweep.Registration, 0, len(workers))
				for _, w := range workers {
					scope, script, _ := strings.Cut(w, "=")
					regs = append(regs, sweep.Registration{Scope: scope, ScriptURL: script})
				}
				if fromBrowser {
					live := *g
					live.backend = backendBrowser
					t, err := live.open(cmd.Context(), origin)
					if err != nil {
						return err
					}
					liveNames, err := t.caches.Keys(cmd.Context())
					if err == nil {
						var liveRegs []sweep.Registration
						liveRegs, err = t.workers.Registrations(cmd.Context())
						names = append(names, liveNames...)
						regs = append(regs, liveRegs...)
					}
					closeTarget(t, origin)
					if err != nil {
						return fmt.Errorf("%s: %w", origin, err)
					}
				}
				for _, name := range names {
					if err := o.PutCache(cmd.Context(), name); err != nil {
						return err
					}
				}
				for _, reg := range regs {
					if err := o.Register(cmd.Context(), reg); err != nil {
						return err
					}
				}
				log.Info().Str("origin", o.Name()).Int("caches", len(names)).Int("registrations", len(regs)).
					Msgf("Recorded into %s", g.db)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&caches, "cache", nil, "Cache name to record (repeatable)")
	f.StringSliceVar(&workers, "worker", nil, "Registration to record as scope=scriptURL (repeatable)")
	f.BoolVar(&fromBrowser, "from-browser", false, "Capture the live browser state of each origin")
	return cmd
}

func closeTarget(t target, origin string) {
	if err := t.close(); err != nil {
		log.Warn().Err(err).Str("origin", origin).Msg("Could not close storage")
	}
}
