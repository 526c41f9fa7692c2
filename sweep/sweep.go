// Package sweep deletes every named cache and unregisters every service
// worker registration of an origin.
//
// The browser storage is reached through the CacheStore and WorkerRegistry
// capabilities, so the same sweep runs against a live browser, a recorded
// storage profile or an in-memory fake. A sweep is best-effort: it holds no
// locks, retries nothing and rolls nothing back. Deletions already issued may
// complete even when the sweep as a whole reports a failure.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrEnumerate marks failures to list caches or registrations.
// A sweep that fails to enumerate stops before deleting anything.
var ErrEnumerate = errors.New("enumerate")

// CacheStore is the origin-scoped Cache Storage of a browser.
type CacheStore interface {
	// Keys returns the names of all caches of the origin.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes the named cache.
	// It reports false if there was no such cache.
	Delete(ctx context.Context, name string) (bool, error)
}

// WorkerRegistry is the service worker registry of a browser page.
type WorkerRegistry interface {
	// Registrations returns all registrations visible to the page.
	Registrations(ctx context.Context) ([]Registration, error)
	// Unregister removes the registration.
	// It reports false if the registration was already gone.
	Unregister(ctx context.Context, reg Registration) (bool, error)
}

// Registration is a registered service worker, identified by its scope.
type Registration struct {
	Scope     string `json:"scope" yaml:"scope"`
	ScriptURL string `json:"scriptURL" yaml:"scriptURL"`
}

// Failure is a single deletion or unregistration that failed.
type Failure struct {
	Kind string
	Name string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %q: %s", f.Kind, f.Name, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Summary describes the outcome of one sweep.
type Summary struct {
	RunID         string
	Policy        Policy
	CachesFound   int
	CachesDeleted int
	WorkersFound  int
	Unregistered  int
	// AlreadyGone counts items that disappeared between listing and deletion.
	// They are included in CachesDeleted and Unregistered.
	AlreadyGone int
	Failures    []Failure
	Started     time.Time
	Finished    time.Time
}

// Clean reports whether every listed item was removed.
func (s Summary) Clean() bool {
	return len(s.Failures) == 0 &&
		s.CachesDeleted == s.CachesFound &&
		s.Unregistered == s.WorkersFound
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (s Summary) MarshalZerologObject(e *zerolog.Event) {
	e.Int("cachesFound", s.CachesFound).
		Int("cachesDeleted", s.CachesDeleted).
		Int("workersFound", s.WorkersFound).
		Int("unregistered", s.Unregistered).
		Int("alreadyGone", s.AlreadyGone).
		Int("failures", len(s.Failures)).
		Dur("took", s.Finished.Sub(s.Started))
}

// Result is what Go delivers once the sweep has settled.
type Result struct {
	Summary Summary
	Err     error
}

// Go runs Sweep in the background. The channel receives exactly one Result
// and is then closed. Callers that do not care about the outcome may drop it.
func Go(ctx context.Context, caches CacheStore, workers WorkerRegistry, opts ...Option) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		s, err := Sweep(ctx, caches, workers, opts...)
		ch <- Result{Summary: s, Err: err}
	}()
	return ch
}

// Sweep deletes every cache in caches and unregisters every registration in
// workers. All deletions and unregistrations are issued concurrently.
//
// With WaitAll the first failure is returned; with BestEffort every failure
// is joined into the returned error. In both cases Sweep returns only after
// every issued operation has settled, and the summary lists all failures.
// A nil store or registry is skipped.
func Sweep(ctx context.Context, caches CacheStore, workers WorkerRegistry, opts ...Option) (Summary, error) {
	o := newOptions(opts)
	log := o.logger.With().Str("run", o.runID).Str("policy", o.policy.String()).Logger()

	s := Summary{RunID: o.runID, Policy: o.policy, Started: time.Now()}
	log.Info().Msg("Sweeping caches and service worker registrations")

	fail := func(err error) (Summary, error) {
		s.Finished = time.Now()
		log.Error().Err(err).EmbedObject(s).Msg("✗ Sweep failed")
		return s, err
	}

	var names []string
	if o.caches && caches != nil {
		var err error
		if names, err = caches.Keys(ctx); err != nil {
			return fail(fmt.Errorf("%w caches: %w", ErrEnumerate, err))
		}
	}
	var regs []Registration
	if o.workers && workers != nil {
		var err error
		if regs, err = workers.Registrations(ctx); err != nil {
			return fail(fmt.Errorf("%w registrations: %w", ErrEnumerate, err))
		}
	}
	s.CachesFound = len(names)
	s.WorkersFound = len(regs)
	log.Debug().Strs("caches", names).Int("registrations", len(regs)).Msg("Found storage to sweep")

	var mu sync.Mutex
	settle := func(kind, name string, ok bool, err error) error {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			f := Failure{Kind: kind, Name: name, Err: err}
			s.Failures = append(s.Failures, f)
			log.Error().Err(err).Str(kind, name).Msgf("✗ Could not remove %s", kind)
			if o.policy == BestEffort {
				return nil
			}
			return f
		case !ok:
			s.AlreadyGone++
			log.Info().Str(kind, name).Msgf("%s already gone", kind)
		default:
			log.Info().Str(kind, name).Msgf("Removed %s", kind)
		}
		if kind == kindCache {
			s.CachesDeleted++
		} else {
			s.Unregistered++
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, name := range names {
		name := name
		g.Go(func() error {
			ok, err := caches.Delete(ctx, name)
			return settle(kindCache, name, ok, err)
		})
	}
	for _, reg := range regs {
		reg := reg
		g.Go(func() error {
			ok, err := workers.Unregister(ctx, reg)
			return settle(kindWorker, reg.Scope, ok, err)
		})
	}
	err := g.Wait()

	if o.policy == BestEffort && len(s.Failures) > 0 {
		errs := make([]error, 0, len(s.Failures))
		for _, f := range s.Failures {
			errs = append(errs, f)
		}
		err = errors.Join(errs...)
	}
	if err != nil {
		return fail(err)
	}

	s.Finished = time.Now()
	log.Info().EmbedObject(s).Msg("✓ Sweep complete")
	return s, nil
}

const (
	kindCache  = "cache"
	kindWorker = "worker"
)
