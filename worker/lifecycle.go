// Package worker models the self-unregistering service worker and embeds
// the browser scripts that neutralize a stale worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ericselin/dashserve/sweep"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// State is a service worker lifecycle state.
type State int

const (
	Installing State = iota
	Installed
	Activating
	Activated
	Unregistering
	// Redundant is the final state of an uninstalled worker.
	Redundant
)

func (s State) String() string {
	switch s {
	case Installing:
		return "installing"
	case Installed:
		return "installed"
	case Activating:
		return "activating"
	case Activated:
		return "activated"
	case Unregistering:
		return "unregistering"
	case Redundant:
		return "redundant"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Config struct {
	// Registration the worker was installed under.
	Registration sweep.Registration
	// Registry the worker unregisters itself from.
	Registry sweep.WorkerRegistry
	// Transport for fetches passing through the worker.
	// http.DefaultTransport is used if nil.
	Transport http.RoundTripper
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// KillSwitch is a worker whose only job is to remove itself.
// It skips the waiting phase on install, unregisters itself on activation
// and never intercepts a fetch.
type KillSwitch struct {
	mu        sync.Mutex
	state     State
	reg       sweep.Registration
	registry  sweep.WorkerRegistry
	transport http.RoundTripper
	log       zerolog.Logger
}

func New(config Config) *KillSwitch {
	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}
	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &KillSwitch{
		state:     Installing,
		reg:       config.Registration,
		registry:  config.Registry,
		transport: transport,
		log:       logger.With().Str("scope", config.Registration.Scope).Logger(),
	}
}

func (k *KillSwitch) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// must be called with k.mu held
func (k *KillSwitch) transition(from, to State) error {
	if k.state != from {
		return fmt.Errorf("%w: %s -> %s (state is %s)", ErrInvalidTransition, from, to, k.state)
	}
	k.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Worker state change")
	k.state = to
	return nil
}

// Install finishes installation and skips waiting, moving straight to activating.
func (k *KillSwitch) Install(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.transition(Installing, Installed); err != nil {
		return err
	}
	k.log.Info().Msg("Installed kill-switch worker, skipping waiting")
	return k.transition(Installed, Activating)
}

// Activate activates the worker and immediately unregisters it.
// If unregistering fails the worker stays activated.
func (k *KillSwitch) Activate(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.transition(Activating, Activated); err != nil {
		return err
	}
	if err := k.transition(Activated, Unregistering); err != nil {
		return err
	}
	ok, err := k.registry.Unregister(ctx, k.reg)
	if err != nil {
		k.log.Error().Err(err).Msg("✗ Could not unregister")
		k.state = Activated
		return fmt.Errorf("unregister %s: %w", k.reg.Scope, err)
	}
	k.log.Info().Bool("wasRegistered", ok).Msg("Unregistered")
	return k.transition(Unregistering, Redundant)
}

// Run installs and activates the worker, ending redundant.
func (k *KillSwitch) Run(ctx context.Context) error {
	if err := k.Install(ctx); err != nil {
		return err
	}
	return k.Activate(ctx)
}

// RoundTrip implements http.RoundTripper. The worker does not respond to
// fetches, so the request goes to the network unchanged in every state.
func (k *KillSwitch) RoundTrip(req *http.Request) (*http.Response, error) {
	k.log.Trace().Str("url", req.URL.String()).Msg("Fetch passes through")
	return k.transport.RoundTrip(req)
}

// Client returns an HTTP client whose fetches are controlled by the worker.
func (k *KillSwitch) Client() *http.Client {
	return &http.Client{Transport: k}
}
