// Package browser reaches the Cache Storage and service worker registry of a
// real origin through the Chrome DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ericselin/dashserve/sweep"
)

type Options struct {
	// DevTools websocket URL of a running browser.
	// A local browser is launched if empty.
	ControlURL string
	// Run a launched browser headless.
	Headless bool
	// Any URL of the origin to sweep. The page is opened on it.
	Origin string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Session is a page opened on an origin.
// It implements sweep.CacheStore and sweep.WorkerRegistry.
type Session struct {
	browser  *rod.Browser
	page     *rod.Page
	launched bool
	log      zerolog.Logger
}

var (
	_ sweep.CacheStore     = (*Session)(nil)
	_ sweep.WorkerRegistry = (*Session)(nil)
)

// Open connects to (or launches) a browser and loads the origin.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Origin == "" {
		return nil, errors.New("no origin to open")
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("origin", opts.Origin).Logger()

	controlURL := opts.ControlURL
	launched := false
	if controlURL == "" {
		url, err := launcher.New().Headless(opts.Headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = url
		launched = true
		logger.Debug().Str("controlURL", controlURL).Msg("Launched browser")
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: opts.Origin})
	if err != nil {
		closeBrowser(b, launched, logger)
		return nil, fmt.Errorf("open %s: %w", opts.Origin, err)
	}
	if err := page.WaitLoad(); err != nil {
		if cerr := page.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Could not close page")
		}
		closeBrowser(b, launched, logger)
		return nil, fmt.Errorf("load %s: %w", opts.Origin, err)
	}
	logger.Info().Msg("Opened origin in browser")
	return &Session{browser: b, page: page, launched: launched, log: logger}, nil
}

func closeBrowser(b *rod.Browser, launched bool, logger zerolog.Logger) {
	if !launched {
		return
	}
	if err := b.Close(); err != nil {
		logger.Warn().Err(err).Msg("Could not close browser")
	}
}

// Close closes the page, and the browser if Open launched it.
func (s *Session) Close() error {
	err := s.page.Close()
	if s.launched {
		err = errors.Join(err, s.browser.Close())
	}
	return err
}

// eval runs js in the page and awaits the promise it returns.
func (s *Session) eval(ctx context.Context, js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	return s.page.Context(ctx).Eval(js, args...)
}

func (s *Session) Keys(ctx context.Context) ([]string, error) {
	res, err := s.eval(ctx, `() => ('caches' in self ? caches.keys() : [])`)
	if err != nil {
		return nil, fmt.Errorf("caches.keys: %w", err)
	}
	arr := res.Value.Arr()
	names := make([]string, 0, len(arr))
	for _, v := range arr {
		names = append(names, v.Str())
	}
	return names, nil
}

func (s *Session) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.eval(ctx, `(name) => caches.delete(name)`, name)
	if err != nil {
		return false, fmt.Errorf("caches.delete %q: %w", name, err)
	}
	return res.Value.Bool(), nil
}

func (s *Session) Registrations(ctx context.Context) ([]sweep.Registration, error) {
	res, err := s.eval(ctx, `async () => {
		if (!('serviceWorker' in navigator)) return [];
		const regs = await navigator.serviceWorker.getRegistrations();
		return regs.map((r) => {
			const w = r.active || r.waiting || r.installing;
			return { scope: r.scope, scriptURL: w ? w.scriptURL : '' };
		});
	}`)
	if err != nil {
		return nil, fmt.Errorf("getRegistrations: %w", err)
	}
	arr := res.Value.Arr()
	regs := make([]sweep.Registration, 0, len(arr))
	for _, v := range arr {
		regs = append(regs, sweep.Registration{
			Scope:     v.Get("scope").Str(),
			ScriptURL: v.Get("scriptURL").Str(),
		})
	}
	return regs, nil
}

func (s *Session) Unregister(ctx context.Context, reg sweep.Registration) (bool, error) {
	res, err := s.eval(ctx, `async (scope) => {
		const r = await navigator.serviceWorker.getRegistration(scope);
		return r && r.scope === scope ? r.unregister() : false;
	}`, reg.Scope)
	if err != nil {
		return false, fmt.Errorf("unregister %s: %w", reg.Scope, err)
	}
	return res.Value.Bool(), nil
}
