package store

import (
	"context"
	"time"

	originkey "github.com/ericselin/dashserve/pkg/origin-key"
	"github.com/ericselin/dashserve/sweep"
)

// Provider is an interface for a storage provider.
// It stores []byte values, which represent named caches and worker registrations.
// Operating on origin-specific prefixes is very important
// in order for many origins to be able to be stored in the same provider.
//
// Implementations must be thread-safe!
type Provider interface {
	// All returns all entries that have the specific key prefix
	All(prefix string) ([]Entry, error)
	// Put stores the entry under its key, replacing any previous value.
	Put(Entry) error
	// Purge removes the entry for the given key.
	// It reports whether there was an entry to remove.
	Purge(key string) (bool, error)
	// Has checks if the specified key exists.
	Has(key string) bool
}

type Entry struct {
	Key      string
	StoredAt time.Time
	Bytes    []byte
}

// Origin is a view of a provider restricted to one origin.
// It implements sweep.CacheStore and sweep.WorkerRegistry.
type Origin struct {
	provider Provider
	keyer    originkey.Keyer
}

// For returns the view of p for origin.
// The origin is normalized, so any URL of the origin may be passed.
func For(p Provider, origin string) (*Origin, error) {
	normalized, err := originkey.Normalize(origin)
	if err != nil {
		return nil, err
	}
	return &Origin{provider: p, keyer: originkey.NewKeyer(normalized)}, nil
}

var (
	_ sweep.CacheStore     = (*Origin)(nil)
	_ sweep.WorkerRegistry = (*Origin)(nil)
)

// Name returns the normalized origin.
func (o *Origin) Name() string {
	return o.keyer.Origin
}

// CacheKey returns the provider key of a named cache.
func (o *Origin) CacheKey(name string) string {
	return o.keyer.Key(originkey.KindCache, name)
}

// WorkerKey returns the provider key of a registration scope.
func (o *Origin) WorkerKey(scope string) string {
	return o.keyer.Key(originkey.KindWorker, scope)
}

// Prefix returns the provider key prefix of all items of a kind.
func (o *Origin) Prefix(kind originkey.Kind) string {
	return o.keyer.KindPrefix(kind)
}

// PutCache records a named cache, like caches.open(name) in a browser.
func (o *Origin) PutCache(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.provider.Put(Entry{Key: o.CacheKey(name), StoredAt: time.Now()})
}

// Register records a service worker registration.
func (o *Origin) Register(ctx context.Context, reg sweep.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.provider.Put(Entry{
		Key:      o.WorkerKey(reg.Scope),
		StoredAt: time.Now(),
		Bytes:    []byte(reg.ScriptURL),
	})
}

func (o *Origin) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := o.provider.All(o.Prefix(originkey.KindCache))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, name, err := o.keyer.Name(e.Key); err == nil {
			names = append(names, name)
		}
	}
	return names, nil
}

func (o *Origin) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return o.provider.Purge(o.CacheKey(name))
}

func (o *Origin) Registrations(ctx context.Context) ([]sweep.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := o.provider.All(o.Prefix(originkey.KindWorker))
	if err != nil {
		return nil, err
	}
	regs := make([]sweep.Registration, 0, len(entries))
	for _, e := range entries {
		if _, scope, err := o.keyer.Name(e.Key); err == nil {
			regs = append(regs, sweep.Registration{Scope: scope, ScriptURL: string(e.Bytes)})
		}
	}
	return regs, nil
}

func (o *Origin) Unregister(ctx context.Context, reg sweep.Registration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return o.provider.Purge(o.WorkerKey(reg.Scope))
}
