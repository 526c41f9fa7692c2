package originkey

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var ErrorMalformedKey = fmt.Errorf("Malformed key")

const (
	originSeparator = "|"
	kindSeparator   = ":"
)

// Kind is the kind of browser storage a key refers to.
type Kind string

const (
	KindCache  Kind = "cache"
	KindWorker Kind = "worker"
)

type Keyer struct {
	// Unique identifier for the origin, as returned by Normalize.
	Origin string
	// Key prefix for this origin
	OriginPrefix string
}

func NewKeyer(origin string) Keyer {
	return Keyer{
		Origin:       origin,
		OriginPrefix: origin + originSeparator,
	}
}

// KindPrefix gets the key prefix for the origin with the given kind.
// E.g. prefix for all named caches of the origin.
func (k Keyer) KindPrefix(kind Kind) string {
	return k.OriginPrefix + string(kind) + kindSeparator
}

// Key returns the full key for a named cache or a worker scope.
func (k Keyer) Key(kind Kind, name string) string {
	return k.KindPrefix(kind) + name
}

// Name returns the kind and name encoded in key.
// It returns an error if the key does not belong to this origin.
func (k Keyer) Name(key string) (Kind, string, error) {
	if !strings.HasPrefix(key, k.OriginPrefix) {
		return "", "", fmt.Errorf("Key and origin do not match: %s", key)
	}
	rest := strings.TrimPrefix(key, k.OriginPrefix)
	kind, name, found := strings.Cut(rest, kindSeparator)
	if !found || kind == "" {
		return "", "", fmt.Errorf("%w: %s", ErrorMalformedKey, key)
	}
	return Kind(kind), name, nil
}

// Normalize reduces a URL to its origin, i.e. scheme://host[:port].
// Default ports are dropped so that equal origins get equal keys.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("Not an absolute URL: %q", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host, nil
}
