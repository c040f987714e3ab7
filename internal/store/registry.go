package store

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Factory builds a Store for a parsed backend URI.
type Factory func(ctx context.Context, uri *url.URL) (Store, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a backend available under a URI scheme. Backend packages
// call it from init; registering a scheme twice panics.
func Register(scheme string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" {
		panic("store: empty scheme")
	}
	if factory == nil {
		panic("store: nil factory for scheme " + scheme)
	}
	if _, dup := factories[scheme]; dup {
		panic("store: scheme registered twice: " + scheme)
	}
	factories[scheme] = factory
}

// Schemes lists the registered backend schemes.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for scheme := range factories {
		out = append(out, scheme)
	}
	sort.Strings(out)
	return out
}

// Open resolves rawURI's scheme against the registry and builds the backend.
func Open(ctx context.Context, rawURI string) (Store, error) {
	rawURI = strings.TrimSpace(rawURI)
	if rawURI == "" {
		return nil, fmt.Errorf("tracking uri is required")
	}
	uri, err := url.Parse(rawURI)
	if err != nil {
		return nil, fmt.Errorf("parse tracking uri %q: %w", rawURI, err)
	}
	registryMu.RLock()
	factory, ok := factories[strings.ToLower(uri.Scheme)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported tracking uri scheme %q (registered: %s)", uri.Scheme, strings.Join(Schemes(), ", "))
	}
	return factory(ctx, uri)
}
