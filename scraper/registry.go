package scraper

import (
	"fmt"
	"sort"
	"sync"

	"rental-scraper/config"
)

// Factory builds an adapter for one configured source. fetcher is already
// throttled and retried by the caller.
type Factory func(src config.SourceConfig, fetcher Fetcher) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes an adapter kind available. Adapter packages call it from
// init; registering a kind twice panics.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic("scraper: Register called twice for kind " + kind)
	}
	registry[kind] = f
}

// Lookup returns the factory for kind.
func Lookup(kind string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[kind]
	return f, ok
}

// Kinds lists the registered adapter kinds.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New builds the adapter for src.
func New(src config.SourceConfig, fetcher Fetcher) (Adapter, error) {
	f, ok := Lookup(src.Kind)
	if !ok {
		return nil, fmt.Errorf("scraper: source %q: unknown adapter kind %q", src.Name, src.Kind)
	}
	return f(src, fetcher)
}
