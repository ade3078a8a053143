package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuulee/bigchaindb/internal/config"
)

// Constructor builds a connected backend from the database configuration.
type Constructor func(cfg config.DatabaseConfig) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes a backend constructor available under a name. It is called
// from implementation package init functions and panics on duplicates, like
// database/sql driver registration.
func Register(name string, fn Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if fn == nil {
		panic("backend: Register constructor is nil")
	}
	if _, dup := registry[name]; dup {
		panic("backend: Register called twice for " + name)
	}
	registry[name] = fn
}

// Connect opens the backend selected by the configuration.
func Connect(cfg config.DatabaseConfig) (Backend, error) {
	registryMu.RLock()
	fn, ok := registry[cfg.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (registered: %v)", cfg.Backend, Registered())
	}
	be, err := fn(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s backend: %w", cfg.Backend, err)
	}
	return be, nil
}

// Registered returns the sorted names of available backends.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
