package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	catalogMu sync.RWMutex
	catalog   = make(map[string]func() Engine)
)

// Register makes an engine constructor available under name. Engine
// packages call it from init.
func Register(name string, factory func() Engine) {
	catalogMu.Lock()
	defer catalogMu.Unlock()

	key := strings.ToLower(name)
	if _, exists := catalog[key]; exists {
		panic(fmt.Sprintf("rules: engine %q registered twice", name))
	}
	catalog[key] = factory
}

// Lookup returns a fresh engine registered under name (case-insensitive)
func Lookup(name string) (Engine, error) {
	catalogMu.RLock()
	factory, ok := catalog[strings.ToLower(name)]
	catalogMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownEngine, name, strings.Join(Names(), ", "))
	}
	return factory(), nil
}

// Names lists registered engines in sorted order
func Names() []string {
	catalogMu.RLock()
	defer catalogMu.RUnlock()

	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
