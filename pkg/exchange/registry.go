package exchange

import (
	"fmt"
	"sync"
)

// Factory builds an Adapter for a venue given a free-form credential/config
// blob. Concrete venues register a Factory in an init() func, matching the
// teacher's bbgo.RegisterStrategy(ID, &Strategy{}) registration idiom
// (Design Notes §9: "dynamic dispatch over adapters -> interface/trait
// abstraction with a single capability surface, registry keyed by string
// venue name").
type Factory func(config map[string]string) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a venue factory under name. Panics on duplicate
// registration, mirroring bbgo.RegisterStrategy's init-time panic.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Errorf("exchange: venue %q already registered", name))
	}
	registry[name] = factory
}

// Build constructs an Adapter for the named venue.
func Build(name string, config map[string]string) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exchange: no factory registered for venue %q", name)
	}
	return factory(config)
}

// Registered lists currently registered venue names, in no defined order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
