package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]Dataset)
	registryMu sync.RWMutex
)

// Register adds a dataset definition to the registry.
// Panics if a dataset with the same name is already registered or the
// definition is incomplete.
func Register(ds Dataset) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if ds.Name == "" || ds.SchemaID == "" || ds.Store == "" || ds.Table == "" {
		panic(fmt.Sprintf("incomplete dataset definition: %+v", ds))
	}
	if _, exists := registry[ds.Name]; exists {
		panic(fmt.Sprintf("dataset already registered: %s", ds.Name))
	}

	registry[ds.Name] = ds
}

// Get returns a dataset definition by name.
// Returns false if not found.
func Get(name string) (Dataset, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ds, ok := registry[name]
	return ds, ok
}

// All returns all registered datasets sorted by name.
func All() []Dataset {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Dataset, 0, len(registry))
	for _, ds := range registry {
		result = append(result, ds)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Names returns the registered dataset names, sorted.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, ds := range all {
		names[i] = ds.Name
	}
	return names
}

// Clear removes all registered datasets.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Dataset)
}
