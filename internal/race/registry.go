// internal/race/registry.go
package race

import "sync"

// RegistryEntry maps a live connection to the race it currently occupies.
type RegistryEntry struct {
	RaceID   string
	Username string
}

// Registry is the process-local connection index: connection id -> (race,
// display name). It is an ephemeral fast path, not authoritative state; if
// the process restarts the registry is simply empty and the affected
// connections are treated as already left. Only the connection that owns an
// entry (or its disconnect handler) mutates it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]RegistryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]RegistryEntry)}
}

func (r *Registry) Register(connID, raceID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[connID] = RegistryEntry{RaceID: raceID, Username: username}
}

func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, connID)
}

func (r *Registry) Lookup(connID string) (RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	return e, ok
}

// Count returns the number of registered connections, for the stats surface.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
