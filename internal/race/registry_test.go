// internal/race/registry_test.go
package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())

	r.Register("c1", "race-1", "alice")
	r.Register("c2", "race-1", "bob")

	entry, ok := r.Lookup("c1")
	assert.True(t, ok)
	assert.Equal(t, "race-1", entry.RaceID)
	assert.Equal(t, "alice", entry.Username)
	assert.Equal(t, 2, r.Count())

	r.Unregister("c1")
	_, ok = r.Lookup("c1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())

	// Unregistering an unknown connection is a no-op.
	r.Unregister("ghost")
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "race-1", "alice")
	r.Register("c1", "race-2", "alice")

	entry, ok := r.Lookup("c1")
	assert.True(t, ok)
	assert.Equal(t, "race-2", entry.RaceID)
	assert.Equal(t, 1, r.Count())
}
