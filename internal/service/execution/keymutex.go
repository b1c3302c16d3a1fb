package execution

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes order execution per (user, symbol). Two concurrent
// sells must not both validate against the same pre-mutation quantity.
// Entries are reference counted and removed once the last holder unlocks.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		entries: make(map[string]*lockEntry),
	}
}

// Lock blocks until the (user, symbol) key is free and returns the matching
// unlock function.
func (k *keyedMutex) Lock(userID uuid.UUID, symbol string) func() {
	key := userID.String() + "/" + symbol

	k.mu.Lock()
	entry, found := k.entries[key]
	if !found {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
