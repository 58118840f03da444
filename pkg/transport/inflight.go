package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks streaming completions so that a DELETE can cancel
// them. Entries are keyed by assistant message id and remember their owner;
// only the owner can cancel.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]inflightEntry
}

type inflightEntry struct {
	owner  string
	cancel context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[string]inflightEntry)}
}

// Register adds an in-flight stream.
func (r *InFlightRegistry) Register(messageID, owner string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[messageID] = inflightEntry{owner: owner, cancel: cancel}
}

// Cancel cancels the stream producing messageID when it is owned by owner.
// Returns false if no such stream is running.
func (r *InFlightRegistry) Cancel(messageID, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[messageID]
	if !ok || e.owner != owner {
		return false
	}
	e.cancel()
	delete(r.entries, messageID)
	return true
}

// Remove drops an entry without cancelling it. Called when a stream ends.
func (r *InFlightRegistry) Remove(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, messageID)
}

// Len returns the number of running streams.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
