package generation

import (
	"context"
	"log/slog"
	"sync"
)

// Registry tracks cancellation state per generation. Each generation owns
// one canceled flag plus a set of abort handles, one per in-flight model
// call, so Cancel can both flip the flag (checked at safe resumption
// points) and abort network calls already on the wire.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	canceled bool
	handles  map[string]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// TryRegister creates the entry for a generation. It refuses while any
// entry for the ID exists, canceled or not: a canceled run still owns the
// ID until it winds down and calls Clear, so a replacement registered in
// that window would be deleted out from under its tasks.
func (r *Registry) TryRegister(generationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[generationID]; ok {
		return false
	}
	r.entries[generationID] = &registryEntry{
		handles: make(map[string]context.CancelFunc),
	}
	return true
}

// AddHandle attaches an abort handle for one in-flight call. If the
// generation is already canceled the handle is invoked immediately.
func (r *Registry) AddHandle(generationID, handleID string, cancel context.CancelFunc) {
	r.mu.Lock()
	entry, ok := r.entries[generationID]
	if !ok || entry.canceled {
		r.mu.Unlock()
		cancel()
		return
	}
	entry.handles[handleID] = cancel
	r.mu.Unlock()
}

// RemoveHandle detaches a handle once its call has finished.
func (r *Registry) RemoveHandle(generationID, handleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[generationID]; ok {
		delete(entry.handles, handleID)
	}
}

// Cancel marks the generation canceled and fires every outstanding abort
// handle. Idempotent; unknown IDs are a no-op.
func (r *Registry) Cancel(generationID string) {
	r.mu.Lock()
	entry, ok := r.entries[generationID]
	if !ok || entry.canceled {
		r.mu.Unlock()
		return
	}
	entry.canceled = true
	handles := make([]context.CancelFunc, 0, len(entry.handles))
	for _, cancel := range entry.handles {
		handles = append(handles, cancel)
	}
	entry.handles = make(map[string]context.CancelFunc)
	r.mu.Unlock()

	slog.Info("Generation cancellation initiated", "generation_id", generationID)
	for _, cancel := range handles {
		cancel()
	}
}

// IsCanceled reports the canceled flag. Unknown IDs read as canceled so
// stale tasks never keep working after Clear.
func (r *Registry) IsCanceled(generationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[generationID]
	if !ok {
		return true
	}
	return entry.canceled
}

// Clear removes the generation's entry entirely.
func (r *Registry) Clear(generationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, generationID)
}

// Active reports whether the generation is registered and not canceled.
func (r *Registry) Active(generationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[generationID]
	return ok && !entry.canceled
}
