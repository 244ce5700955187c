package request

import (
	"context"
	"sync"
)

// PendingHandle identifies one registration in a PendingRegistry. Only the
// handle that is currently registered for a key can remove it.
type PendingHandle struct {
	key    string
	cancel context.CancelCauseFunc
}

// Key returns the fingerprint the handle was registered under.
func (h *PendingHandle) Key() string {
	if h == nil {
		return ""
	}
	return h.key
}

// PendingRegistry tracks in-flight calls by fingerprint and guarantees at
// most one live call per fingerprint: registering a key that is already live
// cancels the earlier call first.
type PendingRegistry struct {
	mu      sync.Mutex
	entries map[string]*PendingHandle
	metrics *MetricsCollector
}

// NewPendingRegistry returns an empty registry.
func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{
		entries: make(map[string]*PendingHandle),
	}
}

// Register records a new in-flight call for key. The returned context is the
// call's cancellation token: it is cancelled with cause ErrDuplicateCancelled
// when a newer call with the same key registers.
func (r *PendingRegistry) Register(parent context.Context, key string) (*PendingHandle, context.Context) {
	ctx, cancel := context.WithCancelCause(parent)
	handle := &PendingHandle{key: key, cancel: cancel}

	r.mu.Lock()
	superseded := r.cancelLocked(key)
	r.entries[key] = handle
	size := len(r.entries)
	r.mu.Unlock()

	if superseded {
		r.metrics.RecordDuplicateCancelled()
	}
	r.metrics.RecordPending(size)
	return handle, ctx
}

// Resolve removes the entry for h's key if h is still the registered handle,
// and releases h's context. Safe to call more than once.
func (r *PendingRegistry) Resolve(h *PendingHandle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	if current, ok := r.entries[h.key]; ok && current == h {
		delete(r.entries, h.key)
	}
	size := len(r.entries)
	r.mu.Unlock()

	h.cancel(context.Canceled)
	r.metrics.RecordPending(size)
}

// CancelAndReplace aborts the live call registered for key, if any, with
// cause ErrDuplicateCancelled and removes it. It reports whether a call was
// cancelled.
func (r *PendingRegistry) CancelAndReplace(key string) bool {
	r.mu.Lock()
	cancelled := r.cancelLocked(key)
	size := len(r.entries)
	r.mu.Unlock()

	if cancelled {
		r.metrics.RecordDuplicateCancelled()
		r.metrics.RecordPending(size)
	}
	return cancelled
}

// Has reports whether a call is live for key.
func (r *PendingRegistry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of live calls.
func (r *PendingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *PendingRegistry) cancelLocked(key string) bool {
	existing, ok := r.entries[key]
	if !ok {
		return false
	}
	delete(r.entries, key)
	existing.cancel(ErrDuplicateCancelled)
	return true
}
