package bridge

import "sync"

// Holder is the process-wide slot for the single Bridge: a mutex-guarded
// optional cell with lazy, idempotent creation. It is built by the
// composition root and injected wherever commands are dispatched — never
// a package global — so tests can hand it a fake spawner.
//
// The lock is held for the entire Do body. That totally orders command
// exchanges across all callers: at most one logical command flows through
// the bridge at any instant, and the Nth call's read completes before the
// (N+1)th call's write begins.
type Holder struct {
	spawn SpawnFunc

	mu     sync.Mutex
	bridge *Bridge
}

// NewHolder creates an empty Holder that builds its Bridge on first use.
func NewHolder(spawn SpawnFunc) *Holder {
	return &Holder{spawn: spawn}
}

// Do runs fn against the shared Bridge while holding the holder lock,
// creating the Bridge first if the slot is empty. A spawn failure
// surfaces as an initialization-class error and leaves the slot empty, so
// a later Do retries. A failure inside fn does NOT discard the bridge;
// Reset is the only recovery path.
func (h *Holder) Do(fn func(*Bridge) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.bridge == nil {
		b, err := h.spawn()
		if err != nil {
			return &Error{Kind: KindInitialization, Err: err}
		}
		h.bridge = b
	}
	return fn(h.bridge)
}

// Reset closes and drops the current Bridge, if any; the next Do spawns a
// fresh worker. This is the collaborator-facing recovery hook for a
// channel left in an unknown framing state.
func (h *Holder) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.bridge == nil {
		return nil
	}
	err := h.bridge.Close()
	h.bridge = nil
	return err
}

// Close releases the worker at shutdown.
func (h *Holder) Close() error { return h.Reset() }

// Running reports whether a Bridge currently exists. It does not touch
// the worker process.
func (h *Holder) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bridge != nil
}
