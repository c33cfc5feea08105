package client

import "sync"

// RuntimeContext carries the TLS context that is active for one connect
// attempt.  Every attempt creates its own, so concurrent attempts never
// observe each other's configuration.
type RuntimeContext struct {
	mu     sync.Mutex
	active *TLSContext
}

func newRuntimeContext() *RuntimeContext { return &RuntimeContext{} }

// publish makes tc the active TLS context.  Passing nil clears it.
func (r *RuntimeContext) publish(tc *TLSContext) {
	r.mu.Lock()
	r.active = tc
	r.mu.Unlock()
}

// Active returns the published TLS context, or nil for plain
// connections and after release.
func (r *RuntimeContext) Active() *TLSContext {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
