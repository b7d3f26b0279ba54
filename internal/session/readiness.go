package session

import "sync"

// ReadyState is the resolution value of a Readiness completion.
type ReadyState int

const (
	// pending is the zero value before Resolve is called.
	pending ReadyState = iota
	// Complete means the publisher cached its first key frame and is
	// safe to mirror to subscribers.
	Complete
	// Failed means the publisher session ended before completing.
	Failed
)

// Readiness is the single cross-connection ordering primitive
// (spec.md §5/§9): a one-shot notification a publisher session
// resolves at most once, and subscribers awaiting `play`/`pause(false)`
// subscribe callbacks to. Callbacks registered after resolution run
// synchronously, inline, from OnReady.
type Readiness struct {
	mu       sync.Mutex
	resolved bool
	state    ReadyState
	waiters  []func(ReadyState)
}

// NewReadiness returns an unresolved readiness primitive.
func NewReadiness() *Readiness {
	return &Readiness{}
}

// Resolve settles the readiness to state, draining and running any
// pending callbacks. A second call is a no-op: readiness resolves at
// most once.
func (r *Readiness) Resolve(state ReadyState) {
	r.mu.Lock()
	if r.resolved {
		r.mu.Unlock()
		return
	}
	r.resolved = true
	r.state = state
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()

	for _, cb := range waiters {
		cb(state)
	}
}

// OnReady registers cb to run when readiness resolves. If readiness has
// already resolved, cb runs synchronously before OnReady returns.
func (r *Readiness) OnReady(cb func(ReadyState)) {
	r.mu.Lock()
	if r.resolved {
		state := r.state
		r.mu.Unlock()
		cb(state)
		return
	}
	r.waiters = append(r.waiters, cb)
	r.mu.Unlock()
}
