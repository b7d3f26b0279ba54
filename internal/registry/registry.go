// Package registry implements the process-wide stream directory
// (spec.md §4.2): a stream key maps to at most one publisher handle and
// an ordered group of subscriber handles. Grounded on the teacher's
// RTMPServer channel map (rtmp_server.go), split out into its own
// swappable component per spec.md §9 "Global registry" — mutation only
// through this API. New builds an independent, empty registry; there is
// no shutdown or reset operation.
package registry

import (
	"sync"

	"github.com/nullkey-live/rtmpbroker/internal/connhandle"
	"github.com/nullkey-live/rtmpbroker/internal/rtmperr"
)

// Registry is the concurrent, process-wide stream directory. The zero
// value is not usable; use New.
type Registry struct {
	mu          sync.RWMutex
	publishers  map[string]connhandle.Handle
	subscribers map[string]*group
}

// group is an ordered, mutex-guarded set of subscriber handles for one
// stream key, supporting idempotent add/remove and snapshot iteration.
type group struct {
	mu      sync.RWMutex
	order   []connhandle.Handle
	members map[uint64]int // handle ID -> index into order
}

func newGroup() *group {
	return &group{members: make(map[uint64]int)}
}

func (g *group) add(h connhandle.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[h.ID()]; ok {
		return
	}
	g.members[h.ID()] = len(g.order)
	g.order = append(g.order, h)
}

func (g *group) remove(h connhandle.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.members[h.ID()]
	if !ok {
		return
	}
	g.order = append(g.order[:idx], g.order[idx+1:]...)
	delete(g.members, h.ID())
	for i := idx; i < len(g.order); i++ {
		g.members[g.order[i].ID()] = i
	}
}

func (g *group) len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// snapshot returns a copy of the current member list, so fan-out
// iteration never observes concurrent add/remove (spec.md §4.2/§5).
func (g *group) snapshot() []connhandle.Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]connhandle.Handle, len(g.order))
	copy(out, g.order)
	return out
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		publishers:  make(map[string]connhandle.Handle),
		subscribers: make(map[string]*group),
	}
}

// RegisterPublisher registers h as the publisher for streamKey. It
// fails with ErrStreamKeyInUse if an entry already exists; the caller
// must close the losing connection in that case (spec.md §4.2).
func (r *Registry) RegisterPublisher(streamKey string, h connhandle.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.publishers[streamKey]; exists {
		return rtmperr.ErrStreamKeyInUse
	}
	r.publishers[streamKey] = h
	return nil
}

// RemovePublisher removes the publisher entry for streamKey only if
// the stored handle's ID equals h's, preventing a late teardown from
// clobbering a replaced entry.
func (r *Registry) RemovePublisher(streamKey string, h connhandle.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.publishers[streamKey]; ok && cur.ID() == h.ID() {
		delete(r.publishers, streamKey)
	}
}

// LookupPublisher returns the registered publisher handle for
// streamKey, or nil if there is none.
func (r *Registry) LookupPublisher(streamKey string) connhandle.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publishers[streamKey]
}

// AddSubscriber adds h to streamKey's subscriber group. Idempotent;
// creates the group lazily.
func (r *Registry) AddSubscriber(streamKey string, h connhandle.Handle) {
	g := r.groupFor(streamKey, true)
	g.add(h)
}

// RemoveSubscriber removes h from streamKey's subscriber group, if
// present. Safe if absent. Drops the group entirely once the last
// subscriber leaves.
func (r *Registry) RemoveSubscriber(streamKey string, h connhandle.Handle) {
	r.mu.RLock()
	g, ok := r.subscribers[streamKey]
	r.mu.RUnlock()
	if !ok {
		return
	}
	g.remove(h)
	if g.len() == 0 {
		r.mu.Lock()
		if cur, ok := r.subscribers[streamKey]; ok && cur == g && g.len() == 0 {
			delete(r.subscribers, streamKey)
		}
		r.mu.Unlock()
	}
}

// IterateSubscribers calls fn once per subscriber currently in
// streamKey's group, over a consistent snapshot taken at call time;
// concurrent adds/removes are not observed by this iteration
// (spec.md §4.4/§5).
func (r *Registry) IterateSubscribers(streamKey string, fn func(connhandle.Handle)) {
	r.mu.RLock()
	g, ok := r.subscribers[streamKey]
	r.mu.RUnlock()
	if !ok {
		return
	}
	for _, h := range g.snapshot() {
		fn(h)
	}
}

// SubscriberCount returns a snapshot count, for fleet-tooling status
// reporting.
func (r *Registry) SubscriberCount(streamKey string) int {
	r.mu.RLock()
	g, ok := r.subscribers[streamKey]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return g.len()
}

func (r *Registry) groupFor(streamKey string, create bool) *group {
	r.mu.RLock()
	g, ok := r.subscribers[streamKey]
	r.mu.RUnlock()
	if ok || !create {
		return g
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.subscribers[streamKey]; ok {
		return g
	}
	g = newGroup()
	r.subscribers[streamKey] = g
	return g
}

// StreamKeys returns a snapshot of every stream key that currently has
// a publisher, a non-empty subscriber group, or both — for fleet
// tooling (remote control, cluster coordinator status).
func (r *Registry) StreamKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.publishers)+len(r.subscribers))
	for k := range r.publishers {
		seen[k] = struct{}{}
	}
	for k := range r.subscribers {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys
}
