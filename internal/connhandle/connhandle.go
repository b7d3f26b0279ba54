// Package connhandle defines the ConnectionHandle capability the core
// consumes from the transport layer (spec.md §6): an opaque handle to
// write messages to a peer, close it, and retrieve its attached
// session. The core never imports net.Conn directly.
package connhandle

import (
	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
	"github.com/nullkey-live/rtmpbroker/internal/session"
)

// Handle is the collaborator-facing interface a transport connection
// presents to the core.
type Handle interface {
	// ID is a stable per-connection identity, used for logging and for
	// registry entries that must detect stale/replaced handles.
	ID() uint64

	// Write enqueues msg for output, without waiting for the flush. It
	// takes ownership of msg's payload reference: the implementation
	// releases it once written (or immediately, on failure). Callers
	// that want to keep using the payload must Retain before calling.
	Write(msg *rtmpmsg.Message) error

	// WriteAndFlush enqueues msg and returns a future that resolves once
	// the write has been flushed to the transport (or failed). Same
	// ownership contract as Write.
	WriteAndFlush(msg *rtmpmsg.Message) <-chan error

	// Close tears down the connection.
	Close() error

	// Closed reports whether the connection has already been torn
	// down, so a readiness callback scheduled before teardown can drop
	// its buffers without writing (spec.md §5 "Cancellation").
	Closed() bool

	// Session returns the session object attached to this connection.
	Session() *session.Session
}
