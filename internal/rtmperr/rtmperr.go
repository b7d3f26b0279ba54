// Package rtmperr defines the sentinel error kinds the core session
// state machine and command/media handlers can return, so callers branch
// on kind (via errors.Is) rather than string-matching, per the
// propagation policy table in the specification.
package rtmperr

import "errors"

var (
	// ErrMalformedCommand covers an empty AMF0 payload, wrong arity, or
	// the wrong AMF0 type at an expected position.
	ErrMalformedCommand = errors.New("rtmp: malformed command")

	// ErrStreamKeyInUse is returned when a second publisher tries to
	// register under a stream key that already has one.
	ErrStreamKeyInUse = errors.New("rtmp: stream key already has a publisher")

	// ErrPublisherMissing is returned when a subscriber issues play
	// against a stream key with no registered publisher.
	ErrPublisherMissing = errors.New("rtmp: no publisher for stream key")

	// ErrPublisherFailed is returned when a publisher's readiness
	// resolved to failure instead of completion.
	ErrPublisherFailed = errors.New("rtmp: publisher failed before becoming ready")

	// ErrWriteFailed is returned when an outbound write (or its flush
	// future) reports failure.
	ErrWriteFailed = errors.New("rtmp: write failed")

	// ErrUnsupported covers commands that are recognized but not
	// implemented by this core: call, close, play2, deleteStream,
	// closeStream, receiveAudio, receiveVideo, seek.
	ErrUnsupported = errors.New("rtmp: unsupported command")
)
