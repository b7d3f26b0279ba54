// Package session implements the per-connection RTMP session state
// machine (spec.md §3, "RtmpSession"). Grounded on the teacher's
// RTMPSession (rtmp_session.go), trimmed down to only the fields this
// core names, with the role/app/streamName/streamKey invariants made
// explicit instead of implied by field-mutation order.
package session

import (
	"sync"

	"github.com/nullkey-live/rtmpbroker/internal/amf0"
	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
)

// Role is a session's place in a stream: unassigned until the first
// publish/play command, then fixed for the session's lifetime.
type Role int

const (
	RoleUnassigned Role = iota
	RolePublisher
	RoleSubscriber
)

// State is a publisher session's lifecycle stage.
type State int

const (
	StateInitializing State = iota
	StateComplete
)

// Session is the per-connection RTMP state described in spec.md §3.
// All mutators are safe for concurrent use, though in practice a given
// connection's own messages are processed strictly in sequence
// (spec.md §5) and cross-connection access is limited to the fields
// documented per-method below.
type Session struct {
	ID         uint64
	RemoteAddr string

	mu         sync.Mutex
	role       Role
	app        string
	streamName string
	paused     bool
	state      State

	keyFrame   *rtmpmsg.Message // publisher only, set once
	firstAudio *rtmpmsg.Message // publisher only, set once (see SPEC_FULL.md §3)
	metadata   *amf0.Value      // publisher only

	audioCodec uint32 // informational only, first-observed codec id
	videoCodec uint32

	Readiness *Readiness
}

// New creates a session for a freshly accepted connection.
func New(id uint64, remoteAddr string) *Session {
	return &Session{
		ID:         id,
		RemoteAddr: remoteAddr,
		Readiness:  NewReadiness(),
	}
}

// Role returns the session's current role.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// SetRole transitions the session's role away from Unassigned. Once a
// role is set it never changes: a later call is a no-op that returns
// true if r equals the current role and false otherwise, enforcing the
// "at most once" invariant.
func (s *Session) SetRole(r Role) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleUnassigned {
		return s.role == r
	}
	s.role = r
	return true
}

// App returns the app name set by connect.
func (s *Session) App() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app
}

// SetApp sets the app name. Called once, from connect.
func (s *Session) SetApp(app string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app = app
}

// StreamName returns the stream name set by publish/play.
func (s *Session) StreamName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamName
}

// SetStreamName sets the stream name. Called once, from publish/play.
func (s *Session) SetStreamName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamName = name
}

// StreamKey returns the derived "{app}/{streamName}" identity and
// whether it is defined yet (both app and streamName must be set).
func (s *Session) StreamKey() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.app == "" || s.streamName == "" {
		return "", false
	}
	return s.app + "/" + s.streamName, true
}

// Paused reports the subscriber's pause flag.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetPaused sets the subscriber's pause flag.
func (s *Session) SetPaused(p bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = p
}

// State returns the publisher's lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetKeyFrame caches msg as the publisher's first key frame and
// transitions state to Complete, if it has not already been set. It
// returns true the first time it successfully sets the cache, false on
// any subsequent call (the key frame is immutable once set, per
// spec.md §3 invariants).
func (s *Session) SetKeyFrame(msg *rtmpmsg.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyFrame != nil {
		return false
	}
	s.keyFrame = msg
	s.state = StateComplete
	return true
}

// KeyFrame returns the cached key frame, or nil if not yet set.
func (s *Session) KeyFrame() *rtmpmsg.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyFrame
}

// SetFirstAudio caches msg as the publisher's first cacheable audio
// sequence header, if not already set. Returns true the first time it
// sets the cache.
func (s *Session) SetFirstAudio(msg *rtmpmsg.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstAudio != nil {
		return false
	}
	s.firstAudio = msg
	return true
}

// FirstAudio returns the cached first audio sequence header, or nil.
func (s *Session) FirstAudio() *rtmpmsg.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstAudio
}

// SetMetadata captures the publisher's onMetaData payload.
func (s *Session) SetMetadata(v amf0.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = &v
}

// Metadata returns the cached onMetaData payload, if any.
func (s *Session) Metadata() (amf0.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metadata == nil {
		return amf0.Value{}, false
	}
	return *s.metadata, true
}

// SetAudioCodec records the first-observed audio codec id. This is
// purely informational: it is only readable through Codecs and never
// affects fan-out or replay semantics.
func (s *Session) SetAudioCodec(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audioCodec == 0 {
		s.audioCodec = id
	}
}

// SetVideoCodec records the first-observed video codec id.
func (s *Session) SetVideoCodec(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.videoCodec == 0 {
		s.videoCodec = id
	}
}

// Codecs returns the informational audio/video codec ids observed so
// far (0 if none yet).
func (s *Session) Codecs() (audio, video uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioCodec, s.videoCodec
}

// Release drops cached publisher payload references on connection
// teardown (spec.md §5 "Buffer ownership").
func (s *Session) Release() {
	s.mu.Lock()
	kf, fa := s.keyFrame, s.firstAudio
	s.keyFrame, s.firstAudio = nil, nil
	s.mu.Unlock()
	if kf != nil {
		kf.Release()
	}
	if fa != nil {
		fa.Release()
	}
}
