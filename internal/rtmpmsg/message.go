// Package rtmpmsg defines the RTMP logical message value the
// transport hands to the dispatcher, and the dispatcher hands back out.
// Grounded on the teacher's RTMPPacket (rtmp_packet.go), trimmed to the
// fields spec.md §3 names and generalized to carry a refcounted
// payload instead of a bare owned slice.
package rtmpmsg

import "github.com/nullkey-live/rtmpbroker/internal/rbuf"

// Type is an RTMP message type code (spec.md §6).
type Type uint8

const (
	TypeSetChunkSize              Type = 1
	TypeAbort                     Type = 2
	TypeAcknowledgement           Type = 3
	TypeUserControlMessage        Type = 4
	TypeWindowAcknowledgementSize Type = 5
	TypeSetPeerBandwidth          Type = 6
	TypeAudioData                 Type = 8
	TypeVideoData                 Type = 9
	TypeAmf0Data                  Type = 18
	TypeAmf0Command               Type = 20
)

// User control event codes (spec.md §6).
const (
	UserControlStreamBegin uint16 = 0
	UserControlStreamEOF   uint16 = 1
)

// Message is a whole, reassembled RTMP logical message.
type Message struct {
	Type      Type
	Timestamp uint32 // milliseconds, wraps per RTMP spec; never reinterpreted here
	StreamID  uint32
	Payload   rbuf.Buffer
}

// New wraps an already-produced payload buffer (refcount 1) in a
// Message.
func New(t Type, timestamp uint32, streamID uint32, payload rbuf.Buffer) *Message {
	return &Message{Type: t, Timestamp: timestamp, StreamID: streamID, Payload: payload}
}

// IsKeyFrame reports whether m is a VIDEO_DATA message whose first
// payload byte's high nibble is 1 (an intra-coded frame), per
// spec.md §3/§6.
func (m *Message) IsKeyFrame() bool {
	if m.Type != TypeVideoData {
		return false
	}
	b := m.Payload.Bytes()
	if len(b) == 0 {
		return false
	}
	return (b[0] >> 4) == 1
}

// Retain returns a new message with the same header fields that shares
// m's payload, with the payload refcount incremented, for fan-out to
// one more subscriber.
func (m *Message) Retain() *Message {
	return &Message{Type: m.Type, Timestamp: m.Timestamp, StreamID: m.StreamID, Payload: m.Payload.Retain()}
}

// Copy returns a new message with an independent, deep-copied payload,
// for caching inside a session (key frame / first audio / metadata
// source) independent of the dispatcher-owned original.
func (m *Message) Copy() *Message {
	return &Message{Type: m.Type, Timestamp: m.Timestamp, StreamID: m.StreamID, Payload: m.Payload.Duplicate()}
}

// Release drops this handle's refcount on the payload.
func (m *Message) Release() {
	if m.Payload != nil {
		m.Payload.Release()
	}
}
