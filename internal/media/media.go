// Package media implements ingress handling for the AMF0_DATA,
// AUDIO_DATA and VIDEO_DATA message types (spec.md §4.4): metadata
// capture, first-key-frame / first-audio caching, and fan-out to a
// stream's subscriber group. Grounded on the teacher's
// HandleAudioPacket/HandleVideoPacket/HandleDataPacketAMF0
// (rtmp_session.go) and StartPlayer/SetMetaData (rtmp_publisher.go),
// restated against the registry/session abstractions instead of the
// teacher's RTMPServer/RTMPSession pair.
package media

import (
	"fmt"

	"github.com/nullkey-live/rtmpbroker/internal/amf0"
	"github.com/nullkey-live/rtmpbroker/internal/connhandle"
	"github.com/nullkey-live/rtmpbroker/internal/logging"
	"github.com/nullkey-live/rtmpbroker/internal/registry"
	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
	"github.com/nullkey-live/rtmpbroker/internal/session"
)

// Notifier receives a publish-started event once a publisher actually
// registers in the registry (internal/cluster implements this).
// Nil-safe: a Handler with no Notifier simply skips notification.
type Notifier interface {
	PublishStarted(streamKey string)
}

// Handler ingests media and metadata messages from a publisher
// connection and mirrors them to the stream's subscriber group.
type Handler struct {
	Registry *registry.Registry
	Log      logging.Logger
	Notifier Notifier
}

// NewHandler builds a media Handler bound to reg.
func NewHandler(reg *registry.Registry, log logging.Logger) *Handler {
	return &Handler{Registry: reg, Log: log}
}

// fanOut mirrors msg to every non-paused subscriber of streamKey,
// retaining one reference per recipient, then drops the caller's own
// reference. Skipped (paused) subscribers never see a retain, matching
// spec.md §4.4's "paused subscribers do not receive media" rule.
func (h *Handler) fanOut(streamKey string, msg *rtmpmsg.Message) {
	h.Registry.IterateSubscribers(streamKey, func(sub connhandle.Handle) {
		if sub.Session().Paused() {
			return
		}
		// Write takes ownership of the retained handle: it releases the
		// payload itself once flushed, or immediately on failure.
		_ = sub.Write(msg.Retain())
	})
	msg.Release()
}

// HandleData implements AMF0_DATA ingress: scans the decoded value
// sequence for "onMetaData" at any index (SPEC_FULL.md §9 decision,
// covering both a bare onMetaData and an @setDataFrame-prefixed one)
// and caches the following value as the publisher's metadata, then
// mirrors the raw message onward regardless of whether onMetaData was
// found.
func (h *Handler) HandleData(conn connhandle.Handle, msg *rtmpmsg.Message) error {
	sess := conn.Session()
	streamKey, ok := sess.StreamKey()
	if !ok || sess.Role() != session.RolePublisher {
		msg.Release()
		return nil
	}

	values, err := amf0.DecodeAll(msg.Payload.Bytes())
	if err != nil {
		msg.Release()
		return err
	}
	for i, v := range values {
		if v.Type() != amf0.TypeString {
			continue
		}
		if s, _ := amf0.AsString(v); s == "onMetaData" && i+1 < len(values) {
			sess.SetMetadata(values[i+1])
			break
		}
	}

	h.fanOut(streamKey, msg)
	return nil
}

// HandleAudio implements AUDIO_DATA ingress: caches the very first
// audio message as a replayable sequence header (SPEC_FULL.md §9
// decision: additive, never blocks fan-out) and mirrors every audio
// message to the subscriber group.
func (h *Handler) HandleAudio(conn connhandle.Handle, msg *rtmpmsg.Message) error {
	sess := conn.Session()
	streamKey, ok := sess.StreamKey()
	if !ok || sess.Role() != session.RolePublisher {
		msg.Release()
		return nil
	}

	if b := msg.Payload.Bytes(); len(b) > 0 {
		sess.SetAudioCodec(uint32(b[0] >> 4))
	}
	if sess.FirstAudio() == nil {
		sess.SetFirstAudio(msg.Copy())
	}

	h.fanOut(streamKey, msg)
	return nil
}

// HandleVideo implements VIDEO_DATA ingress: on the first key frame it
// caches the frame, completes the publisher's Readiness, and registers
// the publisher in the registry under the stream key (spec.md §3/§4.2/
// §4.4: registration happens here, not at the publish command, so the
// registry invariant that a subscriber never observes a publisher
// without its cached key frame always holds). A losing race on an
// in-use stream key fails the handler, closing the losing connection
// per the dispatcher's uniform close-on-error policy. Every other
// video message is mirrored to the subscriber group.
func (h *Handler) HandleVideo(conn connhandle.Handle, msg *rtmpmsg.Message) error {
	sess := conn.Session()
	streamKey, ok := sess.StreamKey()
	if !ok || sess.Role() != session.RolePublisher {
		msg.Release()
		return nil
	}

	if b := msg.Payload.Bytes(); len(b) > 0 {
		sess.SetVideoCodec(uint32(b[0] & 0x0F))
	}

	if sess.KeyFrame() == nil && msg.IsKeyFrame() && sess.SetKeyFrame(msg.Copy()) {
		sess.Readiness.Resolve(session.Complete)
		if err := h.Registry.RegisterPublisher(streamKey, conn); err != nil {
			msg.Release()
			return err
		}
		if h.Notifier != nil {
			h.Notifier.PublishStarted(streamKey)
		}
		h.Log.Info(fmt.Sprintf("first key frame cached streamKey=%q", streamKey))
		msg.Release()
		return nil
	}

	h.fanOut(streamKey, msg)
	return nil
}
