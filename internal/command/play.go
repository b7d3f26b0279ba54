package command

import (
	"fmt"

	"github.com/nullkey-live/rtmpbroker/internal/amf0"
	"github.com/nullkey-live/rtmpbroker/internal/connhandle"
	"github.com/nullkey-live/rtmpbroker/internal/rtmperr"
	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
	"github.com/nullkey-live/rtmpbroker/internal/session"
)

// handlePlay implements spec.md §4.3 "play": the session claims the
// RoleSubscriber role, then requires a publisher to already be
// registered under the stream key; if none is, the subscriber
// connection is closed outright (step 3). Once a publisher is found,
// the subscriber only joins the registry's subscriber group after the
// cached key-frame replay has actually succeeded (step 6).
func (h *Handler) handlePlay(conn connhandle.Handle, msg *rtmpmsg.Message, values []amf0.Value) error {
	if len(values) < 4 {
		return rtmperr.ErrMalformedCommand
	}
	streamName, err := amf0.AsString(values[3])
	if err != nil {
		return err
	}

	sess := conn.Session()
	if !sess.SetRole(session.RoleSubscriber) {
		return fmt.Errorf("%w: session already has a role", rtmperr.ErrMalformedCommand)
	}
	sess.SetStreamName(streamName)
	streamKey, _ := sess.StreamKey()

	if err := h.sendOnStatus(conn, msg.StreamID, 0, "status", "NetStream.Play.Start", "Start publishing"); err != nil {
		return err
	}
	if err := h.writeMessage(conn, rtmpmsg.TypeAmf0Data, fixedStreamID, rtmpSampleAccessPayload()); err != nil {
		return err
	}

	pub := h.Registry.LookupPublisher(streamKey)
	if pub == nil {
		_ = conn.Close()
		return rtmperr.ErrPublisherMissing
	}

	h.Log.Info(fmt.Sprintf("play streamKey=%q", streamKey))
	h.replayTo(conn, pub, streamKey, func() {
		h.Registry.AddSubscriber(streamKey, conn)
	})
	return nil
}

// replayTo awaits pub's session readiness and, once it resolves to
// Complete, mirrors the publisher's cached metadata and key frame to
// conn (spec.md §4.3 play steps 4-6, and the pause/unpause replay).
// onSuccess runs only once the key-frame write has actually succeeded;
// any write failure along the replay closes conn instead. If readiness
// resolves without completing (the publisher disconnected before its
// first key frame), the replay is logged and dropped without closing
// conn; the publisher may simply never have started.
func (h *Handler) replayTo(conn connhandle.Handle, pub connhandle.Handle, streamKey string, onSuccess func()) {
	pubSess := pub.Session()
	pubSess.Readiness.OnReady(func(state session.ReadyState) {
		if conn.Closed() {
			return
		}
		if state != session.Complete {
			h.Log.Info(fmt.Sprintf("publisher never became ready streamKey=%q", streamKey))
			return
		}

		if meta, ok := pubSess.Metadata(); ok {
			payload := amf0.EncodeAll(amf0.String("onMetaData"), meta)
			if err := h.writeMessage(conn, rtmpmsg.TypeAmf0Data, fixedStreamID, payload); err != nil {
				_ = conn.Close()
				return
			}
		}

		if fa := pubSess.FirstAudio(); fa != nil {
			if err := conn.Write(fa.Retain()); err != nil {
				_ = conn.Close()
				return
			}
		}

		kf := pubSess.KeyFrame()
		if kf == nil {
			return
		}
		payload := append([]byte(nil), kf.Payload.Bytes()...)
		if err := h.writeAndFlush(conn, kf.Type, kf.StreamID, payload); err != nil {
			_ = conn.Close()
			return
		}
		onSuccess()
	})
}
