// Package command implements the RTMP command semantics (spec.md §4.3):
// connect, createStream, publish, FCPublish, play, pause. Grounded on
// the teacher's RTMPSession command handlers (rtmp_session.go,
// rtmp_session_utils.go), restated against an abstract ConnectionHandle
// and Registry instead of the teacher's *RTMPServer/*RTMPSession pair.
package command

import (
	"fmt"

	"github.com/nullkey-live/rtmpbroker/internal/amf0"
	"github.com/nullkey-live/rtmpbroker/internal/connhandle"
	"github.com/nullkey-live/rtmpbroker/internal/logging"
	"github.com/nullkey-live/rtmpbroker/internal/registry"
	"github.com/nullkey-live/rtmpbroker/internal/rbuf"
	"github.com/nullkey-live/rtmpbroker/internal/rtmperr"
	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
)

// Notifier receives publisher lifecycle events for fleet-coordination
// purposes (internal/cluster implements this). Nil-safe: a Handler with
// no Notifier simply skips notification.
type Notifier interface {
	PublishStarted(streamKey string)
	PublishEnded(streamKey string)
}

// Handler executes the RTMP command state machine against the shared
// registry.
type Handler struct {
	Registry *registry.Registry
	Log      logging.Logger
	Notifier Notifier
}

// NewHandler builds a command Handler bound to reg.
func NewHandler(reg *registry.Registry, log logging.Logger) *Handler {
	return &Handler{Registry: reg, Log: log}
}

// Handle decodes msg's AMF0 payload and dispatches to the named
// command. Per spec.md §4.3/§7, unknown commands are logged and
// ignored; malformed payloads return ErrMalformedCommand, recognized
// but unsupported commands return ErrUnsupported, and play without a
// registered publisher returns ErrPublisherMissing, so the dispatcher's
// uniform close-on-error policy applies. Duplicate stream keys are not
// detected here (see internal/media).
func (h *Handler) Handle(conn connhandle.Handle, msg *rtmpmsg.Message) error {
	values, err := amf0.DecodeAll(msg.Payload.Bytes())
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return rtmperr.ErrMalformedCommand
	}
	name, err := amf0.AsString(values[0])
	if err != nil {
		return fmt.Errorf("%w: command name", err)
	}
	var tid float64
	if len(values) > 1 {
		tid, _ = amf0.AsNumber(values[1])
	}

	switch name {
	case "connect":
		return h.handleConnect(conn, msg, tid, values)
	case "createStream":
		return h.handleCreateStream(conn, msg, tid)
	case "publish":
		return h.handlePublish(conn, msg, values)
	case "FCPublish":
		return h.handleFCPublish(conn, msg)
	case "play":
		return h.handlePlay(conn, msg, values)
	case "pause":
		return h.handlePause(conn, msg, values)
	case "call", "close", "play2", "deleteStream", "closeStream", "receiveAudio", "receiveVideo", "seek":
		return fmt.Errorf("%w: %s", rtmperr.ErrUnsupported, name)
	default:
		h.Log.Debug("ignoring unrecognized command: " + name)
		return nil
	}
}

func (h *Handler) writeMessage(conn connhandle.Handle, t rtmpmsg.Type, streamID uint32, payload []byte) error {
	return conn.Write(rtmpmsg.New(t, 0, streamID, rbuf.Wrap(payload)))
}

func (h *Handler) writeAndFlush(conn connhandle.Handle, t rtmpmsg.Type, streamID uint32, payload []byte) error {
	fut := conn.WriteAndFlush(rtmpmsg.New(t, 0, streamID, rbuf.Wrap(payload)))
	return <-fut
}

func onStatusInfo(level, code, description string) *amf0.Object {
	o := amf0.NewObject()
	o.Set("level", amf0.String(level))
	o.Set("code", amf0.String(code))
	if description != "" {
		o.Set("description", amf0.String(description))
	}
	return o
}

func (h *Handler) sendOnStatus(conn connhandle.Handle, streamID uint32, tid float64, level, code, description string) error {
	payload := amf0.EncodeAll(
		amf0.String("onStatus"),
		amf0.Number(tid),
		amf0.Null(),
		amf0.FromObject(onStatusInfo(level, code, description)),
	)
	return h.writeMessage(conn, rtmpmsg.TypeAmf0Command, streamID, payload)
}

func (h *Handler) handleConnect(conn connhandle.Handle, msg *rtmpmsg.Message, tid float64, values []amf0.Value) error {
	if len(values) < 3 {
		return rtmperr.ErrMalformedCommand
	}
	cmdObj, err := amf0.AsObject(values[2])
	if err != nil {
		return err
	}
	appVal, ok := cmdObj.Get("app")
	if !ok {
		return fmt.Errorf("%w: connect missing app", rtmperr.ErrMalformedCommand)
	}
	app, err := amf0.AsString(appVal)
	if err != nil {
		return err
	}
	conn.Session().SetApp(app)

	if err := h.writeMessage(conn, rtmpmsg.TypeWindowAcknowledgementSize, 0, windowAckSizePayload(windowAckSize)); err != nil {
		return err
	}
	if err := h.writeMessage(conn, rtmpmsg.TypeSetPeerBandwidth, 0, setPeerBandwidthPayload(peerBandwidth, peerBandwidthLimitType)); err != nil {
		return err
	}
	if err := h.writeMessage(conn, rtmpmsg.TypeSetChunkSize, 0, setChunkSizePayload(outboundChunkSize)); err != nil {
		return err
	}

	props := amf0.NewObject()
	props.Set("fmsVer", amf0.String(fmsVersion))
	props.Set("capabilities", amf0.Number(capabilities))

	info := amf0.NewObject()
	info.Set("level", amf0.String("status"))
	info.Set("code", amf0.String("NetConnection.Connect.Success"))
	info.Set("description", amf0.String("Connection succeeded."))
	info.Set("objectEncoding", amf0.Number(0))

	payload := amf0.EncodeAll(
		amf0.String("_result"),
		amf0.Number(tid),
		amf0.FromObject(props),
		amf0.FromObject(info),
	)
	h.Log.Info(fmt.Sprintf("connect app=%q", app))
	return h.writeAndFlush(conn, rtmpmsg.TypeAmf0Command, msg.StreamID, payload)
}

func (h *Handler) handleCreateStream(conn connhandle.Handle, msg *rtmpmsg.Message, tid float64) error {
	payload := amf0.EncodeAll(
		amf0.String("_result"),
		amf0.Number(tid),
		amf0.Null(),
		amf0.Number(fixedStreamID),
	)
	return h.writeMessage(conn, rtmpmsg.TypeAmf0Command, msg.StreamID, payload)
}

func (h *Handler) handleFCPublish(conn connhandle.Handle, msg *rtmpmsg.Message) error {
	payload := amf0.EncodeAll(
		amf0.String("onFCPublish"),
		amf0.Number(0),
		amf0.Null(),
		amf0.FromObject(onStatusInfo("status", "NetStream.Play.Start", "Start publishing")),
	)
	return h.writeMessage(conn, rtmpmsg.TypeAmf0Command, msg.StreamID, payload)
}

func (h *Handler) handlePause(conn connhandle.Handle, msg *rtmpmsg.Message, values []amf0.Value) error {
	if len(values) < 4 {
		return rtmperr.ErrMalformedCommand
	}
	pausing, err := amf0.AsBoolean(values[3])
	if err != nil {
		return err
	}
	sess := conn.Session()

	if pausing {
		sess.SetPaused(true)
		if err := h.sendOnStatus(conn, msg.StreamID, 0, "status", "NetStream.Pause.Notify", "Paused live"); err != nil {
			return err
		}
		return h.writeMessage(conn, rtmpmsg.TypeUserControlMessage, 0, userControlPayload(rtmpmsg.UserControlStreamEOF, fixedStreamID))
	}

	if err := h.sendOnStatus(conn, msg.StreamID, 0, "status", "NetStream.Unpause.Notify", "Unpaused live"); err != nil {
		return err
	}
	if err := h.writeMessage(conn, rtmpmsg.TypeUserControlMessage, 0, userControlPayload(rtmpmsg.UserControlStreamBegin, fixedStreamID)); err != nil {
		return err
	}

	streamKey, ok := sess.StreamKey()
	if !ok {
		return nil
	}
	pub := h.Registry.LookupPublisher(streamKey)
	if pub == nil {
		return conn.Close()
	}
	h.replayTo(conn, pub, streamKey, func() { sess.SetPaused(false) })
	return nil
}
