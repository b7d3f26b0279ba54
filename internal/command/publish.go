package command

import (
	"fmt"

	"github.com/nullkey-live/rtmpbroker/internal/amf0"
	"github.com/nullkey-live/rtmpbroker/internal/connhandle"
	"github.com/nullkey-live/rtmpbroker/internal/rtmperr"
	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
	"github.com/nullkey-live/rtmpbroker/internal/session"
)

// handlePublish implements spec.md §4.3 "publish": the session claims
// the RolePublisher role (at most once) and records its stream name.
// Registration in the registry does not happen here: spec.md §4.2/§4.4
// defer it to the media handler's first key frame, so a duplicate
// stream key is only detected once two publishers actually race to
// register, not merely to issue the publish command.
func (h *Handler) handlePublish(conn connhandle.Handle, msg *rtmpmsg.Message, values []amf0.Value) error {
	if len(values) < 4 {
		return rtmperr.ErrMalformedCommand
	}
	streamName, err := amf0.AsString(values[3])
	if err != nil {
		return err
	}

	sess := conn.Session()
	if !sess.SetRole(session.RolePublisher) {
		return fmt.Errorf("%w: session already has a role", rtmperr.ErrMalformedCommand)
	}
	sess.SetStreamName(streamName)

	return h.sendOnStatus(conn, msg.StreamID, 0, "status", "NetStream.Play.Start", "Start publishing")
}
