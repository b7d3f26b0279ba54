// Package dispatch implements the per-message routing table described
// in spec.md §4.1/§6: an RTMP message type code maps to exactly one
// handler function. Grounded on the teacher's HandlePacket switch
// (rtmp_session.go), restated as an explicit lookup table instead of a
// switch statement so the wiring is inspectable and testable on its
// own (spec.md §9 "Dispatcher").
package dispatch

import (
	"fmt"

	"github.com/nullkey-live/rtmpbroker/internal/command"
	"github.com/nullkey-live/rtmpbroker/internal/connhandle"
	"github.com/nullkey-live/rtmpbroker/internal/logging"
	"github.com/nullkey-live/rtmpbroker/internal/media"
	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
)

type handlerFunc func(connhandle.Handle, *rtmpmsg.Message) error

// Dispatcher routes inbound logical messages to the command/media
// handler responsible for their type, and applies the uniform
// close-on-error policy (spec.md §7): any handler error closes the
// connection, after being logged.
type Dispatcher struct {
	Log   logging.Logger
	table map[rtmpmsg.Type]handlerFunc
}

// New builds a Dispatcher wired to cmd and med.
func New(cmd *command.Handler, med *media.Handler, log logging.Logger) *Dispatcher {
	d := &Dispatcher{Log: log}
	d.table = map[rtmpmsg.Type]handlerFunc{
		rtmpmsg.TypeAmf0Command: cmd.Handle,
		rtmpmsg.TypeAmf0Data:    med.HandleData,
		rtmpmsg.TypeAudioData:   med.HandleAudio,
		rtmpmsg.TypeVideoData:   med.HandleVideo,
		rtmpmsg.TypeUserControlMessage: func(_ connhandle.Handle, msg *rtmpmsg.Message) error {
			msg.Release()
			return nil
		},
	}
	return d
}

// Dispatch routes msg to its handler. Message types with no table entry
// (protocol-control messages already consumed by the transport layer,
// or types this core does not act on) are logged and dropped, per
// spec.md §7's "unrecognized message type" row.
func (d *Dispatcher) Dispatch(conn connhandle.Handle, msg *rtmpmsg.Message) error {
	fn, ok := d.table[msg.Type]
	if !ok {
		d.Log.Debug(fmt.Sprintf("dropping message with unhandled type %d", msg.Type))
		msg.Release()
		return nil
	}
	if err := fn(conn, msg); err != nil {
		d.Log.Warning(fmt.Sprintf("closing connection %d after handler error: %v", conn.ID(), err))
		return err
	}
	return nil
}
