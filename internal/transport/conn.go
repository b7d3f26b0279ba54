// Conn implements connhandle.Handle over a net.Conn, owning the
// chunk-stream writer side. Grounded on the teacher's RTMPSession
// write helpers (rtmp_session_utils.go) and the session's net.Conn
// field, split out as its own type per connhandle.Handle's interface
// boundary (spec.md §6).
package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
	"github.com/nullkey-live/rtmpbroker/internal/session"
)

// Conn is one accepted RTMP connection.
type Conn struct {
	id           uint64
	netConn      net.Conn
	sess         *session.Session
	outChunkSize uint32

	writeMu sync.Mutex
	closed  int32
	once    sync.Once
}

func newConn(id uint64, nc net.Conn, outChunkSize uint32) *Conn {
	return &Conn{
		id:           id,
		netConn:      nc,
		sess:         session.New(id, nc.RemoteAddr().String()),
		outChunkSize: outChunkSize,
	}
}

// ID implements connhandle.Handle.
func (c *Conn) ID() uint64 { return c.id }

// Session implements connhandle.Handle.
func (c *Conn) Session() *session.Session { return c.sess }

// Closed implements connhandle.Handle.
func (c *Conn) Closed() bool { return atomic.LoadInt32(&c.closed) == 1 }

func (c *Conn) writeRaw(msg *rtmpmsg.Message) error {
	defer msg.Release()
	if c.Closed() {
		return net.ErrClosed
	}
	chunks := buildChunks(uint8(msg.Type), msg.Timestamp, msg.StreamID, msg.Payload.Bytes(), c.outChunkSize)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.netConn.SetWriteDeadline(time.Now().Add(readIdleTimeout * time.Millisecond)); err != nil {
		return err
	}
	_, err := c.netConn.Write(chunks)
	return err
}

// Write implements connhandle.Handle.
func (c *Conn) Write(msg *rtmpmsg.Message) error {
	return c.writeRaw(msg)
}

// WriteAndFlush implements connhandle.Handle. net.Conn.Write already
// flushes synchronously, so the future resolves immediately.
func (c *Conn) WriteAndFlush(msg *rtmpmsg.Message) <-chan error {
	ch := make(chan error, 1)
	ch <- c.writeRaw(msg)
	return ch
}

// Close implements connhandle.Handle. Idempotent: only the first call
// tears anything down.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		c.sess.Readiness.Resolve(session.Failed)
		c.sess.Release()
		err = c.netConn.Close()
	})
	return err
}
