// Package transport implements the RTMP network surface: handshake,
// chunk-stream reassembly/framing, and the accept loop that turns TCP
// connections into dispatcher-driven sessions. Grounded on the
// teacher's RTMPServer (rtmp_server.go): per-IP connection limiting and
// an accept-loop-per-port shape, restated against connhandle.Handle and
// the dispatcher instead of a monolithic *RTMPServer.
package transport

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nullkey-live/rtmpbroker/internal/command"
	"github.com/nullkey-live/rtmpbroker/internal/config"
	"github.com/nullkey-live/rtmpbroker/internal/connhandle"
	"github.com/nullkey-live/rtmpbroker/internal/dispatch"
	"github.com/nullkey-live/rtmpbroker/internal/logging"
	"github.com/nullkey-live/rtmpbroker/internal/registry"
	"github.com/nullkey-live/rtmpbroker/internal/session"
)

// Server accepts RTMP connections and runs each through the handshake,
// chunk reassembly, and dispatch.
type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	cmd      *command.Handler
	dispatch *dispatch.Dispatcher
	log      logging.Logger

	nextID uint64

	ipMu    sync.Mutex
	ipCount map[string]int
}

// New builds a Server wired to the given collaborators.
func New(cfg *config.Config, reg *registry.Registry, cmd *command.Handler, d *dispatch.Dispatcher, log logging.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: reg,
		cmd:      cmd,
		dispatch: d,
		log:      log,
		ipCount:  make(map[string]int),
	}
}

// ListenAndServe binds cfg.BindAddr:cfg.Port and serves connections
// until the listener fails.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddr, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	s.log.Info("listening on " + addr)

	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConnection(nc)
	}
}

func remoteIP(nc net.Conn) string {
	host, _, err := net.SplitHostPort(nc.RemoteAddr().String())
	if err != nil {
		return nc.RemoteAddr().String()
	}
	return host
}

func (s *Server) acquireIP(ip string) bool {
	if s.cfg.MaxConnectionsPerIP <= 0 {
		return true
	}
	s.ipMu.Lock()
	defer s.ipMu.Unlock()
	if s.ipCount[ip] >= s.cfg.MaxConnectionsPerIP {
		return false
	}
	s.ipCount[ip]++
	return true
}

func (s *Server) releaseIP(ip string) {
	if s.cfg.MaxConnectionsPerIP <= 0 {
		return
	}
	s.ipMu.Lock()
	defer s.ipMu.Unlock()
	s.ipCount[ip]--
	if s.ipCount[ip] <= 0 {
		delete(s.ipCount, ip)
	}
}

func (s *Server) handleConnection(nc net.Conn) {
	ip := remoteIP(nc)
	if !s.acquireIP(ip) {
		s.log.Warning("rejecting connection from " + ip + ": per-IP connection limit reached")
		nc.Close()
		return
	}
	defer s.releaseIP(ip)
	defer nc.Close()

	id := atomic.AddUint64(&s.nextID, 1)
	conn := newConn(id, nc, s.cfg.MaxChunkSize)
	reader := NewChunkReader(nc)

	resp, err := reader.ReadHandshake()
	if err != nil {
		s.log.DebugSession(id, ip, "handshake failed: "+err.Error())
		return
	}
	if _, err := nc.Write(resp); err != nil {
		return
	}
	if err := reader.SkipC2(); err != nil {
		s.log.DebugSession(id, ip, "handshake C2 read failed: "+err.Error())
		return
	}

	s.log.DebugSession(id, ip, "connected")
	defer s.cleanup(conn)

	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			if !strings.Contains(err.Error(), "use of closed network connection") {
				s.log.DebugSession(id, ip, "connection closed: "+err.Error())
			}
			return
		}
		if err := s.dispatch.Dispatch(conn, msg); err != nil {
			return
		}
	}
}

// cleanup removes a closed connection's registry entries and resolves
// its readiness, covering both publisher and subscriber roles
// (spec.md §5 "Cancellation" and §4.2's registry invariants).
func (s *Server) cleanup(conn connhandle.Handle) {
	_ = conn.Close()
	sess := conn.Session()
	streamKey, ok := sess.StreamKey()
	if !ok {
		return
	}
	switch sess.Role() {
	case session.RolePublisher:
		// Only the registered publisher ends the stream; a publisher that
		// never registered (no key frame yet, or lost the registration
		// race for the stream key) does not.
		if cur := s.registry.LookupPublisher(streamKey); cur != nil && cur.ID() == conn.ID() {
			s.registry.RemovePublisher(streamKey, conn)
			if s.cmd.Notifier != nil {
				s.cmd.Notifier.PublishEnded(streamKey)
			}
		}
	case session.RoleSubscriber:
		s.registry.RemoveSubscriber(streamKey, conn)
	}
}
