// Package cluster implements the fleet coordinator connection
// (SPEC_FULL.md §4.10): a websocket control channel a broker process
// uses to announce publish-start/publish-end events and receive
// stream-kill commands from a central coordinator. Grounded on the
// teacher's ControlServerConnection (control_connection.go) and
// MakeWebsocketAuthenticationToken (control_auth.go), generalized from
// the teacher's gatekeeping role (RequestPublish blocks publish until
// the coordinator approves a stream key) to notification-only: this
// core's publish always succeeds locally (RTMP-client authentication
// is out of scope per the specification), so the coordinator here only
// observes and can revoke, never approves in the critical path.
package cluster

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	messages "github.com/AgustinSRG/go-simple-rpc-message"
	"github.com/gorilla/websocket"

	"github.com/nullkey-live/rtmpbroker/internal/config"
	"github.com/nullkey-live/rtmpbroker/internal/logging"
	"github.com/nullkey-live/rtmpbroker/internal/registry"
)

// Coordinator is a connection to a fleet coordinator. The zero value,
// like the Coordinator New returns when no coordinator URL is
// configured, is a no-op implementation of command.Notifier.
type Coordinator struct {
	cfg *config.Config
	reg *registry.Registry
	log logging.Logger

	connectionURL string

	mu      sync.Mutex
	conn    *websocket.Conn
	enabled bool
}

// New builds a Coordinator for cfg. If cfg.ControlCoordinatorURL is
// empty, the returned Coordinator runs in stand-alone mode: Notifier
// calls are no-ops and no connection is attempted.
func New(cfg *config.Config, reg *registry.Registry, log logging.Logger) *Coordinator {
	c := &Coordinator{cfg: cfg, reg: reg, log: log}
	if cfg.ControlCoordinatorURL == "" {
		log.Info("[WS-CONTROL] CONTROL_COORDINATOR_URL not provided; running stand-alone")
		return c
	}
	base, err := url.Parse(cfg.ControlCoordinatorURL)
	if err != nil {
		log.Warning("[WS-CONTROL] invalid CONTROL_COORDINATOR_URL, running stand-alone: " + err.Error())
		return c
	}
	path, _ := url.Parse("/ws/control/rtmp")
	c.connectionURL = base.ResolveReference(path).String()
	c.enabled = true
	return c
}

// Start connects and begins the heartbeat/reconnect loops. No-op in
// stand-alone mode.
func (c *Coordinator) Start() {
	if !c.enabled {
		return
	}
	go c.connect()
	go c.heartbeatLoop()
}

func (c *Coordinator) authToken() string {
	if c.cfg.ControlSecret == "" {
		return ""
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "rtmp-control"})
	signed, err := token.SignedString([]byte(c.cfg.ControlSecret))
	if err != nil {
		c.log.Error(err)
		return ""
	}
	return signed
}

func (c *Coordinator) connect() {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.log.Info("[WS-CONTROL] connecting to " + c.connectionURL)

	headers := http.Header{}
	if tok := c.authToken(); tok != "" {
		headers.Set("x-control-auth-token", tok)
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.connectionURL, headers)
	if err != nil {
		c.log.Warning("[WS-CONTROL] connection error: " + err.Error())
		go c.reconnectAfter(10 * time.Second)
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
}

func (c *Coordinator) reconnectAfter(d time.Duration) {
	time.Sleep(d)
	c.connect()
}

func (c *Coordinator) onDisconnect(err error) {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	if err != nil {
		c.log.Info("[WS-CONTROL] disconnected: " + err.Error())
	}
	go c.connect()
}

func (c *Coordinator) send(msg messages.RPCMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg.Serialize())); err != nil {
		return false
	}
	return true
}

func (c *Coordinator) readLoop(conn *websocket.Conn) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			conn.Close()
			c.onDisconnect(err)
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			c.onDisconnect(err)
			return
		}
		msg := messages.ParseRPCMessage(string(raw))
		c.handleIncoming(&msg)
	}
}

func (c *Coordinator) handleIncoming(msg *messages.RPCMessage) {
	switch msg.Method {
	case "STREAM-KILL":
		c.onStreamKill(msg.GetParam("Stream-Channel"))
	}
}

func (c *Coordinator) onStreamKill(streamKey string) {
	if pub := c.reg.LookupPublisher(streamKey); pub != nil {
		_ = pub.Close()
	}
}

func (c *Coordinator) heartbeatLoop() {
	for {
		time.Sleep(20 * time.Second)
		c.send(messages.RPCMessage{Method: "HEARTBEAT"})
	}
}

// PublishStarted notifies the coordinator that streamKey began
// publishing. Implements command.Notifier.
func (c *Coordinator) PublishStarted(streamKey string) {
	if !c.enabled {
		return
	}
	c.send(messages.RPCMessage{Method: "PUBLISH-START", Params: map[string]string{
		"Stream-Channel": streamKey,
	}})
}

// PublishEnded notifies the coordinator that streamKey stopped
// publishing. Implements command.Notifier.
func (c *Coordinator) PublishEnded(streamKey string) {
	if !c.enabled {
		return
	}
	c.send(messages.RPCMessage{Method: "PUBLISH-END", Params: map[string]string{
		"Stream-Channel": streamKey,
	}})
}
