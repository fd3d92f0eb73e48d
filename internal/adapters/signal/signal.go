// Package signal adapts gorilla/websocket connections to the relay loop.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/meshroom/internal/core"
	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Relay is the event loop a connection feeds.
type Relay interface {
	Connect(sess core.MemberSession) error
	Disconnect(h domain.Handle) error
	Dispatch(h domain.Handle, msg protocol.Message) error
}

// IdentitySource is the Session Bootstrap seen from the signaling side.
type IdentitySource interface {
	CurrentIdentity(c *gin.Context) (domain.Identity, bool)
}

type Options struct {
	ReadLimit   int64
	PingPeriod  time.Duration
	PongWait    time.Duration
	WriteWait   time.Duration
	SendBuffer  int
	ChatLimiter *RoomRateLimiter
	CheckOrigin func(r *http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 * 1024
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return o
}

type SignalWSController struct {
	Relay    Relay
	Identity IdentitySource

	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(relay Relay, identity IdentitySource, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Relay:    relay,
		Identity: identity,
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(conn *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: conn, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops the write pump; the pump sends the close frame and closes the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// HandleSignal upgrades the request and binds the connection to the relay.
// A connection without a session identity may connect but cannot join a room.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	var identity domain.Identity
	if ctl.Identity != nil {
		identity, _ = ctl.Identity.CurrentIdentity(c)
	}
	handle := domain.NewHandle()
	log.Info().Str("module", "signal").Str("handle", string(handle)).Str("identity", string(identity)).Msg("new WS connection")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	sess := core.NewMemberSession(domain.Participant{Handle: handle, Identity: identity}, conn)
	if err := ctl.Relay.Connect(sess); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("relay connect")
		_ = ws.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, handle, conn)
}
