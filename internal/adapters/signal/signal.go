// Package signal is the WebSocket transport adapter: it decodes the
// wire envelope, drives the session coordinator and frames outbound
// events. It owns every websocket.Conn it upgrades.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/app/orch"
	"github.com/piljoong/moyim/internal/config"
	"github.com/piljoong/moyim/internal/core"
	"github.com/piljoong/moyim/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Orch *orch.Orchestrator
	Cfg  *config.Config

	chatLimiter *ChatRateLimiter
}

func NewController(o *orch.Orchestrator, cfg *config.Config) *Controller {
	return &Controller{
		Orch:        o,
		Cfg:         cfg,
		chatLimiter: NewChatRateLimiter(cfg.ChatLimit, cfg.ChatInterval),
	}
}

// WsConn is the per-client transport endpoint: a buffered send channel
// drained by the write pump. TrySend never blocks; a full buffer is a
// backpressure error the router treats as a drop.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// wsSession is the explicit per-connection session record: the bound
// client handle and the transport, passed into every handler instead of
// being re-derived from shared maps.
type wsSession struct {
	conn     *WsConn
	cancel   context.CancelFunc
	clientID domain.ClientID
}

func (s *wsSession) initialized() bool { return s.clientID != "" }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the HTTP request and runs the connection's pumps. The
// session stays anonymous-unbound until the first `init` command.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("remote", c.ClientIP()).Msg("new WS connection")

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	ctx, cancel := context.WithCancel(ctx)
	sess := &wsSession{conn: conn, cancel: cancel}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sess)
}

func (ctl *Controller) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *WsConn, message string) {
	ctl.sendJSON(c, errorEvent{Type: "error", Message: message})
}

func marshalEvent(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("event marshal")
		return nil, false
	}
	return b, true
}
