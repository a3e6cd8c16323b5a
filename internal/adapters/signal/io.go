package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	// The ping ticker doubles as the liveness check: a peer that stops
	// answering pings blows the read deadline and exits the read pump.
	pinger := time.NewTicker(ctl.Cfg.PingPeriod)
	defer pinger.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-pinger.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sess *wsSession) {
	defer func() {
		log.Info().Str("module", "signal").Str("client", string(sess.clientID)).Msg("readPump closing")
		sess.cancel()
		ctl.onDisconnect(sess)
		sess.conn.Close()
	}()

	pongWait := ctl.Cfg.PingPeriod * 10 / 9
	sess.conn.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = sess.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.conn.SetPongHandler(func(string) error {
		if sess.initialized() {
			ctl.Orch.Conns.Touch(sess.clientID)
		}
		return sess.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("client", string(sess.clientID)).Msg("readPump ctx done")
			return
		default:
			_, data, err := sess.conn.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("client", string(sess.clientID)).Msg("readPump read error")
				return
			}
			ctl.handleMessage(sess, data)
		}
	}
}

// onDisconnect runs the logout-equivalent cleanup and tells the rest of
// the department. Transport failure and missed liveness both land here.
func (ctl *Controller) onDisconnect(sess *wsSession) {
	if !sess.initialized() {
		return
	}
	res := ctl.Orch.Disconnect(sess.clientID, sess.conn)
	if !res.Known {
		return
	}
	ctl.chatLimiter.Forget(res.Principal.UserID)
	if res.Department == "" {
		return
	}
	ev := userLoggedOutEvent{Type: "userLoggedOut"}
	ev.Data.UserID = res.Principal.UserID
	ev.Data.Department = res.Department
	if frame, ok := marshalEvent(ev); ok {
		ctl.Orch.BroadcastDepartment(res.Department, frame, res.Principal.UserID)
	}
}

// handleMessage decodes the envelope once and dispatches over the
// closed command set. Unknown or malformed input gets an error event,
// the connection stays open.
func (ctl *Controller) handleMessage(sess *wsSession, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(sess.conn, "malformed message")
		return
	}

	switch env.Type {
	case "init":
		ctl.handleInit(sess, data)
	case "ping":
		ctl.handlePing(sess)
	case "signIn":
		ctl.handleSignIn(sess, data)
	case "logout":
		ctl.handleLogout(sess)
	case "vote":
		ctl.handleVote(sess, data)
	case "getStatistics":
		ctl.handleStatistics(sess, data)
	case "resetVotes":
		ctl.handleReset(sess)
	case "chat":
		ctl.handleChat(sess, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown command")
		ctl.sendError(sess.conn, "unknown command type: "+env.Type)
	}
}

// requireInit guards commands that need a bound client handle.
func (ctl *Controller) requireInit(sess *wsSession) bool {
	if sess.initialized() {
		return true
	}
	ctl.sendError(sess.conn, "not initialized")
	return false
}
