package signal

// handlePing answers the application-level keepalive. Transport-level
// liveness is the write pump's ping/pong cycle; this one exists for the
// browser client, which cannot see control frames.
func (ctl *Controller) handlePing(sess *wsSession) {
	if sess.initialized() {
		ctl.Orch.Conns.Touch(sess.clientID)
	}
	ctl.sendJSON(sess.conn, pongEvent{Type: "pong"})
}
