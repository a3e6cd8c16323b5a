package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/domain"
)

func (ctl *Controller) handleChat(sess *wsSession, data []byte) {
	if !ctl.requireInit(sess) {
		return
	}
	var p struct {
		Type string `json:"type"`
		Data struct {
			SenderID     string   `json:"senderId"`
			Message      string   `json:"message"`
			RecipientIDs []string `json:"recipientIds"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad chat payload")
		ctl.sendError(sess.conn, "malformed chat")
		return
	}
	if p.Data.Message == "" {
		ctl.sendError(sess.conn, "empty chat message")
		return
	}

	msg, dept, err := ctl.Orch.Chat(sess.clientID, domain.UserID(p.Data.SenderID), p.Data.Message)
	if err != nil {
		ctl.sendError(sess.conn, rejectionMessage(err))
		return
	}

	if !ctl.chatLimiter.Allow(msg.SenderID) {
		log.Warn().Str("module", "signal").Str("user", string(msg.SenderID)).Msg("chat rate limited")
		ctl.sendError(sess.conn, "too many chat messages, slow down")
		return
	}

	recipients := make([]domain.UserID, 0, len(p.Data.RecipientIDs))
	for _, id := range p.Data.RecipientIDs {
		recipients = append(recipients, domain.UserID(id))
	}

	frame, ok := marshalEvent(chatEvent{Type: "chat", Data: msg})
	if !ok {
		return
	}
	ctl.Orch.RelayDirect(dept, msg.SenderID, recipients, frame)
}
