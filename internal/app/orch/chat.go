package orch

import (
	"time"

	"github.com/piljoong/moyim/internal/app"
	"github.com/piljoong/moyim/internal/domain"
)

// ChatMessage is the relayed payload. Timestamp is stamped server-side.
type ChatMessage struct {
	SenderID  domain.UserID `json:"senderId"`
	Message   string        `json:"message"`
	Timestamp string        `json:"timestamp"`
}

// Chat validates the sender and stamps the message. Delivery happens
// through RelayDirect once the adapter has framed it: department-wide
// when the recipient list is empty, directed otherwise.
func (o *Orchestrator) Chat(clientID domain.ClientID, senderID domain.UserID, message string) (ChatMessage, domain.DepartmentName, error) {
	p, ok := o.Identity.Lookup(clientID)
	if !ok {
		return ChatMessage{}, "", app.ErrUnknownClient
	}
	if senderID != "" && senderID != p.UserID {
		return ChatMessage{}, "", ErrUserMismatch
	}
	msg := ChatMessage{
		SenderID:  p.UserID,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	return msg, p.Department, nil
}
