package signal

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/app"
	"github.com/piljoong/moyim/internal/core"
	"github.com/piljoong/moyim/internal/domain"
)

func (ctl *Controller) handleInit(sess *wsSession, data []byte) {
	var p struct {
		Type     string `json:"type"`
		ClientID string `json:"clientId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.ClientID == "" {
		log.Warn().Str("module", "signal").Msg("bad init payload")
		ctl.sendError(sess.conn, "init requires a clientId")
		return
	}

	clientID := domain.ClientID(p.ClientID)
	if sess.initialized() && sess.clientID != clientID {
		// Switching handles mid-session: run the disconnect cleanup for
		// the old one, or its binding and membership leak.
		ctl.onDisconnect(sess)
	}
	sess.clientID = clientID
	now := time.Now()
	res := ctl.Orch.Init(sess.clientID, sess.conn, sess.cancel, now.Year(), int(now.Month()))
	log.Info().Str("module", "signal").Str("client", string(sess.clientID)).Str("user", string(res.Principal.UserID)).Msg("init")

	// The client stores the assigned userId locally; every ledger entry
	// it renders is keyed by it.
	ctl.sendJSON(sess.conn, setUserIDEvent{Type: "setUserId", Data: res.Principal})
	ctl.sendJSON(sess.conn, membersEvent{Type: "defaultMembers", Data: res.Members})
	ctl.sendJSON(sess.conn, updateVotesEvent{Type: "updateVotes", Data: res.Votes})

	nickname := res.Principal.Nickname
	if nickname == "" {
		nickname = "anonymous"
	}
	ev := newUserEvent{Type: "newUser", Data: core.MemberDTO{
		UserID:     res.Principal.UserID,
		Nickname:   nickname,
		Department: res.Department,
	}}
	if frame, ok := marshalEvent(ev); ok {
		ctl.Orch.BroadcastDepartment(res.Department, frame, res.Principal.UserID)
	}
}

func (ctl *Controller) handleSignIn(sess *wsSession, data []byte) {
	if !ctl.requireInit(sess) {
		return
	}
	var p struct {
		Type string `json:"type"`
		Data struct {
			Department string `json:"department"`
			Nickname   string `json:"nickname"`
			Passkey    string `json:"passkey"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad signIn payload")
		ctl.sendError(sess.conn, "malformed signIn")
		return
	}

	res, err := ctl.Orch.SignIn(sess.clientID, domain.DepartmentName(p.Data.Department), p.Data.Nickname, p.Data.Passkey)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("client", string(sess.clientID)).Msg("signIn rejected")
		ctl.sendJSON(sess.conn, signInFailedEvent{Type: "signInFailed", Message: rejectionMessage(err)})
		return
	}

	ctl.sendJSON(sess.conn, setUserIDEvent{Type: "setUserId", Data: res.Principal})
	ctl.sendJSON(sess.conn, signInSuccessEvent{
		Type:       "signInSuccess",
		Message:    "successfully signed in",
		Department: res.Principal.Department,
		Passkey:    res.NewPasskey,
	})
	if res.NoOp {
		return
	}

	ev := newUserEvent{Type: "newUser", Data: core.MemberDTO{
		UserID:     res.Principal.UserID,
		Nickname:   res.Principal.Nickname,
		Department: res.Principal.Department,
	}}
	if frame, ok := marshalEvent(ev); ok {
		ctl.Orch.BroadcastDepartment(res.Principal.Department, frame, res.Principal.UserID)
	}
}

func (ctl *Controller) handleLogout(sess *wsSession) {
	if !ctl.requireInit(sess) {
		return
	}
	res, err := ctl.Orch.Logout(sess.clientID)
	if err != nil {
		ctl.sendError(sess.conn, rejectionMessage(err))
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
		ctl.Orch.BroadcastDepartment(res.Department, frame, "")
	}
}

// rejectionMessage keeps wire messages human-readable without leaking
// internals.
func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrNicknameTaken):
		return "department-nickname pair already in use"
	case errors.Is(err, app.ErrBadPasskey):
		return "passkey authentication failed"
	case errors.Is(err, app.ErrUnknownClient):
		return "no user data for this client"
	default:
		return err.Error()
	}
}
