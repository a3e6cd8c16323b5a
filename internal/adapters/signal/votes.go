package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/app/orch"
	"github.com/piljoong/moyim/internal/domain"
)

func (ctl *Controller) handleVote(sess *wsSession, data []byte) {
	if !ctl.requireInit(sess) {
		return
	}
	var p struct {
		Type string `json:"type"`
		Data struct {
			Year   int    `json:"year"`
			Month  int    `json:"month"`
			Day    int    `json:"day"`
			UserID string `json:"userId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad vote payload")
		ctl.sendError(sess.conn, "malformed vote")
		return
	}

	res, err := ctl.Orch.Vote(sess.clientID, p.Data.Year, p.Data.Month, p.Data.Day, domain.UserID(p.Data.UserID))
	if err != nil {
		ctl.sendError(sess.conn, rejectionMessage(err))
		return
	}

	ev := updateVotesEvent{Type: "updateVotes", Data: res.Votes}
	if res.Probe {
		// Pure "give me this month's data" request: answer the actor
		// only.
		ctl.sendJSON(sess.conn, ev)
		return
	}
	if frame, ok := marshalEvent(ev); ok {
		ctl.Orch.BroadcastDepartment(res.Department, frame, "")
	}
}

func (ctl *Controller) handleStatistics(sess *wsSession, data []byte) {
	if !ctl.requireInit(sess) {
		return
	}
	var p struct {
		Type string `json:"type"`
		Data struct {
			Year  int `json:"year"`
			Month int `json:"month"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad getStatistics payload")
		ctl.sendError(sess.conn, "malformed getStatistics")
		return
	}

	stats, err := ctl.Orch.Statistics(sess.clientID, p.Data.Year, p.Data.Month)
	if err != nil {
		ctl.sendError(sess.conn, rejectionMessage(err))
		return
	}
	ctl.sendJSON(sess.conn, statisticEvent{Type: "updateVoteStatistic", Data: stats})
}

func (ctl *Controller) handleReset(sess *wsSession) {
	if !ctl.requireInit(sess) {
		return
	}
	res, err := ctl.Orch.ResetVotes(sess.clientID)
	if err != nil {
		// A non-owner reset is an explicit rejection, not a silent
		// no-op: the caller must be able to tell the difference.
		if errors.Is(err, orch.ErrNotOwner) {
			ctl.sendError(sess.conn, "only the department owner can reset votes")
			return
		}
		ctl.sendError(sess.conn, rejectionMessage(err))
		return
	}
	if frame, ok := marshalEvent(updateVotesEvent{Type: "updateVotes", Data: res.Votes}); ok {
		ctl.Orch.BroadcastDepartment(res.Department, frame, "")
	}
}
