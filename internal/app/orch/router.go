package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/app"
	"github.com/piljoong/moyim/internal/core"
	"github.com/piljoong/moyim/internal/domain"
)

// Broadcast router. Delivery is fire-and-forget per recipient: a slow
// or dead peer is dropped and handed to the backpressure policy, it
// never stalls delivery to the others.

// Unicast delivers one frame to one client, silently dropping when the
// connection is gone or saturated.
func (o *Orchestrator) Unicast(clientID domain.ClientID, frame core.Frame) {
	conn, ok := o.Conns.Get(clientID)
	if !ok {
		log.Debug().Str("module", "orch.router").Str("client", string(clientID)).Msg("unicast to absent connection dropped")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch.router").Str("client", string(clientID)).Msg("unicast dropped")
		o.applyBackpressure("", clientID)
	}
}

// BroadcastDepartment fans a frame out to every live connection cached
// in dept, optionally skipping one principal (used to avoid echoing an
// actor its own action when it already got a direct acknowledgment).
func (o *Orchestrator) BroadcastDepartment(dept domain.DepartmentName, frame core.Frame, exclude domain.UserID) core.PublishResult {
	res := core.PublishResult{}
	for _, snap := range o.Conns.MembersOfDepartment(dept) {
		if exclude != "" {
			if p, ok := o.Identity.Lookup(snap.ClientID); ok && p.UserID == exclude {
				continue
			}
		}
		if err := snap.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, snap.ClientID)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "orch.router").Str("department", string(dept)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	for _, cid := range res.Dropped {
		o.applyBackpressure(dept, cid)
	}
	return res
}

// RelayDirect delivers a frame to the subset of recipients that are
// current members of dept, excluding the sender. An empty recipient
// list falls back to a department-wide broadcast that includes the
// sender.
func (o *Orchestrator) RelayDirect(dept domain.DepartmentName, sender domain.UserID, recipients []domain.UserID, frame core.Frame) core.PublishResult {
	if len(recipients) == 0 {
		return o.BroadcastDepartment(dept, frame, "")
	}
	res := core.PublishResult{}
	for _, uid := range recipients {
		if uid == sender || !o.Departments.IsMember(dept, uid) {
			continue
		}
		cid, ok := o.Identity.ClientOf(uid)
		if !ok {
			continue
		}
		conn, ok := o.Conns.Get(cid)
		if !ok {
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SentTo++
	}
	for _, cid := range res.Dropped {
		o.applyBackpressure(dept, cid)
	}
	return res
}

func (o *Orchestrator) applyBackpressure(dept domain.DepartmentName, clientID domain.ClientID) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(dept, clientID) {
	case app.KickClient:
		// Cancel tears down the pumps; the read loop's exit runs the
		// Disconnect cleanup path.
		o.Conns.Cancel(clientID)
	case app.MarkSlow, app.DropFrame, app.NoAction:
	}
}
