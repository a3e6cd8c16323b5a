package app

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/core"
	"github.com/piljoong/moyim/internal/domain"
)

// Vote ledger operations, embedded in the department registry so a
// department and its ledger live and die together.

// SetVote is the idempotent write primitive: membership of userID in
// the date's voter set becomes exactly `on`. Removing the last voter of
// a date drops the date entry so the ledger stays sparse. Returns false
// for an unknown department.
func (r *DepartmentRegistry) SetVote(name domain.DepartmentName, date domain.DateKey, userID domain.UserID, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.depts[name]
	if !ok {
		log.Warn().Str("module", "app.ledger").Str("department", string(name)).Msg("vote for unknown department")
		return false
	}
	setVoteLocked(e, date, userID, on)
	return true
}

func setVoteLocked(e *deptEntry, date domain.DateKey, userID domain.UserID, on bool) {
	voters := e.votes[date]
	if on {
		if voters == nil {
			voters = make(map[domain.UserID]struct{})
			e.votes[date] = voters
		}
		voters[userID] = struct{}{}
	} else if voters != nil {
		delete(voters, userID)
		if len(voters) == 0 {
			delete(e.votes, date)
		}
	}
}

// ToggleVote is the convenience the `vote` command uses, built on the
// idempotent primitive. Returns the new membership state. The
// read-modify-write stays under one lock so two racing toggles for the
// same date serialize.
func (r *DepartmentRegistry) ToggleVote(name domain.DepartmentName, date domain.DateKey, userID domain.UserID) (on, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.depts[name]
	if !exists {
		log.Warn().Str("module", "app.ledger").Str("department", string(name)).Msg("toggle for unknown department")
		return false, false
	}
	_, has := e.votes[date][userID]
	setVoteLocked(e, date, userID, !has)
	return !has, true
}

// AllVotes returns a snapshot of the ledger, keyed by the wire date
// form. With year/month > 0 only that month's dates are included. Voter
// lists are sorted so a snapshot's order is stable.
func (r *DepartmentRegistry) AllVotes(name domain.DepartmentName, year, month int) core.VotesDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(core.VotesDTO)
	e, ok := r.depts[name]
	if !ok {
		return out
	}
	for date, voters := range e.votes {
		if year > 0 && month > 0 && !date.InMonth(year, month) {
			continue
		}
		list := make([]domain.UserID, 0, len(voters))
		for u := range voters {
			list = append(list, u)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		out[date.String()] = list
	}
	return out
}

// ClearVotes empties the ledger. Authorization is the coordinator's
// job; the registry just mutates.
func (r *DepartmentRegistry) ClearVotes(name domain.DepartmentName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.depts[name]
	if !ok {
		return false
	}
	e.votes = make(map[domain.DateKey]map[domain.UserID]struct{})
	log.Info().Str("module", "app.ledger").Str("department", string(name)).Msg("votes cleared")
	return true
}

// MonthStatistics finds the best-attended day of a month: the day with
// the most voters, its voter count, and the number of distinct voters
// across the whole month.
func (r *DepartmentRegistry) MonthStatistics(name domain.DepartmentName, year, month int) core.MonthStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := core.MonthStats{}
	e, ok := r.depts[name]
	if !ok {
		return stats
	}
	distinct := make(map[domain.UserID]struct{})
	for date, voters := range e.votes {
		if !date.InMonth(year, month) {
			continue
		}
		for u := range voters {
			distinct[u] = struct{}{}
		}
		if len(voters) > stats.VotersTotal || (len(voters) == stats.VotersTotal && stats.TheDay != 0 && date.Day < stats.TheDay) {
			stats.VotersTotal = len(voters)
			stats.TheDay = date.Day
		}
	}
	stats.AvailableTotal = len(distinct)
	return stats
}
