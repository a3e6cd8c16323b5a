package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/app"
	"github.com/piljoong/moyim/internal/core"
	"github.com/piljoong/moyim/internal/domain"
)

// VoteResult carries the post-mutation snapshot and whether the request
// was a pure month probe (day = 0), which is answered with a unicast
// instead of a department broadcast.
type VoteResult struct {
	Department domain.DepartmentName
	Votes      core.VotesDTO
	Probe      bool
}

// Vote toggles the caller's availability mark for a date. The userId
// from the wire must belong to the calling client; the ledger is never
// mutated on someone else's behalf.
func (o *Orchestrator) Vote(clientID domain.ClientID, year, month, day int, userID domain.UserID) (VoteResult, error) {
	p, ok := o.Identity.Lookup(clientID)
	if !ok {
		return VoteResult{}, app.ErrUnknownClient
	}
	if userID != "" && userID != p.UserID {
		return VoteResult{}, ErrUserMismatch
	}
	dept := p.Department

	if day == 0 {
		// Month probe: "give me this month's data", no mutation.
		return VoteResult{
			Department: dept,
			Votes:      o.Departments.AllVotes(dept, year, month),
			Probe:      true,
		}, nil
	}

	date, err := domain.NewDateKey(year, month, day)
	if err != nil {
		return VoteResult{}, err
	}
	on, ok := o.Departments.ToggleVote(dept, date, p.UserID)
	if !ok {
		return VoteResult{}, app.ErrUnknownDepartment
	}
	log.Info().Str("module", "orch").Str("user", string(p.UserID)).Str("department", string(dept)).Str("date", date.String()).Bool("on", on).Msg("vote toggled")
	return VoteResult{
		Department: dept,
		Votes:      o.Departments.AllVotes(dept, year, month),
	}, nil
}

// Statistics answers a getStatistics probe for one month.
func (o *Orchestrator) Statistics(clientID domain.ClientID, year, month int) (core.MonthStats, error) {
	p, ok := o.Identity.Lookup(clientID)
	if !ok {
		return core.MonthStats{}, app.ErrUnknownClient
	}
	return o.Departments.MonthStatistics(p.Department, year, month), nil
}

// ResetVotes clears the caller's department ledger. Owner only; a
// non-owner gets an explicit rejection, never a silent no-op.
func (o *Orchestrator) ResetVotes(clientID domain.ClientID) (VoteResult, error) {
	p, ok := o.Identity.Lookup(clientID)
	if !ok {
		return VoteResult{}, app.ErrUnknownClient
	}
	if !o.Departments.IsOwner(p.Department, p.UserID) {
		return VoteResult{}, ErrNotOwner
	}
	if !o.Departments.ClearVotes(p.Department) {
		return VoteResult{}, app.ErrUnknownDepartment
	}
	log.Info().Str("module", "orch").Str("user", string(p.UserID)).Str("department", string(p.Department)).Msg("votes reset")
	return VoteResult{Department: p.Department, Votes: core.VotesDTO{}}, nil
}
