package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/core"
	"github.com/piljoong/moyim/internal/domain"
)

// InitResult is what the adapter needs to answer an `init` command.
type InitResult struct {
	Principal  domain.Principal
	Department domain.DepartmentName
	Members    []domain.UserID
	Votes      core.VotesDTO
}

// Init binds a transport to a client handle and (re-)attaches its
// principal. A fresh or anonymous client lands in the default
// department; a known signed-in client rejoins its recorded department,
// keeping its UserID across reconnects.
func (o *Orchestrator) Init(clientID domain.ClientID, conn core.SignalConnection, cancel context.CancelFunc, year, month int) InitResult {
	p := o.Identity.RegisterAnonymous(clientID)
	o.Identity.MarkAttached(clientID)
	dept := p.Department
	if dept == "" {
		dept = domain.DefaultDepartment
	}

	o.Conns.Bind(clientID, conn, cancel)
	becameOwner := o.Departments.AddMember(dept, p.UserID)
	if becameOwner {
		o.Identity.SetRole(clientID, domain.RoleOwner)
		p.Role = domain.RoleOwner
	}
	o.Conns.UpdateDepartment(clientID, dept)

	log.Info().Str("module", "orch").Str("client", string(clientID)).Str("user", string(p.UserID)).Str("department", string(dept)).Msg("session initialized")
	return InitResult{
		Principal:  *p,
		Department: dept,
		Members:    o.Departments.Members(dept),
		Votes:      o.Departments.AllVotes(dept, year, month),
	}
}

// SignInResult augments the store result with the membership changes
// the adapter broadcasts.
type SignInResult struct {
	Principal     domain.Principal
	OldDepartment domain.DepartmentName
	NewPasskey    string
	NoOp          bool
	BecameOwner   bool
}

// SignIn moves the principal to the requested department/nickname via
// the identity store's three-case contract, then reconciles membership,
// ownership and the connection's cached department.
func (o *Orchestrator) SignIn(clientID domain.ClientID, dept domain.DepartmentName, nickname, passkey string) (SignInResult, error) {
	res, err := o.Identity.SignIn(clientID, dept, nickname, passkey)
	if err != nil {
		return SignInResult{}, err
	}
	out := SignInResult{
		Principal:     res.Principal,
		OldDepartment: res.OldDepartment,
		NewPasskey:    res.NewPasskey,
		NoOp:          res.NoOp,
	}
	if res.NoOp {
		return out, nil
	}

	uid := res.Principal.UserID
	if res.OldDepartment != "" && res.OldDepartment != dept {
		o.releaseMembership(res.OldDepartment, uid)
	}
	out.BecameOwner = o.Departments.AddMember(dept, uid)
	// A nickname-only change within the same department keeps an
	// existing ownership.
	if out.BecameOwner || o.Departments.IsOwner(dept, uid) {
		o.Identity.SetRole(clientID, domain.RoleOwner)
		out.Principal.Role = domain.RoleOwner
	}
	o.Conns.UpdateDepartment(clientID, dept)
	return out, nil
}

// LogoutResult reports who left, for the departure broadcast.
type LogoutResult struct {
	Principal  domain.Principal
	Department domain.DepartmentName
}

// Logout erases the identity entry and releases department membership.
// The transport may stay open; the connection is demoted to an
// identity-less state until the next init or signIn.
func (o *Orchestrator) Logout(clientID domain.ClientID) (LogoutResult, error) {
	p, err := o.Identity.SignOut(clientID)
	if err != nil {
		return LogoutResult{}, err
	}
	if p.Department != "" {
		o.releaseMembership(p.Department, p.UserID)
	}
	o.Conns.UpdateDepartment(clientID, "")
	log.Info().Str("module", "orch").Str("client", string(clientID)).Str("user", string(p.UserID)).Msg("logged out")
	return LogoutResult{Principal: p, Department: p.Department}, nil
}

// DisconnectResult mirrors LogoutResult; Known is false when the
// connection never completed an init.
type DisconnectResult struct {
	Principal  domain.Principal
	Department domain.DepartmentName
	Known      bool
}

// Disconnect is the cleanup path for transport close and failed
// liveness checks. Membership is released like a logout, but the
// identity entry survives so a reconnecting client keeps its UserID.
// With a non-nil conn the cleanup only runs if conn is still the bound
// transport, so a superseded connection closing late is a no-op.
func (o *Orchestrator) Disconnect(clientID domain.ClientID, conn core.SignalConnection) DisconnectResult {
	if !o.Conns.UnbindMatching(clientID, conn) {
		return DisconnectResult{}
	}
	p, ok := o.Identity.Lookup(clientID)
	if !ok {
		return DisconnectResult{}
	}
	if p.Department != "" {
		o.releaseMembership(p.Department, p.UserID)
	}
	if p.Role == domain.RoleOwner {
		o.Identity.SetRole(clientID, domain.RoleMember)
	}
	o.Identity.MarkDetached(clientID)
	log.Info().Str("module", "orch").Str("client", string(clientID)).Str("user", string(p.UserID)).Msg("disconnected")
	return DisconnectResult{Principal: p, Department: p.Department, Known: true}
}

// releaseMembership removes uid from dept and propagates an ownership
// handoff into the identity store.
func (o *Orchestrator) releaseMembership(dept domain.DepartmentName, uid domain.UserID) {
	newOwner, _ := o.Departments.RemoveMember(dept, uid)
	if newOwner != "" {
		o.Identity.SetRoleByUser(newOwner, domain.RoleOwner)
	}
}

// ReapIdle erases identities that have been connectionless for longer
// than ttl, releasing any membership they still hold. Together with
// explicit sign-out this is the only bound on identity and department
// lifetime.
func (o *Orchestrator) ReapIdle(ttl time.Duration) int {
	reaped := 0
	for _, cid := range o.Identity.DetachedSince(time.Now().Add(-ttl)) {
		if _, live := o.Conns.Get(cid); live {
			continue
		}
		p, err := o.Identity.SignOut(cid)
		if err != nil {
			continue
		}
		if p.Department != "" {
			o.releaseMembership(p.Department, p.UserID)
		}
		reaped++
		log.Info().Str("module", "orch").Str("client", string(cid)).Str("user", string(p.UserID)).Msg("reaped idle identity")
	}
	return reaped
}
