// Package orch coordinates the session lifecycle: it is the only
// caller allowed to mutate the identity store, the department registry
// and the vote ledger on behalf of a connection.
package orch

import (
	"errors"

	"github.com/piljoong/moyim/internal/app"
)

var (
	ErrNotOwner     = errors.New("not the department owner")
	ErrUserMismatch = errors.New("userId does not belong to this client")
)

type Orchestrator struct {
	Identity    *app.IdentityStore
	Departments *app.DepartmentRegistry
	Conns       *app.ConnRegistry
	Policy      app.Policy
}

func New(identity *app.IdentityStore, depts *app.DepartmentRegistry, conns *app.ConnRegistry, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Identity:    identity,
		Departments: depts,
		Conns:       conns,
		Policy:      policy,
	}
}
