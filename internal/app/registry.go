package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/core"
	"github.com/piljoong/moyim/internal/domain"
)

// connEntry is the ephemeral side of a session: the live transport and
// the connection's cached department. It exists strictly for the
// duration of one transport session.
type connEntry struct {
	Department domain.DepartmentName
	Conn       core.SignalConnection
	Cancel     context.CancelFunc
	LastSeen   time.Time
}

// ConnRegistry tracks live connections keyed by ClientID.
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[domain.ClientID]*connEntry
}

func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[domain.ClientID]*connEntry)}
}

// Bind attaches a transport to a client handle. A previous binding for
// the same ClientID is canceled first: one live connection per client.
// The same transport rebinding itself (logout then init on one socket)
// must not be canceled, that would tear down the very connection being
// bound.
func (r *ConnRegistry) Bind(clientID domain.ClientID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	prev := r.conns[clientID]
	r.conns[clientID] = &connEntry{Conn: conn, Cancel: cancel, LastSeen: time.Now()}
	r.mu.Unlock()
	if prev != nil && prev.Cancel != nil && prev.Conn != conn {
		prev.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("client", string(clientID)).Msg("bound connection")
}

// UnbindMatching removes the binding only when conn is still the bound
// transport (or conn is nil). A stale connection closing after the
// client reconnected must not tear down the fresh binding.
func (r *ConnRegistry) UnbindMatching(clientID domain.ClientID, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[clientID]
	if !ok {
		return false
	}
	if conn != nil && e.Conn != conn {
		return false
	}
	delete(r.conns, clientID)
	log.Info().Str("module", "app.registry").Str("client", string(clientID)).Msg("unbound connection")
	return true
}

func (r *ConnRegistry) Get(clientID domain.ClientID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[clientID]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

// UpdateDepartment refreshes the connection's cached department after a
// sign-in or logout.
func (r *ConnRegistry) UpdateDepartment(clientID domain.ClientID, dept domain.DepartmentName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[clientID]
	if !ok {
		return false
	}
	e.Department = dept
	log.Info().Str("module", "app.registry").Str("client", string(clientID)).Str("department", string(dept)).Msg("updated cached department")
	return true
}

func (r *ConnRegistry) DepartmentOf(clientID domain.ClientID) (domain.DepartmentName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[clientID]
	if !ok || e.Department == "" {
		return "", false
	}
	return e.Department, true
}

// Touch records liveness, fed by the transport's pong handler.
func (r *ConnRegistry) Touch(clientID domain.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[clientID]; ok {
		e.LastSeen = time.Now()
	}
}

// ConnSnap pairs a live connection with its client handle for fan-out.
type ConnSnap struct {
	ClientID domain.ClientID
	Conn     core.SignalConnection
}

// MembersOfDepartment lists live connections whose cached department
// matches. Broadcast fan-out iterates this snapshot outside the lock.
func (r *ConnRegistry) MembersOfDepartment(dept domain.DepartmentName) []ConnSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnSnap, 0, len(r.conns))
	for cid, e := range r.conns {
		if e.Department == dept {
			out = append(out, ConnSnap{ClientID: cid, Conn: e.Conn})
		}
	}
	return out
}

// Cancel fires the connection's cancel func, tearing down its pumps.
func (r *ConnRegistry) Cancel(clientID domain.ClientID) bool {
	r.mu.RLock()
	e, ok := r.conns[clientID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("client", string(clientID)).Msg("canceled connection")
	return true
}
