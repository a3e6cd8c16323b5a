package app

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/domain"
)

var (
	ErrNicknameTaken = errors.New("department-nickname pair already in use")
	ErrBadPasskey    = errors.New("passkey authentication failed")
	ErrUnknownClient = errors.New("unknown client")
)

// IdentityStore is the durable side of a session: principals keyed by
// the client-chosen ClientID. Entries outlive connections and are only
// removed by SignOut or the idle reaper.
type IdentityStore struct {
	mu         sync.RWMutex
	principals map[domain.ClientID]*domain.Principal
	// detached records when a principal's last connection went away, so
	// the idle reaper can bound the lifetime of abandoned identities.
	detached map[domain.ClientID]time.Time
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		principals: make(map[domain.ClientID]*domain.Principal),
		detached:   make(map[domain.ClientID]time.Time),
	}
}

// RegisterAnonymous mints an anonymous principal for an unknown
// ClientID and places it in the default department. Idempotent: a
// known ClientID gets its existing principal back unchanged, so a
// reconnect never produces a second UserID.
func (s *IdentityStore) RegisterAnonymous(clientID domain.ClientID) *domain.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.principals[clientID]; ok {
		return p
	}
	p := domain.NewAnonymousPrincipal(clientID)
	s.principals[clientID] = p
	log.Info().Str("module", "app.identity").Str("client", string(clientID)).Str("user", string(p.UserID)).Msg("registered anonymous principal")
	return p
}

// SignInResult carries what the adapter needs to answer the caller: the
// principal after the mutation and the passkey to disclose, if a fresh
// one was minted.
type SignInResult struct {
	Principal     domain.Principal
	OldDepartment domain.DepartmentName
	// NewPasskey is non-empty only when a token was (re)issued; it must
	// be shown to the user, it is not retrievable later.
	NewPasskey string
	// NoOp is set when the request matched the current identity and
	// nothing changed.
	NoOp bool
}

// SignIn claims or edits the identity behind clientID.
//
// Three cases: a first-time claim (no passkey on file) mints the
// identity and its token; an identity change (passkey on file) swaps
// department/nickname after token verification and rotates the token;
// a request equal to the current identity succeeds as a no-op without
// any token.
func (s *IdentityStore) SignIn(clientID domain.ClientID, dept domain.DepartmentName, nickname, passkey string) (SignInResult, error) {
	if err := domain.ValidateNickname(nickname); err != nil {
		return SignInResult{}, err
	}
	if err := domain.ValidateDepartmentName(dept); err != nil {
		return SignInResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[clientID]
	if !ok {
		return SignInResult{}, ErrUnknownClient
	}

	// No-op confirmation: same identity, no token required.
	if !p.IsAnonymous && p.Department == dept && domain.SameNickname(p.Nickname, nickname) {
		return SignInResult{Principal: *p, OldDepartment: dept, NoOp: true}, nil
	}

	if !p.IsAnonymous && p.Passkey != "" && p.Passkey != passkey {
		return SignInResult{}, ErrBadPasskey
	}

	if s.nicknameTakenLocked(dept, nickname, clientID) {
		return SignInResult{}, ErrNicknameTaken
	}

	old := p.Department
	p.Department = dept
	p.Nickname = nickname
	p.IsAnonymous = false
	p.Role = domain.RoleMember
	p.Passkey = domain.NewPasskey()

	log.Info().Str("module", "app.identity").Str("client", string(clientID)).Str("user", string(p.UserID)).Str("department", string(dept)).Str("nickname", nickname).Msg("signed in")
	return SignInResult{Principal: *p, OldDepartment: old, NewPasskey: p.Passkey}, nil
}

// SignOut erases the identity entry. The caller handles department
// membership and broadcasts.
func (s *IdentityStore) SignOut(clientID domain.ClientID) (domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[clientID]
	if !ok {
		return domain.Principal{}, ErrUnknownClient
	}
	delete(s.principals, clientID)
	delete(s.detached, clientID)
	log.Info().Str("module", "app.identity").Str("client", string(clientID)).Str("user", string(p.UserID)).Msg("signed out")
	return *p, nil
}

// MarkDetached timestamps the principal as connectionless; the reaper
// erases identities that stay detached past the TTL.
func (s *IdentityStore) MarkDetached(clientID domain.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[clientID]; ok {
		s.detached[clientID] = time.Now()
	}
}

// MarkAttached clears the detachment mark on reconnect.
func (s *IdentityStore) MarkAttached(clientID domain.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.detached, clientID)
}

// DetachedSince lists principals that have been connectionless since
// before the cutoff.
func (s *IdentityStore) DetachedSince(cutoff time.Time) []domain.ClientID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ClientID
	for cid, at := range s.detached {
		if at.Before(cutoff) {
			out = append(out, cid)
		}
	}
	return out
}

func (s *IdentityStore) Lookup(clientID domain.ClientID) (domain.Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[clientID]
	if !ok {
		return domain.Principal{}, false
	}
	return *p, true
}

// SetRole records owner promotion/demotion decided by the department
// registry.
func (s *IdentityStore) SetRole(clientID domain.ClientID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.principals[clientID]; ok {
		p.Role = role
	}
}

// SetRoleByUser is the handoff path: the new owner is known by UserID,
// not by its client handle.
func (s *IdentityStore) SetRoleByUser(userID domain.UserID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.principals {
		if p.UserID == userID {
			p.Role = role
			return
		}
	}
}

// ClientOf resolves a UserID back to its client handle.
func (s *IdentityStore) ClientOf(userID domain.UserID) (domain.ClientID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for cid, p := range s.principals {
		if p.UserID == userID {
			return cid, true
		}
	}
	return "", false
}

// nicknameTakenLocked reports whether another principal in dept already
// holds the nickname, case-insensitively.
func (s *IdentityStore) nicknameTakenLocked(dept domain.DepartmentName, nickname string, self domain.ClientID) bool {
	for cid, p := range s.principals {
		if cid == self || p.IsAnonymous {
			continue
		}
		if p.Department == dept && domain.SameNickname(p.Nickname, nickname) {
			return true
		}
	}
	return false
}
