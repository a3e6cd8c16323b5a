package app

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/domain"
)

var ErrUnknownDepartment = errors.New("department does not exist")

// deptEntry is one department's state: membership, ownership and the
// embedded vote ledger. Always accessed under the registry mutex.
type deptEntry struct {
	owner   domain.UserID
	members map[domain.UserID]struct{}
	votes   map[domain.DateKey]map[domain.UserID]struct{}
}

func newDeptEntry() *deptEntry {
	return &deptEntry{
		members: make(map[domain.UserID]struct{}),
		votes:   make(map[domain.DateKey]map[domain.UserID]struct{}),
	}
}

// DepartmentRegistry owns every department record. A department exists
// iff it has members, except the permanent default department.
type DepartmentRegistry struct {
	mu    sync.RWMutex
	depts map[domain.DepartmentName]*deptEntry
}

func NewDepartmentRegistry() *DepartmentRegistry {
	r := &DepartmentRegistry{depts: make(map[domain.DepartmentName]*deptEntry)}
	r.depts[domain.DefaultDepartment] = newDeptEntry()
	return r
}

func (r *DepartmentRegistry) ensureLocked(name domain.DepartmentName) *deptEntry {
	e, ok := r.depts[name]
	if !ok {
		e = newDeptEntry()
		r.depts[name] = e
		log.Info().Str("module", "app.departments").Str("department", string(name)).Msg("department initialized")
	}
	return e
}

// IsFirstMember reports whether the department is currently empty, i.e.
// the next member added becomes its owner.
func (r *DepartmentRegistry) IsFirstMember(name domain.DepartmentName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.depts[name]
	return !ok || len(e.members) == 0
}

// AddMember adds userID to the department, creating it on demand. The
// first member becomes owner; the return value reports that promotion.
func (r *DepartmentRegistry) AddMember(name domain.DepartmentName, userID domain.UserID) (becameOwner bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.ensureLocked(name)
	if len(e.members) == 0 {
		e.owner = userID
		becameOwner = true
	}
	e.members[userID] = struct{}{}
	log.Info().Str("module", "app.departments").Str("department", string(name)).Str("user", string(userID)).Bool("owner", becameOwner).Msg("member added")
	return becameOwner
}

// RemoveMember drops userID from the department. When the owner leaves
// a still-populated department, ownership moves to an arbitrary
// remaining member, returned as newOwner. The last member leaving a
// non-default department deletes the record, ledger included.
func (r *DepartmentRegistry) RemoveMember(name domain.DepartmentName, userID domain.UserID) (newOwner domain.UserID, deleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.depts[name]
	if !ok {
		return "", false
	}
	delete(e.members, userID)
	log.Info().Str("module", "app.departments").Str("department", string(name)).Str("user", string(userID)).Msg("member removed")

	if len(e.members) == 0 {
		e.owner = ""
		if name != domain.DefaultDepartment {
			delete(r.depts, name)
			log.Info().Str("module", "app.departments").Str("department", string(name)).Msg("empty department removed")
			return "", true
		}
		return "", false
	}
	if e.owner == userID {
		for m := range e.members {
			e.owner = m
			break
		}
		newOwner = e.owner
		log.Info().Str("module", "app.departments").Str("department", string(name)).Str("user", string(newOwner)).Msg("ownership reassigned")
	}
	return newOwner, false
}

func (r *DepartmentRegistry) IsOwner(name domain.DepartmentName, userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.depts[name]
	return ok && e.owner == userID && userID != ""
}

func (r *DepartmentRegistry) IsMember(name domain.DepartmentName, userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.depts[name]
	if !ok {
		return false
	}
	_, in := e.members[userID]
	return in
}

// Members returns a sorted membership snapshot.
func (r *DepartmentRegistry) Members(name domain.DepartmentName) []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.depts[name]
	if !ok {
		return nil
	}
	out := make([]domain.UserID, 0, len(e.members))
	for m := range e.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DeptInfo is the REST listing view.
type DeptInfo struct {
	Name        domain.DepartmentName `json:"name"`
	MemberCount int                   `json:"memberCount"`
}

func (r *DepartmentRegistry) List() []DeptInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeptInfo, 0, len(r.depts))
	for name, e := range r.depts {
		out = append(out, DeptInfo{Name: name, MemberCount: len(e.members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
