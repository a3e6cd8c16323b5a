package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piljoong/moyim/internal/core"
	"github.com/piljoong/moyim/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	reject bool
	closed bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestBindAndGet(t *testing.T) {
	r := NewConnRegistry()
	c := &fakeConn{}

	r.Bind("c1", c, nil)
	got, ok := r.Get("c1")
	require.True(t, ok)
	assert.Equal(t, core.SignalConnection(c), got)

	_, ok = r.Get("ghost")
	assert.False(t, ok)
}

func TestBindCancelsPrevious(t *testing.T) {
	r := NewConnRegistry()
	canceled := false
	r.Bind("c1", &fakeConn{}, func() { canceled = true })
	r.Bind("c1", &fakeConn{}, nil)
	assert.True(t, canceled, "rebinding must cancel the superseded connection")
}

func TestBindSameConnRebindDoesNotCancel(t *testing.T) {
	r := NewConnRegistry()
	c := &fakeConn{}
	canceled := false

	r.Bind("c1", c, func() { canceled = true })
	r.Bind("c1", c, func() {})
	assert.False(t, canceled, "a transport rebinding itself must not be canceled")
}

func TestUnbindMatching(t *testing.T) {
	r := NewConnRegistry()
	old := &fakeConn{}
	fresh := &fakeConn{}

	r.Bind("c1", old, nil)
	r.Bind("c1", fresh, nil)

	// The stale connection closing late must not evict the fresh one.
	assert.False(t, r.UnbindMatching("c1", old))
	_, ok := r.Get("c1")
	assert.True(t, ok)

	assert.True(t, r.UnbindMatching("c1", fresh))
	_, ok = r.Get("c1")
	assert.False(t, ok)

	assert.False(t, r.UnbindMatching("c1", nil))
}

func TestCachedDepartment(t *testing.T) {
	r := NewConnRegistry()
	r.Bind("c1", &fakeConn{}, nil)

	_, ok := r.DepartmentOf("c1")
	assert.False(t, ok, "no department cached before sign-in")

	require.True(t, r.UpdateDepartment("c1", "eng"))
	dept, ok := r.DepartmentOf("c1")
	require.True(t, ok)
	assert.Equal(t, domain.DepartmentName("eng"), dept)

	assert.False(t, r.UpdateDepartment("ghost", "eng"))
}

func TestMembersOfDepartment(t *testing.T) {
	r := NewConnRegistry()
	r.Bind("c1", &fakeConn{}, nil)
	r.Bind("c2", &fakeConn{}, nil)
	r.Bind("c3", &fakeConn{}, nil)
	r.UpdateDepartment("c1", "eng")
	r.UpdateDepartment("c2", "eng")
	r.UpdateDepartment("c3", "sales")

	snaps := r.MembersOfDepartment("eng")
	assert.Len(t, snaps, 2)
	assert.Empty(t, r.MembersOfDepartment("hr"))
}

func TestCancel(t *testing.T) {
	r := NewConnRegistry()
	canceled := false
	r.Bind("c1", &fakeConn{}, func() { canceled = true })

	assert.True(t, r.Cancel("c1"))
	assert.True(t, canceled)
	assert.False(t, r.Cancel("ghost"))
}
