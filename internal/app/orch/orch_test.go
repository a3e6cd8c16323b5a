package orch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piljoong/moyim/internal/app"
	"github.com/piljoong/moyim/internal/core"
	"github.com/piljoong/moyim/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	reject bool
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

func (f *fakeConn) Close() {}

func (f *fakeConn) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newTestOrchestrator() *Orchestrator {
	return New(app.NewIdentityStore(), app.NewDepartmentRegistry(), app.NewConnRegistry(), app.SimplePolicy{})
}

// connect runs the init transition for a client with a fresh fake
// transport.
func connect(o *Orchestrator, cid domain.ClientID) (*fakeConn, InitResult) {
	conn := &fakeConn{}
	res := o.Init(cid, conn, func() {}, 2024, 6)
	return conn, res
}

func TestInitLandsInDefaultDepartment(t *testing.T) {
	o := newTestOrchestrator()
	_, res := connect(o, "c1")

	assert.True(t, res.Principal.IsAnonymous)
	assert.Equal(t, domain.DefaultDepartment, res.Department)
	assert.Equal(t, []domain.UserID{res.Principal.UserID}, res.Members)
	assert.Empty(t, res.Votes)
}

func TestReconnectionStability(t *testing.T) {
	o := newTestOrchestrator()
	_, first := connect(o, "c1")

	o.Disconnect("c1", nil)

	_, second := connect(o, "c1")
	assert.Equal(t, first.Principal.UserID, second.Principal.UserID,
		"init twice with the same clientId must never mint two userIds")
}

func TestReinitOverLiveConnection(t *testing.T) {
	o := newTestOrchestrator()
	conn := &fakeConn{}
	canceled := false
	cancel := func() { canceled = true }

	o.Init("c1", conn, cancel, 2024, 6)
	_, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)
	_, err = o.Logout("c1")
	require.NoError(t, err)

	// The connection stays open after a logout; the next init on the
	// same socket must not cancel its own context.
	res := o.Init("c1", conn, cancel, 2024, 6)
	assert.False(t, canceled, "re-init over the same live connection canceled its own context")
	assert.Equal(t, domain.DefaultDepartment, res.Department)
	_, ok := o.Conns.Get("c1")
	assert.True(t, ok)
}

func TestFirstSignInBecomesOwner(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")

	res, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)
	assert.True(t, res.BecameOwner)
	assert.NotEmpty(t, res.NewPasskey)
	assert.Equal(t, domain.RoleOwner, res.Principal.Role)
	assert.True(t, o.Departments.IsOwner("eng", res.Principal.UserID))

	// The anonymous landing membership was released.
	assert.Empty(t, o.Departments.Members(domain.DefaultDepartment))

	// Cached department follows the sign-in.
	dept, ok := o.Conns.DepartmentOf("c1")
	require.True(t, ok)
	assert.Equal(t, domain.DepartmentName("eng"), dept)
}

func TestSignInCollisionLeavesStateUntouched(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")
	connect(o, "c2")

	first, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)

	_, err = o.SignIn("c2", "eng", "Ava", "")
	assert.ErrorIs(t, err, app.ErrNicknameTaken)

	assert.Equal(t, []domain.UserID{first.Principal.UserID}, o.Departments.Members("eng"))
}

func TestVoteToggleRoundTrip(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")
	signed, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)
	uid := signed.Principal.UserID

	res, err := o.Vote("c1", 2024, 6, 10, uid)
	require.NoError(t, err)
	assert.False(t, res.Probe)
	assert.Equal(t, []domain.UserID{uid}, res.Votes["2024-6-10"])

	res, err = o.Vote("c1", 2024, 6, 10, uid)
	require.NoError(t, err)
	assert.Empty(t, res.Votes, "toggling twice returns the ledger to its pre-toggle state")
}

func TestVoteMonthProbe(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")
	_, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)

	res, err := o.Vote("c1", 2024, 6, 0, "")
	require.NoError(t, err)
	assert.True(t, res.Probe)
	assert.Empty(t, res.Votes)
}

func TestVoteRejectsForeignUserID(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")
	_, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)

	_, err = o.Vote("c1", 2024, 6, 10, "someone-else")
	assert.ErrorIs(t, err, ErrUserMismatch)
}

func TestVoteBadDate(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")
	_, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)

	_, err = o.Vote("c1", 2024, 13, 10, "")
	assert.ErrorIs(t, err, domain.ErrBadDate)
}

func TestOwnerHandoffAndResetAuthorization(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")
	connect(o, "c2")

	u1, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)
	u2, err := o.SignIn("c2", "eng", "bob", "")
	require.NoError(t, err)

	// Non-owner reset is an explicit rejection.
	_, err = o.ResetVotes("c2")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = o.Vote("c1", 2024, 6, 10, u1.Principal.UserID)
	require.NoError(t, err)

	// Owner logs out; ownership moves to the remaining member.
	_, err = o.Logout("c1")
	require.NoError(t, err)
	assert.True(t, o.Departments.IsOwner("eng", u2.Principal.UserID))
	p2, _ := o.Identity.Lookup("c2")
	assert.Equal(t, domain.RoleOwner, p2.Role)

	// The new owner may clear the ledger.
	res, err := o.ResetVotes("c2")
	require.NoError(t, err)
	assert.Empty(t, res.Votes)
	assert.Empty(t, o.Departments.AllVotes("eng", 0, 0))

	// The departed ex-owner is rejected outright.
	_, err = o.ResetVotes("c1")
	assert.ErrorIs(t, err, app.ErrUnknownClient)
}

func TestLogoutErasesIdentity(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")
	_, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)

	res, err := o.Logout("c1")
	require.NoError(t, err)
	assert.Equal(t, domain.DepartmentName("eng"), res.Department)

	_, ok := o.Identity.Lookup("c1")
	assert.False(t, ok)

	// Last member gone: the department record is gone too.
	assert.True(t, o.Departments.IsFirstMember("eng"))

	_, err = o.Logout("c1")
	assert.ErrorIs(t, err, app.ErrUnknownClient)
}

func TestDisconnectKeepsIdentity(t *testing.T) {
	o := newTestOrchestrator()
	conn, _ := connect(o, "c1")
	signed, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)

	res := o.Disconnect("c1", conn)
	require.True(t, res.Known)
	assert.Equal(t, domain.DepartmentName("eng"), res.Department)

	// Membership released, identity retained.
	assert.True(t, o.Departments.IsFirstMember("eng"))
	p, ok := o.Identity.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, signed.Principal.UserID, p.UserID)

	// Reconnect rejoins the recorded department with the same userId.
	_, again := connect(o, "c1")
	assert.Equal(t, domain.DepartmentName("eng"), again.Department)
	assert.Equal(t, signed.Principal.UserID, again.Principal.UserID)
}

func TestDisconnectStaleConnIsNoOp(t *testing.T) {
	o := newTestOrchestrator()
	old, _ := connect(o, "c1")
	_, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)

	// Client reconnected; the old transport closes afterwards.
	connect(o, "c1")
	res := o.Disconnect("c1", old)
	assert.False(t, res.Known)

	_, ok := o.Conns.Get("c1")
	assert.True(t, ok, "the fresh binding must survive the stale close")
}

func TestBroadcastDepartmentExcludesActor(t *testing.T) {
	o := newTestOrchestrator()
	c1, r1 := connect(o, "c1")
	c2, _ := connect(o, "c2")
	c3, _ := connect(o, "c3")
	_ = c3

	sentBefore1, sentBefore2 := c1.sent(), c2.sent()
	res := o.BroadcastDepartment(domain.DefaultDepartment, core.Frame(`{"type":"newUser"}`), r1.Principal.UserID)
	assert.Equal(t, 2, res.SentTo)
	assert.Equal(t, sentBefore1, c1.sent(), "the excluded actor gets no echo")
	assert.Equal(t, sentBefore2+1, c2.sent())
}

func TestBroadcastKicksSaturatedConnections(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")
	slow := &fakeConn{reject: true}
	canceled := false
	o.Conns.Bind("c2", slow, func() { canceled = true })
	o.Conns.UpdateDepartment("c2", domain.DefaultDepartment)

	res := o.BroadcastDepartment(domain.DefaultDepartment, core.Frame(`{}`), "")
	assert.Equal(t, 1, res.SentTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, domain.ClientID("c2"), res.Dropped[0])
	assert.True(t, canceled, "the kick policy cancels the slow connection")
}

func TestRelayDirect(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")
	c2, _ := connect(o, "c2")
	c3, _ := connect(o, "c3")

	u1, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)
	u2, err := o.SignIn("c2", "eng", "bob", "")
	require.NoError(t, err)
	u3, err := o.SignIn("c3", "sales", "cat", "")
	require.NoError(t, err)

	frame := core.Frame(`{"type":"chat"}`)

	// Directed: only the in-department recipient receives it; the
	// sender and out-of-department ids are filtered.
	res := o.RelayDirect("eng", u1.Principal.UserID,
		[]domain.UserID{u1.Principal.UserID, u2.Principal.UserID, u3.Principal.UserID}, frame)
	assert.Equal(t, 1, res.SentTo)
	assert.Equal(t, 1, c2.sent())
	assert.Zero(t, c3.sent())

	// Empty recipient list falls back to a department broadcast that
	// includes the sender.
	res = o.RelayDirect("eng", u1.Principal.UserID, nil, frame)
	assert.Equal(t, 2, res.SentTo)
}

func TestUnicastToAbsentConnectionDrops(t *testing.T) {
	o := newTestOrchestrator()
	// Must not panic or error; it just drops.
	o.Unicast("ghost", core.Frame(`{}`))
}

func TestChatValidatesSender(t *testing.T) {
	o := newTestOrchestrator()
	connect(o, "c1")
	signed, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)

	msg, dept, err := o.Chat("c1", signed.Principal.UserID, "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.DepartmentName("eng"), dept)
	assert.Equal(t, "hello", msg.Message)
	assert.NotEmpty(t, msg.Timestamp)

	_, _, err = o.Chat("c1", "impostor", "hello")
	assert.ErrorIs(t, err, ErrUserMismatch)

	_, _, err = o.Chat("ghost", "", "hello")
	assert.ErrorIs(t, err, app.ErrUnknownClient)
}

func TestReapIdle(t *testing.T) {
	o := newTestOrchestrator()
	conn, _ := connect(o, "c1")
	_, err := o.SignIn("c1", "eng", "ava", "")
	require.NoError(t, err)

	// Still connected: never reaped, whatever the TTL.
	assert.Zero(t, o.ReapIdle(0))

	o.Disconnect("c1", conn)
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 1, o.ReapIdle(time.Millisecond))
	_, ok := o.Identity.Lookup("c1")
	assert.False(t, ok, "reaping signs the member out")
	assert.True(t, o.Departments.IsFirstMember("eng"))
}
