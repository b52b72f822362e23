package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestybox/kconreg/domain"
	"github.com/nestybox/kconreg/vars"
)

// TestSessionLeakCleanup covers spec.md §8 scenario 6: a session bound to a
// container that is torn down (as if the client vanished) must return
// global_ref to its pre-open value and leave the container registerable
// again under a fresh name.
func TestSessionLeakCleanup(t *testing.T) {
	varsReg := vars.NewRegistry()
	require.NoError(t, varsReg.Register("c", nil))

	mgr := NewManager(varsReg)
	sess, err := mgr.New(domain.PeerCred{Pid: 1234, Uid: 0, Gid: 0})
	require.NoError(t, err)

	c, err := varsReg.OpenContainer("c")
	require.NoError(t, err)
	require.NoError(t, sess.Bind(c))
	assert.Equal(t, 1, c.GlobalRef())

	// Simulate abnormal client exit: the manager tears the session down
	// without an explicit CLOSE_CONTAINER ever arriving.
	mgr.Release(sess)

	assert.Equal(t, 0, c.GlobalRef())
	assert.Equal(t, 0, mgr.Size())

	// A later REGISTER under a different name still works; LIST_CONTAINERS
	// does not grow without bound.
	require.NoError(t, varsReg.Register("d", nil))
	assert.ElementsMatch(t, []string{"d"}, varsReg.List())
}

func TestManagerReleaseIsIdempotent(t *testing.T) {
	varsReg := vars.NewRegistry()
	mgr := NewManager(varsReg)

	sess, err := mgr.New(domain.PeerCred{Pid: 1, Uid: 0, Gid: 0})
	require.NoError(t, err)

	mgr.Release(sess)
	assert.NotPanics(t, func() { mgr.Release(sess) })
	assert.Equal(t, 0, mgr.Size())
}

func TestManagerAssignsDistinctIDs(t *testing.T) {
	varsReg := vars.NewRegistry()
	mgr := NewManager(varsReg)

	s1, err := mgr.New(domain.PeerCred{Pid: 1})
	require.NoError(t, err)
	s2, err := mgr.New(domain.PeerCred{Pid: 2})
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID(), s2.ID())
	assert.Equal(t, 2, mgr.Size())
}
