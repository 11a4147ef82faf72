package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertConsistent checks that both indexes agree and no user maps to an
// empty set.
func assertConsistent(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for userID, set := range r.byUser {
		require.NotEmpty(t, set, "user %q has an empty connection set", userID)
		for connID := range set {
			assert.Equal(t, userID, r.byConn[connID], "reverse index for %q", connID)
		}
		total += len(set)
	}
	assert.Equal(t, total, len(r.byConn))
}

func TestRegistry_JoinReportsFirstConnection(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Join("u1", "c1"))
	assert.False(t, r.Join("u1", "c2"))
	assert.False(t, r.Join("u1", "c2"), "re-joining the same connection is a no-op")
	assert.Equal(t, 2, r.ConnectionCount("u1"))
	assert.Equal(t, []string{"c1", "c2"}, r.Connections("u1"))
	assertConsistent(t, r)
}

func TestRegistry_IgnoresEmptyIDs(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.Join("", "c1"))
	assert.False(t, r.Join("u1", ""))
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.OnlineUserIDs())
}

func TestRegistry_RemoveLastConnectionDeletesUser(t *testing.T) {
	r := NewRegistry()
	r.Join("u1", "c1")
	r.Join("u1", "c2")

	userID, offline, ok := r.Remove("c1")
	assert.True(t, ok)
	assert.Equal(t, "u1", userID)
	assert.False(t, offline)
	assert.True(t, r.IsOnline("u1"))

	userID, offline, ok = r.Remove("c2")
	assert.True(t, ok)
	assert.Equal(t, "u1", userID)
	assert.True(t, offline)
	assert.False(t, r.IsOnline("u1"))
	assert.Equal(t, 0, r.UserCount())

	_, _, ok = r.Remove("c2")
	assert.False(t, ok)
	assertConsistent(t, r)
}

func TestRegistry_JoinMovesConnectionBetweenUsers(t *testing.T) {
	r := NewRegistry()
	r.Join("u1", "c1")

	assert.True(t, r.Join("u2", "c1"))
	owner, ok := r.Owner("c1")
	assert.True(t, ok)
	assert.Equal(t, "u2", owner)
	assert.False(t, r.IsOnline("u1"))
	assertConsistent(t, r)
}

func TestRegistry_OnlineUserIDsIsSortedSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Join("carol", "c3")
	r.Join("alice", "c1")
	r.Join("bob", "c2")

	users := r.OnlineUserIDs()
	assert.Equal(t, []string{"alice", "bob", "carol"}, users)

	users[0] = "mallory"
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.OnlineUserIDs())
}

func TestRegistry_Reconcile(t *testing.T) {
	r := NewRegistry()
	r.Join("u1", "a")
	r.Join("u1", "b")
	r.Join("u2", "c")
	r.Join("u3", "d")

	dead := map[string]bool{"a": true, "c": true, "d": true}
	evicted, dropped := r.Reconcile(func(connID string) bool { return !dead[connID] })

	assert.Equal(t, []string{"u2", "u3"}, evicted)
	assert.Equal(t, 3, dropped)
	assert.Equal(t, []string{"u1"}, r.OnlineUserIDs())
	assert.Equal(t, []string{"b"}, r.Connections("u1"))
	assertConsistent(t, r)

	evicted, dropped = r.Reconcile(func(string) bool { return true })
	assert.Empty(t, evicted)
	assert.Zero(t, dropped)
}
