package presence

import (
	"sort"
	"sync"
)

// Registry maps user ids to the set of transport connections they own.
// A user key exists only while its connection set is non-empty.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{}
	byConn map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]struct{}),
		byConn: make(map[string]string),
	}
}

// Join adds connID to userID's set. It reports whether this is the user's
// first live connection. Empty ids are ignored.
func (r *Registry) Join(userID, connID string) bool {
	if userID == "" || connID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byConn[connID]; ok {
		if owner == userID {
			return false
		}
		r.removeLocked(connID)
	}

	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[userID] = set
	}
	set[connID] = struct{}{}
	r.byConn[connID] = userID
	return !ok
}

// Remove drops connID from whichever user owns it. wentOffline is true when
// that was the user's last connection.
func (r *Registry) Remove(connID string) (userID string, wentOffline bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(connID)
}

func (r *Registry) removeLocked(connID string) (string, bool, bool) {
	userID, ok := r.byConn[connID]
	if !ok {
		return "", false, false
	}
	delete(r.byConn, connID)

	set := r.byUser[userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byUser, userID)
		return userID, true, true
	}
	return userID, false, true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// Connections returns a copy of userID's connection ids, sorted.
func (r *Registry) Connections(userID string) []string {
	r.mu.RLock()
	set := r.byUser[userID]
	conns := make([]string, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	sort.Strings(conns)
	return conns
}

// Owner returns the user that owns connID.
func (r *Registry) Owner(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

// OnlineUserIDs is a sorted snapshot of every user with at least one
// connection.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

// UserCount is the number of online users.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Len is the total number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// Reconcile rebuilds every user's set keeping only connections for which
// alive returns true. It returns the users left with no connection, who are
// removed entirely, and the number of connections dropped.
func (r *Registry) Reconcile(alive func(connID string) bool) (evicted []string, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, set := range r.byUser {
		rebuilt := make(map[string]struct{}, len(set))
		for connID := range set {
			if alive(connID) {
				rebuilt[connID] = struct{}{}
				continue
			}
			delete(r.byConn, connID)
			dropped++
		}
		if len(rebuilt) == 0 {
			delete(r.byUser, userID)
			evicted = append(evicted, userID)
			continue
		}
		r.byUser[userID] = rebuilt
	}

	sort.Strings(evicted)
	return evicted, dropped
}
