// Package presence tracks which users have at least one live connection.
package presence

import (
	"sort"
	"sync"
)

// Registry maps connection ids to user ids. Online/offline transitions are decided
// under the same lock as the mutation, so a reconnect can never race a false offline.
type Registry struct {
	mu     sync.Mutex
	byConn map[string]string
	byUser map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]string),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Add registers connID for userID and reports whether this is the user's first
// live connection. Re-adding a known connID is a no-op.
func (r *Registry) Add(connID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[connID]; ok {
		return false
	}
	r.byConn[connID] = userID

	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[userID] = conns
	}
	conns[connID] = struct{}{}
	return len(conns) == 1
}

// Remove drops connID and returns its user, and whether that user has no
// connections left. Unknown ids return ("", false).
func (r *Registry) Remove(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)

	conns := r.byUser[userID]
	delete(conns, connID)
	if len(conns) > 0 {
		return userID, false
	}
	delete(r.byUser, userID)
	return userID, true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID]) > 0
}

// Connections returns the number of live connections of userID.
func (r *Registry) Connections(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID])
}

// OnlineUsers returns the ids of every connected user, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}
