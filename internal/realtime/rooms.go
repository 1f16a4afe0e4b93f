package realtime

import (
	"sync"
)

// Conn is a live client connection as seen by the gateway. Send must be safe for
// concurrent use and should not block on a slow peer.
type Conn interface {
	ID() string
	Send(Frame) error
	Close() error
}

// Rooms tracks every live connection and the named rooms it has joined. A room is
// either a user's personal room or a conversation room.
type Rooms struct {
	mu       sync.RWMutex
	conns    map[string]Conn
	rooms    map[string]map[string]Conn
	memberOf map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		conns:    make(map[string]Conn),
		rooms:    make(map[string]map[string]Conn),
		memberOf: make(map[string]map[string]struct{}),
	}
}

func userRoom(userID string) string         { return "user:" + userID }
func conversationRoom(convID string) string { return "conversation:" + convID }

// Add makes conn reachable by Everyone.
func (r *Rooms) Add(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
}

// Join puts conn in room, adding it to the connection set if needed.
func (r *Rooms) Join(room string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	r.conns[id] = conn
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		r.rooms[room] = members
	}
	members[id] = conn

	joined, ok := r.memberOf[id]
	if !ok {
		joined = make(map[string]struct{})
		r.memberOf[id] = joined
	}
	joined[room] = struct{}{}
}

// Leave removes connID from room. Leaving a room twice is fine.
func (r *Rooms) Leave(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, connID)
}

func (r *Rooms) leaveLocked(room, connID string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if joined, ok := r.memberOf[connID]; ok {
		delete(joined, room)
	}
}

// Remove drops connID from every room and from the connection set.
func (r *Rooms) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.memberOf[connID] {
		r.leaveLocked(room, connID)
	}
	delete(r.memberOf, connID)
	delete(r.conns, connID)
}

// Members returns the number of connections in room.
func (r *Rooms) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// InRoom reports whether connID has joined room.
func (r *Rooms) InRoom(room, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][connID]
	return ok
}

// Broadcast sends f to every member of room and returns how many sends succeeded.
// Connections whose Send fails are evicted and closed.
func (r *Rooms) Broadcast(room string, f Frame) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.rooms[room]))
	for _, c := range r.rooms[room] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	return r.deliver(targets, f)
}

// Everyone sends f to every live connection except the one with id skip.
func (r *Rooms) Everyone(f Frame, skip string) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for id, c := range r.conns {
		if id != skip {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	return r.deliver(targets, f)
}

func (r *Rooms) deliver(targets []Conn, f Frame) int {
	sent := 0
	var failed []Conn
	for _, c := range targets {
		if err := c.Send(f); err != nil {
			failed = append(failed, c)
			continue
		}
		sent++
	}

	// the transport's read loop notices the close and runs the session cleanup
	for _, c := range failed {
		r.Remove(c.ID())
		_ = c.Close()
	}
	return sent
}
