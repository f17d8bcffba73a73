// Package server tracks room membership. Rooms exist implicitly: the first
// Join creates an entry and the last Leave removes it, so a lookup that finds
// nothing and a room with zero members are the same thing.
package server

import (
	"sync"

	"github.com/samber/lo"
)

// RoomRegistry maps room identifiers to their member sessions. The registry
// lock only guards the room table; each room carries its own lock so traffic
// in unrelated rooms never contends.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	mu      sync.RWMutex
	members map[*Session]struct{}
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]*room)}
}

// Join adds the session to the room's member set, creating the room on first
// use. Re-joining a room the session already belongs to changes nothing.
func (r *RoomRegistry) Join(s *Session, roomID string) {
	if s == nil || roomID == "" {
		return
	}

	// Fast path: the room already exists. Membership is added while still
	// holding the registry read lock so a concurrent empty-room sweep
	// (which needs the write lock) cannot interleave with the add.
	r.mu.RLock()
	if rm, ok := r.rooms[roomID]; ok {
		rm.add(s)
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{members: make(map[*Session]struct{})}
		r.rooms[roomID] = rm
	}
	rm.add(s)
	r.mu.Unlock()
}

// Leave removes the session from one room. Leaving a room the session is not
// a member of is a no-op, not an error.
func (r *RoomRegistry) Leave(s *Session, roomID string) {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	emptied := ok && rm.remove(s)
	r.mu.RUnlock()

	if emptied {
		r.sweep(roomID)
	}
}

// LeaveAll purges the session from every room it is a member of. Called from
// the disconnect path so no session reference outlives its connection.
func (r *RoomRegistry) LeaveAll(s *Session) {
	var emptied []string

	r.mu.RLock()
	for id, rm := range r.rooms {
		if rm.remove(s) {
			emptied = append(emptied, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range emptied {
		r.sweep(id)
	}
}

// MembersOf returns a snapshot of the room's current membership. The snapshot
// is taken under the room lock, so callers never observe a torn member set.
// Unknown rooms yield an empty snapshot.
func (r *RoomRegistry) MembersOf(roomID string) []*Session {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return lo.Keys(rm.members)
}

// sweep deletes the room entry if it is still empty. Emptiness is re-checked
// under the registry write lock because a Join may have raced the caller.
func (r *RoomRegistry) sweep(roomID string) {
	r.mu.Lock()
	if rm, ok := r.rooms[roomID]; ok && rm.empty() {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()
}

func (rm *room) add(s *Session) {
	rm.mu.Lock()
	rm.members[s] = struct{}{}
	rm.mu.Unlock()
}

// remove reports whether the removal left the room empty. Removing a
// non-member returns false so only an actual departure triggers a sweep.
func (rm *room) remove(s *Session) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.members[s]; !ok {
		return false
	}
	delete(rm.members, s)
	return len(rm.members) == 0
}

func (rm *room) empty() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members) == 0
}
