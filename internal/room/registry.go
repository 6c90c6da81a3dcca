package room

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrRoomFull is returned by [Registry.Join] when the room already holds
	// [Capacity] members.
	ErrRoomFull = errors.New("room: room is full")

	// ErrRoleTaken is returned by [Registry.Join] under [PolicyStrict] when a
	// member with the requested role is already present.
	ErrRoleTaken = errors.New("room: role already taken")

	// ErrInvalidJoin is returned by [Registry.Join] for malformed requests: an
	// empty room ID, an unknown role, or a connection that already belongs to
	// a room.
	ErrInvalidJoin = errors.New("room: invalid join request")
)

// JoinResult describes the transition caused by a successful join.
type JoinResult struct {
	// RoomID is the room the connection was admitted to.
	RoomID string

	// Created is true when the join materialised the room.
	Created bool

	// Partner is the member that was already waiting. It is only set when
	// this join moved the room from WAITING to FULL.
	Partner *Member
}

// Ready reports whether the room became FULL with this join.
func (r JoinResult) Ready() bool { return r.Partner != nil }

// LeaveResult describes the transition caused by a successful leave.
type LeaveResult struct {
	// RoomID is the room the connection left.
	RoomID string

	// Left is the member that was removed.
	Left Member

	// Remaining is the member still in the room after a FULL to WAITING
	// transition. It is nil when the room was deleted.
	Remaining *Member

	// Deleted is true when the room became empty and was removed.
	Deleted bool
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Rooms   int
	Members int
	Full    int
}

// Option configures a [Registry].
type Option func(*Registry)

// WithPolicy selects the admission policy. The default is [PolicyStrict].
func WithPolicy(p Policy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithClock overrides the time source used for join timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry maps room identifiers to rooms. It is safe for concurrent use.
type Registry struct {
	policy Policy
	now    func() time.Time

	mu     sync.RWMutex
	rooms  map[string]*Room
	byConn map[string]string // conn ID → room ID
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		policy: PolicyStrict,
		now:    time.Now,
		rooms:  make(map[string]*Room),
		byConn: make(map[string]string),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Policy returns the admission policy in effect.
func (r *Registry) Policy() Policy { return r.policy }

// Join admits conn into the room identified by roomID with the given role.
//
// The check for capacity and role uniqueness and the insertion happen under a
// single lock acquisition, so two concurrent joins to a WAITING room can never
// both be admitted as the second member.
func (r *Registry) Join(roomID string, conn Conn, role Role) (JoinResult, error) {
	if roomID == "" {
		return JoinResult{}, fmt.Errorf("%w: missing room id", ErrInvalidJoin)
	}
	if !role.IsValid() {
		return JoinResult{}, fmt.Errorf("%w: unknown role %q", ErrInvalidJoin, role)
	}
	if conn == nil {
		return JoinResult{}, fmt.Errorf("%w: nil connection", ErrInvalidJoin)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.byConn[conn.ID()]; ok {
		return JoinResult{}, fmt.Errorf("%w: connection already in room %q", ErrInvalidJoin, current)
	}

	rm, ok := r.rooms[roomID]
	created := false
	if !ok {
		rm = newRoom(roomID)
		created = true
	}

	if len(rm.members) >= Capacity {
		return JoinResult{}, fmt.Errorf("room %q: %w", roomID, ErrRoomFull)
	}
	if r.policy == PolicyStrict && rm.hasRole(role) {
		return JoinResult{}, fmt.Errorf("room %q: role %s: %w", roomID, role, ErrRoleTaken)
	}

	res := JoinResult{RoomID: roomID, Created: created}
	if len(rm.members) == 1 {
		p := rm.members[0]
		res.Partner = &p
	}

	rm.add(Member{Conn: conn, Role: role, JoinedAt: r.now()})
	r.rooms[roomID] = rm
	r.byConn[conn.ID()] = roomID
	return res, nil
}

// Leave removes the connection from its room. When the room becomes empty it
// is deleted. Leave reports false, and does nothing, if connID is not a member
// of any room.
func (r *Registry) Leave(connID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.byConn[connID]
	if !ok {
		return LeaveResult{}, false
	}
	delete(r.byConn, connID)

	rm, ok := r.rooms[roomID]
	if !ok {
		return LeaveResult{}, false
	}
	left, ok := rm.remove(connID)
	if !ok {
		return LeaveResult{}, false
	}

	res := LeaveResult{RoomID: roomID, Left: left}
	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
		res.Deleted = true
		return res, true
	}
	rem := rm.members[0]
	res.Remaining = &rem
	return res, true
}

// Partner returns the other member of connID's room. It reports false when
// the connection is not a member or its room is still WAITING.
func (r *Registry) Partner(connID string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.byConn[connID]
	if !ok {
		return Member{}, false
	}
	rm, ok := r.rooms[roomID]
	if !ok {
		return Member{}, false
	}
	return rm.partnerOf(connID)
}

// Lookup returns the member record for connID.
func (r *Registry) Lookup(connID string) (Member, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.byConn[connID]
	if !ok {
		return Member{}, "", false
	}
	for _, m := range r.rooms[roomID].members {
		if m.Conn.ID() == connID {
			return m, roomID, true
		}
	}
	return Member{}, "", false
}

// State returns the lifecycle state of roomID. Rooms absent from the registry
// are [StateEmpty].
func (r *Registry) State(roomID string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return StateEmpty
	}
	return rm.State()
}

// Members returns a snapshot of the members of roomID.
func (r *Registry) Members(roomID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]Member, len(rm.members))
	copy(out, rm.members)
	return out
}

// Stats returns room and member counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Rooms: len(r.rooms), Members: len(r.byConn)}
	for _, rm := range r.rooms {
		if rm.State() == StateFull {
			s.Full++
		}
	}
	return s
}
