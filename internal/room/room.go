// Package room implements the two-party pairing state machine.
//
// A [Room] holds at most two members. The [Registry] creates rooms lazily on
// the first join and deletes them the instant they become empty, so every room
// reachable from the registry has at least one member:
//
//	EMPTY (absent) ──join──▶ WAITING ──join──▶ FULL
//	     ▲                     │   ▲             │
//	     └────────leave────────┘   └────leave────┘
//
// All mutations go through a single registry mutex. Critical sections are
// plain map work; callers perform network I/O with the returned results after
// the lock is released.
package room

import "time"

// Capacity is the maximum number of members in a room.
const Capacity = 2

// State is the lifecycle state of a room.
type State int

const (
	// StateEmpty means the room is not materialised in the registry.
	StateEmpty State = iota
	// StateWaiting means one member is waiting for a partner.
	StateWaiting
	// StateFull means both members are present.
	StateFull
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateWaiting:
		return "waiting"
	case StateFull:
		return "full"
	default:
		return "unknown"
	}
}

// Member is one admitted participant.
type Member struct {
	Conn     Conn
	Role     Role
	JoinedAt time.Time
}

// Room is a bounded two-party membership container. A Room is only mutated by
// its [Registry] while holding the registry lock; values handed out by the
// registry are snapshots.
type Room struct {
	id      string
	members []Member
}

func newRoom(id string) *Room {
	return &Room{id: id, members: make([]Member, 0, Capacity)}
}

// ID returns the caller-supplied room identifier.
func (r *Room) ID() string { return r.id }

// State returns the lifecycle state derived from the member count.
func (r *Room) State() State {
	switch len(r.members) {
	case 0:
		return StateEmpty
	case 1:
		return StateWaiting
	default:
		return StateFull
	}
}

func (r *Room) hasRole(role Role) bool {
	for _, m := range r.members {
		if m.Role == role {
			return true
		}
	}
	return false
}

func (r *Room) add(m Member) {
	r.members = append(r.members, m)
}

// remove drops the member with connection id and reports whether it was present.
func (r *Room) remove(connID string) (Member, bool) {
	for i, m := range r.members {
		if m.Conn.ID() == connID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return m, true
		}
	}
	return Member{}, false
}

// partnerOf returns the member that is not connID.
func (r *Room) partnerOf(connID string) (Member, bool) {
	for _, m := range r.members {
		if m.Conn.ID() != connID {
			return m, true
		}
	}
	return Member{}, false
}
