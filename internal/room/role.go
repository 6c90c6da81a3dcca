package room

import "fmt"

// Role tags a participant and decides which content translation its messages
// invoke.
type Role string

const (
	// RoleNormal is a hearing participant. Their spoken audio is transcribed
	// for the partner.
	RoleNormal Role = "normal"

	// RoleAccessibility is a signing participant. Their video frames are
	// interpreted for the partner.
	RoleAccessibility Role = "accessibility"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleNormal, RoleAccessibility:
		return true
	}
	return false
}

// ParseRole converts s into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("room: unknown role %q", s)
	}
	return r, nil
}

// Policy selects how a room admits its two members.
type Policy string

const (
	// PolicyStrict admits at most one member per role. A room is only ready
	// when one normal and one accessibility participant are present.
	PolicyStrict Policy = "strict"

	// PolicyAnonymous admits any two connections regardless of role. Role
	// still gates which content types a member may send.
	PolicyAnonymous Policy = "anonymous"
)

// IsValid reports whether p is a known policy.
func (p Policy) IsValid() bool {
	switch p {
	case PolicyStrict, PolicyAnonymous:
		return true
	}
	return false
}
