package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of roles a token may carry.
type Role uint8

const (
	roleUnknown Role = iota
	RoleUser
	RoleAdmin
)

// ParseRole maps the wire representation onto a Role. Only the exact
// strings "user" and "admin" are recognised; anything else yields
// ErrInvalidRole.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return roleUnknown, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the recognised roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, r)
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleSet is an immutable set of roles.
type RoleSet struct {
	bits uint8
}

// NewRoleSet builds a set from the given roles; unrecognised roles are ignored.
func NewRoleSet(roles ...Role) RoleSet {
	var set RoleSet
	for _, r := range roles {
		if r.Valid() {
			set.bits |= 1 << r
		}
	}
	return set
}

// Contains reports whether r is in the set. Unknown roles are never contained.
func (s RoleSet) Contains(r Role) bool {
	return r.Valid() && s.bits&(1<<r) != 0
}

// Roles lists the members in ascending order.
func (s RoleSet) Roles() []Role {
	var out []Role
	for _, r := range []Role{RoleUser, RoleAdmin} {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) String() string {
	roles := s.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, ",")
}

// Identity is the verified (subject, role) pair carried by a token.
type Identity struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
