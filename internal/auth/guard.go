package auth

import (
	"errors"
	"fmt"
	"strings"
)

// BearerPrefix is the literal scheme prefix expected in the Authorization header.
const BearerPrefix = "Bearer "

// Verifier validates a raw token. *TokenService implements it.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// AccessKind distinguishes authentication from authorization failures.
type AccessKind uint8

const (
	Unauthenticated AccessKind = iota + 1
	Unauthorized
)

func (k AccessKind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// AccessError is returned by Guard.Authorize. It matches ErrUnauthenticated
// or ErrUnauthorized with errors.Is, as well as the token error that caused it.
type AccessError struct {
	Kind   AccessKind
	Reason string
	Err    error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *AccessError) Unwrap() []error {
	kind := ErrUnauthenticated
	if e.Kind == Unauthorized {
		kind = ErrUnauthorized
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}

// Guard is an access policy: a token verifier plus the roles allowed through.
// Guards are plain values, built once when routes are registered.
type Guard struct {
	verifier Verifier
	allowed  RoleSet
}

// RequireToken builds a guard admitting any verified identity whose role is
// in roles.
func RequireToken(v Verifier, roles ...Role) Guard {
	return Guard{verifier: v, allowed: NewRoleSet(roles...)}
}

// AnyUser admits every authenticated identity.
func AnyUser(v Verifier) Guard {
	return RequireToken(v, RoleUser, RoleAdmin)
}

// AdminOnly admits identities holding the admin role.
func AdminOnly(v Verifier) Guard {
	return RequireToken(v, RoleAdmin)
}

// Allowed returns the roles admitted by the guard.
func (g Guard) Allowed() RoleSet {
	return g.allowed
}

// Authorize extracts the bearer token from an Authorization header value,
// verifies it and checks the role. It has no side effects.
func (g Guard) Authorize(header string) (Identity, error) {
	if g.verifier == nil {
		return Identity{}, &AccessError{Kind: Unauthenticated, Reason: "token verification unavailable"}
	}
	token, err := BearerToken(header)
	if err != nil {
		return Identity{}, &AccessError{Kind: Unauthenticated, Reason: err.Error()}
	}
	id, err := g.verifier.Verify(token)
	if err != nil {
		return Identity{}, &AccessError{Kind: Unauthenticated, Reason: verifyReason(err), Err: err}
	}
	if !g.allowed.Contains(id.Role) {
		return Identity{}, &AccessError{
			Kind:   Unauthorized,
			Reason: fmt.Sprintf("role %s is not permitted; requires one of [%s]", id.Role, g.allowed),
		}
	}
	return id, nil
}

// BearerToken returns the token following the "Bearer " prefix.
func BearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing bearer token")
	}
	token, ok := strings.CutPrefix(header, BearerPrefix)
	if !ok {
		return "", errors.New("invalid authorization scheme")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func verifyReason(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "token expired"
	case errors.Is(err, ErrInvalidRole):
		return "token carries an unrecognised role"
	default:
		return "invalid token"
	}
}
