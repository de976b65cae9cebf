package auth

import (
	"context"
	"errors"
	"strings"
)

// Credentials is the stored login record for a user.
type Credentials struct {
	UserID       string
	PasswordHash string
	IsAdmin      bool
}

// CredentialStore looks up login records by email. Implementations return
// ErrInvalidCredentials when no user matches.
type CredentialStore interface {
	FindCredentials(ctx context.Context, email string) (Credentials, error)
}

// Authenticator exchanges email/password for a signed token.
type Authenticator struct {
	users  CredentialStore
	tokens *TokenService
}

func NewAuthenticator(users CredentialStore, tokens *TokenService) *Authenticator {
	return &Authenticator{users: users, tokens: tokens}
}

// Login verifies the password and issues a token with the lifetime the
// policy assigns to the user's role.
func (a *Authenticator) Login(ctx context.Context, email, password string) (Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Token{}, ErrInvalidCredentials
	}
	creds, err := a.users.FindCredentials(ctx, email)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return Token{}, ErrInvalidCredentials
		}
		return Token{}, err
	}
	if err := VerifyPassword(creds.PasswordHash, password); err != nil {
		return Token{}, err
	}
	role := RoleUser
	if creds.IsAdmin {
		role = RoleAdmin
	}
	return a.tokens.IssueFor(creds.UserID, role)
}
