package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type credentialMap map[string]Credentials

func (m credentialMap) FindCredentials(_ context.Context, email string) (Credentials, error) {
	c, ok := m[email]
	if !ok {
		return Credentials{}, ErrInvalidCredentials
	}
	return c, nil
}

func TestAuthenticatorLogin(t *testing.T) {
	hash, err := HashPassword("hunter2!", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	users := credentialMap{
		"ranger@example.com": {UserID: "1", PasswordHash: hash, IsAdmin: true},
		"hiker@example.com":  {UserID: "2", PasswordHash: hash},
	}
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	tokens := newTestTokens(t, clock)
	authn := NewAuthenticator(users, tokens)

	tok, err := authn.Login(context.Background(), " Ranger@Example.com ", "hunter2!")
	if err != nil {
		t.Fatalf("Login admin: %v", err)
	}
	if tok.Identity.Role != RoleAdmin || tok.Identity.Subject != "1" {
		t.Fatalf("unexpected identity %+v", tok.Identity)
	}
	if got := tok.ExpiresAt.Sub(tok.IssuedAt); got != tokens.Policy().Admin {
		t.Fatalf("admin login ttl = %s", got)
	}

	tok, err = authn.Login(context.Background(), "hiker@example.com", "hunter2!")
	if err != nil {
		t.Fatalf("Login user: %v", err)
	}
	if tok.Identity.Role != RoleUser {
		t.Fatalf("expected user role, got %s", tok.Identity.Role)
	}

	if _, err := authn.Login(context.Background(), "hiker@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := authn.Login(context.Background(), "nobody@example.com", "hunter2!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	if _, err := authn.Login(context.Background(), "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty input, got %v", err)
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword("", bcrypt.MinCost); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := VerifyPassword("", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty hash, got %v", err)
	}
}
