package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef-test"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestTokens(t *testing.T, clock *fakeClock) *TokenService {
	t.Helper()
	secret, err := NewSecret(testSecret)
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	svc, err := NewTokenService(secret, WithClock(clock.Now), WithIssuer("test-issuer"))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func signRaw(t *testing.T, method jwt.SigningMethod, key []byte, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestTokens(t, clock)

	for _, role := range []Role{RoleUser, RoleAdmin} {
		tok, err := svc.Issue("42", role, 30*time.Minute)
		if err != nil {
			t.Fatalf("Issue(%s): %v", role, err)
		}
		id, err := svc.Verify(tok.Value)
		if err != nil {
			t.Fatalf("Verify(%s): %v", role, err)
		}
		if id.Subject != "42" || id.Role != role {
			t.Fatalf("unexpected identity %+v for role %s", id, role)
		}
		if got := tok.ExpiresAt.Sub(tok.IssuedAt); got != 30*time.Minute {
			t.Fatalf("unexpected lifetime %s", got)
		}
	}
}

func TestIssueForUsesRolePolicy(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	secret, err := NewSecret(testSecret)
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	svc, err := NewTokenService(secret, WithClock(clock.Now), WithTTLPolicy(TTLPolicy{User: 20 * time.Minute, Admin: 8 * time.Hour}))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	userTok, err := svc.IssueFor("u1", RoleUser)
	if err != nil {
		t.Fatalf("IssueFor user: %v", err)
	}
	adminTok, err := svc.IssueFor("a1", RoleAdmin)
	if err != nil {
		t.Fatalf("IssueFor admin: %v", err)
	}
	if got := userTok.ExpiresAt.Sub(clock.Now()); got != 20*time.Minute {
		t.Fatalf("user ttl = %s", got)
	}
	if got := adminTok.ExpiresAt.Sub(clock.Now()); got != 8*time.Hour {
		t.Fatalf("admin ttl = %s", got)
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	svc := newTestTokens(t, &fakeClock{now: time.Now()})

	if _, err := svc.Issue(" ", RoleUser, time.Minute); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty subject, got %v", err)
	}
	if _, err := svc.Issue("1", Role(9), time.Minute); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := svc.Issue("1", RoleUser, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero ttl, got %v", err)
	}
}

func TestVerifyExpiredAtAndAfterExpiry(t *testing.T) {
	issuedAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: issuedAt}
	svc := newTestTokens(t, clock)

	tok, err := svc.Issue("7", RoleUser, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Set(tok.ExpiresAt.Add(-time.Second))
	if _, err := svc.Verify(tok.Value); err != nil {
		t.Fatalf("expected token valid one second before expiry, got %v", err)
	}

	for _, at := range []time.Time{tok.ExpiresAt, tok.ExpiresAt.Add(time.Minute), tok.ExpiresAt.Add(48 * time.Hour)} {
		clock.Set(at)
		if _, err := svc.Verify(tok.Value); !errors.Is(err, ErrExpired) {
			t.Fatalf("verify at %s: expected ErrExpired, got %v", at, err)
		}
	}
}

func TestVerifyTamperedSignatureIsMalformed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestTokens(t, clock)

	tok, err := svc.Issue("7", RoleUser, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	other, err := svc.Issue("8", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parts := strings.Split(tok.Value, ".")
	otherParts := strings.Split(other.Value, ".")

	forgedSecret := signRaw(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-000"), Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   "7",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	})

	cases := map[string]string{
		"swapped payload":   parts[0] + "." + otherParts[1] + "." + parts[2],
		"swapped signature": parts[0] + "." + parts[1] + "." + otherParts[2],
		"foreign secret":    forgedSecret,
		"garbage":           "not-a-token",
		"empty signature":   parts[0] + "." + parts[1] + ".",
	}
	for name, raw := range cases {
		if _, err := svc.Verify(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}

	// An expired token with a bad signature still reports Malformed.
	clock.Set(clock.Now().Add(72 * time.Hour))
	if _, err := svc.Verify(cases["swapped signature"]); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for expired forged token, got %v", err)
	}
}

func TestVerifyRejectsStructuralProblems(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestTokens(t, &fakeClock{now: now})
	key := []byte(testSecret)

	valid := jwt.RegisteredClaims{
		Issuer:    "test-issuer",
		Subject:   "9",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	noExp := valid
	noExp.ExpiresAt = nil
	noSub := valid
	noSub.Subject = ""
	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"

	cases := map[string]string{
		"missing exp":  signRaw(t, jwt.SigningMethodHS256, key, Claims{Role: "user", RegisteredClaims: noExp}),
		"missing sub":  signRaw(t, jwt.SigningMethodHS256, key, Claims{Role: "user", RegisteredClaims: noSub}),
		"wrong issuer": signRaw(t, jwt.SigningMethodHS256, key, Claims{Role: "user", RegisteredClaims: wrongIssuer}),
		"wrong alg":    signRaw(t, jwt.SigningMethodHS384, key, Claims{Role: "user", RegisteredClaims: valid}),
	}
	for name, raw := range cases {
		if _, err := svc.Verify(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestTokens(t, &fakeClock{now: now})

	for _, role := range []string{"superuser", "ADMIN", " admin", "admin ", "User"} {
		raw := signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
			Role: role,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "test-issuer",
				Subject:   "9",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		})
		id, err := svc.Verify(raw)
		if !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("role %q: expected ErrInvalidRole, got %+v, %v", role, id, err)
		}
	}
}

func TestVerifyRejectsMissingRoleAsMalformed(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestTokens(t, &fakeClock{now: now})

	// Only registered claims: the role field is absent from the payload.
	raw := signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		Issuer:    "test-issuer",
		Subject:   "9",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	_, err := svc.Verify(raw)
	if !errors.Is(err, ErrMalformed) || errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrMalformed only, got %v", err)
	}

	empty := signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
		Role: "",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   "9",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	if _, err := svc.Verify(empty); !errors.Is(err, ErrMalformed) {
		t.Fatalf("empty role: expected ErrMalformed, got %v", err)
	}
}

func TestConcurrentVerifyKeepsIdentitiesApart(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestTokens(t, clock)

	const n = 64
	tokens := make([]Token, n)
	for i := range tokens {
		role := RoleUser
		if i%2 == 0 {
			role = RoleAdmin
		}
		tok, err := svc.Issue(fmt.Sprintf("subject-%d", i), role, time.Hour)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		tokens[i] = tok
	}

	var wg sync.WaitGroup
	errs := make(chan error, n*4)
	for round := 0; round < 4; round++ {
		for i := range tokens {
			wg.Add(1)
			go func(tok Token) {
				defer wg.Done()
				id, err := svc.Verify(tok.Value)
				if err != nil {
					errs <- err
					return
				}
				if id != tok.Identity {
					errs <- fmt.Errorf("got %+v, want %+v", id, tok.Identity)
				}
			}(tokens[i])
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestNewSecretValidation(t *testing.T) {
	if _, err := NewSecret(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected error for empty secret, got %v", err)
	}
	if _, err := NewSecret("short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected error for short secret, got %v", err)
	}
	s, err := NewSecret(testSecret)
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	if s.String() != "[redacted]" || fmt.Sprintf("%v", s) != "[redacted]" {
		t.Fatalf("secret leaked through formatting")
	}
	if _, err := NewTokenService(Secret{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected zero secret to be rejected, got %v", err)
	}
}
