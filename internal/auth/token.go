package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "trailwatch"

// Claims is the JWT payload carried by every access token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TTLPolicy assigns a token lifetime per role.
type TTLPolicy struct {
	User  time.Duration
	Admin time.Duration
}

// DefaultTTLPolicy keeps user tokens short-lived and admin tokens longer.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		User:  time.Hour,
		Admin: 12 * time.Hour,
	}
}

// For returns the lifetime configured for role.
func (p TTLPolicy) For(role Role) (time.Duration, error) {
	switch role {
	case RoleUser:
		return p.User, nil
	case RoleAdmin:
		return p.Admin, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}
}

// Token is a freshly issued, signed access token.
type Token struct {
	Value     string    `json:"token"`
	Identity  Identity  `json:"identity"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenService issues and verifies HS256 identity tokens. Verification only
// depends on the token, the clock and the secret, so a token stays valid
// until it expires: there is no revocation list and logout cannot cut a
// token short.
type TokenService struct {
	secret Secret
	issuer string
	ttl    TTLPolicy
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService) error

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithTTLPolicy sets the per-role token lifetimes.
func WithTTLPolicy(p TTLPolicy) TokenOption {
	return func(s *TokenService) error {
		if p.User <= 0 || p.Admin <= 0 {
			return fmt.Errorf("%w: token lifetimes must be positive", ErrInvalidInput)
		}
		s.ttl = p
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewTokenService builds a TokenService around an initialised secret.
func NewTokenService(secret Secret, opts ...TokenOption) (*TokenService, error) {
	if secret.IsZero() {
		return nil, fmt.Errorf("%w: signing secret is not configured", ErrInvalidInput)
	}
	svc := &TokenService{
		secret: secret,
		issuer: defaultIssuer,
		ttl:    DefaultTTLPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Policy returns the configured per-role lifetimes.
func (s *TokenService) Policy() TTLPolicy {
	return s.ttl
}

// IssueFor signs a token using the lifetime the policy assigns to role.
func (s *TokenService) IssueFor(subject string, role Role) (Token, error) {
	ttl, err := s.ttl.For(role)
	if err != nil {
		return Token{}, err
	}
	return s.Issue(subject, role, ttl)
}

// Issue signs a token for subject and role valid for ttl.
func (s *TokenService) Issue(subject string, role Role, ttl time.Duration) (Token, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Token{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return Token{}, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}
	if ttl <= 0 {
		return Token{}, fmt.Errorf("%w: ttl must be greater than zero", ErrInvalidInput)
	}

	now := s.now().UTC()
	claims := Claims{
		Role: role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{
		Value:     signed,
		Identity:  Identity{Subject: subject, Role: role},
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify checks signature, issuer, expiry and role of raw and returns the
// identity it carries. Failures wrap ErrExpired, ErrMalformed or
// ErrInvalidRole. The signature is checked before any claim so a forged
// token never reports as merely expired.
func (s *TokenService) Verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret.key, nil
	}); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := s.validateClaims(claims); err != nil {
		return Identity{}, err
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: claims.Subject, Role: role}, nil
}

func (s *TokenService) validateClaims(claims *Claims) error {
	if claims.Issuer != s.issuer {
		return fmt.Errorf("%w: unexpected issuer %q", ErrMalformed, claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return fmt.Errorf("%w: subject missing", ErrMalformed)
	}
	if claims.Role == "" {
		return fmt.Errorf("%w: role missing", ErrMalformed)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return fmt.Errorf("%w: timestamps missing", ErrMalformed)
	}
	if claims.ExpiresAt.Before(claims.IssuedAt.Time) {
		return fmt.Errorf("%w: expiry precedes issued-at", ErrMalformed)
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}
