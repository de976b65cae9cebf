package auth

import (
	"fmt"
	"strings"
)

// MinSecretLength is the minimum HS256 key size in bytes.
const MinSecretLength = 32

// Secret holds the symmetric signing key. It is built once at startup and
// never exposes or mutates the underlying bytes.
type Secret struct {
	key []byte
}

// NewSecret copies raw into a new Secret.
func NewSecret(raw string) (Secret, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Secret{}, fmt.Errorf("%w: signing secret is not configured", ErrInvalidInput)
	}
	if len(raw) < MinSecretLength {
		return Secret{}, fmt.Errorf("%w: signing secret must be at least %d bytes", ErrInvalidInput, MinSecretLength)
	}
	key := make([]byte, len(raw))
	copy(key, raw)
	return Secret{key: key}, nil
}

// IsZero reports whether the secret was never initialised.
func (s Secret) IsZero() bool {
	return len(s.key) == 0
}

func (s Secret) String() string {
	return "[redacted]"
}

func (s Secret) GoString() string {
	return "auth.Secret{[redacted]}"
}
