package teams

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const hmacScheme = "hmac"

// AuthErrorKind distinguishes why a webhook signature was rejected.
type AuthErrorKind int

const (
	AuthMissingHeader AuthErrorKind = iota + 1
	AuthMalformedHeader
	AuthSignatureMismatch
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthMissingHeader:
		return "missing_header"
	case AuthMalformedHeader:
		return "malformed_header"
	case AuthSignatureMismatch:
		return "signature_mismatch"
	default:
		return "unknown"
	}
}

// AuthError is returned by Verify when a request cannot be authenticated.
type AuthError struct {
	Kind AuthErrorKind
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case AuthMissingHeader:
		return "teams: missing authorization header"
	case AuthMalformedHeader:
		return "teams: malformed authorization header"
	case AuthSignatureMismatch:
		return "teams: signature mismatch"
	default:
		return "teams: authentication failed"
	}
}

// ErrInvalidSecret is returned when the shared secret cannot be used.
var ErrInvalidSecret = errors.New("teams: invalid hmac secret")

// Verifier checks the HMAC-SHA256 signature Teams attaches to outgoing webhook calls.
type Verifier struct {
	key []byte
}

// NewVerifier decodes the base64 secret issued when the outgoing webhook was created.
func NewVerifier(secretB64 string) (*Verifier, error) {
	secretB64 = strings.TrimSpace(secretB64)
	if secretB64 == "" {
		return nil, fmt.Errorf("%w: secret is empty", ErrInvalidSecret)
	}
	key, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: secret decodes to zero bytes", ErrInvalidSecret)
	}
	return &Verifier{key: key}, nil
}

// NewVerifierFromConfig returns nil (verification disabled) when the secret is
// blank or an explicit off switch such as "DISABLED".
func NewVerifierFromConfig(secret string) (*Verifier, error) {
	switch strings.ToUpper(strings.TrimSpace(secret)) {
	case "", "DISABLED", "NONE", "OFF", "FALSE":
		return nil, nil
	}
	return NewVerifier(secret)
}

// IsConfigured reports whether signatures should be enforced.
func (v *Verifier) IsConfigured() bool {
	return v != nil && len(v.key) > 0
}

// Sign returns the base64 HMAC of body. Used by tests and local tooling.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify validates an "HMAC <signature>" authorization header against the raw body.
func (v *Verifier) Verify(authHeader string, body []byte) error {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return &AuthError{Kind: AuthMissingHeader}
	}
	scheme, provided, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, hmacScheme) {
		return &AuthError{Kind: AuthMalformedHeader}
	}
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return &AuthError{Kind: AuthMalformedHeader}
	}
	expected := v.Sign(body)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return &AuthError{Kind: AuthSignatureMismatch}
	}
	return nil
}
