package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// UsageSignIn marks a token as a one-time sign-in credential.
const UsageSignIn = "sign_in"

const keyDerivationInfo = "sign-in-credential/v1"

// ErrInvalidCredential covers malformed, expired, or wrongly signed credentials.
var ErrInvalidCredential = errors.New("invalid sign-in credential")

// SignInClaims are the claims carried by a sign-in credential.
type SignInClaims struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	ContinueURL string `json:"continue_url,omitempty"`
	Usage       string `json:"usage"`
	jwt.RegisteredClaims
}

// CredentialIssuer mints and validates short-lived HS256 sign-in credentials.
type CredentialIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewCredentialIssuer derives the signing key from secret with HKDF-SHA256 so the
// configured secret is never used as a MAC key directly.
func NewCredentialIssuer(secret, issuer string, ttl time.Duration) (*CredentialIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("signing secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(issuer), []byte(keyDerivationInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}

	return &CredentialIssuer{
		key:    key,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue returns a signed credential and its claims.
func (c *CredentialIssuer) Issue(uid, email, continueURL string) (string, *SignInClaims, error) {
	now := c.now()
	claims := &SignInClaims{
		UID:         uid,
		Email:       email,
		ContinueURL: continueURL,
		Usage:       UsageSignIn,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign credential: %w", err)
	}
	return signed, claims, nil
}

// Parse validates signature, issuer, expiry and usage of a credential.
func (c *CredentialIssuer) Parse(credential string) (*SignInClaims, error) {
	claims := &SignInClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Usage != UsageSignIn {
		return nil, fmt.Errorf("%w: unexpected usage %q", ErrInvalidCredential, claims.Usage)
	}
	if !claims.VerifyIssuer(c.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidCredential)
	}
	if claims.ID == "" || claims.UID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing identifiers", ErrInvalidCredential)
	}
	return claims, nil
}
