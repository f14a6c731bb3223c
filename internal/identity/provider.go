// Package identity bridges verified email addresses to durable user identities.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned by the lookups for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by CreateUser when the email is taken.
	ErrUserExists = errors.New("user already exists")
)

// User is the identity-provider view of an account.
type User struct {
	UID         string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// Provider is the narrow capability the registration flow needs from an identity provider.
type Provider interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByUID(ctx context.Context, uid string) (*User, error)
	CreateUser(ctx context.Context, email, displayName string) (*User, error)
	// IssueSignInCredential returns a one-time sign-in link for the email.
	IssueSignInCredential(ctx context.Context, email, continueURL string) (*SignInCredential, error)
}

// SignInCredential is what the client exchanges for an authenticated session.
type SignInCredential struct {
	Link       string
	Credential string
	ExpiresAt  time.Time
}
