package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/entity"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/repository"
	apperrors "github.com/aifraenkel/artist-finance-manager-sub002/internal/pkg/errors"
	"github.com/aifraenkel/artist-finance-manager-sub002/pkg/auth"
)

// LocalProvider keeps identities in the users table and signs its own credentials.
type LocalProvider struct {
	users     repository.UserRepository
	issuer    *auth.CredentialIssuer
	signInURL *url.URL
}

// NewLocalProvider creates the provider. signInURL is the client page that accepts
// ?oobCode=<credential>&continueUrl=<url>.
func NewLocalProvider(users repository.UserRepository, issuer *auth.CredentialIssuer, signInURL string) (*LocalProvider, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("credential issuer is required")
	}
	parsed, err := url.Parse(signInURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("sign-in URL must be absolute: %q", signInURL)
	}
	return &LocalProvider{users: users, issuer: issuer, signInURL: parsed}, nil
}

func (p *LocalProvider) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return toUser(u), nil
}

func (p *LocalProvider) FindUserByUID(ctx context.Context, uid string) (*User, error) {
	u, err := p.users.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return toUser(u), nil
}

func (p *LocalProvider) CreateUser(ctx context.Context, email, displayName string) (*User, error) {
	u := &entity.User{
		UID:         uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
	}
	if err := p.users.Create(ctx, u); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	log.Printf("[LocalProvider] Created user uid=%s", u.UID)
	return toUser(u), nil
}

func (p *LocalProvider) IssueSignInCredential(ctx context.Context, email, continueURL string) (*SignInCredential, error) {
	u, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	credential, claims, err := p.issuer.Issue(u.UID, u.Email, continueURL)
	if err != nil {
		return nil, err
	}

	link := *p.signInURL
	q := link.Query()
	q.Set("oobCode", credential)
	if continueURL != "" {
		q.Set("continueUrl", continueURL)
	}
	link.RawQuery = q.Encode()

	return &SignInCredential{
		Link:       link.String(),
		Credential: credential,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

func toUser(u *entity.User) *User {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &User{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   createdAt,
	}
}
