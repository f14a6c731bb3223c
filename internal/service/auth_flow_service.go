package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/repository"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/identity"
	apperrors "github.com/aifraenkel/artist-finance-manager-sub002/internal/pkg/errors"
	"github.com/aifraenkel/artist-finance-manager-sub002/pkg/auth"
)

// CredentialVerifier validates sign-in credentials minted by the identity provider.
type CredentialVerifier interface {
	Parse(credential string) (*auth.SignInClaims, error)
}

// CreateRegistrationInput is the body of a registration request.
type CreateRegistrationInput struct {
	Email       string `validate:"required,email,max=320"`
	Name        string `validate:"required,min=2,max=200"`
	ContinueURL string `validate:"required,url"`
}

// CreateSignInInput is the body of a returning-user sign-in request.
type CreateSignInInput struct {
	Email       string `validate:"required,email,max=320"`
	ContinueURL string `validate:"required,url"`
}

// LinkRequestResult tells the client when the emailed link stops working.
type LinkRequestResult struct {
	ExpiresAt time.Time
}

// VerificationResult is handed back to the client after a token is consumed.
type VerificationResult struct {
	Email       string
	Name        string
	SignInLink  string
	ContinueURL string
}

// SignedInIdentity is the identity behind an exchanged credential.
type SignedInIdentity struct {
	UID         string
	Email       string
	DisplayName string
}

// AuthFlowService orchestrates the passwordless registration and sign-in flow.
type AuthFlowService struct {
	registrations   *RegistrationService
	identities      identity.Provider
	profiles        repository.UserProfileRepository
	emails          EmailService
	guard           DuplicateGuard
	credentials     CredentialVerifier
	usedCredentials repository.CacheRepository
	verifyURL       *url.URL
	validate        *validator.Validate
	now             func() time.Time
}

// AuthFlowDeps groups the collaborators of AuthFlowService.
type AuthFlowDeps struct {
	Registrations   *RegistrationService
	Identities      identity.Provider
	Profiles        repository.UserProfileRepository
	Emails          EmailService
	Guard           DuplicateGuard
	Credentials     CredentialVerifier
	UsedCredentials repository.CacheRepository
	// VerifyURL is the client page that receives ?token=<token>.
	VerifyURL string
}

func NewAuthFlowService(deps AuthFlowDeps) (*AuthFlowService, error) {
	if deps.Registrations == nil {
		return nil, fmt.Errorf("registration service is required")
	}
	if deps.Identities == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if deps.Profiles == nil {
		return nil, fmt.Errorf("user profile repository is required")
	}
	if deps.Emails == nil {
		return nil, fmt.Errorf("email service is required")
	}
	if deps.Credentials == nil || deps.UsedCredentials == nil {
		return nil, fmt.Errorf("credential verifier and replay cache are required")
	}
	verifyURL, err := url.Parse(deps.VerifyURL)
	if err != nil || verifyURL.Scheme == "" || verifyURL.Host == "" {
		return nil, fmt.Errorf("verify URL must be absolute: %q", deps.VerifyURL)
	}
	guard := deps.Guard
	if guard == nil {
		guard = NoopDuplicateGuard{}
	}

	return &AuthFlowService{
		registrations:   deps.Registrations,
		identities:      deps.Identities,
		profiles:        deps.Profiles,
		emails:          deps.Emails,
		guard:           guard,
		credentials:     deps.Credentials,
		usedCredentials: deps.UsedCredentials,
		verifyURL:       verifyURL,
		validate:        validator.New(),
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateRegistration emails a registration link to a new user.
func (s *AuthFlowService) CreateRegistration(ctx context.Context, input CreateRegistrationInput) (*LinkRequestResult, error) {
	input.Email = NormalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	input.ContinueURL = strings.TrimSpace(input.ContinueURL)
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	_, err := s.identities.FindUserByEmail(ctx, input.Email)
	switch {
	case err == nil:
		return nil, ErrUserExists
	case !errors.Is(err, identity.ErrUserNotFound):
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	return s.issueLink(ctx, LinkPurposeRegistration, input.Email, input.Name, input.ContinueURL)
}

// CreateSignInRequest emails a sign-in link to an existing user.
func (s *AuthFlowService) CreateSignInRequest(ctx context.Context, input CreateSignInInput) (*LinkRequestResult, error) {
	input.Email = NormalizeEmail(input.Email)
	input.ContinueURL = strings.TrimSpace(input.ContinueURL)
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	user, err := s.identities.FindUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	return s.issueLink(ctx, LinkPurposeSignIn, input.Email, user.DisplayName, input.ContinueURL)
}

// issueLink supersedes any live token for the email, creates a new one and mails it.
func (s *AuthFlowService) issueLink(ctx context.Context, purpose LinkPurpose, email, name, continueURL string) (*LinkRequestResult, error) {
	guardKey := string(purpose) + ":" + email
	acquired, err := s.guard.Acquire(ctx, guardKey)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrDuplicateRequest
	}

	pending, err := s.registrations.HasPendingRegistration(ctx, email)
	if err != nil {
		s.guard.Release(ctx, guardKey)
		return nil, err
	}
	if pending {
		if err := s.registrations.CancelPendingRegistration(ctx, email); err != nil {
			s.guard.Release(ctx, guardKey)
			return nil, err
		}
	}

	created, err := s.registrations.CreatePendingRegistration(ctx, email, name, continueURL)
	if err != nil {
		s.guard.Release(ctx, guardKey)
		return nil, err
	}

	msg := LinkEmail{
		To:             email,
		Name:           name,
		Link:           s.verificationLink(created.Token),
		Purpose:        purpose,
		ExpiresAt:      created.ExpiresAt,
		IdempotencyKey: "link:" + created.Token,
	}
	if err := s.emails.SendVerificationLink(ctx, msg); err != nil {
		log.Printf("[AuthFlow] Failed to send %s link: %v", purpose, err)
		s.guard.Release(ctx, guardKey)
		return nil, fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}

	log.Printf("[AuthFlow] Sent %s link, expires at %s", purpose, created.ExpiresAt.Format(time.RFC3339))
	return &LinkRequestResult{ExpiresAt: created.ExpiresAt}, nil
}

// CompleteVerification consumes the token and issues a sign-in credential. A failure
// after consumption leaves the token completed; the user requests a new link.
func (s *AuthFlowService) CompleteVerification(ctx context.Context, token, ipAddress string) (*VerificationResult, error) {
	reg, err := s.registrations.VerifyRegistrationToken(ctx, token, ipAddress)
	if err != nil {
		return nil, err
	}

	user, err := s.findOrCreateUser(ctx, reg.Email, reg.Name)
	if err != nil {
		return nil, err
	}

	cred, err := s.identities.IssueSignInCredential(ctx, reg.Email, reg.ContinueURL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue sign-in credential: %w", err)
	}

	if err := s.profiles.RecordLogin(ctx, user.UID, s.now()); err != nil {
		log.Printf("[AuthFlow] Failed to record login for uid=%s: %v", user.UID, err)
	}

	name := user.DisplayName
	if name == "" {
		name = reg.Name
	}
	return &VerificationResult{
		Email:       reg.Email,
		Name:        name,
		SignInLink:  cred.Link,
		ContinueURL: reg.ContinueURL,
	}, nil
}

func (s *AuthFlowService) findOrCreateUser(ctx context.Context, email, name string) (*identity.User, error) {
	user, err := s.identities.FindUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, identity.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	user, err = s.identities.CreateUser(ctx, email, name)
	if errors.Is(err, identity.ErrUserExists) {
		// created concurrently by another verification
		return s.identities.FindUserByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// ExchangeSignInCredential accepts a credential exactly once. The credential is
// claimed only after the identity checks pass, so a failed lookup leaves it usable.
func (s *AuthFlowService) ExchangeSignInCredential(ctx context.Context, credential string) (*SignedInIdentity, error) {
	claims, err := s.credentials.Parse(strings.TrimSpace(credential))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	user, err := s.identities.FindUserByUID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !strings.EqualFold(user.Email, claims.Email) {
		return nil, ErrInvalidCredential
	}

	ttl := claims.ExpiresAt.Time.Sub(s.now()) + time.Minute
	fresh, err := s.usedCredentials.SetNX(ctx, "signin:credential:"+claims.ID, claims.UID, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to record credential use: %w", err)
	}
	if !fresh {
		return nil, ErrCredentialUsed
	}

	return &SignedInIdentity{UID: user.UID, Email: user.Email, DisplayName: user.DisplayName}, nil
}

func (s *AuthFlowService) verificationLink(token string) string {
	link := *s.verifyURL
	q := link.Query()
	q.Set("token", token)
	link.RawQuery = q.Encode()
	return link.String()
}

func (s *AuthFlowService) validateInput(input interface{}) error {
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid %s", apperrors.ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return nil
}
