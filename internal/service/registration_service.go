package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/entity"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/repository"
	apperrors "github.com/aifraenkel/artist-finance-manager-sub002/internal/pkg/errors"
)

const (
	// TokenTTL is the fixed validity window of an emailed link.
	TokenTTL = 24 * time.Hour

	tokenBytes = 32
)

// PendingRegistrationResult is returned to the caller that emails the link.
type PendingRegistrationResult struct {
	Token     string
	ExpiresAt time.Time
}

// VerifiedRegistration is the data captured at issuance, released on consumption.
type VerifiedRegistration struct {
	Email       string
	Name        string
	ContinueURL string
}

// RegistrationService owns the pending registration token lifecycle.
type RegistrationService struct {
	repo repository.PendingRegistrationRepository
	now  func() time.Time
}

func NewRegistrationService(repo repository.PendingRegistrationRepository) (*RegistrationService, error) {
	if repo == nil {
		return nil, fmt.Errorf("pending registration repository is required")
	}
	return &RegistrationService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreatePendingRegistration issues a fresh token. Collisions are not checked:
// 256 random bits make them negligible.
func (s *RegistrationService) CreatePendingRegistration(ctx context.Context, email, name, continueURL string) (*PendingRegistrationResult, error) {
	token, err := generateRegistrationToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate registration token: %w", err)
	}

	rec := entity.NewPendingRegistration(token, NormalizeEmail(email), strings.TrimSpace(name), continueURL, s.now(), TokenTTL)
	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, ErrRegistrationPending
		}
		return nil, fmt.Errorf("failed to persist pending registration: %w", err)
	}

	return &PendingRegistrationResult{Token: rec.Token, ExpiresAt: rec.ExpiresAt}, nil
}

// VerifyRegistrationToken consumes a token. Only one caller can ever succeed for a
// given token; the rest get ErrTokenAlreadyUsed.
func (s *RegistrationService) VerifyRegistrationToken(ctx context.Context, token, ipAddress string) (*VerifiedRegistration, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	rec, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.checkUsable(ctx, rec, now); err != nil {
		return nil, err
	}

	var ip *string
	if ipAddress != "" {
		ip = &ipAddress
	}
	ok, err := s.repo.CompleteIfPending(ctx, token, now, ip)
	if err != nil {
		return nil, fmt.Errorf("failed to consume registration token: %w", err)
	}
	if !ok {
		// Lost the race or crossed the expiry instant: report what the record says now.
		current, err := s.lookup(ctx, token)
		if err != nil {
			return nil, err
		}
		if err := s.checkUsable(ctx, current, now); err != nil {
			return nil, err
		}
		return nil, ErrTokenAlreadyUsed
	}

	return &VerifiedRegistration{
		Email:       rec.Email,
		Name:        rec.Name,
		ContinueURL: rec.ContinueURL,
	}, nil
}

func (s *RegistrationService) lookup(ctx context.Context, token string) (*entity.PendingRegistration, error) {
	rec, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load registration token: %w", err)
	}
	return rec, nil
}

// checkUsable applies the completed → expired ordering and records the expiry
// transition before failing.
func (s *RegistrationService) checkUsable(ctx context.Context, rec *entity.PendingRegistration, now time.Time) error {
	switch {
	case rec.Status == entity.RegistrationStatusCompleted:
		return ErrTokenAlreadyUsed
	case rec.Status == entity.RegistrationStatusExpired:
		return ErrTokenExpired
	case rec.IsExpired(now):
		if _, err := s.repo.ExpireIfPending(ctx, rec.Token); err != nil {
			return fmt.Errorf("failed to mark registration token expired: %w", err)
		}
		return ErrTokenExpired
	}
	return nil
}

// HasPendingRegistration ignores expiresAt on purpose: a stale pending record
// counts until verification or cleanup touches it.
func (s *RegistrationService) HasPendingRegistration(ctx context.Context, email string) (bool, error) {
	exists, err := s.repo.ExistsPendingByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("failed to check pending registration: %w", err)
	}
	return exists, nil
}

// CancelPendingRegistration deletes every pending token for the email in one batch.
func (s *RegistrationService) CancelPendingRegistration(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	recs, err := s.repo.ListPendingByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to list pending registrations: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}

	deleted, err := s.repo.DeletePendingByTokens(ctx, tokensOf(recs))
	if err != nil {
		return fmt.Errorf("failed to cancel pending registrations: %w", err)
	}
	log.Printf("[RegistrationService] Cancelled %d pending registration(s) for superseded request", deleted)
	return nil
}

// CleanupExpiredRegistrations deletes pending records whose expiry has passed and
// returns how many were removed.
func (s *RegistrationService) CleanupExpiredRegistrations(ctx context.Context) (int64, error) {
	recs, err := s.repo.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending registrations: %w", err)
	}

	now := s.now()
	var stale []*entity.PendingRegistration
	for _, rec := range recs {
		if rec.IsExpired(now) {
			stale = append(stale, rec)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	deleted, err := s.repo.DeletePendingByTokens(ctx, tokensOf(stale))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired registrations: %w", err)
	}
	log.Printf("[RegistrationService] Cleanup removed %d expired pending registration(s)", deleted)
	return deleted, nil
}

// ListRegistrations returns records for audit views.
func (s *RegistrationService) ListRegistrations(ctx context.Context, filter repository.PendingRegistrationFilter) ([]*entity.PendingRegistration, error) {
	filter.Email = NormalizeEmail(filter.Email)
	recs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return recs, nil
}

func tokensOf(recs []*entity.PendingRegistration) []string {
	tokens := make([]string, 0, len(recs))
	for _, rec := range recs {
		tokens = append(tokens, rec.Token)
	}
	return tokens
}

func generateRegistrationToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
