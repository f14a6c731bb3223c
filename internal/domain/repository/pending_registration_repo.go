package repository

import (
	"context"
	"time"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/entity"
)

// PendingRegistrationFilter narrows audit listings.
type PendingRegistrationFilter struct {
	Status entity.RegistrationStatus
	Email  string
	Limit  int
}

// PendingRegistrationRepository is the token store behind the registration service.
type PendingRegistrationRepository interface {
	// Create inserts a new record. apperrors.ErrConflict when the email already
	// has a pending token.
	Create(ctx context.Context, rec *entity.PendingRegistration) error
	// GetByToken returns apperrors.ErrNotFound for unknown tokens.
	GetByToken(ctx context.Context, token string) (*entity.PendingRegistration, error)
	// CompleteIfPending moves a pending, unexpired record to completed. It reports
	// false when the record was not pending or had expired at verifiedAt.
	CompleteIfPending(ctx context.Context, token string, verifiedAt time.Time, ipAddress *string) (bool, error)
	// ExpireIfPending moves a pending record to expired.
	ExpireIfPending(ctx context.Context, token string) (bool, error)
	ExistsPendingByEmail(ctx context.Context, email string) (bool, error)
	ListPendingByEmail(ctx context.Context, email string) ([]*entity.PendingRegistration, error)
	ListPending(ctx context.Context) ([]*entity.PendingRegistration, error)
	// DeletePendingByTokens removes the given records in one atomic statement,
	// skipping any that are no longer pending.
	DeletePendingByTokens(ctx context.Context, tokens []string) (int64, error)
	List(ctx context.Context, filter PendingRegistrationFilter) ([]*entity.PendingRegistration, error)
}
