package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/entity"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/repository"
	apperrors "github.com/aifraenkel/artist-finance-manager-sub002/internal/pkg/errors"
)

const defaultListLimit = 1000

// PendingRegistrationRepo реализует repository.PendingRegistrationRepository с использованием PostgreSQL и GORM
type PendingRegistrationRepo struct {
	db *gorm.DB
}

// NewPendingRegistrationRepo создает новый экземпляр репозитория
func NewPendingRegistrationRepo(db *gorm.DB) (*PendingRegistrationRepo, error) {
	if db == nil {
		return nil, fmt.Errorf("GORM DB instance is required for PendingRegistrationRepo")
	}
	return &PendingRegistrationRepo{db: db}, nil
}

func (r *PendingRegistrationRepo) Create(ctx context.Context, rec *entity.PendingRegistration) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: pending registration already exists for email", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create pending registration: %w", err)
	}
	return nil
}

func (r *PendingRegistrationRepo) GetByToken(ctx context.Context, token string) (*entity.PendingRegistration, error) {
	var rec entity.PendingRegistration
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending registration: %w", err)
	}
	return &rec, nil
}

// CompleteIfPending is the single consumption point. The WHERE clause acts as a
// compare-and-swap on status, so concurrent callers cannot both succeed.
func (r *PendingRegistrationRepo) CompleteIfPending(ctx context.Context, token string, verifiedAt time.Time, ipAddress *string) (bool, error) {
	updates := map[string]interface{}{
		"status":      entity.RegistrationStatusCompleted,
		"verified_at": verifiedAt,
	}
	if ipAddress != nil {
		updates["ip_address"] = *ipAddress
	}

	result := r.db.WithContext(ctx).Model(&entity.PendingRegistration{}).
		Where("token = ? AND status = ? AND expires_at >= ?", token, entity.RegistrationStatusPending, verifiedAt).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to complete pending registration: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *PendingRegistrationRepo) ExpireIfPending(ctx context.Context, token string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.PendingRegistration{}).
		Where("token = ? AND status = ?", token, entity.RegistrationStatusPending).
		Update("status", entity.RegistrationStatusExpired)
	if result.Error != nil {
		return false, fmt.Errorf("failed to expire pending registration: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *PendingRegistrationRepo) ExistsPendingByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.PendingRegistration{}).
		Where("email = ? AND status = ?", email, entity.RegistrationStatusPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check pending registration: %w", err)
	}
	return count > 0, nil
}

func (r *PendingRegistrationRepo) ListPendingByEmail(ctx context.Context, email string) ([]*entity.PendingRegistration, error) {
	var recs []*entity.PendingRegistration
	err := r.db.WithContext(ctx).
		Where("email = ? AND status = ?", email, entity.RegistrationStatusPending).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending registrations for email: %w", err)
	}
	return recs, nil
}

func (r *PendingRegistrationRepo) ListPending(ctx context.Context) ([]*entity.PendingRegistration, error) {
	var recs []*entity.PendingRegistration
	err := r.db.WithContext(ctx).
		Where("status = ?", entity.RegistrationStatusPending).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending registrations: %w", err)
	}
	return recs, nil
}

func (r *PendingRegistrationRepo) DeletePendingByTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("token IN ? AND status = ?", tokens, entity.RegistrationStatusPending).
			Delete(&entity.PendingRegistration{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending registrations: %w", err)
	}

	if deleted != int64(len(tokens)) {
		log.Printf("[PendingRegistrationRepo] Deleted %d of %d selected tokens, the rest changed state concurrently", deleted, len(tokens))
	}
	return deleted, nil
}

func (r *PendingRegistrationRepo) List(ctx context.Context, filter repository.PendingRegistrationFilter) ([]*entity.PendingRegistration, error) {
	limit := filter.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	query := r.db.WithContext(ctx).Model(&entity.PendingRegistration{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Email != "" {
		query = query.Where("email = ?", filter.Email)
	}

	var recs []*entity.PendingRegistration
	if err := query.Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return recs, nil
}
