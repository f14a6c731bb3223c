package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/entity"
	apperrors "github.com/aifraenkel/artist-finance-manager-sub002/internal/pkg/errors"
)

// UserRepo реализует repository.UserRepository
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo создает новый репозиторий пользователей
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create создает нового пользователя
func (r *UserRepo) Create(ctx context.Context, user *entity.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user with this email already exists", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByUID возвращает пользователя по UID
func (r *UserRepo) GetByUID(ctx context.Context, uid string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByEmail возвращает пользователя по email
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// RecordLogin обновляет last_login_at и увеличивает login_count
func (r *UserRepo) RecordLogin(ctx context.Context, uid string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&entity.User{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"last_login_at": at,
			"login_count":   gorm.Expr("login_count + 1"),
			"updated_at":    at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record login for user %s: %w", uid, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
