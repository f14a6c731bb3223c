package repository

import (
	"context"
	"time"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/entity"
)

// UserRepository определяет методы для работы с пользователями
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByUID(ctx context.Context, uid string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	UserProfileRepository
}

// UserProfileRepository records sign-in bookkeeping on the user profile.
type UserProfileRepository interface {
	RecordLogin(ctx context.Context, uid string, at time.Time) error
}
