package repository

import (
	"context"
	"time"

	"fruittrace/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.User, error)

	// SaveRefreshToken stores a new refresh token and drops the user's expired ones.
	SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error
	// ConsumeRefreshToken deletes the token with the given hash and returns it.
	// Only one caller can consume a token; the others get gorm.ErrRecordNotFound.
	ConsumeRefreshToken(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListByRole is used to find notification recipients
func (r *userRepository) ListByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	var users []model.User
	if err := GetDB(ctx, r.db).Where("role = ?", role).Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("user_id = ? AND expires_at < ?", token.UserID, time.Now()).
		Delete(&model.RefreshToken{}).Error; err != nil {
		return err
	}
	return db.Create(token).Error
}

func (r *userRepository) ConsumeRefreshToken(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	db := GetDB(ctx, r.db)
	var token model.RefreshToken
	if err := db.First(&token, "token_hash = ?", tokenHash).Error; err != nil {
		return nil, err
	}
	res := db.Where("id = ?", token.ID).Delete(&model.RefreshToken{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &token, nil
}
