package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"fruittrace/internal/middleware"
	"fruittrace/internal/model"
	"fruittrace/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
}

type LoginUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	Token            string       `json:"token"`
	ExpiresAt        string       `json:"expires_at"`
	RefreshToken     string       `json:"refresh_token"`
	RefreshExpiresAt string       `json:"refresh_expires_at"`
	User             UserResponse `json:"user"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// --- Interface ---

type UserService interface {
	CreateUser(ctx context.Context, actor uuid.UUID, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	// Refresh exchanges a refresh token for a new token pair. The old refresh token is spent.
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	// Logout revokes a refresh token. Unknown tokens are ignored.
	Logout(ctx context.Context, refreshToken string) error
	// AdminEmails lists where admin notifications are mailed.
	AdminEmails(ctx context.Context) ([]string, error)
}

type userService struct {
	txManager repository.TransactionManager
	repo      repository.UserRepository
	auditRepo repository.AuditRepository
	secret     []byte
	tokenTTL   time.Duration
	refreshTTL time.Duration
	cost       int
}

// DefaultRefreshTTL is how long a refresh token stays valid unless configured.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// UserOption tweaks a UserService.
type UserOption func(*userService)

// WithHashCost sets the bcrypt cost for new passwords.
func WithHashCost(cost int) UserOption {
	return func(s *userService) { s.cost = cost }
}

// WithRefreshTTL sets the lifetime of issued refresh tokens.
func WithRefreshTTL(ttl time.Duration) UserOption {
	return func(s *userService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

func NewUserService(
	txManager repository.TransactionManager,
	repo repository.UserRepository,
	auditRepo repository.AuditRepository,
	secret []byte,
	tokenTTL time.Duration,
	opts ...UserOption,
) UserService {
	s := &userService{
		txManager: txManager,
		repo:      repo,
		auditRepo: auditRepo,
		secret:     secret,
		tokenTTL:   tokenTTL,
		refreshTTL: DefaultRefreshTTL,
		cost:       bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func mapToResponse(user *model.User) UserResponse {
	return UserResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) CreateUser(ctx context.Context, actor uuid.UUID, req CreateUserRequest) (*UserResponse, error) {
	role := model.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if !role.Valid() {
		return nil, validationf("invalid role %q: must be admin or staff", req.Role)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, validationf("invalid email format")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, validationf("cannot hash password: %v", err)
	}

	user := &model.User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: string(hashedPassword),
		Role:     role,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetByUsername(txCtx, user.Username); err == nil {
			return fmt.Errorf("%w: username already exists", ErrConflict)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return storageErr("check username", err)
		}

		if err := s.repo.Create(txCtx, user); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: username or email already exists", ErrConflict)
			}
			return storageErr("create user", err)
		}

		details, _ := json.Marshal(map[string]string{"username": user.Username, "role": string(user.Role)})
		var by *uuid.UUID
		if actor != uuid.Nil {
			by = &actor
		}
		if err := s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     by,
			Action:     model.ActionCreateUser,
			EntityID:   user.ID.String(),
			EntityName: user.Username,
			Details:    string(details),
		}); err != nil {
			return storageErr("write audit log", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := mapToResponse(user)
	return &resp, nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, storageErr("load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrUnauthorized
	}

	var res *TokenResponse
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		res, err = s.issuePair(txCtx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *userService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token is missing", ErrUnauthorized)
	}

	var res *TokenResponse
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		stored, err := s.repo.ConsumeRefreshToken(txCtx, hashToken(refreshToken))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: refresh token is invalid", ErrUnauthorized)
			}
			return storageErr("consume refresh token", err)
		}
		if !time.Now().Before(stored.ExpiresAt) {
			return fmt.Errorf("%w: refresh token has expired", ErrUnauthorized)
		}

		user, err := s.repo.GetByID(txCtx, stored.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: account no longer exists", ErrUnauthorized)
			}
			return storageErr("load user", err)
		}

		res, err = s.issuePair(txCtx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	_, err := s.repo.ConsumeRefreshToken(ctx, hashToken(refreshToken))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return storageErr("revoke refresh token", err)
	}
	return nil
}

// issuePair signs an access token and stores a fresh refresh token for user.
func (s *userService) issuePair(ctx context.Context, user *model.User) (*TokenResponse, error) {
	now := time.Now()
	access, err := middleware.IssueToken(model.Actor{ID: user.ID, Role: user.Role}, s.secret, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	refresh := base64.RawURLEncoding.EncodeToString(raw)
	refreshExp := now.Add(s.refreshTTL)

	if err := s.repo.SaveRefreshToken(ctx, &model.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: refreshExp,
	}); err != nil {
		return nil, storageErr("store refresh token", err)
	}

	return &TokenResponse{
		Token:            access,
		ExpiresAt:        now.Add(s.tokenTTL).UTC().Format(time.RFC3339),
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp.UTC().Format(time.RFC3339),
		User:             mapToResponse(user),
	}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *userService) AdminEmails(ctx context.Context) ([]string, error) {
	admins, err := s.repo.ListByRole(ctx, model.RoleAdmin)
	if err != nil {
		return nil, storageErr("list admins", err)
	}
	emails := make([]string, 0, len(admins))
	for _, a := range admins {
		if a.Email != "" {
			emails = append(emails, a.Email)
		}
	}
	return emails, nil
}
