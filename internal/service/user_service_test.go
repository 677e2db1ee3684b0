package service

import (
	"context"
	"testing"
	"time"

	"fruittrace/internal/middleware"
	"fruittrace/internal/model"
	"fruittrace/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tok, err := h.users.Login(ctx, LoginUserRequest{Username: "staff", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "staff", tok.User.Username)

	actor, err := middleware.ParseToken(tok.Token, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, h.staff, actor)

	_, err = h.users.Login(ctx, LoginUserRequest{Username: "staff", Password: "wrong"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.users.Login(ctx, LoginUserRequest{Username: "nobody", Password: "secret"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, err := h.users.CreateUser(ctx, h.admin.ID, CreateUserRequest{
		Username: "picker",
		Email:    "picker@fruittrace.test",
		Password: "harvest-2024",
		Role:     "Staff",
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.RoleStaff), u.Role)

	_, err = h.users.Login(ctx, LoginUserRequest{Username: "picker", Password: "harvest-2024"})
	require.NoError(t, err)

	_, err = h.users.CreateUser(ctx, h.admin.ID, CreateUserRequest{Username: "picker", Email: "p2@fruittrace.test", Password: "xxxxxx", Role: "staff"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = h.users.CreateUser(ctx, h.admin.ID, CreateUserRequest{Username: "boss", Email: "boss@fruittrace.test", Password: "xxxxxx", Role: "owner"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.users.CreateUser(ctx, h.admin.ID, CreateUserRequest{Username: "bad", Email: "not-an-email", Password: "xxxxxx", Role: "staff"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdminEmails(t *testing.T) {
	h := newHarness(t)
	emails, err := h.users.AdminEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin@fruittrace.test"}, emails)
}

func TestRefreshRotatesToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.users.Login(ctx, LoginUserRequest{Username: "staff", Password: "secret"})
	require.NoError(t, err)
	require.NotEmpty(t, login.RefreshToken)
	assert.Equal(t, int64(1), testutil.Count(t, h.db, &model.RefreshToken{}))

	next, err := h.users.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, next.RefreshToken)
	assert.Equal(t, "staff", next.User.Username)

	actor, err := middleware.ParseToken(next.Token, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, h.staff, actor)

	_, err = h.users.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized, "a spent refresh token cannot be reused")

	_, err = h.users.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), testutil.Count(t, h.db, &model.RefreshToken{}))
}

func TestRefreshRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.users.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.users.Refresh(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, h.db.Create(&model.RefreshToken{
		UserID:    h.staff.ID,
		TokenHash: hashToken("stale"),
		ExpiresAt: time.Now().Add(-time.Minute),
	}).Error)
	_, err = h.users.Refresh(ctx, "stale")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.users.Login(ctx, LoginUserRequest{Username: "admin", Password: "secret"})
	require.NoError(t, err)

	require.NoError(t, h.users.Logout(ctx, login.RefreshToken))
	assert.Equal(t, int64(0), testutil.Count(t, h.db, &model.RefreshToken{}))

	_, err = h.users.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.NoError(t, h.users.Logout(ctx, login.RefreshToken), "revoking twice is harmless")
	assert.NoError(t, h.users.Logout(ctx, ""))
}
