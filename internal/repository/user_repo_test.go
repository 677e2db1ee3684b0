package repository

import (
	"context"
	"testing"
	"time"

	"fruittrace/internal/model"
	"fruittrace/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRefreshTokenIsConsumedOnce(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	user := testutil.CreateUser(t, db, "staff", model.RoleStaff)
	ctx := context.Background()

	stale := &model.RefreshToken{UserID: user.ID, TokenHash: "stale", ExpiresAt: time.Now().Add(-time.Hour)}
	require.NoError(t, db.Create(stale).Error)

	require.NoError(t, repo.SaveRefreshToken(ctx, &model.RefreshToken{
		UserID:    user.ID,
		TokenHash: "fresh",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	assert.Equal(t, int64(1), testutil.Count(t, db, &model.RefreshToken{}), "saving drops expired tokens")

	got, err := repo.ConsumeRefreshToken(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)

	_, err = repo.ConsumeRefreshToken(ctx, "fresh")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
