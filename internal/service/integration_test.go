//go:build integration

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fruittrace/internal/blob"
	"fruittrace/internal/config"
	"fruittrace/internal/database"
	"fruittrace/internal/model"
	"fruittrace/internal/repository"
	"fruittrace/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm/clause"
)

func newPostgresHarness(t *testing.T, lockTimeout time.Duration) *harness {
	t.Helper()
	ctx := context.Background()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fruittrace"),
		postgres.WithUsername("fruittrace"),
		postgres.WithPassword("fruittrace"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pg) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.NewConnection(config.DBConfig{Driver: "postgres", DSN: dsn, MaxOpenConns: 16})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	h := &harness{
		db:           db,
		tx:           repository.NewTransactionManager(db, repository.WithLockTimeout(lockTimeout)),
		approvalRepo: repository.NewApprovalRepository(db),
		productRepo:  repository.NewProductRepository(db),
		catalogRepo:  repository.NewCatalogRepository(db),
		auditRepo:    repository.NewAuditRepository(db),
		userRepo:     repository.NewUserRepository(db),
		store:        blob.NewMemory(),
		events:       &recordingPublisher{},
	}
	h.wire()

	admin := testutil.CreateUser(t, db, "admin", model.RoleAdmin)
	staff := testutil.CreateUser(t, db, "staff", model.RoleStaff)
	h.admin = model.Actor{ID: admin.ID, Role: model.RoleAdmin}
	h.staff = model.Actor{ID: staff.ID, Role: model.RoleStaff}
	h.farm = testutil.CreateFarm(t, db, "Green Valley")
	h.cert = testutil.CreateCertification(t, db, "VietGAP")
	return h
}

func TestIntegration_ConcurrentReviewsDecideOnce(t *testing.T) {
	h := newPostgresHarness(t, 5*time.Second)
	reqID := h.submitPendingCreate(t, "Dragon fruit")

	const reviewers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := model.ApprovalApproved
			if i%2 == 1 {
				decision = model.ApprovalRejected
			}
			_, err := h.review.Review(context.Background(), reqID, decision, h.admin.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, reviewers-1, conflicts)

	req := h.request(t, reqID)
	products := testutil.Count(t, h.db, &model.Product{})
	if req.Status == model.ApprovalApproved {
		assert.Equal(t, int64(1), products)
	} else {
		assert.Equal(t, int64(0), products)
	}
}

func TestIntegration_LockTimeoutRollsBack(t *testing.T) {
	h := newPostgresHarness(t, 200*time.Millisecond)
	reqID := h.submitPendingCreate(t, "Mango")

	holder := h.db.Begin()
	require.NoError(t, holder.Error)
	var locked model.ApprovalRequest
	require.NoError(t, holder.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, "id = ?", reqID).Error)

	_, err := h.review.Review(context.Background(), reqID, model.ApprovalApproved, h.admin.ID, nil)
	require.NoError(t, holder.Rollback().Error)

	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, "lock_timeout", StorageCause(err))
	assert.Equal(t, model.ApprovalPending, h.request(t, reqID).Status)
	assert.Equal(t, int64(0), testutil.Count(t, h.db, &model.Product{}))

	_, err = h.review.Review(context.Background(), reqID, model.ApprovalApproved, h.admin.ID, nil)
	assert.NoError(t, err)
}
