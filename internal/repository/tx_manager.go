package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// TxOption configures a TransactionManager.
type TxOption func(*transactionManager)

// WithLockTimeout bounds how long a statement inside the transaction waits on a row lock.
// Only PostgreSQL honours it.
func WithLockTimeout(d time.Duration) TxOption {
	return func(t *transactionManager) {
		t.lockTimeout = d
	}
}

type transactionManager struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewTransactionManager(db *gorm.DB, opts ...TxOption) TransactionManager {
	t := &transactionManager{db: db}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.lockTimeout > 0 && tx.Dialector.Name() == "postgres" {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}
		txCtx := context.WithValue(ctx, txKey, tx)
		return fn(txCtx)
	})
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
