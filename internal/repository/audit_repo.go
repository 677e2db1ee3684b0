package repository

import (
	"context"

	"fruittrace/internal/model"

	"gorm.io/gorm"
)

// AuditFilter narrows an audit listing. Zero values match everything.
type AuditFilter struct {
	Action   string
	EntityID string
}

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter AuditFilter, page, limit int) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Omit("User").Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter, page, limit int) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	scope := func(db *gorm.DB) *gorm.DB {
		if filter.Action != "" {
			db = db.Where("action = ?", filter.Action)
		}
		if filter.EntityID != "" {
			db = db.Where("entity_id = ?", filter.EntityID)
		}
		return db
	}

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.AuditLog{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Scopes(scope).Preload("User").Order("created_at desc").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
