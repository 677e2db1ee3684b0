package repository

import (
	"context"
	"time"

	"fruittrace/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApprovalFilter narrows a ledger listing. Zero values match everything.
type ApprovalFilter struct {
	Status      string
	RequestType model.RequestKind
	RequestedBy *uuid.UUID
}

// ReviewMark is the terminal state written onto a pending request.
type ReviewMark struct {
	Status     string
	ReviewedBy uuid.UUID
	Notes      *string
	ProductID  *uuid.UUID // bound only when set
	ReviewedAt time.Time
}

type ApprovalRepository interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	List(ctx context.Context, filter ApprovalFilter, page, limit int) ([]model.ApprovalRequest, int64, error)
	// MarkReviewed moves a request out of pending and returns the number of rows it changed.
	// A request that is no longer pending is left alone and yields 0.
	MarkReviewed(ctx context.Context, id uuid.UUID, mark ReviewMark) (int64, error)
	CountByStatus(ctx context.Context, requestedBy *uuid.UUID) (map[string]int64, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, req *model.ApprovalRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := GetDB(ctx, r.db).Preload("Requester").First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) scoped(db *gorm.DB, filter ApprovalFilter) *gorm.DB {
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.RequestType != "" {
		db = db.Where("request_type = ?", filter.RequestType)
	}
	if filter.RequestedBy != nil {
		db = db.Where("requested_by = ?", *filter.RequestedBy)
	}
	return db
}

func (r *approvalRepository) List(ctx context.Context, filter ApprovalFilter, page, limit int) ([]model.ApprovalRequest, int64, error) {
	var requests []model.ApprovalRequest
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.scoped(db.Model(&model.ApprovalRequest{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := r.scoped(db.Preload("Requester"), filter).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *approvalRepository) MarkReviewed(ctx context.Context, id uuid.UUID, mark ReviewMark) (int64, error) {
	updates := map[string]interface{}{
		"status":      mark.Status,
		"reviewed_by": mark.ReviewedBy,
		"notes":       mark.Notes,
		"reviewed_at": mark.ReviewedAt,
	}
	if mark.ProductID != nil {
		updates["product_id"] = *mark.ProductID
	}
	res := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ?", id, model.ApprovalPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *approvalRepository) CountByStatus(ctx context.Context, requestedBy *uuid.UUID) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	db := r.scoped(GetDB(ctx, r.db).Model(&model.ApprovalRequest{}), ApprovalFilter{RequestedBy: requestedBy})
	if err := db.Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := map[string]int64{
		model.ApprovalPending:  0,
		model.ApprovalApproved: 0,
		model.ApprovalRejected: 0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
