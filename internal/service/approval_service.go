package service

import (
	"context"
	"encoding/json"
	"time"

	"fruittrace/internal/model"
	"fruittrace/internal/payload"
	"fruittrace/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type ApprovalRequestResponse struct {
	ID            string                 `json:"id"`
	RequestType   string                 `json:"request_type"`
	ProductID     *string                `json:"product_id"`
	DisplayName   string                 `json:"display_name"`
	Status        string                 `json:"status"`
	RequestedBy   string                 `json:"requested_by"`
	RequesterName string                 `json:"requester_name"`
	ReviewedBy    *string                `json:"reviewed_by"`
	ReviewedAt    *string                `json:"reviewed_at"`
	Notes         *string                `json:"notes"`
	CreatedAt     string                 `json:"created_at"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}

type StatusCounts struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}

// --- Interface ---

type ApprovalService interface {
	ListPending(ctx context.Context, page, limit int) ([]ApprovalRequestResponse, int64, error)
	// ListRequests lists staff's own requests, or every request for an admin.
	ListRequests(ctx context.Context, actor model.Actor, status string, page, limit int) ([]ApprovalRequestResponse, int64, error)
	GetRequest(ctx context.Context, id uuid.UUID) (ApprovalRequestResponse, error)
	CountByStatus(ctx context.Context, actor model.Actor, mine bool) (StatusCounts, error)
}

type approvalService struct {
	approvalRepo repository.ApprovalRepository
	productRepo  repository.ProductRepository
}

func NewApprovalService(approvalRepo repository.ApprovalRepository, productRepo repository.ProductRepository) ApprovalService {
	return &approvalService{approvalRepo: approvalRepo, productRepo: productRepo}
}

// --- Implementation ---

func (s *approvalService) ListPending(ctx context.Context, page, limit int) ([]ApprovalRequestResponse, int64, error) {
	return s.list(ctx, repository.ApprovalFilter{Status: model.ApprovalPending}, page, limit)
}

func (s *approvalService) ListRequests(ctx context.Context, actor model.Actor, status string, page, limit int) ([]ApprovalRequestResponse, int64, error) {
	switch status {
	case "", model.ApprovalPending, model.ApprovalApproved, model.ApprovalRejected:
	default:
		return nil, 0, validationf("unknown status %q", status)
	}
	filter := repository.ApprovalFilter{Status: status}
	if actor.Role != model.RoleAdmin {
		filter.RequestedBy = &actor.ID
	}
	return s.list(ctx, filter, page, limit)
}

func (s *approvalService) list(ctx context.Context, filter repository.ApprovalFilter, page, limit int) ([]ApprovalRequestResponse, int64, error) {
	requests, total, err := s.approvalRepo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, storageErr("list approval requests", err)
	}

	var ids []uuid.UUID
	for _, r := range requests {
		if r.ProductID != nil {
			ids = append(ids, *r.ProductID)
		}
	}
	names, err := s.productRepo.NamesByIDs(ctx, ids)
	if err != nil {
		return nil, 0, storageErr("load product names", err)
	}

	resp := make([]ApprovalRequestResponse, 0, len(requests))
	for i := range requests {
		resp = append(resp, mapApproval(&requests[i], names, false))
	}
	return resp, total, nil
}

func (s *approvalService) GetRequest(ctx context.Context, id uuid.UUID) (ApprovalRequestResponse, error) {
	req, err := s.approvalRepo.FindByIDWithRelations(ctx, id)
	if err != nil {
		return ApprovalRequestResponse{}, storageErr("load approval request", err)
	}
	var ids []uuid.UUID
	if req.ProductID != nil {
		ids = append(ids, *req.ProductID)
	}
	names, err := s.productRepo.NamesByIDs(ctx, ids)
	if err != nil {
		return ApprovalRequestResponse{}, storageErr("load product names", err)
	}
	return mapApproval(req, names, true), nil
}

func (s *approvalService) CountByStatus(ctx context.Context, actor model.Actor, mine bool) (StatusCounts, error) {
	var requestedBy *uuid.UUID
	if mine {
		requestedBy = &actor.ID
	}
	counts, err := s.approvalRepo.CountByStatus(ctx, requestedBy)
	if err != nil {
		return StatusCounts{}, storageErr("count approval requests", err)
	}
	return StatusCounts{
		Pending:  counts[model.ApprovalPending],
		Approved: counts[model.ApprovalApproved],
		Rejected: counts[model.ApprovalRejected],
	}, nil
}

// mapApproval builds the response. The display name is the live product name
// when the request is bound to a product that still exists, else the proposed name.
func mapApproval(r *model.ApprovalRequest, names map[uuid.UUID]string, withPayload bool) ApprovalRequestResponse {
	resp := ApprovalRequestResponse{
		ID:          r.ID.String(),
		RequestType: string(r.RequestType),
		Status:      r.Status,
		RequestedBy: r.RequestedBy.String(),
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if r.Requester != nil {
		resp.RequesterName = r.Requester.Username
	}
	if r.ProductID != nil {
		pid := r.ProductID.String()
		resp.ProductID = &pid
		resp.DisplayName = names[*r.ProductID]
	}
	if r.ReviewedBy != nil {
		rb := r.ReviewedBy.String()
		resp.ReviewedBy = &rb
	}
	if r.ReviewedAt != nil {
		ra := r.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &ra
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(r.Payload, &raw); err == nil && resp.DisplayName == "" {
		if name, ok := raw["name"].(string); ok {
			resp.DisplayName = name
		}
	}
	if withPayload {
		resp.Payload = raw
		// normalized form when the stored payload still decodes
		if p, err := payload.Decode(r.RequestType, r.Payload); err == nil {
			if b, err := payload.Encode(p); err == nil {
				var normalized map[string]interface{}
				if json.Unmarshal(b, &normalized) == nil {
					resp.Payload = normalized
				}
			}
		}
	}
	return resp
}
