package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fruittrace/internal/logging"
	"fruittrace/internal/metrics"
	"fruittrace/internal/model"
	"fruittrace/internal/notify"
	"fruittrace/internal/payload"
	"fruittrace/internal/repository"

	"github.com/google/uuid"
)

// ReviewResult is the outcome of a review or a direct apply.
type ReviewResult struct {
	RequestID uuid.UUID  `json:"request_id"`
	Status    string     `json:"status"`
	ProductID *uuid.UUID `json:"product_id"`
}

// ReviewService is the only writer of catalog rows. Each call runs in one
// transaction spanning the catalog and the approval ledger.
type ReviewService interface {
	// Review decides a pending request. Deciding a request twice fails with ErrConflict.
	Review(ctx context.Context, requestID uuid.UUID, decision string, reviewer uuid.UUID, notes *string) (ReviewResult, error)
	// ApplyDirect applies an admin-authored change and records it as an approved request.
	ApplyDirect(ctx context.Context, actor uuid.UUID, p payload.Payload, productID *uuid.UUID) (ReviewResult, error)
}

type reviewService struct {
	txManager    repository.TransactionManager
	approvalRepo repository.ApprovalRepository
	productRepo  repository.ProductRepository
	auditRepo    repository.AuditRepository
	publisher    notify.Publisher
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewReviewService(
	txManager repository.TransactionManager,
	approvalRepo repository.ApprovalRepository,
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
	publisher notify.Publisher,
	m *metrics.Metrics,
) ReviewService {
	return &reviewService{
		txManager:    txManager,
		approvalRepo: approvalRepo,
		productRepo:  productRepo,
		auditRepo:    auditRepo,
		publisher:    publisher,
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *reviewService) Review(ctx context.Context, requestID uuid.UUID, decision string, reviewer uuid.UUID, notes *string) (ReviewResult, error) {
	if decision != model.ApprovalApproved && decision != model.ApprovalRejected {
		return ReviewResult{}, validationf("decision must be %q or %q, got %q", model.ApprovalApproved, model.ApprovalRejected, decision)
	}

	var (
		result ReviewResult
		kind   model.RequestKind
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.approvalRepo.FindByIDForUpdate(txCtx, requestID)
		if err != nil {
			return storageErr("load approval request", err)
		}
		kind = req.RequestType
		if req.Terminal() {
			return fmt.Errorf("%w: approval request is already %s", ErrConflict, req.Status)
		}

		p, err := payload.Decode(req.RequestType, req.Payload)
		if err != nil {
			return fmt.Errorf("request %s: %w: %w", req.ID, ErrMalformedPayload, err)
		}

		productID := req.ProductID
		if decision == model.ApprovalApproved {
			if productID, err = s.apply(txCtx, p, req.ProductID, req.RequestedBy); err != nil {
				return err
			}
		}

		mark := repository.ReviewMark{
			Status:     decision,
			ReviewedBy: reviewer,
			Notes:      notes,
			ReviewedAt: s.now(),
		}
		if req.RequestType == model.RequestCreate && decision == model.ApprovalApproved {
			mark.ProductID = productID
		}
		n, err := s.approvalRepo.MarkReviewed(txCtx, req.ID, mark)
		if err != nil {
			return storageErr("mark approval request reviewed", err)
		}
		if n != 1 {
			return fmt.Errorf("%w: approval request %s was decided concurrently", ErrConflict, req.ID)
		}

		action := model.ActionApproveRequest
		if decision == model.ApprovalRejected {
			action = model.ActionRejectRequest
		}
		if err := s.audit(txCtx, reviewer, action, req.ID, req.RequestType, productID, notes); err != nil {
			return err
		}

		result = ReviewResult{RequestID: req.ID, Status: decision, ProductID: productID}
		return nil
	})
	s.metrics.ObserveReview(decision, string(kind), err)
	if err != nil {
		s.logFailure("review failed", err, requestID)
		return ReviewResult{}, err
	}

	s.publish(notify.Event{
		Type:      notify.EventRequestReviewed,
		RequestID: result.RequestID,
		Kind:      kind,
		ProductID: result.ProductID,
		Actor:     reviewer,
		Status:    result.Status,
	})
	return result, nil
}

func (s *reviewService) ApplyDirect(ctx context.Context, actor uuid.UUID, p payload.Payload, productID *uuid.UUID) (ReviewResult, error) {
	raw, err := payload.Encode(p)
	if err != nil {
		return ReviewResult{}, validationf("%v", err)
	}

	var result ReviewResult
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		appliedID, err := s.apply(txCtx, p, productID, actor)
		if err != nil {
			return err
		}

		now := s.now()
		notes := model.DirectActionNotes
		req := &model.ApprovalRequest{
			ProductID:   appliedID,
			RequestType: p.Kind(),
			RequestedBy: actor,
			ReviewedBy:  &actor,
			Status:      model.ApprovalApproved,
			Notes:       &notes,
			Payload:     raw,
			ReviewedAt:  &now,
		}
		if err := s.approvalRepo.Create(txCtx, req); err != nil {
			return storageErr("record direct action", err)
		}
		if err := s.audit(txCtx, actor, model.ActionDirectApply, req.ID, req.RequestType, appliedID, &notes); err != nil {
			return err
		}

		result = ReviewResult{RequestID: req.ID, Status: model.ApprovalApproved, ProductID: appliedID}
		return nil
	})
	s.metrics.ObserveReview("direct", string(p.Kind()), err)
	if err != nil {
		s.logFailure("direct apply failed", err, uuid.Nil)
		return ReviewResult{}, err
	}

	s.publish(notify.Event{
		Type:      notify.EventDirectApplied,
		RequestID: result.RequestID,
		Kind:      p.Kind(),
		ProductID: result.ProductID,
		Actor:     actor,
		Status:    result.Status,
	})
	return result, nil
}

// apply performs the catalog mutation for an approved payload and returns the affected product id.
func (s *reviewService) apply(ctx context.Context, p payload.Payload, target *uuid.UUID, requester uuid.UUID) (*uuid.UUID, error) {
	switch v := p.(type) {
	case payload.CreatePayload:
		product := v.Fields.Product(requester)
		if err := s.productRepo.Create(ctx, product); err != nil {
			return nil, storageErr("insert product", err)
		}
		if err := s.attach(ctx, product.ID, v.Fields); err != nil {
			return nil, err
		}
		return &product.ID, nil

	case payload.UpdatePayload:
		if target == nil {
			return nil, fmt.Errorf("%w: update request has no target product", ErrMalformedPayload)
		}
		columns := v.Fields.Columns()
		if _, ok := columns["media_url"]; !ok && len(v.Fields.Images) > 0 {
			columns["media_url"] = v.Fields.Images[0]
		}
		n, err := s.productRepo.Patch(ctx, *target, columns)
		if err != nil {
			return nil, storageErr("update product", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: product %s no longer exists", ErrNotFound, target)
		}
		if err := s.attach(ctx, *target, v.Fields); err != nil {
			return nil, err
		}
		return target, nil

	case payload.DeletePayload:
		id := target
		if v.ProductID != uuid.Nil {
			if id != nil && *id != v.ProductID {
				return nil, fmt.Errorf("%w: delete payload targets %s but request targets %s", ErrMalformedPayload, v.ProductID, id)
			}
			id = &v.ProductID
		}
		if id == nil {
			return nil, fmt.Errorf("%w: delete request has no target product", ErrMalformedPayload)
		}
		n, err := s.productRepo.Delete(ctx, *id)
		if err != nil {
			return nil, storageErr("delete product", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: product %s no longer exists", ErrNotFound, id)
		}
		return id, nil

	default:
		return nil, fmt.Errorf("%w: unsupported payload %T", ErrMalformedPayload, p)
	}
}

// attach adds images and a certification. It never removes existing ones.
func (s *reviewService) attach(ctx context.Context, productID uuid.UUID, f payload.ProductFields) error {
	var images []model.ProductImage
	if f.Image != nil {
		images = append(images, model.ProductImage{ProductID: productID, ImageURL: *f.Image})
	}
	for _, url := range f.Images {
		images = append(images, model.ProductImage{ProductID: productID, ImageURL: url})
	}
	if err := s.productRepo.AddImages(ctx, images); err != nil {
		return storageErr("attach product images", err)
	}

	if f.CertID != nil {
		pc := &model.ProductCertification{
			ProductID:       productID,
			CertificationID: *f.CertID,
			IssueDate:       f.IssueDate,
			ExpireDate:      f.ExpireDate,
		}
		if err := s.productRepo.AddCertification(ctx, pc); err != nil {
			return storageErr("attach product certification", err)
		}
	}
	return nil
}

func (s *reviewService) audit(ctx context.Context, actor uuid.UUID, action string, requestID uuid.UUID, kind model.RequestKind, productID *uuid.UUID, notes *string) error {
	details := map[string]interface{}{"request_type": kind}
	if productID != nil {
		details["product_id"] = productID.String()
	}
	if notes != nil {
		details["notes"] = *notes
	}
	b, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     &actor,
		Action:     action,
		EntityID:   requestID.String(),
		EntityName: string(kind),
		Details:    string(b),
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return storageErr("write audit log", err)
	}
	return nil
}

func (s *reviewService) publish(e notify.Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}

func (s *reviewService) logFailure(msg string, err error, requestID uuid.UUID) {
	if !errors.Is(err, ErrStorage) {
		return
	}
	fields := map[string]interface{}{"cause": StorageCause(err)}
	if requestID != uuid.Nil {
		fields["request_id"] = requestID.String()
	}
	logging.Error(msg, err, fields)
}
