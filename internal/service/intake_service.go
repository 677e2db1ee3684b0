package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"fruittrace/internal/blob"
	"fruittrace/internal/logging"
	"fruittrace/internal/metrics"
	"fruittrace/internal/model"
	"fruittrace/internal/notify"
	"fruittrace/internal/payload"
	"fruittrace/internal/repository"

	"github.com/google/uuid"
)

// MaxUpdateMedia caps the number of files attached to one update.
const MaxUpdateMedia = 5

// Submit outcomes
const (
	SubmitApplied = "applied"
	SubmitPending = "pending"
)

// Upload is one media file attached to a submission.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Submission is a proposed product mutation as it arrives from a form.
type Submission struct {
	Kind      model.RequestKind
	ProductID *uuid.UUID
	Fields    map[string]string
	Media     []Upload
}

type SubmitResult struct {
	Status    string     `json:"status"` // applied, pending
	RequestID uuid.UUID  `json:"request_id"`
	ProductID *uuid.UUID `json:"product_id"`
}

type IntakeService interface {
	// Submit validates a submission and either applies it (admin) or files it for review (staff).
	Submit(ctx context.Context, actor model.Actor, sub Submission) (SubmitResult, error)
}

type route func(ctx context.Context, actor model.Actor, p payload.Payload, productID *uuid.UUID) (SubmitResult, error)

type intakeService struct {
	txManager    repository.TransactionManager
	approvalRepo repository.ApprovalRepository
	catalogRepo  repository.CatalogRepository
	auditRepo    repository.AuditRepository
	review       ReviewService
	store        blob.Store
	publisher    notify.Publisher
	metrics      *metrics.Metrics
	routes       map[model.Role]route
}

func NewIntakeService(
	txManager repository.TransactionManager,
	approvalRepo repository.ApprovalRepository,
	catalogRepo repository.CatalogRepository,
	auditRepo repository.AuditRepository,
	review ReviewService,
	store blob.Store,
	publisher notify.Publisher,
	m *metrics.Metrics,
) IntakeService {
	s := &intakeService{
		txManager:    txManager,
		approvalRepo: approvalRepo,
		catalogRepo:  catalogRepo,
		auditRepo:    auditRepo,
		review:       review,
		store:        store,
		publisher:    publisher,
		metrics:      m,
	}
	s.routes = map[model.Role]route{
		model.RoleAdmin: s.applyDirect,
		model.RoleStaff: s.fileForReview,
	}
	return s
}

func (s *intakeService) Submit(ctx context.Context, actor model.Actor, sub Submission) (SubmitResult, error) {
	result, err := s.submit(ctx, actor, sub)
	s.metrics.ObserveSubmission(string(actor.Role), string(sub.Kind), err)
	return result, err
}

func (s *intakeService) submit(ctx context.Context, actor model.Actor, sub Submission) (SubmitResult, error) {
	next, ok := s.routes[actor.Role]
	if !ok {
		return SubmitResult{}, fmt.Errorf("%w: role %q cannot submit product changes", ErrForbidden, actor.Role)
	}

	fields, err := s.validate(ctx, sub)
	if err != nil {
		return SubmitResult{}, err
	}

	keys, err := s.storeMedia(ctx, sub, &fields)
	if err != nil {
		return SubmitResult{}, err
	}

	var p payload.Payload
	switch sub.Kind {
	case model.RequestCreate:
		p = payload.CreatePayload{Fields: fields}
	case model.RequestUpdate:
		p = payload.UpdatePayload{Fields: fields}
	default:
		p = payload.DeletePayload{ProductID: *sub.ProductID}
	}

	result, err := next(ctx, actor, p, sub.ProductID)
	if err != nil {
		s.discardMedia(keys)
		return SubmitResult{}, err
	}
	return result, nil
}

// validate checks everything that can be checked before any byte is written.
func (s *intakeService) validate(ctx context.Context, sub Submission) (payload.ProductFields, error) {
	if !sub.Kind.Valid() {
		return payload.ProductFields{}, validationf("unknown request type %q", sub.Kind)
	}
	if sub.Kind != model.RequestCreate && sub.ProductID == nil {
		return payload.ProductFields{}, validationf("product id is required for %s", sub.Kind)
	}
	if sub.Kind == model.RequestDelete {
		return payload.ProductFields{}, nil
	}

	fields, err := payload.ParseForm(sub.Fields)
	if err != nil {
		return payload.ProductFields{}, validationf("%v", err)
	}
	if err := fields.Check(sub.Kind); err != nil {
		return payload.ProductFields{}, validationf("%v", err)
	}

	if sub.Kind == model.RequestUpdate {
		if fields.Empty() && len(sub.Media) == 0 {
			return payload.ProductFields{}, validationf("No fields provided to update")
		}
		if len(sub.Media) > MaxUpdateMedia {
			return payload.ProductFields{}, validationf("at most %d media files per update, got %d", MaxUpdateMedia, len(sub.Media))
		}
	}

	if fields.FarmID != nil {
		ok, err := s.catalogRepo.FarmExists(ctx, *fields.FarmID)
		if err != nil {
			return payload.ProductFields{}, storageErr("check farm", err)
		}
		if !ok {
			return payload.ProductFields{}, validationf("farm %s does not exist", fields.FarmID)
		}
	}
	if fields.CertID != nil {
		ok, err := s.catalogRepo.CertificationExists(ctx, *fields.CertID)
		if err != nil {
			return payload.ProductFields{}, storageErr("check certification", err)
		}
		if !ok {
			return payload.ProductFields{}, validationf("certification %s does not exist", fields.CertID)
		}
	}
	return fields, nil
}

// storeMedia writes uploads and records their references in fields.
// A create keeps its first upload as the primary image.
func (s *intakeService) storeMedia(ctx context.Context, sub Submission, fields *payload.ProductFields) ([]string, error) {
	if len(sub.Media) == 0 || sub.Kind == model.RequestDelete {
		return nil, nil
	}

	var keys []string
	now := time.Now()
	for i, up := range sub.Media {
		key := blob.MediaKey("products", up.Filename, now)
		info, err := s.store.Put(ctx, key, up.Body, blob.PutOptions{ContentType: up.ContentType})
		if err != nil {
			s.discardMedia(keys)
			return nil, fmt.Errorf("store media %q: %w: %w", up.Filename, ErrStorage, err)
		}
		keys = append(keys, info.Key)

		ref := info.Ref
		if sub.Kind == model.RequestCreate && i == 0 && fields.Image == nil {
			fields.Image = &ref
			continue
		}
		fields.Images = append(fields.Images, ref)
	}
	return keys, nil
}

func (s *intakeService) discardMedia(keys []string) {
	for _, key := range keys {
		if err := s.store.Delete(context.Background(), key); err != nil {
			logging.Error("discard media failed", err, map[string]interface{}{"key": key})
		}
	}
}

func (s *intakeService) applyDirect(ctx context.Context, actor model.Actor, p payload.Payload, productID *uuid.UUID) (SubmitResult, error) {
	res, err := s.review.ApplyDirect(ctx, actor.ID, p, productID)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Status: SubmitApplied, RequestID: res.RequestID, ProductID: res.ProductID}, nil
}

func (s *intakeService) fileForReview(ctx context.Context, actor model.Actor, p payload.Payload, productID *uuid.UUID) (SubmitResult, error) {
	raw, err := payload.Encode(p)
	if err != nil {
		return SubmitResult{}, validationf("%v", err)
	}

	req := &model.ApprovalRequest{
		ProductID:   productID,
		RequestType: p.Kind(),
		RequestedBy: actor.ID,
		Status:      model.ApprovalPending,
		Payload:     raw,
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.approvalRepo.Create(txCtx, req); err != nil {
			return storageErr("create approval request", err)
		}
		entry := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionCreateApprovalRequest,
			EntityID:   req.ID.String(),
			EntityName: string(req.RequestType),
			Details:    string(raw),
		}
		if err := s.auditRepo.Log(txCtx, entry); err != nil {
			return storageErr("write audit log", err)
		}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	if s.publisher != nil {
		s.publisher.Publish(notify.Event{
			Type:      notify.EventRequestSubmitted,
			RequestID: req.ID,
			Kind:      req.RequestType,
			ProductID: productID,
			Actor:     actor.ID,
			Status:    model.ApprovalPending,
		})
	}
	return SubmitResult{Status: SubmitPending, RequestID: req.ID, ProductID: productID}, nil
}
