package service

import (
	"context"
	"encoding/json"
	"strings"

	"fruittrace/internal/model"
	"fruittrace/internal/repository"

	"github.com/google/uuid"
)

type CreateFarmRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Contact string `json:"contact"`
}

type CreateCertificationRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Issuer      string `json:"issuer"`
}

// CatalogService serves reference data and read access to products.
// Product writes go through IntakeService.
type CatalogService interface {
	ListFarms(ctx context.Context) ([]model.Farm, error)
	CreateFarm(ctx context.Context, actor uuid.UUID, req CreateFarmRequest) (*model.Farm, error)
	ListCertifications(ctx context.Context) ([]model.Certification, error)
	CreateCertification(ctx context.Context, actor uuid.UUID, req CreateCertificationRequest) (*model.Certification, error)
	ListProducts(ctx context.Context, page, limit int, search, status string) ([]model.Product, int64, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
}

type catalogService struct {
	txManager   repository.TransactionManager
	catalogRepo repository.CatalogRepository
	productRepo repository.ProductRepository
	auditRepo   repository.AuditRepository
}

func NewCatalogService(
	txManager repository.TransactionManager,
	catalogRepo repository.CatalogRepository,
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
) CatalogService {
	return &catalogService{
		txManager:   txManager,
		catalogRepo: catalogRepo,
		productRepo: productRepo,
		auditRepo:   auditRepo,
	}
}

func (s *catalogService) ListFarms(ctx context.Context) ([]model.Farm, error) {
	farms, err := s.catalogRepo.ListFarms(ctx)
	if err != nil {
		return nil, storageErr("list farms", err)
	}
	return farms, nil
}

func (s *catalogService) CreateFarm(ctx context.Context, actor uuid.UUID, req CreateFarmRequest) (*model.Farm, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationf("farm name is required")
	}
	farm := &model.Farm{
		Name:    name,
		Address: strings.TrimSpace(req.Address),
		Owner:   strings.TrimSpace(req.Owner),
		Contact: strings.TrimSpace(req.Contact),
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.catalogRepo.CreateFarm(txCtx, farm); err != nil {
			return storageErr("create farm", err)
		}
		return s.audit(txCtx, actor, model.ActionCreateFarm, farm.ID, farm.Name, farm)
	})
	if err != nil {
		return nil, err
	}
	return farm, nil
}

func (s *catalogService) ListCertifications(ctx context.Context) ([]model.Certification, error) {
	certs, err := s.catalogRepo.ListCertifications(ctx)
	if err != nil {
		return nil, storageErr("list certifications", err)
	}
	return certs, nil
}

func (s *catalogService) CreateCertification(ctx context.Context, actor uuid.UUID, req CreateCertificationRequest) (*model.Certification, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationf("certification name is required")
	}
	cert := &model.Certification{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Issuer:      strings.TrimSpace(req.Issuer),
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.catalogRepo.CreateCertification(txCtx, cert); err != nil {
			return storageErr("create certification", err)
		}
		return s.audit(txCtx, actor, model.ActionCreateCertification, cert.ID, cert.Name, cert)
	})
	if err != nil {
		return nil, err
	}
	return cert, nil
}

func (s *catalogService) ListProducts(ctx context.Context, page, limit int, search, status string) ([]model.Product, int64, error) {
	if status != "" && !model.ValidProductStatus(status) {
		return nil, 0, validationf("unknown product status %q", status)
	}
	products, total, err := s.productRepo.List(ctx, page, limit, strings.TrimSpace(search), status)
	if err != nil {
		return nil, 0, storageErr("list products", err)
	}
	return products, total, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, storageErr("load product", err)
	}
	return product, nil
}

func (s *catalogService) audit(ctx context.Context, actor uuid.UUID, action string, id uuid.UUID, name string, v interface{}) error {
	details, _ := json.Marshal(v)
	entry := &model.AuditLog{
		Action:     action,
		EntityID:   id.String(),
		EntityName: name,
		Details:    string(details),
	}
	if actor != uuid.Nil {
		entry.UserID = &actor
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return storageErr("write audit log", err)
	}
	return nil
}
