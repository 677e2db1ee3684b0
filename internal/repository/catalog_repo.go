package repository

import (
	"context"

	"fruittrace/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogRepository covers the reference data products point at: farms and certifications.
type CatalogRepository interface {
	CreateFarm(ctx context.Context, farm *model.Farm) error
	ListFarms(ctx context.Context) ([]model.Farm, error)
	FarmExists(ctx context.Context, id uuid.UUID) (bool, error)
	CreateCertification(ctx context.Context, cert *model.Certification) error
	ListCertifications(ctx context.Context) ([]model.Certification, error)
	CertificationExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) CreateFarm(ctx context.Context, farm *model.Farm) error {
	return GetDB(ctx, r.db).Create(farm).Error
}

func (r *catalogRepository) ListFarms(ctx context.Context) ([]model.Farm, error) {
	var farms []model.Farm
	if err := GetDB(ctx, r.db).Order("name ASC").Find(&farms).Error; err != nil {
		return nil, err
	}
	return farms, nil
}

func (r *catalogRepository) FarmExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Farm{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *catalogRepository) CreateCertification(ctx context.Context, cert *model.Certification) error {
	return GetDB(ctx, r.db).Create(cert).Error
}

func (r *catalogRepository) ListCertifications(ctx context.Context) ([]model.Certification, error) {
	var certs []model.Certification
	if err := GetDB(ctx, r.db).Order("name ASC").Find(&certs).Error; err != nil {
		return nil, err
	}
	return certs, nil
}

func (r *catalogRepository) CertificationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Certification{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
