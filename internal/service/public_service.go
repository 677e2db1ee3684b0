package service

import (
	"context"
	"errors"
	"time"

	"fruittrace/internal/metrics"
	"fruittrace/internal/payload"
	"fruittrace/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PublicProductView is what a consumer sees after scanning a product code.
type PublicProductView struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Description         *string         `json:"description"`
	Price               decimal.Decimal `json:"price"`
	Status              string          `json:"status"`
	HarvestDate         *string         `json:"harvest_date"`
	MediaURL            *string         `json:"media_url"`
	FarmName            string          `json:"farm_name"`
	FarmAddress         string          `json:"farm_address"`
	CertificationName   *string         `json:"certification_name"`
	CertificationIssuer *string         `json:"certification_issuer"`
	IssueDate           *string         `json:"issue_date"`
}

type PublicService interface {
	// Resolve returns ErrNotFound alike for unknown and out-of-stock products.
	Resolve(ctx context.Context, productID uuid.UUID) (PublicProductView, error)
}

type publicService struct {
	productRepo repository.ProductRepository
	metrics     *metrics.Metrics
}

func NewPublicService(productRepo repository.ProductRepository, m *metrics.Metrics) PublicService {
	return &publicService{productRepo: productRepo, metrics: m}
}

func (s *publicService) Resolve(ctx context.Context, productID uuid.UUID) (PublicProductView, error) {
	row, err := s.productRepo.FindPublic(ctx, productID)
	if err != nil {
		err = storageErr("resolve product", err)
		if errors.Is(err, ErrNotFound) {
			s.metrics.ObservePublicLookup(false)
		}
		return PublicProductView{}, err
	}
	s.metrics.ObservePublicLookup(true)

	return PublicProductView{
		ID:                  row.ID.String(),
		Name:                row.Name,
		Description:         row.Description,
		Price:               row.Price,
		Status:              row.Status,
		HarvestDate:         formatDate(row.HarvestDate),
		MediaURL:            row.MediaURL,
		FarmName:            row.FarmName,
		FarmAddress:         row.FarmAddress,
		CertificationName:   row.CertificationName,
		CertificationIssuer: row.CertificationIssuer,
		IssueDate:           formatDate(row.IssueDate),
	}, nil
}

func formatDate(d *datatypes.Date) *string {
	if d == nil {
		return nil
	}
	s := time.Time(*d).Format(payload.DateLayout)
	return &s
}
