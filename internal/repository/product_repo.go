package repository

import (
	"context"
	"strings"

	"fruittrace/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PublicProductRow is the denormalized row behind a scanned code.
type PublicProductRow struct {
	ID                  uuid.UUID
	Name                string
	Description         *string
	Price               decimal.Decimal
	Status              string
	HarvestDate         *datatypes.Date
	MediaURL            *string
	FarmName            string
	FarmAddress         string
	CertificationName   *string
	CertificationIssuer *string
	IssueDate           *datatypes.Date
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	// Patch updates only the given columns and returns the number of rows matched.
	Patch(ctx context.Context, id uuid.UUID, columns map[string]interface{}) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, page, limit int, search, status string) ([]model.Product, int64, error)
	NamesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
	AddImages(ctx context.Context, images []model.ProductImage) error
	AddCertification(ctx context.Context, pc *model.ProductCertification) error
	FindPublic(ctx context.Context, id uuid.UUID) (*PublicProductRow, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Omit("Farm", "Images", "Certifications").Create(product).Error
}

func (r *productRepository) Patch(ctx context.Context, id uuid.UUID, columns map[string]interface{}) (int64, error) {
	if len(columns) == 0 {
		ok, err := r.Exists(ctx, id)
		if err != nil || !ok {
			return 0, err
		}
		return 1, nil
	}
	res := GetDB(ctx, r.db).Model(&model.Product{}).Where("id = ?", id).Updates(columns)
	return res.RowsAffected, res.Error
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Product{})
	return res.RowsAffected, res.Error
}

func (r *productRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Product{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).
		Preload("Farm").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Certifications.Certification").
		First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) List(ctx context.Context, page, limit int, search, status string) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Product{})
	if search != "" {
		db = db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	if status != "" {
		db = db.Where("status = ?", status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Farm").Order("created_at desc").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (r *productRepository) NamesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var rows []struct {
		ID   uuid.UUID
		Name string
	}
	if err := GetDB(ctx, r.db).Model(&model.Product{}).Select("id, name").Where("id IN ?", ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

func (r *productRepository) AddImages(ctx context.Context, images []model.ProductImage) error {
	if len(images) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&images).Error
}

func (r *productRepository) AddCertification(ctx context.Context, pc *model.ProductCertification) error {
	return GetDB(ctx, r.db).Omit("Certification").Create(pc).Error
}

func (r *productRepository) FindPublic(ctx context.Context, id uuid.UUID) (*PublicProductRow, error) {
	var row PublicProductRow
	res := GetDB(ctx, r.db).Table("products AS p").
		Select(`p.id, p.name, p.description, p.price, p.status, p.harvest_date, p.media_url,
			f.name AS farm_name, f.address AS farm_address,
			c.name AS certification_name, c.issuer AS certification_issuer, pc.issue_date`).
		Joins("JOIN farms AS f ON f.id = p.farm_id").
		Joins("LEFT JOIN product_certifications AS pc ON pc.product_id = p.id").
		Joins("LEFT JOIN certifications AS c ON c.id = pc.certification_id").
		Where("p.id = ? AND p.status = ?", id, model.ProductStatusInStock).
		Order("pc.created_at ASC").
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}
