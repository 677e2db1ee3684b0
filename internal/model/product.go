package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProductStatus values as stored in products.status
const (
	ProductStatusInStock    = "instock"
	ProductStatusOutOfStock = "outstock"
)

// MediaTypeImage is the default media type for product images
const MediaTypeImage = "image"

// ValidProductStatus reports whether s is a storable product status.
func ValidProductStatus(s string) bool {
	return s == ProductStatusInStock || s == ProductStatusOutOfStock
}

// Product is a traceable catalog item owned by a farm.
// Rows are written only through the approval flow.
type Product struct {
	ID             uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	FarmID         uuid.UUID              `gorm:"type:uuid;not null;index" json:"farm_id"`
	Farm           *Farm                  `gorm:"foreignKey:FarmID;constraint:OnDelete:RESTRICT" json:"farm,omitempty"`
	Name           string                 `gorm:"type:varchar(255);not null;index" json:"name"`
	Description    *string                `gorm:"type:text" json:"description"`
	Price          decimal.Decimal        `gorm:"type:decimal(12,2);not null" json:"price"`
	PlantDate      *datatypes.Date        `json:"plant_date"`
	HarvestDate    *datatypes.Date        `json:"harvest_date"`
	Status         string                 `gorm:"type:varchar(20);not null;default:'instock';index" json:"status"` // instock, outstock
	MediaURL       *string                `gorm:"type:text" json:"media_url"`                                      // primary display media
	CreatedBy      *uuid.UUID             `gorm:"type:uuid;index" json:"created_by"`
	Images         []ProductImage         `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
	Certifications []ProductCertification `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"certifications,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProductImage is an additional media reference attached to a product
type ProductImage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	ImageURL  string    `gorm:"type:text;not null" json:"image_url"`
	MediaType string    `gorm:"type:varchar(20);not null;default:'image'" json:"media_type"`
	CreatedAt time.Time `json:"created_at"`
}

func (i *ProductImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.MediaType == "" {
		i.MediaType = MediaTypeImage
	}
	return nil
}

// ProductCertification links a product to a certification with its validity window
type ProductCertification struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	CertificationID uuid.UUID       `gorm:"type:uuid;not null;index" json:"certification_id"`
	Certification   *Certification  `gorm:"foreignKey:CertificationID;constraint:OnDelete:RESTRICT" json:"certification,omitempty"`
	IssueDate       *datatypes.Date `json:"issue_date"`
	ExpireDate      *datatypes.Date `json:"expire_date"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (pc *ProductCertification) BeforeCreate(tx *gorm.DB) error {
	if pc.ID == uuid.Nil {
		pc.ID = uuid.New()
	}
	return nil
}
