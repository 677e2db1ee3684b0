// Package payload holds the proposal captured by an approval request.
//
// Each request kind has its own variant. A variant is decoded once from the
// ledger row and then read through typed optional fields.
package payload

import (
	"errors"
	"fmt"
	"time"

	"fruittrace/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ErrMalformed is returned when stored or submitted data cannot be read as a payload.
var ErrMalformed = errors.New("malformed payload")

// Price limits of the products.price decimal(12,2) column
const (
	PriceScale         = 2
	PriceIntegerDigits = 10
)

var priceCeiling = decimal.New(1, PriceIntegerDigits)

// DateLayout is the wire layout for date fields.
const DateLayout = "2006-01-02"

// Payload is one of CreatePayload, UpdatePayload or DeletePayload.
type Payload interface {
	Kind() model.RequestKind
}

// ProductFields is a partial product. A nil field was not supplied.
// Empty strings never appear here: parsing drops them.
type ProductFields struct {
	Name        *string
	Price       *decimal.Decimal
	Description *string
	PlantDate   *datatypes.Date
	HarvestDate *datatypes.Date
	Status      *string
	FarmID      *uuid.UUID
	CertID      *uuid.UUID
	IssueDate   *datatypes.Date
	ExpireDate  *datatypes.Date
	Image       *string
	Images      []string
}

type CreatePayload struct {
	Fields ProductFields
}

type UpdatePayload struct {
	Fields ProductFields
}

// DeletePayload records which product was targeted when the request was filed.
type DeletePayload struct {
	ProductID uuid.UUID
}

func (CreatePayload) Kind() model.RequestKind { return model.RequestCreate }
func (UpdatePayload) Kind() model.RequestKind { return model.RequestUpdate }
func (DeletePayload) Kind() model.RequestKind { return model.RequestDelete }

// Empty reports whether the patch carries no column value and no attachment.
func (f ProductFields) Empty() bool {
	return !f.HasColumns() && !f.HasAttachments()
}

// HasColumns reports whether any product column would change.
func (f ProductFields) HasColumns() bool {
	return f.Name != nil || f.Price != nil || f.Description != nil ||
		f.PlantDate != nil || f.HarvestDate != nil || f.Status != nil ||
		f.FarmID != nil || f.Image != nil
}

// HasAttachments reports whether images or a certification would be attached.
func (f ProductFields) HasAttachments() bool {
	return f.Image != nil || len(f.Images) > 0 || f.CertID != nil
}

// Check enforces the field policy for a given kind.
func (f ProductFields) Check(kind model.RequestKind) error {
	if kind == model.RequestCreate {
		var missing []string
		if f.Name == nil {
			missing = append(missing, "name")
		}
		if f.Price == nil {
			missing = append(missing, "price")
		}
		if f.FarmID == nil {
			missing = append(missing, "farmId")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required fields %v", missing)
		}
	}
	if f.Price != nil {
		if err := checkPrice(*f.Price); err != nil {
			return err
		}
	}
	if f.Status != nil && !model.ValidProductStatus(*f.Status) {
		return fmt.Errorf("unknown product status %q", *f.Status)
	}
	if f.IssueDate != nil && f.ExpireDate != nil && time.Time(*f.ExpireDate).Before(time.Time(*f.IssueDate)) {
		return errors.New("expireDate is before issueDate")
	}
	return nil
}

// checkPrice rejects values the price column would round or overflow.
func checkPrice(p decimal.Decimal) error {
	if !p.IsPositive() {
		return fmt.Errorf("price must be positive, got %s", p.String())
	}
	if !p.Equal(p.Truncate(PriceScale)) {
		return fmt.Errorf("price allows at most %d decimal places, got %s", PriceScale, p.String())
	}
	if p.GreaterThanOrEqual(priceCeiling) {
		return fmt.Errorf("price allows at most %d integer digits, got %s", PriceIntegerDigits, p.String())
	}
	return nil
}

// Columns returns the product column patch for the present fields.
func (f ProductFields) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if f.Name != nil {
		cols["name"] = *f.Name
	}
	if f.Price != nil {
		cols["price"] = *f.Price
	}
	if f.Description != nil {
		cols["description"] = *f.Description
	}
	if f.PlantDate != nil {
		cols["plant_date"] = *f.PlantDate
	}
	if f.HarvestDate != nil {
		cols["harvest_date"] = *f.HarvestDate
	}
	if f.Status != nil {
		cols["status"] = *f.Status
	}
	if f.FarmID != nil {
		cols["farm_id"] = *f.FarmID
	}
	if f.Image != nil {
		cols["media_url"] = *f.Image
	}
	return cols
}

// Product builds a new product row from create fields.
func (f ProductFields) Product(createdBy uuid.UUID) *model.Product {
	p := &model.Product{
		Name:        deref(f.Name),
		Description: f.Description,
		PlantDate:   f.PlantDate,
		HarvestDate: f.HarvestDate,
		Status:      model.ProductStatusInStock,
		MediaURL:    f.Image,
		CreatedBy:   &createdBy,
	}
	if f.Price != nil {
		p.Price = *f.Price
	}
	if f.FarmID != nil {
		p.FarmID = *f.FarmID
	}
	if f.Status != nil {
		p.Status = *f.Status
	}
	return p
}

// NewDate returns the calendar date in UTC.
func NewDate(year int, month time.Month, day int) datatypes.Date {
	return datatypes.Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
