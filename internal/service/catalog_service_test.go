package service

import (
	"context"
	"testing"

	"fruittrace/internal/model"
	"fruittrace/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_FarmsAndCertifications(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	farm, err := h.catalog.CreateFarm(ctx, h.admin.ID, CreateFarmRequest{Name: "  Highland Orchard ", Address: "Da Lat"})
	require.NoError(t, err)
	assert.Equal(t, "Highland Orchard", farm.Name)

	_, err = h.catalog.CreateFarm(ctx, h.admin.ID, CreateFarmRequest{Name: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	farms, err := h.catalog.ListFarms(ctx)
	require.NoError(t, err)
	assert.Len(t, farms, 2)

	cert, err := h.catalog.CreateCertification(ctx, h.admin.ID, CreateCertificationRequest{Name: "GlobalGAP", Issuer: "FoodPLUS"})
	require.NoError(t, err)
	assert.Equal(t, "FoodPLUS", cert.Issuer)

	_, err = h.catalog.CreateCertification(ctx, h.admin.ID, CreateCertificationRequest{})
	assert.ErrorIs(t, err, ErrValidation)

	certs, err := h.catalog.ListCertifications(ctx)
	require.NoError(t, err)
	assert.Len(t, certs, 2)

	_, total, err := h.audits.GetAuditLogs(ctx, repository.AuditFilter{EntityID: farm.ID.String()}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestCatalog_ListProducts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "Red Dragon Fruit")
	h.seedProduct(t, "White Dragon Fruit")
	h.seedProduct(t, "Banana")

	products, total, err := h.catalog.ListProducts(ctx, 1, 20, "dragon", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, products, 2)

	products, total, err = h.catalog.ListProducts(ctx, 1, 1, "", model.ProductStatusInStock)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, products, 1)

	_, _, err = h.catalog.ListProducts(ctx, 1, 20, "", "spoiled")
	assert.ErrorIs(t, err, ErrValidation)
}
