package payload

import (
	"errors"
	"testing"
	"time"

	"fruittrace/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func datePtr(y int, m time.Month, d int) *datatypes.Date {
	v := NewDate(y, m, d)
	return &v
}

func fullFields() ProductFields {
	price := decimal.RequireFromString("12.5")
	farm := uuid.MustParse("6f1c1c9e-1e57-4a43-9a39-0b6f6d0c2c11")
	cert := uuid.MustParse("2b5e8d4f-3c0a-4d8b-bb2f-7c2c2b0d6a90")
	return ProductFields{
		Name:        strPtr("Dragon fruit"),
		Price:       &price,
		Description: strPtr("red flesh"),
		PlantDate:   datePtr(2024, 1, 15),
		HarvestDate: datePtr(2024, 6, 1),
		Status:      strPtr(model.ProductStatusOutOfStock),
		FarmID:      &farm,
		CertID:      &cert,
		IssueDate:   datePtr(2024, 2, 1),
		ExpireDate:  datePtr(2025, 2, 1),
		Image:       strPtr("uploads/a.jpg"),
		Images:      []string{"uploads/b.jpg", "uploads/c.jpg"},
	}
}

func TestRoundTrip(t *testing.T) {
	productID := uuid.New()
	tests := []struct {
		name string
		in   Payload
	}{
		{"create with every field", CreatePayload{Fields: fullFields()}},
		{"update with every field", UpdatePayload{Fields: fullFields()}},
		{"update with single field", UpdatePayload{Fields: ProductFields{Description: strPtr("new")}}},
		{"update with nulls only", UpdatePayload{}},
		{"delete", DeletePayload{ProductID: productID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.in)
			require.NoError(t, err)

			out, err := Decode(tt.in.Kind(), raw)
			require.NoError(t, err)
			assert.Equal(t, tt.in, out)
		})
	}
}

func TestEncodeOmitsAbsentFields(t *testing.T) {
	raw, err := Encode(UpdatePayload{Fields: ProductFields{Name: strPtr("Mango")}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Mango"}`, string(raw))
}

func TestDecodeLenient(t *testing.T) {
	raw := []byte(`{
		"name": "Lychee",
		"price": 42000,
		"description": "",
		"plantDate": "2024-03-01T08:30:00Z",
		"harvestDate": null,
		"farmId": "6f1c1c9e-1e57-4a43-9a39-0b6f6d0c2c11",
		"certId": "",
		"images": ["a.jpg", ""],
		"unknown": {"ignored": true}
	}`)

	p, err := Decode(model.RequestCreate, raw)
	require.NoError(t, err)

	f := p.(CreatePayload).Fields
	require.NotNil(t, f.Price)
	assert.True(t, f.Price.Equal(decimal.NewFromInt(42000)))
	assert.Nil(t, f.Description, "empty string is absent")
	assert.Nil(t, f.HarvestDate, "null is absent")
	assert.Nil(t, f.CertID)
	assert.Equal(t, datePtr(2024, 3, 1), f.PlantDate)
	assert.Equal(t, []string{"a.jpg"}, f.Images)
}

func TestDecodeDeleteAcceptsLegacyKey(t *testing.T) {
	id := uuid.New()
	p, err := Decode(model.RequestDelete, []byte(`{"ProductID":"`+id.String()+`"}`))
	require.NoError(t, err)
	assert.Equal(t, DeletePayload{ProductID: id}, p)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		kind model.RequestKind
		raw  string
	}{
		{"not json", model.RequestUpdate, `{"name":`},
		{"not an object", model.RequestUpdate, `["name"]`},
		{"bad price", model.RequestUpdate, `{"price":"cheap"}`},
		{"non positive price", model.RequestUpdate, `{"price":0}`},
		{"bad date", model.RequestUpdate, `{"plantDate":"yesterday"}`},
		{"bad farm id", model.RequestUpdate, `{"farmId":"farm-1"}`},
		{"unknown status", model.RequestUpdate, `{"status":"sold"}`},
		{"images not a list", model.RequestUpdate, `{"images":"a.jpg"}`},
		{"name is an object", model.RequestUpdate, `{"name":{"en":"x"}}`},
		{"create missing name", model.RequestCreate, `{"price":1,"farmId":"6f1c1c9e-1e57-4a43-9a39-0b6f6d0c2c11"}`},
		{"bad delete id", model.RequestDelete, `{"productId":"p-1"}`},
		{"unknown kind", model.RequestKind("merge"), `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.kind, []byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestParseFormDropsEmptyValues(t *testing.T) {
	f, err := ParseForm(map[string]string{
		"name":        "Pomelo",
		"price":       "",
		"farmId":      "",
		"description": "undefined",
		"status":      "instock",
		"images":      "a.jpg, ,b.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, strPtr("Pomelo"), f.Name)
	assert.Nil(t, f.Price)
	assert.Nil(t, f.FarmID)
	assert.Nil(t, f.Description)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, f.Images)
	assert.Equal(t, map[string]interface{}{"name": "Pomelo", "status": "instock"}, f.Columns())
}

func TestCheck(t *testing.T) {
	f := fullFields()
	assert.NoError(t, f.Check(model.RequestCreate))

	f.ExpireDate = datePtr(2023, 1, 1)
	assert.Error(t, f.Check(model.RequestUpdate))

	assert.Error(t, ProductFields{Name: strPtr("x")}.Check(model.RequestCreate))
	assert.NoError(t, ProductFields{Name: strPtr("x")}.Check(model.RequestUpdate))
	assert.True(t, ProductFields{}.Empty())
}

func TestCheckPricePrecision(t *testing.T) {
	tests := []struct {
		price string
		ok    bool
	}{
		{"12.5", true},
		{"1.500", true},
		{"0.01", true},
		{"9999999999.99", true},
		{"0.004", false},
		{"12.345", false},
		{"10000000000", false},
		{"1e12", false},
		{"0", false},
		{"-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			p := decimal.RequireFromString(tt.price)
			err := ProductFields{Price: &p}.Check(model.RequestUpdate)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
