package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fruittrace/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Wire keys of the flat payload object.
const (
	keyName        = "name"
	keyPrice       = "price"
	keyDescription = "description"
	keyPlantDate   = "plantDate"
	keyHarvestDate = "harvestDate"
	keyStatus      = "status"
	keyFarmID      = "farmId"
	keyCertID      = "certId"
	keyIssueDate   = "issueDate"
	keyExpireDate  = "expireDate"
	keyImage       = "image"
	keyImages      = "images"
	keyProductID   = "productId"
)

// Encode serializes a payload to the flat JSON object stored in the ledger.
// Absent fields are omitted; keys come out sorted.
func Encode(p Payload) (datatypes.JSON, error) {
	obj := make(map[string]interface{})
	switch v := p.(type) {
	case CreatePayload:
		putFields(obj, v.Fields)
	case *CreatePayload:
		putFields(obj, v.Fields)
	case UpdatePayload:
		putFields(obj, v.Fields)
	case *UpdatePayload:
		putFields(obj, v.Fields)
	case DeletePayload:
		obj[keyProductID] = v.ProductID.String()
	case *DeletePayload:
		obj[keyProductID] = v.ProductID.String()
	default:
		return nil, fmt.Errorf("encode payload: unsupported type %T", p)
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return datatypes.JSON(b), nil
}

func putFields(obj map[string]interface{}, f ProductFields) {
	putString(obj, keyName, f.Name)
	if f.Price != nil {
		obj[keyPrice] = f.Price.String()
	}
	putString(obj, keyDescription, f.Description)
	putDate(obj, keyPlantDate, f.PlantDate)
	putDate(obj, keyHarvestDate, f.HarvestDate)
	putString(obj, keyStatus, f.Status)
	putUUID(obj, keyFarmID, f.FarmID)
	putUUID(obj, keyCertID, f.CertID)
	putDate(obj, keyIssueDate, f.IssueDate)
	putDate(obj, keyExpireDate, f.ExpireDate)
	putString(obj, keyImage, f.Image)
	if len(f.Images) > 0 {
		obj[keyImages] = f.Images
	}
}

func putString(obj map[string]interface{}, key string, v *string) {
	if v != nil {
		obj[key] = *v
	}
}

func putDate(obj map[string]interface{}, key string, v *datatypes.Date) {
	if v != nil {
		obj[key] = time.Time(*v).Format(DateLayout)
	}
}

func putUUID(obj map[string]interface{}, key string, v *uuid.UUID) {
	if v != nil {
		obj[key] = v.String()
	}
}

// Decode reads a stored payload as the variant for kind.
// The decoder is lenient: numbers and strings are interchangeable for
// scalar fields, "" and null mean absent, dates may be YYYY-MM-DD or RFC 3339.
// Any failure wraps ErrMalformed.
func Decode(kind model.RequestKind, raw []byte) (Payload, error) {
	obj := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	// a JSON null decodes into a nil map
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}

	switch kind {
	case model.RequestCreate, model.RequestUpdate:
		f, err := decodeFields(obj)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := f.Check(kind); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if kind == model.RequestCreate {
			return CreatePayload{Fields: f}, nil
		}
		return UpdatePayload{Fields: f}, nil
	case model.RequestDelete:
		var d DeletePayload
		s, err := lenientString(obj, keyProductID, "ProductID")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if s != nil {
			id, err := uuid.Parse(*s)
			if err != nil {
				return nil, fmt.Errorf("%w: productId: %v", ErrMalformed, err)
			}
			d.ProductID = id
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: unknown request kind %q", ErrMalformed, kind)
	}
}

func decodeFields(obj map[string]json.RawMessage) (ProductFields, error) {
	var f ProductFields
	var err error

	if f.Name, err = lenientString(obj, keyName); err != nil {
		return f, err
	}
	if f.Description, err = lenientString(obj, keyDescription); err != nil {
		return f, err
	}
	if f.Status, err = lenientString(obj, keyStatus); err != nil {
		return f, err
	}
	if f.Image, err = lenientString(obj, keyImage); err != nil {
		return f, err
	}

	price, err := lenientString(obj, keyPrice)
	if err != nil {
		return f, err
	}
	if f.Price, err = parsePrice(price); err != nil {
		return f, err
	}

	dates := []struct {
		key string
		dst **datatypes.Date
	}{
		{keyPlantDate, &f.PlantDate},
		{keyHarvestDate, &f.HarvestDate},
		{keyIssueDate, &f.IssueDate},
		{keyExpireDate, &f.ExpireDate},
	}
	for _, d := range dates {
		s, err := lenientString(obj, d.key)
		if err != nil {
			return f, err
		}
		if *d.dst, err = parseDate(d.key, s); err != nil {
			return f, err
		}
	}

	ids := []struct {
		key string
		dst **uuid.UUID
	}{
		{keyFarmID, &f.FarmID},
		{keyCertID, &f.CertID},
	}
	for _, i := range ids {
		s, err := lenientString(obj, i.key)
		if err != nil {
			return f, err
		}
		if *i.dst, err = parseUUID(i.key, s); err != nil {
			return f, err
		}
	}

	if rawImages, ok := obj[keyImages]; ok && !isNull(rawImages) {
		var images []string
		if err := json.Unmarshal(rawImages, &images); err != nil {
			return f, fmt.Errorf("%s: %v", keyImages, err)
		}
		for _, img := range images {
			if img != "" {
				f.Images = append(f.Images, img)
			}
		}
	}
	return f, nil
}

// lenientString returns the first present key as a string. Numbers and
// booleans are rendered in their JSON text form.
func lenientString(obj map[string]json.RawMessage, keys ...string) (*string, error) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok || isNull(raw) {
			continue
		}
		trimmed := bytes.TrimSpace(raw)
		var s string
		switch trimmed[0] {
		case '"':
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return nil, fmt.Errorf("%s: %v", key, err)
			}
		case '{', '[':
			return nil, fmt.Errorf("%s: expected a scalar", key)
		default:
			s = string(trimmed)
		}
		if s == "" {
			continue
		}
		return &s, nil
	}
	return nil, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func parsePrice(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*s))
	if err != nil {
		return nil, fmt.Errorf("%s: %v", keyPrice, err)
	}
	return &d, nil
}

func parseDate(key string, s *string) (*datatypes.Date, error) {
	if s == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		t, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a date", key, v)
		}
	}
	d := NewDate(t.Year(), t.Month(), t.Day())
	return &d, nil
}

func parseUUID(key string, s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*s))
	if err != nil {
		return nil, fmt.Errorf("%s: %v", key, err)
	}
	return &id, nil
}

// ParseForm reads submitted form values into fields using the same rules
// as Decode. Empty values are dropped. "images" may be a comma separated list.
func ParseForm(values map[string]string) (ProductFields, error) {
	obj := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || v == "undefined" || v == "null" {
			continue
		}
		if k == keyImages {
			var images []string
			for _, img := range strings.Split(v, ",") {
				if img = strings.TrimSpace(img); img != "" {
					images = append(images, img)
				}
			}
			b, _ := json.Marshal(images)
			obj[k] = b
			continue
		}
		b, _ := json.Marshal(v)
		obj[k] = b
	}
	return decodeFields(obj)
}
