package intake

import (
	"github.com/reminex/client/internal/infra"
	"github.com/reminex/client/pkg/models"
)

// Field names a draft field. Channels report the fields they wrote.
type Field string

const (
	FieldAll      Field = "" // voice: parse everything the transcript offers
	FieldName     Field = "name"
	FieldCategory Field = "category"
	FieldExpiry   Field = "expiryDate"
	FieldPrice    Field = "price"
	FieldWeight   Field = "weight"
	FieldUnit     Field = "unit"
	FieldImage    Field = "image"
	FieldBarcode  Field = "barcode"
)

// ImageFile is a locally held picture.
type ImageFile = infra.File

// Draft is the in-progress product. Price is text in the user's currency;
// it becomes USD only at submit. Weight and Unit go together. ImageURL and
// ImageFile are mutually exclusive.
type Draft struct {
	Name          string          `json:"name"`
	Category      models.Category `json:"category"`
	ExpiryDate    string          `json:"expiryDate"`
	Price         string          `json:"price"`
	Weight        string          `json:"weight"`
	Unit          models.Unit     `json:"unit"`
	ImageURL      string          `json:"imageUrl,omitempty"`
	ImageFileName string          `json:"imageFile,omitempty"`
	Barcode       string          `json:"barcode,omitempty"`

	ImageFile *ImageFile `json:"-"`
}

// Patch is a manual edit. Nil fields are left alone.
type Patch struct {
	Name       *string          `json:"name,omitempty"`
	Category   *models.Category `json:"category,omitempty"`
	ExpiryDate *string          `json:"expiryDate,omitempty"`
	Price      *string          `json:"price,omitempty"`
	Weight     *string          `json:"weight,omitempty"`
	Unit       *models.Unit     `json:"unit,omitempty"`
	ImageURL   *string          `json:"imageUrl,omitempty"`
	Barcode    *string          `json:"barcode,omitempty"`
}

func (p Patch) apply(d *Draft) []Field {
	var touched []Field
	if p.Name != nil {
		d.Name = *p.Name
		touched = append(touched, FieldName)
	}
	if p.Category != nil {
		d.Category = *p.Category
		touched = append(touched, FieldCategory)
	}
	if p.ExpiryDate != nil {
		d.ExpiryDate = *p.ExpiryDate
		touched = append(touched, FieldExpiry)
	}
	if p.Price != nil {
		d.Price = *p.Price
		touched = append(touched, FieldPrice)
	}
	if p.Weight != nil {
		d.Weight = *p.Weight
		touched = append(touched, FieldWeight)
	}
	if p.Unit != nil {
		d.Unit = *p.Unit
		touched = append(touched, FieldUnit)
	}
	if p.ImageURL != nil {
		d.setImageURL(*p.ImageURL)
		touched = append(touched, FieldImage)
	}
	if p.Barcode != nil {
		d.Barcode = *p.Barcode
		touched = append(touched, FieldBarcode)
	}
	return touched
}

func (d *Draft) setImageURL(url string) {
	d.ImageURL = url
	if url != "" {
		d.ImageFile, d.ImageFileName = nil, ""
	}
}

func (d *Draft) setImageFile(f *ImageFile) {
	d.ImageFile, d.ImageFileName = f, ""
	if f != nil {
		d.ImageFileName = f.Name
		d.ImageURL = ""
	}
}

func fieldNames(fs []Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}
