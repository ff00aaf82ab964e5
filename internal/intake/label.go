package intake

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/reminex/client/internal/ocr"
	"github.com/reminex/client/pkg/models"
	"github.com/reminex/client/pkg/utils"
)

// ApplyLabel pre-fills empty draft fields from OCR candidates. Label
// reading is low confidence, so nothing the user or another channel
// already entered is overwritten.
func (f *Form) ApplyLabel(fields ocr.LabelFields) []Field {
	now := f.deps.Now()
	return f.update("label", func(d *Draft) []Field {
		var touched []Field
		if d.Name == "" && fields.Name != "" {
			d.Name = fields.Name
			touched = append(touched, FieldName)
		}
		if d.Price == "" && fields.Price != "" {
			d.Price = fields.Price
			touched = append(touched, FieldPrice)
		}
		if d.ExpiryDate == "" && fields.Expiry != "" {
			if iso, ok := utils.ParseSpokenDateToISOAt(fields.Expiry, now); ok {
				d.ExpiryDate = iso
				touched = append(touched, FieldExpiry)
			}
		}
		if d.Weight == "" && d.Unit == "" && fields.Quantity != "" {
			if w, u, ok := utils.ParseLabelQuantity(fields.Quantity); ok {
				d.Weight, d.Unit = w, models.Unit(u)
				touched = append(touched, FieldWeight, FieldUnit)
			}
		}
		return touched
	})
}

// ReadLabel runs OCR over img and applies the result with ApplyLabel.
func (f *Form) ReadLabel(ctx context.Context, img ImageFile) (ocr.LabelFields, []Field, error) {
	if f.deps.OCR == nil {
		return ocr.LabelFields{}, nil, notice(KindCapability, msgNoOCR, ocr.ErrUnsupported)
	}
	fields, _, err := ocr.Extract(ctx, f.deps.OCR, img)
	if err != nil {
		if errors.Is(err, ocr.ErrUnsupported) {
			return ocr.LabelFields{}, nil, notice(KindCapability, msgNoOCR, err)
		}
		f.logger.Info("label OCR failed", zap.Error(err))
		return ocr.LabelFields{}, nil, notice(KindDegraded, msgOCRFailed, err)
	}
	touched := f.ApplyLabel(fields)
	if fields.Empty() {
		return fields, nil, notice(KindDegraded, msgNothingRecognised, nil)
	}
	return fields, touched, nil
}
