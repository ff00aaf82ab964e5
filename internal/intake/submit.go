package intake

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/reminex/client/internal/backend"
	"github.com/reminex/client/internal/currency"
	"github.com/reminex/client/pkg/models"
	"github.com/reminex/client/pkg/utils"
)

// Validate checks the draft as it would be submitted and returns the
// backend payload. The price is converted from the user's currency to USD
// and rounded to cents; a zero price is sent as no price.
func (f *Form) Validate() (backend.NewProduct, error) {
	d := f.Draft()
	now := f.deps.Now()

	p := backend.NewProduct{
		Name:       strings.TrimSpace(d.Name),
		Category:   d.Category,
		ExpiryDate: utils.DateOnly(strings.TrimSpace(d.ExpiryDate)),
		Barcode:    strings.TrimSpace(d.Barcode),
		Image:      d.ImageURL,
		ImageFile:  d.ImageFile,
	}
	if p.Name == "" {
		return p, notice(KindValidation, "Name is required", nil)
	}
	if p.Category == "" {
		p.Category = models.CategoryFood
	}
	if !p.Category.Valid() {
		return p, notice(KindValidation, "Category must be Food or Non-Food", nil)
	}

	if p.ExpiryDate == "" {
		return p, notice(KindValidation, "Expiry date is required", nil)
	}
	if _, err := utils.ParseISODate(p.ExpiryDate); err != nil {
		return p, notice(KindValidation, "Expiry date must be YYYY-MM-DD", err)
	}
	if utils.IsBeforeDay(p.ExpiryDate, now) {
		return p, notice(KindValidation, "Expiry date cannot be in the past", nil)
	}

	weight, unit := strings.TrimSpace(d.Weight), d.Unit
	switch {
	case weight == "" && unit == "":
	case weight == "" || unit == "":
		return p, notice(KindValidation, "Weight and unit must be given together", nil)
	default:
		w, ok := currency.ParseAmount(weight)
		if !ok || w <= 0 {
			return p, notice(KindValidation, "Weight must be a positive number", nil)
		}
		if !unit.Valid() {
			return p, notice(KindValidation, "Unit must be one of g, kg, ml, L, pcs", nil)
		}
		p.Weight, p.Unit = &w, unit
	}

	if price := strings.TrimSpace(d.Price); price != "" {
		local, ok := currency.ParseAmount(price)
		if !ok || local < 0 {
			return p, notice(KindValidation, "Price must be a number", nil)
		}
		code := models.BaseCurrency
		if f.deps.Currency != nil {
			code = f.deps.Currency.Currency()
		}
		if usd := currency.RoundUSD(f.deps.Rates.ConvertLocalToUSD(local, code)); usd > 0 {
			p.Price = &usd
		}
	}
	return p, nil
}

// Submit validates the draft, converts the price to USD and creates the
// product. On success the draft is reset; on failure it is left as is so
// the user can retry.
func (f *Form) Submit(ctx context.Context) (models.Product, error) {
	p, err := f.Validate()
	if err != nil {
		return models.Product{}, err
	}

	created, err := f.deps.Backend.CreateProduct(ctx, p)
	if err != nil {
		f.logger.Info("create product failed", zap.Error(err))
		return models.Product{}, collaboratorNotice(err, msgCreateFailed)
	}

	f.logger.Info("product created", zap.String("id", created.ID), zap.String("name", p.Name))
	f.Reset()
	f.deps.Bus.DraftUpdated(f.ID, "submit", []string{"reset"})
	return created, nil
}
