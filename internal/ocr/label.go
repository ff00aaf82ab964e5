// Package ocr reads printed product labels: a Recognizer turns a photo into
// text, and ParseLabel pulls candidate fields out of that text. Every field
// is best effort; a miss is an empty string, never an error.
package ocr

import (
	"regexp"
	"strings"

	"github.com/reminex/client/pkg/utils"
)

// LabelFields are low-confidence candidates for pre-filling a draft.
type LabelFields struct {
	Name     string `json:"name"`
	Price    string `json:"price"`    // number as printed, e.g. "250.00"
	Expiry   string `json:"expiry"`   // date as printed, e.g. "12/05/2025"
	Quantity string `json:"quantity"` // normalised, e.g. "500g", "1L"
}

// Empty reports whether nothing was recognised.
func (f LabelFields) Empty() bool {
	return f.Name == "" && f.Price == "" && f.Expiry == "" && f.Quantity == ""
}

const datePattern = `(\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4})`

var (
	priceRe   = regexp.MustCompile(`(?i)(?:rs\.?|lkr|\$|usd)\s*(\d+(?:[.,]\d+)?)`)
	expDateRe = regexp.MustCompile(`(?i)exp[a-z]*\.?\s*(?:date)?\s*[:\-]?\s*` + datePattern)
	dateRe    = regexp.MustCompile(datePattern)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// ParseLabel extracts name, price, expiry and quantity from OCR text.
// The name is the first three words of the text. A date after an "exp"
// keyword is preferred over any other date.
func ParseLabel(text string) LabelFields {
	flat := strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	if flat == "" {
		return LabelFields{}
	}

	var out LabelFields
	words := strings.Fields(flat)
	if len(words) > 3 {
		words = words[:3]
	}
	out.Name = strings.Join(words, " ")

	if m := priceRe.FindStringSubmatch(flat); m != nil {
		out.Price = m[1]
	}

	if m := expDateRe.FindStringSubmatch(flat); m != nil {
		out.Expiry = m[1]
	} else if m := dateRe.FindStringSubmatch(flat); m != nil {
		out.Expiry = m[1]
	}

	if w, u, ok := utils.ParseLabelQuantity(flat); ok {
		out.Quantity = w + u
	}
	return out
}
