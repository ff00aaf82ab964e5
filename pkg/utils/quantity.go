package utils

import (
	"regexp"
	"strings"
)

var (
	// Quantity strings from barcode lookups: "500g", "1.5 kg", "330ml", "1L".
	packQuantityRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(kg|g|ml|l)\b`)

	// Label quantities additionally allow piece counts.
	labelQuantityRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(kg|g|ml|l|pcs)\b`)
)

// ParseQuantity splits a packaged quantity such as "500g" into weight and unit.
// Units are normalised to g, kg, ml or L.
func ParseQuantity(s string) (weight, unit string, ok bool) {
	return splitQuantity(packQuantityRe, s)
}

// ParseLabelQuantity is ParseQuantity that also accepts "pcs".
func ParseLabelQuantity(s string) (weight, unit string, ok bool) {
	return splitQuantity(labelQuantityRe, s)
}

// NormalizeUnit maps unit spellings onto the product unit set.
func NormalizeUnit(u string) string {
	switch strings.ToLower(strings.TrimSpace(u)) {
	case "g":
		return "g"
	case "kg":
		return "kg"
	case "ml":
		return "ml"
	case "l":
		return "L"
	case "pcs":
		return "pcs"
	}
	return ""
}

// NormalizeBarcode trims whitespace around a scanned or typed code.
func NormalizeBarcode(code string) string {
	return strings.TrimSpace(code)
}

func splitQuantity(re *regexp.Regexp, s string) (string, string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	return m[1], NormalizeUnit(m[2]), true
}
