// Package models defines the wire types exchanged with the ReminEx backend.
package models

import "time"

// Category is the coarse product classification.
type Category string

const (
	CategoryFood    Category = "Food"
	CategoryNonFood Category = "Non-Food"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c == CategoryFood || c == CategoryNonFood
}

// Unit is the unit a product's weight is measured in.
type Unit string

const (
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitMilliliter Unit = "ml"
	UnitLiter      Unit = "L"
	UnitPieces     Unit = "pcs"
)

// Units lists every accepted unit in display order.
var Units = []Unit{UnitGram, UnitKilogram, UnitMilliliter, UnitLiter, UnitPieces}

// Valid reports whether u is one of the known units.
func (u Unit) Valid() bool {
	for _, known := range Units {
		if u == known {
			return true
		}
	}
	return false
}

// Product is a stored inventory item. Price is always USD.
type Product struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name"`
	Category   Category  `json:"category"`
	ExpiryDate string    `json:"expiryDate"`       // YYYY-MM-DD or RFC3339
	Price      *float64  `json:"price,omitempty"`  // USD
	Weight     *float64  `json:"weight,omitempty"` // paired with Unit
	Unit       Unit      `json:"unit,omitempty"`
	Image      string    `json:"image,omitempty"` // remote URL
	Barcode    string    `json:"barcode,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// BarcodeLookup is the backend's metadata for a scanned code.
// Every field is optional.
type BarcodeLookup struct {
	Name     string `json:"name,omitempty"`
	Image    string `json:"image,omitempty"`
	Quantity string `json:"quantity,omitempty"` // e.g., "500g", "1l"
}

// ImagePrediction is the spoilage-prediction response for a produce photo.
type ImagePrediction struct {
	Success       bool    `json:"success"`
	ExpiryDateISO string  `json:"expiryDateISO,omitempty"`
	Condition     string  `json:"condition,omitempty"` // e.g., "fresh", "ripe"
	Days          float64 `json:"days,omitempty"`      // estimated days until spoilage; may be fractional
	Message       string  `json:"message,omitempty"`
}
