package utils

import (
	"testing"
	"time"
)

func TestExtractFirstNumber(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{"two packs of 500 grams", 500, true},
		{"1,5 kilo rice", 1.5, true},
		{"price 12.75 rupees", 12.75, true},
		{"3 then 4", 3, true},
		{"no digits here", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ExtractFirstNumber(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ExtractFirstNumber(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ExtractFirstNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSpokenDateToISO(t *testing.T) {
	now := time.Date(2025, 2, 27, 15, 30, 0, 0, time.Local)

	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"2025-03-01", "2025-03-01", true},
		{"01-03-2025", "2025-03-01", true},
		{"expires 2025/3/9", "2025-03-09", true},
		{"1.3.2025", "2025-03-01", true},
		{"tomorrow", "2025-02-28", true},
		{"Today please", "2025-02-27", true},
		{"இன்று", "2025-02-27", true},
		{"நாளை", "2025-02-28", true},
		{"අද", "2025-02-27", true},
		{"හෙට", "2025-02-28", true},
		{"2025-02-30", "", false},
		{"next week sometime", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseSpokenDateToISOAt(tt.input, now)
			if ok != tt.wantOK {
				t.Fatalf("ParseSpokenDateToISOAt(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseSpokenDateToISOAt(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSpokenDateTomorrowCrossesMonth(t *testing.T) {
	now := time.Date(2024, 12, 31, 23, 59, 0, 0, time.Local)
	got, ok := ParseSpokenDateToISOAt("tomorrow", now)
	if !ok || got != "2025-01-01" {
		t.Errorf("got %q (ok=%v), want 2025-01-01", got, ok)
	}
}

func TestParseSpokenDateYearFirstWins(t *testing.T) {
	// Both shapes are present; the year-first match is used.
	got, ok := ParseSpokenDateToISOAt("2025-04-05 or 06-07-2026", time.Now())
	if !ok || got != "2025-04-05" {
		t.Errorf("got %q (ok=%v), want 2025-04-05", got, ok)
	}
}

func TestParseUnitFromText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"two kg of rice", "kg"},
		{"one kilogram", "kg"},
		{"500 grams", "g"},
		{"500 g pack", "g"},
		{"250 ml", "ml"},
		{"a liter of milk", "L"},
		{"1 litre", "L"},
		{"2 l bottle", "L"},
		{"six pieces", "pcs"},
		{"12 pcs", "pcs"},
		{"just some bread", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, _ := ParseUnitFromText(tt.input)
			if got != tt.want {
				t.Errorf("ParseUnitFromText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCategoryFromText(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"non-food item", "Non-Food", true},
		{"Non Food", "Non-Food", true},
		{"nonfood detergent", "Non-Food", true},
		{"food", "Food", true},
		{"it's seafood", "Food", true},
		{"shampoo", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCategoryFromText(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseCategoryFromText(%q) = %q,%v; want %q,%v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
