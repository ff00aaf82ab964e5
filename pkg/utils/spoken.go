package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Relative-day tokens recognised in dictated text.
// English, Tamil and Sinhala are the languages the household app ships with.
var (
	todayTokens    = []string{"today", "இன்று", "අද"}
	tomorrowTokens = []string{"tomorrow", "நாளை", "හෙට"}
)

var (
	numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

	// Year-first is tried before day-first; the first pattern that matches wins.
	yearFirstRe = regexp.MustCompile(`(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})`)
	dayFirstRe  = regexp.MustCompile(`(\d{1,2})[-/.](\d{1,2})[-/.](\d{4})`)
)

// ExtractFirstNumber returns the first decimal number found in text.
// A comma decimal separator is normalised to a dot ("1,5" → 1.5).
func ExtractFirstNumber(text string) (float64, bool) {
	m := numberRe.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseSpokenDateToISO turns a dictated date into a local YYYY-MM-DD string.
// It understands "today"/"tomorrow" and numeric dates such as 2025-03-01,
// 2025/3/1, 01-03-2025 or 1.3.2025.
func ParseSpokenDateToISO(text string) (string, bool) {
	return ParseSpokenDateToISOAt(text, time.Now())
}

// ParseSpokenDateToISOAt is ParseSpokenDateToISO with an explicit clock.
func ParseSpokenDateToISOAt(text string, now time.Time) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return "", false
	}

	if containsAny(t, tomorrowTokens) {
		return AddDaysISO(now, 1), true
	}
	if containsAny(t, todayTokens) {
		return TodayISO(now), true
	}

	if m := yearFirstRe.FindStringSubmatch(t); m != nil {
		return isoFromParts(m[1], m[2], m[3])
	}
	if m := dayFirstRe.FindStringSubmatch(t); m != nil {
		return isoFromParts(m[3], m[2], m[1])
	}
	return "", false
}

// ParseUnitFromText maps unit words in text to a product unit.
// Checked in order: kg, g, ml, L, pcs; the first hit wins.
func ParseUnitFromText(text string) (string, bool) {
	t := " " + strings.ToLower(text) + " "
	switch {
	case strings.Contains(t, "kg") || strings.Contains(t, "kilo"):
		return "kg", true
	case strings.Contains(t, "gram") || strings.Contains(t, " g "):
		return "g", true
	case strings.Contains(t, "ml"):
		return "ml", true
	case strings.Contains(t, "liter") || strings.Contains(t, "litre") || strings.Contains(t, " l "):
		return "L", true
	case strings.Contains(t, "piece") || strings.Contains(t, "pcs"):
		return "pcs", true
	}
	return "", false
}

// ParseCategoryFromText returns "Non-Food" or "Food" when the text names one.
// Non-food is checked first because it contains the word "food".
func ParseCategoryFromText(text string) (string, bool) {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "non food"), strings.Contains(t, "non-food"), strings.Contains(t, "nonfood"):
		return "Non-Food", true
	case strings.Contains(t, "food"):
		return "Food", true
	}
	return "", false
}

func isoFromParts(ys, ms, ds string) (string, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	if !validDate(y, m, d) {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), true
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
