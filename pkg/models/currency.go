package models

import "time"

// BaseCurrency is the canonical currency. Every stored price is in USD.
const BaseCurrency = "USD"

// RateSnapshot is the persisted copy of the last successfully fetched
// exchange-rate table (units of currency per 1 USD).
type RateSnapshot struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Plan is a paid subscription tier. Price is USD per billing interval.
type Plan struct {
	ID       string   `json:"_id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Interval string   `json:"interval,omitempty"` // "month", "year"
	Features []string `json:"features,omitempty"`
}

// User is the authenticated account as returned by the auth endpoints.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"` // "user" or "admin"
	Plan  string `json:"plan,omitempty"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
