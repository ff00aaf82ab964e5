package currency

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reminex/client/internal/events"
	"github.com/reminex/client/internal/store"
	"github.com/reminex/client/pkg/models"
)

// ── helpers ──

type memSnapshots struct {
	snap  *models.RateSnapshot
	saves int
}

func (m *memSnapshots) LoadRates() (models.RateSnapshot, error) {
	if m.snap == nil {
		return models.RateSnapshot{}, store.ErrNoSnapshot
	}
	return *m.snap, nil
}

func (m *memSnapshots) SaveRates(s models.RateSnapshot) error {
	m.snap = &s
	m.saves++
	return nil
}

// rateServer serves body while ok is true and 503 otherwise.
func rateServer(t *testing.T, body string, ok *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ok.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fixedEngine(rates map[string]float64) *Engine {
	e := NewEngine()
	e.current.Store(&table{rates: rates})
	return e
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// ── Refresh fallback chain ──

func TestRefreshFromNetworkPersists(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	srv := rateServer(t, `{"base":"USD","rates":{"usd":1,"EUR":0.9,"LKR":300.5}}`, &up)
	snaps := &memSnapshots{}

	e := NewEngine(WithProviderURL(srv.URL), WithSnapshotStore(snaps))
	res := e.Refresh(context.Background())

	if res.Source != SourceNetwork {
		t.Fatalf("Source: got %q, want %q", res.Source, SourceNetwork)
	}
	if res.Count != 3 {
		t.Errorf("Count: got %d, want 3", res.Count)
	}
	if e.Rate("eur") != 0.9 {
		t.Errorf("Rate(eur): got %v", e.Rate("eur"))
	}
	if snaps.saves != 1 || snaps.snap.Rates["LKR"] != 300.5 {
		t.Errorf("snapshot not persisted: %+v", snaps.snap)
	}
	if e.FetchedAt().IsZero() {
		t.Error("FetchedAt should be set after a network fetch")
	}
}

func TestRefreshKeepsMemoryAfterEarlierSuccess(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	srv := rateServer(t, `{"rates":{"EUR":0.9}}`, &up)
	snaps := &memSnapshots{snap: &models.RateSnapshot{Rates: map[string]float64{"EUR": 0.5}}}

	e := NewEngine(WithProviderURL(srv.URL), WithSnapshotStore(snaps))
	e.Refresh(context.Background())

	up.Store(false)
	res := e.Refresh(context.Background())

	if res.Source != SourceMemory {
		t.Errorf("Source: got %q, want %q", res.Source, SourceMemory)
	}
	if res.Err == nil {
		t.Error("Err should carry the network failure")
	}
	if e.Rate("EUR") != 0.9 {
		t.Errorf("in-memory table should be kept, Rate(EUR) = %v", e.Rate("EUR"))
	}
}

func TestRefreshRehydratesSnapshot(t *testing.T) {
	var up atomic.Bool
	srv := rateServer(t, "", &up)
	snaps := &memSnapshots{snap: &models.RateSnapshot{
		Rates:     map[string]float64{"EUR": 0.8},
		FetchedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}}

	e := NewEngine(WithProviderURL(srv.URL), WithSnapshotStore(snaps))
	res := e.Refresh(context.Background())

	if res.Source != SourceSnapshot {
		t.Fatalf("Source: got %q, want %q", res.Source, SourceSnapshot)
	}
	if e.Rate("EUR") != 0.8 || e.Rate("USD") != 1 {
		t.Errorf("rehydrated rates: %v", e.Rates())
	}
	if snaps.saves != 0 {
		t.Error("rehydration must not overwrite the snapshot")
	}
}

func TestRefreshDefaultsToIdentity(t *testing.T) {
	tests := []struct {
		name string
		body string
		up   bool
	}{
		{"non-2xx", "", false},
		{"malformed", `{"rates":`, true},
		{"empty rates", `{"rates":{}}`, true},
		{"non-positive only", `{"rates":{"EUR":0,"JPY":-3}}`, true},
		{"wrong shape", `[1,2,3]`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var up atomic.Bool
			up.Store(tc.up)
			srv := rateServer(t, tc.body, &up)

			e := NewEngine(WithProviderURL(srv.URL), WithSnapshotStore(&memSnapshots{}))
			res := e.Refresh(context.Background())

			if res.Source != SourceDefault {
				t.Errorf("Source: got %q, want %q", res.Source, SourceDefault)
			}
			if got := e.CurrencyList(); len(got) != 1 || got[0] != "USD" {
				t.Errorf("CurrencyList: got %v, want [USD]", got)
			}
		})
	}
}

func TestRefreshWithBoltSnapshot(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "client.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	var up atomic.Bool
	up.Store(true)
	srv := rateServer(t, `{"rates":{"GBP":0.78}}`, &up)
	NewEngine(WithProviderURL(srv.URL), WithSnapshotStore(s)).Refresh(context.Background())

	// A fresh process with the provider down sees the persisted table.
	up.Store(false)
	e := NewEngine(WithProviderURL(srv.URL), WithSnapshotStore(s))
	if res := e.Refresh(context.Background()); res.Source != SourceSnapshot {
		t.Fatalf("Source: got %q, want %q", res.Source, SourceSnapshot)
	}
	if e.Rate("GBP") != 0.78 {
		t.Errorf("Rate(GBP): got %v", e.Rate("GBP"))
	}
}

func TestRefreshPublishesEvent(t *testing.T) {
	var up atomic.Bool
	srv := rateServer(t, "", &up)
	bus := events.New()
	var got []events.RatesRefreshed
	_ = bus.Subscribe(events.TopicRatesRefreshed, func(e events.RatesRefreshed) { got = append(got, e) })

	NewEngine(WithProviderURL(srv.URL), WithBus(bus)).Refresh(context.Background())

	if len(got) != 1 || got[0].Source != "default" || got[0].Count != 1 {
		t.Errorf("events: got %+v", got)
	}
}

func TestRefreshCancelledContext(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	srv := rateServer(t, `{"rates":{"EUR":0.9}}`, &up)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewEngine(WithProviderURL(srv.URL)).Refresh(ctx)

	if res.Source != SourceDefault || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("got %+v", res)
	}
}

// ── Conversions ──

func TestUnknownCodeBehavesAsUSD(t *testing.T) {
	e := fixedEngine(map[string]float64{"USD": 1, "EUR": 0.9})

	if e.Rate("XYZ") != 1 {
		t.Errorf("Rate(XYZ): got %v, want 1", e.Rate("XYZ"))
	}
	if got := e.ConvertLocalToUSD(42, "XYZ"); got != 42 {
		t.Errorf("ConvertLocalToUSD: got %v, want 42", got)
	}
	if got := e.ConvertUSDToLocal(42, "XYZ"); got != "42.00" {
		t.Errorf("ConvertUSDToLocal: got %q, want %q", got, "42.00")
	}
	if got := e.FormatPrice(10, "XYZ"); got != "XYZ 10.00" {
		t.Errorf("FormatPrice: got %q, want %q", got, "XYZ 10.00")
	}
}

func TestRoundTripKnownRate(t *testing.T) {
	e := fixedEngine(map[string]float64{"USD": 1, "EUR": 0.9, "LKR": 300.25, "JPY": 151.7})
	amounts := []float64{0.01, 1, 9.99, 10, 123.45, 99999.5}

	for _, code := range []string{"USD", "EUR", "LKR", "JPY"} {
		r := e.Rate(code)
		for _, a := range amounts {
			if got := e.ConvertLocalToUSD(a*r, code); math.Abs(got-a) > 1e-9*math.Max(1, a) {
				t.Errorf("ConvertLocalToUSD(%v*%v, %s): got %v, want %v", a, r, code, got, a)
			}
			want := decimal.NewFromFloat(a).StringFixed(2)
			if got := e.ConvertUSDToLocal(e.ConvertLocalToUSD(a, code), code); got != want {
				t.Errorf("USD round-trip %s %v: got %q, want %q", code, a, got, want)
			}
		}
	}
}

func TestZeroInput(t *testing.T) {
	e := fixedEngine(map[string]float64{"USD": 1, "EUR": 0.9})
	for _, code := range []string{"USD", "EUR", "XYZ", ""} {
		if got := e.ConvertLocalToUSD(0, code); got != 0 {
			t.Errorf("ConvertLocalToUSD(0, %q): got %v", code, got)
		}
		if got := e.ConvertUSDToLocal(0, code); got != "" {
			t.Errorf("ConvertUSDToLocal(0, %q): got %q", code, got)
		}
		if got := e.ConvertLocalToUSD(math.NaN(), code); got != 0 {
			t.Errorf("ConvertLocalToUSD(NaN, %q): got %v", code, got)
		}
	}
}

func TestEuroScenario(t *testing.T) {
	e := fixedEngine(map[string]float64{"USD": 1, "EUR": 0.9})

	usd := RoundUSD(e.ConvertLocalToUSD(10, "EUR"))
	if !approx(usd, 11.11) {
		t.Fatalf("stored USD: got %v, want 11.11", usd)
	}

	got := e.FormatPrice(usd, "EUR")
	if !strings.Contains(got, "€") || !strings.Contains(got, "10") {
		t.Errorf("FormatPrice(11.11, EUR): got %q, want ~€10.00", got)
	}
	if e.ConvertUSDToLocal(usd, "EUR") != "10.00" {
		t.Errorf("ConvertUSDToLocal: got %q", e.ConvertUSDToLocal(usd, "EUR"))
	}
}

func TestFormatPriceUSD(t *testing.T) {
	e := NewEngine()
	got := e.FormatPrice(3.5, "usd")
	if !strings.Contains(got, "$") || !strings.Contains(got, "3.5") {
		t.Errorf("FormatPrice: got %q", got)
	}
}

func TestCurrencyListSorted(t *testing.T) {
	e := fixedEngine(map[string]float64{"USD": 1, "LKR": 300, "EUR": 0.9, "AUD": 1.5})
	got := strings.Join(e.CurrencyList(), ",")
	if got != "AUD,EUR,LKR,USD" {
		t.Errorf("CurrencyList: got %s", got)
	}
}

func TestRatesReturnsCopy(t *testing.T) {
	e := fixedEngine(map[string]float64{"USD": 1, "EUR": 0.9})
	r := e.Rates()
	r["EUR"] = 5
	if e.Rate("EUR") != 0.9 {
		t.Error("mutating Rates() result changed the engine table")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"10", 10, true},
		{" 12,50 ", 12.5, true},
		{"3.75", 3.75, true},
		{"", 0, false},
		{"ten", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseAmount(tc.in)
		if ok != tc.ok || (ok && !approx(got, tc.want)) {
			t.Errorf("ParseAmount(%q): got %v,%v, want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
