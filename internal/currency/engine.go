// Package currency is the client's single source of truth for exchange
// rates and every USD <-> local conversion.
//
// Rates are "units of currency per 1 USD". The table always contains
// USD:1. A code absent from the table is treated as rate 1, i.e. the
// amount is shown as if it were already USD. This is a known
// approximation: the client cannot tell "unsupported currency" from
// "no data yet".
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/reminex/client/internal/events"
	"github.com/reminex/client/internal/infra"
	"github.com/reminex/client/pkg/models"
)

// DefaultProviderURL returns USD-based rates as {"rates": {CODE: n}}.
const DefaultProviderURL = "https://api.exchangerate-api.com/v4/latest/USD"

// Source says where the table came from after a Refresh.
type Source string

const (
	SourceNetwork  Source = "network"  // fresh fetch, persisted
	SourceMemory   Source = "memory"   // fetch failed, kept this process's last good table
	SourceSnapshot Source = "snapshot" // fetch failed, rehydrated from the store
	SourceDefault  Source = "default"  // nothing available, identity table
)

// RefreshResult describes the outcome of Refresh.
type RefreshResult struct {
	Source Source
	Count  int
	Err    error // the network error, if any; informational only
}

// SnapshotStore persists the last good table.
type SnapshotStore interface {
	LoadRates() (models.RateSnapshot, error)
	SaveRates(models.RateSnapshot) error
}

type table struct {
	rates     map[string]float64
	fetchedAt time.Time
}

func identityTable() *table {
	return &table{rates: map[string]float64{models.BaseCurrency: 1}}
}

// Engine holds the process-wide rate table. Construct one at startup and
// share it. Readers never block; a Refresh swaps the whole table.
type Engine struct {
	current atomic.Pointer[table]
	fetched atomic.Bool // a network fetch succeeded in this process

	client    *http.Client
	url       string
	snapshots SnapshotStore
	bus       *events.Bus
	logger    *zap.Logger
	printer   *message.Printer
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient overrides the HTTP client used for rate fetches.
func WithHTTPClient(c *http.Client) Option { return func(e *Engine) { e.client = c } }

// WithProviderURL overrides the rate provider endpoint.
func WithProviderURL(url string) Option {
	return func(e *Engine) {
		if url != "" {
			e.url = url
		}
	}
}

// WithSnapshotStore enables persistence and rehydration of the table.
func WithSnapshotStore(s SnapshotStore) Option { return func(e *Engine) { e.snapshots = s } }

// WithBus publishes a RatesRefreshed event after every Refresh.
func WithBus(b *events.Bus) Option { return func(e *Engine) { e.bus = b } }

// WithLogger sets the logger used for the refresh chain.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithLanguage sets the display language for FormatPrice.
func WithLanguage(tag language.Tag) Option {
	return func(e *Engine) { e.printer = message.NewPrinter(tag) }
}

// NewEngine returns an engine holding the identity table {USD: 1}.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		client:  infra.NewHTTPClient(10 * time.Second),
		url:     DefaultProviderURL,
		printer: message.NewPrinter(language.English),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = infra.OrNop(e.logger).Named("currency")
	e.current.Store(identityTable())
	return e
}

// Refresh runs the fallback chain: network, then the table already held in
// memory from an earlier successful fetch, then the persisted snapshot,
// then the identity table. It never fails; the result says which step won.
func (e *Engine) Refresh(ctx context.Context) RefreshResult {
	res := e.refresh(ctx)
	res.Count = len(e.current.Load().rates)
	e.bus.RatesRefreshed(string(res.Source), res.Count)
	return res
}

func (e *Engine) refresh(ctx context.Context) RefreshResult {
	rates, err := e.fetch(ctx)
	if err == nil {
		t := &table{rates: rates, fetchedAt: time.Now().UTC()}
		e.current.Store(t)
		e.fetched.Store(true)
		e.logger.Info("rates fetched", zap.Int("count", len(rates)))
		if e.snapshots != nil {
			snap := models.RateSnapshot{Base: models.BaseCurrency, Rates: rates, FetchedAt: t.fetchedAt}
			if serr := e.snapshots.SaveRates(snap); serr != nil {
				e.logger.Warn("persist rate snapshot", zap.Error(serr))
			}
		}
		return RefreshResult{Source: SourceNetwork}
	}
	e.logger.Warn("rate fetch failed", zap.String("url", e.url), zap.Error(err))

	if e.fetched.Load() {
		e.logger.Info("keeping in-memory rates from earlier fetch")
		return RefreshResult{Source: SourceMemory, Err: err}
	}

	if e.snapshots != nil {
		snap, serr := e.snapshots.LoadRates()
		if serr == nil {
			var rates map[string]float64
			if rates, serr = normalize(snap.Rates); serr == nil {
				e.current.Store(&table{rates: rates, fetchedAt: snap.FetchedAt})
				e.logger.Info("rates rehydrated from snapshot",
					zap.Int("count", len(rates)), zap.Time("fetched_at", snap.FetchedAt))
				return RefreshResult{Source: SourceSnapshot, Err: err}
			}
		}
		e.logger.Info("no usable rate snapshot", zap.Error(serr))
	}

	e.logger.Info("using identity rate table")
	return RefreshResult{Source: SourceDefault, Err: err}
}

type providerResponse struct {
	Rates map[string]float64 `json:"rates"`
}

func (e *Engine) fetch(ctx context.Context) (map[string]float64, error) {
	body, err := infra.DoGet(ctx, e.client, e.url, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp providerResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	return normalize(resp.Rates)
}

// normalize uppercases codes, drops non-positive or non-finite rates and
// injects USD:1 when missing. An empty result is an error.
func normalize(in map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(in)+1)
	for code, r := range in {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) {
			continue
		}
		out[code] = r
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rates: empty table")
	}
	if _, ok := out[models.BaseCurrency]; !ok {
		out[models.BaseCurrency] = 1
	}
	return out, nil
}

// Rate returns the rate for code, or 1 when the code is unknown.
func (e *Engine) Rate(code string) float64 {
	if r, ok := e.current.Load().rates[normCode(code)]; ok {
		return r
	}
	return 1
}

// Known reports whether code is present in the current table.
func (e *Engine) Known(code string) bool {
	_, ok := e.current.Load().rates[normCode(code)]
	return ok
}

// Rates returns a copy of the current table.
func (e *Engine) Rates() map[string]float64 {
	cur := e.current.Load().rates
	out := make(map[string]float64, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// FetchedAt is when the current table was fetched; zero for the identity table.
func (e *Engine) FetchedAt() time.Time {
	return e.current.Load().fetchedAt
}

// CurrencyList returns the known codes, sorted.
func (e *Engine) CurrencyList() []string {
	cur := e.current.Load().rates
	codes := make([]string, 0, len(cur))
	for k := range cur {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
}

// FormatPrice renders amountUSD in code. Codes the formatter does not know
// as ISO-4217 are rendered as "CODE 12.34".
func (e *Engine) FormatPrice(amountUSD float64, code string) string {
	code = normCode(code)
	if code == "" {
		code = models.BaseCurrency
	}
	local := decimal.NewFromFloat(finite(amountUSD)).
		Mul(decimal.NewFromFloat(e.Rate(code))).
		Round(2)

	unit, err := currency.ParseISO(code)
	if err != nil {
		return code + " " + local.StringFixed(2)
	}
	return e.printer.Sprint(currency.Symbol(unit.Amount(local.InexactFloat64())))
}

// ConvertLocalToUSD returns amount / rate(code). Zero means "no price" and
// returns 0.
func (e *Engine) ConvertLocalToUSD(amount float64, code string) float64 {
	amount = finite(amount)
	if amount == 0 {
		return 0
	}
	return amount / e.Rate(code)
}

// ConvertUSDToLocal returns amountUSD * rate(code) with two decimals, or
// "" for a zero amount.
func (e *Engine) ConvertUSDToLocal(amountUSD float64, code string) string {
	amountUSD = finite(amountUSD)
	if amountUSD == 0 {
		return ""
	}
	return decimal.NewFromFloat(amountUSD).
		Mul(decimal.NewFromFloat(e.Rate(code))).
		StringFixed(2)
}

// ParseAmount reads a user-entered amount, accepting a comma or a dot as
// the decimal separator. Blank text is not an amount.
func ParseAmount(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(text, ",", "."))
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// RoundUSD rounds a USD amount to cents.
func RoundUSD(amount float64) float64 {
	return decimal.NewFromFloat(finite(amount)).Round(2).InexactFloat64()
}

func normCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
