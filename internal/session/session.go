// Package session owns the signed-in state: the bearer token and the
// user's currency preference. Both live in the durable store; the manager
// keeps a cached copy for lock-light reads.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/reminex/client/internal/events"
	"github.com/reminex/client/internal/infra"
	"github.com/reminex/client/pkg/models"
)

// ErrUnknownCurrency is returned by ChangeCurrency for a code that is not
// in the rate table.
var ErrUnknownCurrency = errors.New("unknown currency")

// Store is the persistence the manager needs.
type Store interface {
	Token() (string, error)
	SetToken(string) error
	ClearToken() error
	Currency() (string, error)
	SetCurrency(string) error
}

// Catalog tells whether a currency code is selectable.
type Catalog interface {
	Known(code string) bool
}

// Manager is safe for concurrent use.
type Manager struct {
	store   Store
	catalog Catalog
	bus     *events.Bus
	logger  *zap.Logger

	mu       sync.RWMutex
	token    string
	currency string
}

// NewManager loads the persisted token and currency and subscribes to
// session-expired broadcasts so a 401 anywhere tears the session down.
func NewManager(st Store, catalog Catalog, bus *events.Bus, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		store:    st,
		catalog:  catalog,
		bus:      bus,
		logger:   infra.OrNop(logger).Named("session"),
		currency: models.BaseCurrency,
	}

	tok, err := st.Token()
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	m.token = tok

	cur, err := st.Currency()
	if err != nil {
		return nil, fmt.Errorf("load currency: %w", err)
	}
	if cur != "" {
		m.currency = cur
	}

	if err := bus.Subscribe(events.TopicSessionExpired, m.onExpired); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return m, nil
}

// Close detaches the manager from the bus.
func (m *Manager) Close() {
	_ = m.bus.Unsubscribe(events.TopicSessionExpired, m.onExpired)
}

func (m *Manager) onExpired(e events.SessionExpired) {
	m.logger.Warn("session expired", zap.String("reason", e.Reason))
	m.Teardown()
}

// Token returns the bearer token, or "" when signed out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// SignedIn reports whether a token is held.
func (m *Manager) SignedIn() bool { return m.Token() != "" }

// SetToken stores a new bearer token.
func (m *Manager) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetToken(token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	m.token = token
	return nil
}

// Teardown ends the local session. The currency preference is kept.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.ClearToken(); err != nil {
		m.logger.Error("clear token", zap.Error(err))
	}
	m.token = ""
}

// Currency returns the selected currency code (USD by default).
func (m *Manager) Currency() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currency
}

// ChangeCurrency selects and persists a new display currency. The code is
// uppercased and must be present in the catalog.
func (m *Manager) ChangeCurrency(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !validCode(code) || (m.catalog != nil && !m.catalog.Known(code)) {
		return fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetCurrency(code); err != nil {
		return fmt.Errorf("persist currency: %w", err)
	}
	m.currency = code
	m.logger.Info("currency changed", zap.String("currency", code))
	return nil
}

func validCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
