// Package events is the in-process broadcast channel. Components publish
// application-wide signals (session expiry, rate refresh, draft changes)
// without knowing who listens.
package events

import (
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// Topics.
const (
	TopicSessionExpired = "session:expired"
	TopicRatesRefreshed = "rates:refreshed"
	TopicDraftUpdated   = "draft:updated"
)

// SessionExpired is published when the backend rejects the bearer token.
type SessionExpired struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// RatesRefreshed is published after every rate refresh.
type RatesRefreshed struct {
	Source string `json:"source"` // network, memory, snapshot, default
	Count  int    `json:"count"`
}

// DraftUpdated is published when any intake channel merges into a draft.
type DraftUpdated struct {
	DraftID string   `json:"draft_id"`
	Channel string   `json:"channel"` // manual, barcode, predict, voice, label, submit
	Fields  []string `json:"fields"`
}

// Bus wraps an EventBus with typed publish helpers. A nil *Bus is valid
// and drops everything.
type Bus struct {
	bus evbus.Bus
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// Subscribe registers fn for topic. fn must take exactly the payload type
// published on that topic.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	if b == nil {
		return nil
	}
	return b.bus.Subscribe(topic, fn)
}

// Unsubscribe removes a handler previously passed to Subscribe.
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	if b == nil {
		return nil
	}
	return b.bus.Unsubscribe(topic, fn)
}

// SessionExpired publishes a session-expired signal. Handlers run
// synchronously.
func (b *Bus) SessionExpired(reason string) {
	if b == nil {
		return
	}
	b.bus.Publish(TopicSessionExpired, SessionExpired{Reason: reason, At: time.Now()})
}

// RatesRefreshed publishes the outcome of a rate refresh.
func (b *Bus) RatesRefreshed(source string, count int) {
	if b == nil {
		return
	}
	b.bus.Publish(TopicRatesRefreshed, RatesRefreshed{Source: source, Count: count})
}

// DraftUpdated publishes which fields of a draft a channel touched.
func (b *Bus) DraftUpdated(draftID, channel string, fields []string) {
	if b == nil || len(fields) == 0 {
		return
	}
	b.bus.Publish(TopicDraftUpdated, DraftUpdated{DraftID: draftID, Channel: channel, Fields: fields})
}
