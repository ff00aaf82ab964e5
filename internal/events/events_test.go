package events

import (
	"testing"
)

func TestSessionExpiredDelivered(t *testing.T) {
	b := New()
	var got []SessionExpired
	if err := b.Subscribe(TopicSessionExpired, func(e SessionExpired) { got = append(got, e) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.SessionExpired("401 from /products")

	if len(got) != 1 || got[0].Reason != "401 from /products" || got[0].At.IsZero() {
		t.Errorf("delivered: got %+v", got)
	}
}

func TestDraftUpdatedSkipsEmptyFields(t *testing.T) {
	b := New()
	calls := 0
	_ = b.Subscribe(TopicDraftUpdated, func(DraftUpdated) { calls++ })

	b.DraftUpdated("d1", "voice", nil)
	b.DraftUpdated("d1", "voice", []string{"expiryDate"})

	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	calls := 0
	fn := func(RatesRefreshed) { calls++ }
	_ = b.Subscribe(TopicRatesRefreshed, fn)
	b.RatesRefreshed("network", 160)
	_ = b.Unsubscribe(TopicRatesRefreshed, fn)
	b.RatesRefreshed("network", 160)

	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestNilBusIsSilent(t *testing.T) {
	var b *Bus
	b.SessionExpired("x")
	b.RatesRefreshed("default", 1)
	b.DraftUpdated("d", "manual", []string{"name"})
	if err := b.Subscribe(TopicDraftUpdated, func(DraftUpdated) {}); err != nil {
		t.Errorf("nil Subscribe: %v", err)
	}
}
