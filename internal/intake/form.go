// Package intake assembles a product draft from several input channels:
// manual edits, barcode scan and lookup, image spoilage prediction, voice
// dictation and label OCR. All channels write into one Draft. Each writer
// merges only the fields it owns, so interleaved channel use never clobbers
// unrelated fields.
package intake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reminex/client/internal/backend"
	"github.com/reminex/client/internal/barcode"
	"github.com/reminex/client/internal/events"
	"github.com/reminex/client/internal/infra"
	"github.com/reminex/client/internal/ocr"
	"github.com/reminex/client/internal/speech"
	"github.com/reminex/client/pkg/models"
)

// Backend is the subset of the REST client the form calls.
type Backend interface {
	LookupBarcode(ctx context.Context, code string) (models.BarcodeLookup, error)
	PredictImage(ctx context.Context, img backend.File) (models.ImagePrediction, error)
	CreateProduct(ctx context.Context, p backend.NewProduct) (models.Product, error)
}

// Converter turns a local amount into USD.
type Converter interface {
	ConvertLocalToUSD(amount float64, code string) float64
}

// CurrencySource yields the user's selected currency.
type CurrencySource interface {
	Currency() string
}

// Deps are the collaborators of a Form. Scanner, Listener and OCR may be
// nil; the matching channel then reports a capability notice.
type Deps struct {
	Backend  Backend
	Rates    Converter
	Currency CurrencySource
	Scanner  *barcode.Scanner
	Listener *speech.Listener
	OCR      ocr.Recognizer
	Bus      *events.Bus
	Logger   *zap.Logger
	Now      func() time.Time
}

// Form is one product-creation form instance. It is safe for concurrent
// use by several channels.
type Form struct {
	ID string

	deps   Deps
	logger *zap.Logger
	ctx    context.Context // form lifetime; cancelled by Close
	cancel context.CancelFunc

	mu    sync.Mutex
	draft Draft

	scanMu sync.Mutex
	scan   *barcode.Session

	listening atomic.Bool
	closed    atomic.Bool
}

// New mounts an empty form.
func New(deps Deps) *Form {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Form{
		ID:     uuid.NewString(),
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
	}
	f.logger = infra.OrNop(deps.Logger).Named("intake").With(zap.String("draft", f.ID))
	return f
}

// Draft returns a snapshot of the current draft.
func (f *Form) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// update runs fn on the draft under the lock and publishes the fields fn
// reports as written.
func (f *Form) update(channel string, fn func(d *Draft) []Field) []Field {
	f.mu.Lock()
	touched := fn(&f.draft)
	f.mu.Unlock()

	if len(touched) > 0 {
		f.logger.Debug("draft updated", zap.String("channel", channel), zap.Strings("fields", fieldNames(touched)))
		f.deps.Bus.DraftUpdated(f.ID, channel, fieldNames(touched))
	}
	return touched
}

// Edit applies a manual edit.
func (f *Form) Edit(p Patch) []Field {
	return f.update("manual", p.apply)
}

// SetImageFile selects a local picture, replacing any remote image URL.
func (f *Form) SetImageFile(img ImageFile) {
	f.update("manual", func(d *Draft) []Field {
		d.setImageFile(&img)
		return []Field{FieldImage}
	})
}

// SetImageURL sets a remote image, replacing any local picture.
func (f *Form) SetImageURL(url string) {
	f.update("manual", func(d *Draft) []Field {
		d.setImageURL(url)
		return []Field{FieldImage}
	})
}

// Reset discards the draft.
func (f *Form) Reset() {
	f.mu.Lock()
	f.draft = Draft{}
	f.mu.Unlock()
}

// Close unmounts the form: any scan is stopped and its camera released,
// any dictation this form started is cancelled.
func (f *Form) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	f.StopScan()
	if f.listening.Load() && f.deps.Listener != nil {
		f.deps.Listener.Stop()
	}
	f.cancel()
}
