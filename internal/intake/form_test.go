package intake

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reminex/client/internal/backend"
	"github.com/reminex/client/internal/barcode"
	"github.com/reminex/client/internal/currency"
	"github.com/reminex/client/internal/events"
	"github.com/reminex/client/internal/ocr"
	"github.com/reminex/client/internal/speech"
	"github.com/reminex/client/pkg/models"
)

// ── Fakes ──

type fakeBackend struct {
	mu sync.Mutex

	lookup    models.BarcodeLookup
	lookupErr error
	predict   models.ImagePrediction
	predErr   error
	createErr error

	lookups  []string
	predicts int
	created  []backend.NewProduct
}

func (b *fakeBackend) LookupBarcode(_ context.Context, code string) (models.BarcodeLookup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookups = append(b.lookups, code)
	return b.lookup, b.lookupErr
}

func (b *fakeBackend) PredictImage(context.Context, backend.File) (models.ImagePrediction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.predicts++
	return b.predict, b.predErr
}

func (b *fakeBackend) CreateProduct(_ context.Context, p backend.NewProduct) (models.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return models.Product{}, b.createErr
	}
	b.created = append(b.created, p)
	return models.Product{ID: "p1", Name: p.Name, Category: p.Category, ExpiryDate: p.ExpiryDate, Price: p.Price}, nil
}

func (b *fakeBackend) lookupCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lookups)
}

type fixedCurrency string

func (c fixedCurrency) Currency() string { return string(c) }

type divConverter map[string]float64

func (c divConverter) ConvertLocalToUSD(amount float64, code string) float64 {
	r, ok := c[code]
	if !ok {
		r = 1
	}
	return amount / r
}

// frameSource yields blank frames until its stream is closed.
type frameSource struct {
	opened atomic.Int32
	closed atomic.Int32
}

func (s *frameSource) Open(context.Context, barcode.Constraints) (barcode.Stream, error) {
	s.opened.Add(1)
	return &frameStream{src: s}, nil
}

type frameStream struct {
	src  *frameSource
	once sync.Once
}

func (st *frameStream) Next(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(2 * time.Millisecond):
	}
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func (st *frameStream) Close() error {
	st.once.Do(func() { st.src.closed.Add(1) })
	return nil
}

// codeDecoder reads code on every frame after the first `after` frames.
// An empty code never decodes.
type codeDecoder struct {
	code  string
	after int32
	seen  atomic.Int32
}

func (d *codeDecoder) Decode(image.Image) (string, error) {
	if d.seen.Add(1) <= d.after || d.code == "" {
		return "", barcode.ErrNotFound
	}
	return d.code, nil
}

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local)

func newForm(t *testing.T, be *fakeBackend, opts ...func(*Deps)) *Form {
	t.Helper()
	deps := Deps{
		Backend:  be,
		Rates:    divConverter{"EUR": 0.9},
		Currency: fixedCurrency("USD"),
		Now:      func() time.Time { return fixedNow },
	}
	for _, o := range opts {
		o(&deps)
	}
	f := New(deps)
	t.Cleanup(f.Close)
	return f
}

func strp(s string) *string { return &s }

func requireNotice(t *testing.T, err error, kind NoticeKind) *Notice {
	t.Helper()
	n, ok := AsNotice(err)
	require.True(t, ok, "expected a *Notice, got %v", err)
	assert.Equal(t, kind, n.Kind)
	return n
}

// ── Barcode autofill ──

func TestAutofillFromBarcodeQuantity(t *testing.T) {
	tests := []struct {
		quantity   string
		wantWeight string
		wantUnit   models.Unit
	}{
		{"500g", "500", models.UnitGram},
		{"1l", "1", models.UnitLiter},
		{"1.5 kg", "1.5", models.UnitKilogram},
		{"330ml", "330", models.UnitMilliliter},
	}
	for _, tt := range tests {
		t.Run(tt.quantity, func(t *testing.T) {
			be := &fakeBackend{lookup: models.BarcodeLookup{Name: "Milk", Quantity: tt.quantity, Image: "https://img/milk.png"}}
			f := newForm(t, be)

			fields, err := f.AutofillFromBarcode(context.Background(), "  4006381333931 ")
			require.NoError(t, err)
			assert.Contains(t, fields, FieldWeight)

			d := f.Draft()
			assert.Equal(t, "Milk", d.Name)
			assert.Equal(t, models.CategoryFood, d.Category)
			assert.Equal(t, tt.wantWeight, d.Weight)
			assert.Equal(t, tt.wantUnit, d.Unit)
			assert.Equal(t, "4006381333931", d.Barcode)
			assert.Equal(t, "https://img/milk.png", d.ImageURL)
			assert.Equal(t, []string{"4006381333931"}, be.lookups)
		})
	}
}

func TestAutofillUnparsedQuantityKeepsWeight(t *testing.T) {
	be := &fakeBackend{lookup: models.BarcodeLookup{Name: "Eggs", Quantity: "a dozen"}}
	f := newForm(t, be)
	f.Edit(Patch{Weight: strp("12"), Unit: unitp(models.UnitPieces)})

	_, err := f.AutofillFromBarcode(context.Background(), "123")
	require.NoError(t, err)
	d := f.Draft()
	assert.Equal(t, "12", d.Weight)
	assert.Equal(t, models.UnitPieces, d.Unit)
}

func unitp(u models.Unit) *models.Unit { return &u }

func TestAutofillEmptyBarcodeMakesNoCall(t *testing.T) {
	be := &fakeBackend{}
	f := newForm(t, be)

	_, err := f.AutofillFromBarcode(context.Background(), "   ")
	requireNotice(t, err, KindValidation)
	assert.Zero(t, be.lookupCount())
}

func TestAutofillLookupFailureLeavesDraft(t *testing.T) {
	be := &fakeBackend{lookupErr: &backend.APIError{Status: 404, Message: "Product not found"}}
	f := newForm(t, be)
	f.Edit(Patch{Name: strp("Bread"), Price: strp("2.50")})
	before := f.Draft()

	_, err := f.AutofillFromBarcode(context.Background(), "999")
	n := requireNotice(t, err, KindCollaborator)
	assert.Equal(t, "Product not found", n.Message)
	assert.Equal(t, before, f.Draft())
}

func TestAutofillSessionExpired(t *testing.T) {
	be := &fakeBackend{lookupErr: backend.ErrSessionExpired}
	f := newForm(t, be)

	_, err := f.AutofillFromBarcode(context.Background(), "999")
	requireNotice(t, err, KindSession)
}

func TestAutofillReplacesLocalImage(t *testing.T) {
	be := &fakeBackend{lookup: models.BarcodeLookup{Name: "Tea", Image: "https://img/tea.png"}}
	f := newForm(t, be)
	f.SetImageFile(ImageFile{Name: "tea.jpg", Data: []byte{1}})

	_, err := f.AutofillFromBarcode(context.Background(), "42")
	require.NoError(t, err)
	d := f.Draft()
	assert.Nil(t, d.ImageFile)
	assert.Empty(t, d.ImageFileName)
	assert.Equal(t, "https://img/tea.png", d.ImageURL)
}

// ── Camera scan ──

func TestScanOnceDecodesAndReleases(t *testing.T) {
	src := &frameSource{}
	dec := &codeDecoder{code: "4006381333931", after: 2}
	be := &fakeBackend{lookup: models.BarcodeLookup{Name: "Pencils", Quantity: "500g"}}
	f := newForm(t, be, func(d *Deps) {
		d.Scanner = barcode.NewScanner(src, dec, barcode.DefaultConstraints(), nil)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := f.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4006381333931", res.Code)
	assert.Equal(t, "Pencils", f.Draft().Name)
	assert.Equal(t, int32(1), src.closed.Load())
	assert.Equal(t, 1, be.lookupCount())
	assert.False(t, f.Scanning())
}

func TestStartScanFiresOnce(t *testing.T) {
	src := &frameSource{}
	dec := &codeDecoder{code: "111"}
	be := &fakeBackend{lookup: models.BarcodeLookup{Name: "Soap"}}
	f := newForm(t, be, func(d *Deps) {
		d.Scanner = barcode.NewScanner(src, dec, barcode.DefaultConstraints(), nil)
	})

	var calls atomic.Int32
	got := make(chan ScanResult, 4)
	require.NoError(t, f.StartScan(func(r ScanResult) {
		calls.Add(1)
		got <- r
	}))

	select {
	case r := <-got:
		assert.NoError(t, r.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("no decode")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, be.lookupCount())
}

func TestCloseReleasesCamera(t *testing.T) {
	src := &frameSource{}
	f := newForm(t, &fakeBackend{}, func(d *Deps) {
		d.Scanner = barcode.NewScanner(src, &codeDecoder{}, barcode.DefaultConstraints(), nil)
	})
	require.NoError(t, f.StartScan(nil))
	require.True(t, f.Scanning())

	f.Close()
	assert.Equal(t, int32(1), src.closed.Load())
	assert.False(t, f.Scanning())

	err := f.StartScan(nil)
	requireNotice(t, err, KindValidation)
	assert.Equal(t, int32(1), src.opened.Load())
}

func TestRestartScanStopsPrevious(t *testing.T) {
	src := &frameSource{}
	f := newForm(t, &fakeBackend{}, func(d *Deps) {
		d.Scanner = barcode.NewScanner(src, &codeDecoder{}, barcode.DefaultConstraints(), nil)
	})
	require.NoError(t, f.StartScan(nil))
	require.NoError(t, f.StartScan(nil))
	assert.Equal(t, int32(2), src.opened.Load())
	assert.Equal(t, int32(1), src.closed.Load())
	f.StopScan()
	assert.Equal(t, int32(2), src.closed.Load())
}

func TestSupersededScanOnceWaitsOnItsOwnSession(t *testing.T) {
	src := &frameSource{}
	f := newForm(t, &fakeBackend{}, func(d *Deps) {
		d.Scanner = barcode.NewScanner(src, &codeDecoder{}, barcode.DefaultConstraints(), nil)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := f.ScanOnce(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return src.opened.Load() == 1 }, time.Second, time.Millisecond)

	second, err := f.startScan(nil)
	require.NoError(t, err)

	select {
	case err := <-done:
		requireNotice(t, err, KindDegraded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded ScanOnce did not return")
	}
	assert.Equal(t, barcode.StateScanning, second.State(), "later scan must keep running")
	assert.True(t, f.Scanning())
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestScanOnceCancelLeavesLaterScan(t *testing.T) {
	src := &frameSource{}
	f := newForm(t, &fakeBackend{}, func(d *Deps) {
		d.Scanner = barcode.NewScanner(src, &codeDecoder{}, barcode.DefaultConstraints(), nil)
	})

	first, err := f.startScan(nil)
	require.NoError(t, err)
	f.stopSession(first)
	second, err := f.startScan(nil)
	require.NoError(t, err)

	// Stopping a stale session must not touch the current one.
	f.stopSession(first)
	assert.True(t, f.Scanning())
	assert.Equal(t, barcode.StateScanning, second.State())
}

func TestScanWithoutCamera(t *testing.T) {
	f := newForm(t, &fakeBackend{})
	err := f.StartScan(nil)
	requireNotice(t, err, KindCapability)
}

// ── Image prediction ──

func TestPredictRequiresImage(t *testing.T) {
	be := &fakeBackend{}
	f := newForm(t, be)

	_, err := f.PredictFromImage(context.Background())
	requireNotice(t, err, KindValidation)
	assert.Zero(t, be.predicts)
}

func TestPredictSuccess(t *testing.T) {
	be := &fakeBackend{predict: models.ImagePrediction{
		Success: true, ExpiryDateISO: "2025-03-04T00:00:00.000Z", Condition: "ripe", Days: 3,
	}}
	f := newForm(t, be)
	f.SetImageFile(ImageFile{Name: "banana.jpg", Data: []byte{0xff, 0xd8}})
	f.Edit(Patch{Name: strp("Banana")})

	summary, err := f.PredictFromImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Condition: ripe · ~3 day(s) left", summary)
	d := f.Draft()
	assert.Equal(t, "2025-03-04", d.ExpiryDate)
	assert.Equal(t, "Banana", d.Name)
}

func TestPredictFractionalDays(t *testing.T) {
	be := &fakeBackend{predict: models.ImagePrediction{
		Success: true, ExpiryDateISO: "2025-03-04", Condition: "fresh", Days: 3.5,
	}}
	f := newForm(t, be)
	f.SetImageFile(ImageFile{Name: "apple.jpg", Data: []byte{0xff, 0xd8}})

	summary, err := f.PredictFromImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Condition: fresh · ~3.5 day(s) left", summary)
	assert.Equal(t, "2025-03-04", f.Draft().ExpiryDate)
}

func TestPredictFailures(t *testing.T) {
	tests := []struct {
		name    string
		be      *fakeBackend
		wantMsg string
	}{
		{"unsuccessful", &fakeBackend{predict: models.ImagePrediction{Message: "Not a fruit"}}, "Not a fruit"},
		{"no date", &fakeBackend{predict: models.ImagePrediction{Success: true}}, msgPredictFailed},
		{"transport", &fakeBackend{predErr: errors.New("dial tcp: refused")}, msgPredictFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newForm(t, tt.be)
			f.SetImageFile(ImageFile{Name: "x.png", Data: []byte{1}})
			f.Edit(Patch{ExpiryDate: strp("2025-04-01")})

			_, err := f.PredictFromImage(context.Background())
			n := requireNotice(t, err, KindCollaborator)
			assert.Equal(t, tt.wantMsg, n.Message)
			assert.Equal(t, "2025-04-01", f.Draft().ExpiryDate)
		})
	}
}

// ── Voice ──

func TestApplyTranscriptAll(t *testing.T) {
	f := newForm(t, &fakeBackend{})
	fields := f.ApplyTranscript("Milk 2 liters food expires tomorrow", FieldAll)

	d := f.Draft()
	assert.Equal(t, "2025-03-02", d.ExpiryDate)
	assert.Equal(t, models.CategoryFood, d.Category)
	assert.Equal(t, "2", d.Weight)
	assert.Equal(t, models.UnitLiter, d.Unit)
	assert.Equal(t, "Milk", d.Name)
	assert.ElementsMatch(t, []Field{FieldExpiry, FieldCategory, FieldWeight, FieldUnit, FieldName}, fields)
}

func TestApplyTranscriptKeepsName(t *testing.T) {
	f := newForm(t, &fakeBackend{})
	f.Edit(Patch{Name: strp("Yoghurt"), Price: strp("3")})

	f.ApplyTranscript("non food expires 2025-06-30", FieldAll)
	d := f.Draft()
	assert.Equal(t, "Yoghurt", d.Name)
	assert.Equal(t, "3", d.Price)
	assert.Equal(t, models.CategoryNonFood, d.Category)
	assert.Equal(t, "2025-06-30", d.ExpiryDate)
	assert.Empty(t, d.Weight, "numbers inside a date are not a quantity")
}

func TestApplyTranscriptTargets(t *testing.T) {
	tests := []struct {
		target Field
		text   string
		check  func(t *testing.T, d Draft)
	}{
		{FieldName, "Fresh Orange Juice", func(t *testing.T, d Draft) { assert.Equal(t, "Fresh Orange Juice", d.Name) }},
		{FieldPrice, "price is 12,50 rupees", func(t *testing.T, d Draft) { assert.Equal(t, "12.5", d.Price) }},
		{FieldExpiry, "01/04/2025", func(t *testing.T, d Draft) { assert.Equal(t, "2025-04-01", d.ExpiryDate) }},
		{FieldExpiry, "இன்று", func(t *testing.T, d Draft) { assert.Equal(t, "2025-03-01", d.ExpiryDate) }},
		{FieldCategory, "it is food", func(t *testing.T, d Draft) { assert.Equal(t, models.CategoryFood, d.Category) }},
		{FieldWeight, "250 grams", func(t *testing.T, d Draft) {
			assert.Equal(t, "250", d.Weight)
			assert.Equal(t, models.UnitGram, d.Unit)
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.target)+"/"+tt.text, func(t *testing.T) {
			f := newForm(t, &fakeBackend{})
			require.NotEmpty(t, f.ApplyTranscript(tt.text, tt.target))
			tt.check(t, f.Draft())
		})
	}
}

func TestApplyTranscriptNothing(t *testing.T) {
	f := newForm(t, &fakeBackend{})
	assert.Empty(t, f.ApplyTranscript("   ", FieldAll))
	assert.Empty(t, f.ApplyTranscript("sometime soon", FieldExpiry))
	assert.Equal(t, Draft{}, f.Draft())
}

func TestListenAndApply(t *testing.T) {
	f := newForm(t, &fakeBackend{}, func(d *Deps) {
		d.Listener = speech.NewListener(speech.TextRecognizer{Transcript: " Rice 5 kg "}, nil)
	})

	text, fields, err := f.ListenAndApply(context.Background(), speech.Options{Lang: "en-US"}, FieldAll)
	require.NoError(t, err)
	assert.Equal(t, "Rice 5 kg", text)
	assert.Contains(t, fields, FieldWeight)
	d := f.Draft()
	assert.Equal(t, "5", d.Weight)
	assert.Equal(t, models.UnitKilogram, d.Unit)
	assert.Equal(t, "Rice", d.Name)
}

func TestListenAndApplyUnsupported(t *testing.T) {
	f := newForm(t, &fakeBackend{})
	_, _, err := f.ListenAndApply(context.Background(), speech.Options{}, FieldAll)
	requireNotice(t, err, KindCapability)
}

func TestSpeechNoticeKinds(t *testing.T) {
	tests := []struct {
		reason speech.Reason
		want   NoticeKind
	}{
		{speech.ReasonUnsupported, KindCapability},
		{speech.ReasonTimeout, KindDegraded},
		{speech.ReasonCancelled, KindDegraded},
		{speech.ReasonBusy, KindValidation},
		{speech.ReasonError, KindCollaborator},
	}
	for _, tt := range tests {
		n := speechNotice(&speech.Error{Reason: tt.reason})
		assert.Equal(t, tt.want, n.Kind, string(tt.reason))
	}
}

// ── Label OCR ──

func TestApplyLabelFillsOnlyEmpty(t *testing.T) {
	f := newForm(t, &fakeBackend{})
	f.Edit(Patch{Name: strp("Organic Milk")})

	fields := f.ApplyLabel(ocr.LabelFields{Name: "FRESH DAIRY MILK", Price: "250", Expiry: "12/05/2025", Quantity: "1L"})
	d := f.Draft()
	assert.Equal(t, "Organic Milk", d.Name)
	assert.Equal(t, "250", d.Price)
	assert.Equal(t, "2025-05-12", d.ExpiryDate)
	assert.Equal(t, "1", d.Weight)
	assert.Equal(t, models.UnitLiter, d.Unit)
	assert.NotContains(t, fields, FieldName)
}

type textOCR struct {
	text string
	err  error
}

func (o textOCR) Recognize(context.Context, ImageFile) (string, error) { return o.text, o.err }

func TestReadLabel(t *testing.T) {
	f := newForm(t, &fakeBackend{}, func(d *Deps) {
		d.OCR = textOCR{text: "Sunny Farm Butter Rs. 450 EXP 2025-09-30 200g"}
	})
	fields, touched, err := f.ReadLabel(context.Background(), ImageFile{Name: "label.png", Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "Sunny Farm Butter", fields.Name)
	assert.NotEmpty(t, touched)
	d := f.Draft()
	assert.Equal(t, "450", d.Price)
	assert.Equal(t, "2025-09-30", d.ExpiryDate)
	assert.Equal(t, "200", d.Weight)
	assert.Equal(t, models.UnitGram, d.Unit)
}

func TestReadLabelFailures(t *testing.T) {
	img := ImageFile{Name: "label.png", Data: []byte{1}}

	f := newForm(t, &fakeBackend{})
	_, _, err := f.ReadLabel(context.Background(), img)
	requireNotice(t, err, KindCapability)

	f = newForm(t, &fakeBackend{}, func(d *Deps) { d.OCR = textOCR{err: errors.New("engine crashed")} })
	_, _, err = f.ReadLabel(context.Background(), img)
	requireNotice(t, err, KindDegraded)

	f = newForm(t, &fakeBackend{}, func(d *Deps) { d.OCR = textOCR{text: "   "} })
	_, _, err = f.ReadLabel(context.Background(), img)
	requireNotice(t, err, KindDegraded)
}

// ── Submit ──

func fillValid(f *Form) {
	f.Edit(Patch{
		Name:       strp("Cheese"),
		ExpiryDate: strp("2025-03-10"),
		Price:      strp("10"),
		Weight:     strp("200"),
		Unit:       unitp(models.UnitGram),
	})
}

func TestSubmitConvertsPrice(t *testing.T) {
	be := &fakeBackend{}
	f := newForm(t, be, func(d *Deps) { d.Currency = fixedCurrency("EUR") })
	fillValid(f)

	p, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	require.Len(t, be.created, 1)
	sent := be.created[0]
	require.NotNil(t, sent.Price)
	assert.Equal(t, 11.11, *sent.Price)
	require.NotNil(t, sent.Weight)
	assert.Equal(t, 200.0, *sent.Weight)
	assert.Equal(t, models.CategoryFood, sent.Category)
	assert.Equal(t, Draft{}, f.Draft())
}

func TestSubmitWithRateEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rates":{"USD":1,"EUR":0.9}}`))
	}))
	defer srv.Close()

	eng := currency.NewEngine(currency.WithProviderURL(srv.URL), currency.WithHTTPClient(srv.Client()))
	require.Equal(t, currency.SourceNetwork, eng.Refresh(context.Background()).Source)

	be := &fakeBackend{}
	f := newForm(t, be, func(d *Deps) {
		d.Rates = eng
		d.Currency = fixedCurrency("EUR")
	})
	fillValid(f)

	_, err := f.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, be.created[0].Price)
	assert.Equal(t, 11.11, *be.created[0].Price)
}

func TestSubmitZeroPriceOmitted(t *testing.T) {
	be := &fakeBackend{}
	f := newForm(t, be)
	fillValid(f)
	f.Edit(Patch{Price: strp("0")})

	_, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Nil(t, be.created[0].Price)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		patch Patch
	}{
		{"no name", Patch{Name: strp("  ")}},
		{"no expiry", Patch{ExpiryDate: strp("")}},
		{"bad expiry", Patch{ExpiryDate: strp("next week")}},
		{"past expiry", Patch{ExpiryDate: strp("2025-02-28")}},
		{"weight without unit", Patch{Unit: unitp("")}},
		{"bad weight", Patch{Weight: strp("-5")}},
		{"bad unit", Patch{Unit: unitp("oz")}},
		{"bad price", Patch{Price: strp("ten")}},
		{"negative price", Patch{Price: strp("-1")}},
		{"bad category", Patch{Category: catp("Toys")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := &fakeBackend{}
			f := newForm(t, be)
			fillValid(f)
			f.Edit(tt.patch)

			_, err := f.Submit(context.Background())
			requireNotice(t, err, KindValidation)
			assert.Empty(t, be.created)
		})
	}
}

func catp(c models.Category) *models.Category { return &c }

func TestSubmitTodayIsValid(t *testing.T) {
	be := &fakeBackend{}
	f := newForm(t, be)
	fillValid(f)
	f.Edit(Patch{ExpiryDate: strp("2025-03-01")})

	_, err := f.Submit(context.Background())
	require.NoError(t, err)
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	be := &fakeBackend{createErr: &backend.APIError{Status: 400, Message: "Plan limit reached"}}
	f := newForm(t, be)
	fillValid(f)
	before := f.Draft()

	_, err := f.Submit(context.Background())
	n := requireNotice(t, err, KindCollaborator)
	assert.Equal(t, "Plan limit reached", n.Message)
	assert.Equal(t, before, f.Draft())
}

// ── Events ──

func TestDraftUpdatesPublished(t *testing.T) {
	bus := events.New()
	var mu sync.Mutex
	var got []events.DraftUpdated
	handler := func(e events.DraftUpdated) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}
	require.NoError(t, bus.Subscribe(events.TopicDraftUpdated, handler))

	f := newForm(t, &fakeBackend{}, func(d *Deps) { d.Bus = bus })
	f.Edit(Patch{Name: strp("Jam")})
	f.Edit(Patch{})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, f.ID, got[0].DraftID)
	assert.Equal(t, "manual", got[0].Channel)
	assert.Equal(t, []string{"name"}, got[0].Fields)
}

func TestConcurrentChannelsDoNotClobber(t *testing.T) {
	be := &fakeBackend{lookup: models.BarcodeLookup{Name: "Oats", Quantity: "1kg"}}
	f := newForm(t, be)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); _, _ = f.AutofillFromBarcode(context.Background(), "77") }()
	go func() { defer wg.Done(); f.Edit(Patch{Price: strp("4.20")}) }()
	go func() { defer wg.Done(); f.ApplyTranscript("expires 2025-12-01", FieldExpiry) }()
	wg.Wait()

	d := f.Draft()
	assert.Equal(t, "Oats", d.Name)
	assert.Equal(t, "4.20", d.Price)
	assert.Equal(t, "2025-12-01", d.ExpiryDate)
	assert.Equal(t, "1", d.Weight)
}

func TestDictateNothingUsable(t *testing.T) {
	f := newForm(t, &fakeBackend{})
	_, err := f.Dictate("hmm", FieldPrice)
	requireNotice(t, err, KindDegraded)

	fields, err := f.Dictate("5 dollars", FieldPrice)
	require.NoError(t, err)
	assert.Equal(t, []Field{FieldPrice}, fields)
	assert.Equal(t, "5", f.Draft().Price)
}
