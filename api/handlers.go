package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/reminex/client/internal/backend"
	"github.com/reminex/client/internal/infra"
	"github.com/reminex/client/internal/intake"
	"github.com/reminex/client/internal/ocr"
	"github.com/reminex/client/internal/session"
	"github.com/reminex/client/pkg/models"
)

// maxUpload bounds picture uploads for prediction and label reading.
const maxUpload = 10 << 20

// ============================================================
// Health
// ============================================================

// HealthStatus is returned by /health.
type HealthStatus struct {
	Status    string    `json:"status"`
	Time      time.Time `json:"time"`
	SignedIn  bool      `json:"signed_in"`
	Currency  string    `json:"currency"`
	RatesAt   time.Time `json:"rates_fetched_at,omitempty"`
	WSClients int       `json:"ws_clients"`
	Drafts    int       `json:"drafts"`
	Camera    bool      `json:"camera"`
	Speech    bool      `json:"speech"`
	OCR       bool      `json:"ocr"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	drafts := len(s.drafts)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: HealthStatus{
			Status:    "ok",
			Time:      time.Now().UTC(),
			SignedIn:  s.svc.Session.SignedIn(),
			Currency:  s.svc.Session.Currency(),
			RatesAt:   s.svc.Rates.FetchedAt(),
			WSClients: s.wsHub.ClientCount(),
			Drafts:    drafts,
			Camera:    s.svc.Intake.Scanner.Supported(),
			Speech:    s.svc.Intake.Listener.Supported(),
			OCR:       s.svc.Intake.OCR != nil,
		},
	})
}

// ============================================================
// Rates and currency
// ============================================================

// RatesResponse is the current rate table.
type RatesResponse struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetched_at,omitempty"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: RatesResponse{
			Base:      models.BaseCurrency,
			Rates:     s.svc.Rates.Rates(),
			FetchedAt: s.svc.Rates.FetchedAt(),
		},
	})
}

// RefreshResponse reports where the rate table came from.
type RefreshResponse struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleRefreshRates(w http.ResponseWriter, r *http.Request) {
	res := s.svc.Rates.Refresh(r.Context())
	out := RefreshResponse{Source: string(res.Source), Count: res.Count}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"selected":   s.svc.Session.Currency(),
			"currencies": s.svc.Rates.CurrencyList(),
		},
	})
}

// PriceResponse is a USD amount rendered in a local currency.
type PriceResponse struct {
	USD       float64 `json:"usd"`
	Currency  string  `json:"currency"`
	Local     string  `json:"local"`
	Formatted string  `json:"formatted"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	usd, err := strconv.ParseFloat(r.URL.Query().Get("usd"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "usd must be a number")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))
	if code == "" {
		code = s.svc.Session.Currency()
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: PriceResponse{
			USD:       usd,
			Currency:  code,
			Local:     s.svc.Rates.ConvertUSDToLocal(usd, code),
			Formatted: s.svc.Rates.FormatPrice(usd, code),
		},
	})
}

// CurrencyRequest selects the display currency.
type CurrencyRequest struct {
	Currency string `json:"currency"`
}

func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	var req CurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.svc.Session.ChangeCurrency(req.Currency); err != nil {
		if errors.Is(err, session.ErrUnknownCurrency) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    CurrencyRequest{Currency: s.svc.Session.Currency()},
	})
}

// ============================================================
// Drafts
// ============================================================

// DraftResponse is a draft and the fields the last operation wrote.
type DraftResponse struct {
	ID      string           `json:"id"`
	Draft   intake.Draft     `json:"draft"`
	Fields  []intake.Field   `json:"fields,omitempty"`
	Summary string           `json:"summary,omitempty"`
	Label   *ocr.LabelFields `json:"label,omitempty"`
}

func (s *Server) newForm() *intake.Form {
	deps := s.svc.Intake
	deps.Backend = s.svc.Backend
	deps.Rates = s.svc.Rates
	deps.Currency = s.svc.Session
	deps.Bus = s.svc.Bus
	if deps.Logger == nil {
		deps.Logger = s.logger
	}
	f := intake.New(deps)

	s.mu.Lock()
	s.drafts[f.ID] = f
	s.mu.Unlock()
	return f
}

// form resolves {id}, writing a 404 when the draft is unknown.
func (s *Server) form(w http.ResponseWriter, r *http.Request) (*intake.Form, bool) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	f, ok := s.drafts[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "draft not found: "+id)
	}
	return f, ok
}

func draftResponse(f *intake.Form, fields []intake.Field) DraftResponse {
	return DraftResponse{ID: f.ID, Draft: f.Draft(), Fields: fields}
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	f := s.newForm()
	s.logger.Debug("draft created", zap.String("draft", f.ID))
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: draftResponse(f, nil)})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: draftResponse(f, nil)})
}

func (s *Server) handlePatchDraft(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}
	var p intake.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	fields := f.Edit(p)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: draftResponse(f, fields)})
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	f, ok := s.drafts[id]
	delete(s.drafts, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "draft not found: "+id)
		return
	}
	f.Close()
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"deleted": id}})
}

// BarcodeRequest carries a typed or externally scanned code.
type BarcodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleDraftBarcode(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}
	var req BarcodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	fields, err := f.AutofillFromBarcode(r.Context(), req.Code)
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: draftResponse(f, fields)})
}

// ScanResponse is a draft after a server-side camera scan.
type ScanResponse struct {
	DraftResponse
	Code string `json:"code"`
}

// handleDraftScan reads one symbol from the server's camera and merges the
// lookup. The request timeout bounds the scan.
func (s *Server) handleDraftScan(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}
	res, err := f.ScanOnce(r.Context())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			writeError(w, http.StatusGatewayTimeout, "scan timed out")
			return
		}
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ScanResponse{DraftResponse: draftResponse(f, res.Fields), Code: res.Code},
	})
}

// handleDraftPredict accepts an optional "image" upload. Without one the
// draft's current local picture is used.
func (s *Server) handleDraftPredict(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}
	if isMultipart(r) {
		img, err := readUpload(r, "image")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.SetImageFile(img)
	}
	summary, err := f.PredictFromImage(r.Context())
	if err != nil {
		writeNotice(w, err)
		return
	}
	resp := draftResponse(f, []intake.Field{intake.FieldExpiry})
	resp.Summary = summary
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

// VoiceRequest carries a transcript recognised by the caller. Target
// narrows the parse to one field; empty parses everything.
type VoiceRequest struct {
	Transcript string       `json:"transcript"`
	Target     intake.Field `json:"target,omitempty"`
}

func (s *Server) handleDraftVoice(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}
	var req VoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	fields, err := f.Dictate(req.Transcript, req.Target)
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: draftResponse(f, fields)})
}

// LabelRequest carries label text that was already recognised.
type LabelRequest struct {
	Text string `json:"text"`
}

// handleDraftLabel reads a label either from an "image" upload (through the
// configured OCR service) or from JSON text.
func (s *Server) handleDraftLabel(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}

	var (
		label  ocr.LabelFields
		fields []intake.Field
	)
	if isMultipart(r) {
		img, err := readUpload(r, "image")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		label, fields, err = f.ReadLabel(r.Context(), img)
		if err != nil {
			writeNotice(w, err)
			return
		}
	} else {
		var req LabelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		label = ocr.ParseLabel(req.Text)
		fields = f.ApplyLabel(label)
	}

	resp := draftResponse(f, fields)
	resp.Label = &label
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleDraftSubmit(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}
	p, err := f.Submit(r.Context())
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    s.productView(p, s.svc.Session.Currency()),
	})
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func readUpload(r *http.Request, field string) (infra.File, error) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return infra.File{}, errors.New("invalid multipart body: " + err.Error())
	}
	file, hdr, err := r.FormFile(field)
	if err != nil {
		return infra.File{}, errors.New("missing file field " + strconv.Quote(field))
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUpload))
	if err != nil {
		return infra.File{}, err
	}
	return infra.File{Name: hdr.Filename, ContentType: hdr.Header.Get("Content-Type"), Data: data}, nil
}

// ============================================================
// Products and plans
// ============================================================

// ProductView is a stored product with its price in the user's currency.
type ProductView struct {
	models.Product
	PriceDisplay string `json:"priceDisplay,omitempty"`
	PriceLocal   string `json:"priceLocal,omitempty"`
}

// PlanView is a plan with its price in the user's currency.
type PlanView struct {
	models.Plan
	PriceDisplay string `json:"priceDisplay"`
}

func (s *Server) productView(p models.Product, code string) ProductView {
	v := ProductView{Product: p}
	if p.Price != nil {
		v.PriceDisplay = s.svc.Rates.FormatPrice(*p.Price, code)
		v.PriceLocal = s.svc.Rates.ConvertUSDToLocal(*p.Price, code)
	}
	return v
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.svc.Backend.ListProducts(r.Context())
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	code := s.svc.Session.Currency()
	out := make([]ProductView, len(products))
	for i, p := range products {
		out[i] = s.productView(p, code)
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.svc.Backend.ListPlans(r.Context())
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	code := s.svc.Session.Currency()
	out := make([]PlanView, len(plans))
	for i, p := range plans {
		out[i] = PlanView{Plan: p, PriceDisplay: s.svc.Rates.FormatPrice(p.Price, code)}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (s *Server) writeBackendError(w http.ResponseWriter, err error) {
	s.logger.Info("backend request failed", zap.Error(err))
	switch {
	case errors.Is(err, backend.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "session expired")
	case errors.Is(err, backend.ErrUnreachable):
		writeError(w, http.StatusBadGateway, "backend unreachable")
	default:
		writeError(w, http.StatusBadGateway, backend.MessageOf(err, "backend request failed"))
	}
}
