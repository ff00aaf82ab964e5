package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/reminex/client/internal/backend"
	"github.com/reminex/client/internal/barcode"
	"github.com/reminex/client/pkg/models"
	"github.com/reminex/client/pkg/utils"
)

// AutofillFromBarcode looks code up and merges the result: name, remote
// image (replacing a local picture), and weight/unit when the quantity
// parses. Category is set to Food on every successful lookup; barcoded
// items are assumed to be food. On failure the draft is untouched.
func (f *Form) AutofillFromBarcode(ctx context.Context, code string) ([]Field, error) {
	code = utils.NormalizeBarcode(code)
	if code == "" {
		return nil, notice(KindValidation, msgEmptyBarcode, backend.ErrEmptyBarcode)
	}

	info, err := f.deps.Backend.LookupBarcode(ctx, code)
	if err != nil {
		f.logger.Info("barcode lookup failed", zap.String("code", code), zap.Error(err))
		return nil, collaboratorNotice(err, msgLookupFailed)
	}

	weight, unit, hasQty := utils.ParseQuantity(info.Quantity)
	return f.update("barcode", func(d *Draft) []Field {
		touched := []Field{FieldBarcode, FieldCategory}
		d.Barcode = code
		d.Category = models.CategoryFood
		if name := strings.TrimSpace(info.Name); name != "" {
			d.Name = name
			touched = append(touched, FieldName)
		}
		if info.Image != "" {
			d.setImageURL(info.Image)
			touched = append(touched, FieldImage)
		}
		if hasQty {
			d.Weight, d.Unit = weight, models.Unit(unit)
			touched = append(touched, FieldWeight, FieldUnit)
		}
		return touched
	}), nil
}

// ScanResult is delivered once per scan session that decodes a symbol.
type ScanResult struct {
	Code   string
	Fields []Field
	Err    error // a *Notice when the lookup failed
}

// StartScan opens the camera. Any earlier scan of this form is torn down
// first. On the first decode the camera is released, the code is looked up
// and merged, and onResult (if set) receives the outcome.
func (f *Form) StartScan(onResult func(ScanResult)) error {
	_, err := f.startScan(onResult)
	return err
}

// startScan returns the session it created so callers never pick up a
// later scan started on the same form.
func (f *Form) startScan(onResult func(ScanResult)) (*barcode.Session, error) {
	if f.closed.Load() {
		return nil, notice(KindValidation, "form is closed", nil)
	}
	if !f.deps.Scanner.Supported() {
		return nil, notice(KindCapability, msgNoCamera, barcode.ErrUnsupported)
	}

	f.scanMu.Lock()
	defer f.scanMu.Unlock()
	if f.scan != nil {
		f.scan.Stop()
		f.scan = nil
	}

	sess, err := f.deps.Scanner.Start(f.ctx, func(code string) {
		fields, err := f.AutofillFromBarcode(f.ctx, code)
		if onResult != nil {
			onResult(ScanResult{Code: code, Fields: fields, Err: err})
		}
	})
	if err != nil {
		if errors.Is(err, barcode.ErrUnsupported) {
			return nil, notice(KindCapability, msgNoCamera, err)
		}
		return nil, notice(KindCapability, fmt.Sprintf("Could not start the camera: %v", err), err)
	}
	f.scan = sess
	return sess, nil
}

// ScanOnce scans until a symbol is read and merged, the frames run out, or
// ctx ends. The camera is always released on return. A scan started later
// on the same form supersedes this one, which then reports no barcode.
func (f *Form) ScanOnce(ctx context.Context) (ScanResult, error) {
	results := make(chan ScanResult, 1)
	sess, err := f.startScan(func(r ScanResult) { results <- r })
	if err != nil {
		return ScanResult{}, err
	}

	select {
	case r := <-results:
		return r, r.Err
	case <-sess.Done():
		select {
		case r := <-results:
			return r, r.Err
		default:
		}
		return ScanResult{}, notice(KindDegraded, "No barcode found", sess.Err())
	case <-ctx.Done():
		f.stopSession(sess)
		return ScanResult{}, ctx.Err()
	}
}

// stopSession stops sess and forgets it if it is still the form's scan.
func (f *Form) stopSession(sess *barcode.Session) {
	sess.Stop()
	f.scanMu.Lock()
	if f.scan == sess {
		f.scan = nil
	}
	f.scanMu.Unlock()
}

// StopScan releases the camera if a scan is running.
func (f *Form) StopScan() {
	f.scanMu.Lock()
	defer f.scanMu.Unlock()
	if f.scan != nil {
		f.scan.Stop()
		f.scan = nil
	}
}

// Scanning reports whether a scan session is live.
func (f *Form) Scanning() bool {
	f.scanMu.Lock()
	defer f.scanMu.Unlock()
	return f.scan != nil && f.scan.State() == barcode.StateScanning
}

func collaboratorNotice(err error, fallback string) *Notice {
	if errors.Is(err, backend.ErrSessionExpired) {
		return notice(KindSession, msgSessionExpired, err)
	}
	return notice(KindCollaborator, backend.MessageOf(err, fallback), err)
}
