package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/reminex/client/internal/infra"
)

// ErrUnsupported means no text recognizer is configured.
var ErrUnsupported = errors.New("ocr: text recognition not available")

// Recognizer turns an image into plain text.
type Recognizer interface {
	Recognize(ctx context.Context, img infra.File) (string, error)
}

// HOCRRecognizer posts the image to an OCR service that answers with hOCR
// (e.g. a tesseract server with the hocr config) and returns the text of
// each recognised line.
type HOCRRecognizer struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHOCRRecognizer returns a recognizer, or nil when endpoint is empty.
func NewHOCRRecognizer(endpoint string, client *http.Client, logger *zap.Logger) *HOCRRecognizer {
	if endpoint == "" {
		return nil
	}
	if client == nil {
		client = infra.NewHTTPClient(0)
	}
	return &HOCRRecognizer{endpoint: endpoint, client: client, logger: infra.OrNop(logger).Named("ocr")}
}

// Recognize implements Recognizer.
func (r *HOCRRecognizer) Recognize(ctx context.Context, img infra.File) (string, error) {
	if r == nil {
		return "", ErrUnsupported
	}
	body, contentType, err := infra.NewMultipart().File("file", img).Encode()
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", infra.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &infra.ErrHTTP{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(msg)}
	}

	text, err := parseHOCR(resp.Body)
	if err != nil {
		return "", err
	}
	r.logger.Debug("recognized", zap.String("file", img.Name), zap.Int("chars", len(text)))
	return text, nil
}

// parseHOCR returns one line of text per .ocr_line element. Documents
// without line markup fall back to the body text.
func parseHOCR(rd io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(rd)
	if err != nil {
		return "", fmt.Errorf("parse hOCR: %w", err)
	}

	var lines []string
	doc.Find(".ocr_line").Each(func(_ int, sel *goquery.Selection) {
		var words []string
		sel.Find(".ocrx_word").Each(func(_ int, w *goquery.Selection) {
			if t := strings.TrimSpace(w.Text()); t != "" {
				words = append(words, t)
			}
		})
		line := strings.Join(words, " ")
		if line == "" {
			line = strings.Join(strings.Fields(sel.Text()), " ")
		}
		if line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return strings.Join(lines, "\n"), nil
}

// Extract recognises img and parses the label fields.
func Extract(ctx context.Context, rec Recognizer, img infra.File) (LabelFields, string, error) {
	if rec == nil {
		return LabelFields{}, "", ErrUnsupported
	}
	text, err := rec.Recognize(ctx, img)
	if err != nil {
		return LabelFields{}, "", err
	}
	return ParseLabel(text), text, nil
}
