// Package backend is the HTTP client for the ReminEx REST API.
//
// Every request carries the current bearer token when one is held. A 401
// on any non-auth endpoint broadcasts a session-expired event so the whole
// client can react, and the call fails with ErrSessionExpired.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reminex/client/internal/events"
	"github.com/reminex/client/internal/infra"
	"github.com/reminex/client/pkg/models"
)

var (
	// ErrSessionExpired means the backend rejected the bearer token.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnreachable wraps transport failures.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrEmptyBarcode is returned for a blank barcode, before any request.
	ErrEmptyBarcode = errors.New("barcode is empty")
)

// APIError is a non-2xx response. Message is the server-provided
// "message" field, possibly empty.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: HTTP %d", e.Status)
	}
	return fmt.Sprintf("backend: HTTP %d: %s", e.Status, e.Message)
}

// MessageOf returns the server-provided message carried by err, or
// fallback when there is none.
func MessageOf(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// File is an in-memory upload.
type File = infra.File

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() string
}

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	bus     *events.Bus
	logger  *zap.Logger
	lookups *infra.Cache[models.BarcodeLookup]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.client = c } }

// WithTokens sets the bearer token source.
func WithTokens(ts TokenSource) Option { return func(cl *Client) { cl.tokens = ts } }

// WithBus sets the bus that receives session-expired broadcasts.
func WithBus(b *events.Bus) Option { return func(cl *Client) { cl.bus = b } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(cl *Client) { cl.logger = l } }

// New creates a client for the backend rooted at baseURL
// (e.g. "http://localhost:5000/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  infra.NewHTTPClient(30 * time.Second),
		lookups: infra.NewCache[models.BarcodeLookup](10 * time.Minute),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = infra.OrNop(c.logger).Named("backend")
	return c
}

// BaseURL returns the configured root.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends one request. body may be nil, an *infra.Multipart, or any value that
// is encoded as JSON. out, when non-nil, receives the decoded 2xx body.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case *infra.Multipart:
		data, ct, err := b.Encode()
		if err != nil {
			return err
		}
		reader, contentType = bytes.NewReader(data), ct
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("backend: marshal request: %w", err)
		}
		reader, contentType = bytes.NewReader(data), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", infra.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if err := c.checkError(resp, path); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) checkError(resp *http.Response, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized && !isAuthPath(path) {
		c.logger.Warn("token rejected", zap.String("path", path))
		c.lookups.Flush()
		c.bus.SessionExpired("401 from " + path)
		return ErrSessionExpired
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &payload)
	return &APIError{Status: resp.StatusCode, Message: payload.Message}
}

func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/auth/")
}
