package infra

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reminex/client/internal/config"
)

func TestCacheExpiry(t *testing.T) {
	c := NewCache[string](time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("4006381333931", "Pencil")
	if v, ok := c.Get("4006381333931"); !ok || v != "Pencil" {
		t.Fatalf("Get: got %q,%v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("4006381333931"); ok {
		t.Error("entry should have expired")
	}
}

func TestCacheInvalidateAndFlush(t *testing.T) {
	c := NewCache[int](time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone after Invalidate")
	}

	c.Flush()
	if _, ok := c.Get("b"); ok {
		t.Error("b should be gone after Flush")
	}
}

func TestDoGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent {
			t.Errorf("User-Agent: got %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	body, err := DoGet(context.Background(), NewHTTPClient(0), srv.URL+"/ok", nil)
	if err != nil {
		t.Fatalf("DoGet: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != `{"ok":true}` {
		t.Errorf("body: got %q", data)
	}

	_, err = DoGet(context.Background(), NewHTTPClient(0), srv.URL+"/missing", nil)
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected ErrHTTP 404, got %v", err)
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	path := t.TempDir() + "/client.log"
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()
}

func TestNewLoggerBadLevelFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "loud"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Error("debug should be disabled at the fallback info level")
	}
}
