package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/reminex/client/internal/infra"
)

// ErrUnsupported is returned by a Recognizer that cannot run here.
var ErrUnsupported = errors.New("speech recognition not available")

// handle is the shared Handle implementation: one buffered event, an abort
// that cancels the work behind it.
type handle struct {
	events chan Event
	cancel context.CancelFunc
	once   sync.Once
}

func newHandle(cancel context.CancelFunc) *handle {
	return &handle{events: make(chan Event, 1), cancel: cancel}
}

func (h *handle) Events() <-chan Event { return h.events }

func (h *handle) Abort() { h.once.Do(h.cancel) }

// ── TextRecognizer ──

// TextRecognizer "hears" a fixed transcript. It backs typed dictation
// (e.g. --say on the command line).
type TextRecognizer struct {
	Transcript string
}

// Start implements Recognizer.
func (r TextRecognizer) Start(ctx context.Context, _ Config) (Handle, error) {
	_, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	h.events <- Event{Transcript: r.Transcript}
	return h, nil
}

// ── TranscriptionRecognizer ──

// AudioSource captures one utterance.
type AudioSource interface {
	Capture(ctx context.Context) (infra.File, error)
}

// FileAudio reads a recorded clip from disk.
type FileAudio string

// Capture implements AudioSource.
func (f FileAudio) Capture(context.Context) (infra.File, error) {
	clip, err := infra.ReadFile(string(f))
	if err != nil {
		return infra.File{}, fmt.Errorf("read audio: %w", err)
	}
	return clip, nil
}

// TranscriptionRecognizer posts captured audio to a Whisper-compatible
// transcription endpoint (multipart "file", "model", "language") that
// answers {"text": "..."}.
type TranscriptionRecognizer struct {
	Endpoint string
	APIKey   string
	Model    string
	Audio    AudioSource
	Client   *http.Client
}

type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Start implements Recognizer. The request runs in the background and is
// cancelled by Abort.
func (r *TranscriptionRecognizer) Start(ctx context.Context, cfg Config) (Handle, error) {
	if r == nil || r.Endpoint == "" || r.Audio == nil {
		return nil, ErrUnsupported
	}
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	go func() {
		h.events <- r.transcribe(ctx, cfg)
	}()
	return h, nil
}

func (r *TranscriptionRecognizer) transcribe(ctx context.Context, cfg Config) Event {
	clip, err := r.Audio.Capture(ctx)
	if err != nil {
		return Event{Code: "audio-capture", Err: err}
	}

	form := infra.NewMultipart().
		Field("model", r.Model).
		Field("language", baseLanguage(cfg.Lang)).
		Field("response_format", "json").
		File("file", clip)
	body, contentType, err := form.Encode()
	if err != nil {
		return Event{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Event{Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", infra.UserAgent)
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	client := r.Client
	if client == nil {
		client = infra.NewHTTPClient(0)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Event{Code: "network", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Event{Code: "network", Err: fmt.Errorf("read transcription: %w", err)}
	}
	var out transcriptionResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Error bodies are best effort; the status alone is enough.
		ev := Event{Code: "network", Err: &infra.ErrHTTP{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}}
		if decodeErr == nil && out.Error != nil && out.Error.Code != "" {
			ev.Code = out.Error.Code
		}
		return ev
	}
	if decodeErr != nil {
		return Event{Code: "bad-response", Err: fmt.Errorf("decode transcription: %w", decodeErr)}
	}
	if strings.TrimSpace(out.Text) == "" {
		return Event{Code: "no-speech"}
	}
	return Event{Transcript: out.Text}
}

// baseLanguage turns "ta-IN" into "ta"; transcription APIs take ISO-639-1.
func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}
