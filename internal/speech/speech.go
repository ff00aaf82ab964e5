// Package speech captures one spoken utterance and turns it into text.
//
// A Listener drives a single recognition attempt at a time through the
// states Idle -> Listening -> Idle. Every ListenOnce call settles exactly
// once: with a transcript, or with an *Error whose Reason says why. The
// timeout timer and the recognizer handle are released on every exit.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reminex/client/internal/infra"
)

// DefaultTimeout bounds one listening attempt.
const DefaultTimeout = 12 * time.Second

// Reason classifies a failed attempt.
type Reason string

const (
	ReasonUnsupported Reason = "unsupported"
	ReasonTimeout     Reason = "timeout"
	ReasonCancelled   Reason = "cancelled"
	ReasonBusy        Reason = "busy"
	ReasonError       Reason = "speech_error"
)

// Error is returned by ListenOnce. Code is the recognizer-reported error
// code when there is one (e.g. "no-speech", "network").
type Error struct {
	Reason Reason
	Code   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Err != nil:
		return fmt.Sprintf("speech: %s: %v", e.Code, e.Err)
	case e.Code != "":
		return "speech: " + e.Code
	case e.Err != nil:
		return fmt.Sprintf("speech: %s: %v", e.Reason, e.Err)
	}
	return "speech: " + string(e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf returns the Reason carried by err, or "" when err is not an *Error.
func ReasonOf(err error) Reason {
	var se *Error
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}

// State of a Listener.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
)

// Options for one attempt.
type Options struct {
	Lang    string        // BCP-47, e.g. "en-US", "ta-IN", "si-LK"
	Timeout time.Duration // zero means DefaultTimeout
}

// Config is what a Recognizer is asked to do: a single non-continuous
// attempt in one language returning at most one alternative.
type Config struct {
	Lang            string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// Event is the single outcome a Handle delivers: a transcript, or an error
// with an optional code.
type Event struct {
	Transcript string
	Code       string
	Err        error
}

// Handle is a running recognition. Events delivers at most one Event.
// Abort stops recognition and frees its resources; it is idempotent.
type Handle interface {
	Events() <-chan Event
	Abort()
}

// Recognizer starts recognitions.
type Recognizer interface {
	Start(ctx context.Context, cfg Config) (Handle, error)
}

// Listener runs one attempt at a time against a Recognizer. A nil
// Recognizer means dictation is unsupported on this platform.
type Listener struct {
	rec    Recognizer
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	stopCh  chan struct{}
	session string
}

// NewListener returns an idle listener.
func NewListener(rec Recognizer, logger *zap.Logger) *Listener {
	return &Listener{rec: rec, logger: infra.OrNop(logger).Named("speech"), state: StateIdle}
}

// Supported reports whether a recognizer is available.
func (l *Listener) Supported() bool { return l != nil && l.rec != nil }

// State returns the current state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// ListenOnce runs one recognition and returns the trimmed transcript.
// Without a recognizer it fails at once with ReasonUnsupported and never
// enters Listening. Stop or ctx cancellation settle the call with
// ReasonCancelled.
func (l *Listener) ListenOnce(ctx context.Context, opts Options) (string, error) {
	if !l.Supported() {
		return "", &Error{Reason: ReasonUnsupported}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	l.mu.Lock()
	if l.state == StateListening {
		l.mu.Unlock()
		return "", &Error{Reason: ReasonBusy}
	}
	stop := make(chan struct{})
	id := uuid.NewString()
	l.state, l.stopCh, l.session = StateListening, stop, id
	l.mu.Unlock()
	defer l.finish(id)

	log := l.logger.With(zap.String("session", id), zap.String("lang", opts.Lang))
	log.Debug("listening", zap.Duration("timeout", timeout))

	h, err := l.rec.Start(ctx, Config{Lang: opts.Lang, MaxAlternatives: 1})
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return "", &Error{Reason: ReasonUnsupported, Err: err}
		}
		return "", &Error{Reason: ReasonError, Err: err}
	}
	defer h.Abort()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-h.Events():
		switch {
		case !ok:
			log.Warn("recognizer closed without a result")
			return "", &Error{Reason: ReasonError}
		case ev.Err != nil || ev.Code != "":
			log.Info("recognition failed", zap.String("code", ev.Code), zap.Error(ev.Err))
			return "", &Error{Reason: ReasonError, Code: ev.Code, Err: ev.Err}
		}
		text := strings.TrimSpace(ev.Transcript)
		log.Info("recognized", zap.Int("chars", len(text)))
		return text, nil
	case <-timer.C:
		log.Info("listening timed out")
		return "", &Error{Reason: ReasonTimeout}
	case <-stop:
		log.Info("listening stopped")
		return "", &Error{Reason: ReasonCancelled}
	case <-ctx.Done():
		return "", &Error{Reason: ReasonCancelled, Err: ctx.Err()}
	}
}

func (l *Listener) finish(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == id {
		l.state, l.stopCh, l.session = StateIdle, nil, ""
	}
}

// Stop ends the current attempt, if any. The pending ListenOnce returns
// ReasonCancelled.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopCh != nil {
		close(l.stopCh)
		l.stopCh = nil
	}
}
