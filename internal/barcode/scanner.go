package barcode

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reminex/client/internal/infra"
)

// State of a scan session.
type State int32

const (
	StateScanning State = iota
	StateDecoded
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateDecoded:
		return "decoded"
	default:
		return "stopped"
	}
}

// Scanner starts decode sessions against one camera.
type Scanner struct {
	source      FrameSource
	decoder     Decoder
	constraints Constraints
	logger      *zap.Logger
}

// NewScanner returns a scanner. A nil decoder means ZXing.
func NewScanner(source FrameSource, decoder Decoder, c Constraints, logger *zap.Logger) *Scanner {
	if decoder == nil {
		decoder = NewZXingDecoder()
	}
	return &Scanner{
		source:      source,
		decoder:     decoder,
		constraints: c,
		logger:      infra.OrNop(logger).Named("barcode"),
	}
}

// Supported reports whether a camera is configured at all.
func (s *Scanner) Supported() bool { return s != nil && s.source != nil }

// Session is one live camera decode. The first decoded symbol ends the
// session: the camera is released before onDecoded runs, so no second
// decode can be delivered.
type Session struct {
	ID string

	state    atomic.Int32
	cancel   context.CancelFunc
	released chan struct{}
	done     chan struct{}

	mu   sync.Mutex
	code string
	err  error
}

// Start opens the camera and begins decoding in the background.
// onDecoded is called at most once, from the session goroutine.
func (s *Scanner) Start(ctx context.Context, onDecoded func(code string)) (*Session, error) {
	if !s.Supported() {
		return nil, ErrUnsupported
	}
	ctx, cancel := context.WithCancel(ctx)
	stream, err := s.source.Open(ctx, s.constraints)
	if err != nil {
		cancel()
		return nil, err
	}

	sess := &Session{
		ID:       uuid.NewString(),
		cancel:   cancel,
		released: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.logger.Debug("scan started", zap.String("session", sess.ID),
		zap.String("facing", string(s.constraints.Facing)),
		zap.Int("width", s.constraints.Width), zap.Int("height", s.constraints.Height))
	go s.run(ctx, sess, stream, onDecoded)
	return sess, nil
}

func (s *Scanner) run(ctx context.Context, sess *Session, stream Stream, onDecoded func(string)) {
	code, err := s.loop(ctx, sess, stream)

	_ = stream.Close()
	sess.cancel()
	close(sess.released)

	if err == nil {
		s.logger.Info("barcode decoded", zap.String("session", sess.ID), zap.String("code", code))
		if onDecoded != nil {
			onDecoded(code)
		}
	} else {
		sess.state.CompareAndSwap(int32(StateScanning), int32(StateStopped))
		s.logger.Debug("scan ended", zap.String("session", sess.ID), zap.Error(err))
	}
	close(sess.done)
}

// loop returns the first decoded code, or why no code was read.
func (s *Scanner) loop(ctx context.Context, sess *Session, stream Stream) (string, error) {
	for {
		img, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				sess.setErr(io.EOF)
				return "", err
			}
			s.logger.Warn("bad frame", zap.String("session", sess.ID), zap.Error(err))
			continue
		}

		code, err := s.decoder.Decode(img)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("decode", zap.String("session", sess.ID), zap.Error(err))
			}
			continue
		}
		if !sess.state.CompareAndSwap(int32(StateScanning), int32(StateDecoded)) {
			return "", context.Canceled
		}
		sess.mu.Lock()
		sess.code = code
		sess.mu.Unlock()
		return code, nil
	}
}

func (sess *Session) setErr(err error) {
	sess.mu.Lock()
	sess.err = err
	sess.mu.Unlock()
}

// Stop cancels the session and waits until the camera is released. It is
// safe to call any number of times, including from onDecoded.
func (sess *Session) Stop() {
	if sess == nil {
		return
	}
	sess.state.CompareAndSwap(int32(StateScanning), int32(StateStopped))
	sess.cancel()
	<-sess.released
}

// State returns the current state.
func (sess *Session) State() State { return State(sess.state.Load()) }

// Released closes once the camera has been released.
func (sess *Session) Released() <-chan struct{} { return sess.released }

// Done closes after the session has fully finished, including onDecoded.
func (sess *Session) Done() <-chan struct{} { return sess.done }

// Code returns the decoded symbol, if any.
func (sess *Session) Code() (string, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.code, sess.code != ""
}

// Err returns io.EOF when the source ran out of frames before a decode.
func (sess *Session) Err() error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.err
}
