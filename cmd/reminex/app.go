package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reminex/client/internal/backend"
	"github.com/reminex/client/internal/barcode"
	"github.com/reminex/client/internal/config"
	"github.com/reminex/client/internal/currency"
	"github.com/reminex/client/internal/events"
	"github.com/reminex/client/internal/infra"
	"github.com/reminex/client/internal/intake"
	"github.com/reminex/client/internal/ocr"
	"github.com/reminex/client/internal/session"
	"github.com/reminex/client/internal/speech"
	"github.com/reminex/client/internal/store"
)

// app is the wired client: one store, one bus, one rate engine and one
// session shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	bus     *events.Bus
	rates   *currency.Engine
	session *session.Manager
	backend *backend.Client
}

func newApp(cfg *config.Config) (*app, error) {
	logger, err := infra.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	bus := events.New()
	httpClient := infra.NewHTTPClient(cfg.Backend.Timeout())

	rates := currency.NewEngine(
		currency.WithProviderURL(cfg.Rates.URL),
		currency.WithHTTPClient(httpClient),
		currency.WithSnapshotStore(st),
		currency.WithBus(bus),
		currency.WithLogger(logger),
	)

	sess, err := session.NewManager(st, rates, bus, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	be := backend.New(cfg.Backend.BaseURL,
		backend.WithHTTPClient(httpClient),
		backend.WithTokens(sess),
		backend.WithBus(bus),
		backend.WithLogger(logger),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		bus:     bus,
		rates:   rates,
		session: sess,
		backend: be,
	}, nil
}

// Close releases the store and flushes the logger.
func (a *app) Close() {
	a.session.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// captureOptions select the capture devices for one intake form.
type captureOptions struct {
	ScanDir   string // frames to replay as the camera
	Say       string // typed dictation
	AudioFile string // recorded dictation for the transcription service
}

// intakeDeps wires a form. Channels without a device stay nil so the form
// reports them as unavailable.
func (a *app) intakeDeps(opts captureOptions) intake.Deps {
	deps := intake.Deps{
		Backend:  a.backend,
		Rates:    a.rates,
		Currency: a.session,
		Bus:      a.bus,
		Logger:   a.logger,
	}

	if opts.ScanDir != "" {
		deps.Scanner = barcode.NewScanner(barcode.DirSource{Path: opts.ScanDir}, nil, a.scanConstraints(), a.logger)
	}

	switch {
	case opts.Say != "":
		deps.Listener = speech.NewListener(speech.TextRecognizer{Transcript: opts.Say}, a.logger)
	case opts.AudioFile != "":
		deps.Listener = speech.NewListener(&speech.TranscriptionRecognizer{
			Endpoint: a.cfg.Speech.Endpoint,
			APIKey:   a.cfg.Speech.APIKey,
			Model:    a.cfg.Speech.Model,
			Audio:    speech.FileAudio(opts.AudioFile),
			Client:   infra.NewHTTPClient(a.cfg.Backend.Timeout()),
		}, a.logger)
	}

	if rec := ocr.NewHOCRRecognizer(a.cfg.OCR.Endpoint, infra.NewHTTPClient(a.cfg.Backend.Timeout()), a.logger); rec != nil {
		deps.OCR = rec
	}
	return deps
}

func (a *app) scanConstraints() barcode.Constraints {
	c := barcode.DefaultConstraints()
	if a.cfg.Scan.Width > 0 && a.cfg.Scan.Height > 0 {
		c.Width, c.Height = a.cfg.Scan.Width, a.cfg.Scan.Height
	}
	if a.cfg.Scan.Facing != "" {
		c.Facing = barcode.Facing(a.cfg.Scan.Facing)
	}
	if a.cfg.Scan.FrameIntervalMs > 0 {
		c.Interval = time.Duration(a.cfg.Scan.FrameIntervalMs) * time.Millisecond
	}
	return c
}

func (a *app) speechOptions() speech.Options {
	return speech.Options{
		Lang:    a.cfg.Speech.Language,
		Timeout: time.Duration(a.cfg.Speech.TimeoutMs) * time.Millisecond,
	}
}
