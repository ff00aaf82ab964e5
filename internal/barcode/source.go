// Package barcode runs camera decode sessions: frames from a FrameSource
// are fed to a Decoder until the first symbol is read, then the source is
// released and the code is handed to the caller exactly once.
package barcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // frame formats
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnsupported means no camera is available.
	ErrUnsupported = errors.New("barcode: camera not available")
	// ErrNotFound means a frame held no readable symbol. Scanning continues.
	ErrNotFound = errors.New("barcode: no symbol in frame")
)

// Facing selects the camera.
type Facing string

const (
	FacingEnvironment Facing = "environment" // rear
	FacingUser        Facing = "user"
)

// Constraints is the requested capture configuration.
type Constraints struct {
	Facing   Facing
	Width    int
	Height   int
	Interval time.Duration // delay between frames
}

// DefaultConstraints asks for the rear camera at 1280x720.
func DefaultConstraints() Constraints {
	return Constraints{Facing: FacingEnvironment, Width: 1280, Height: 720, Interval: 100 * time.Millisecond}
}

// FrameSource opens a camera.
type FrameSource interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream yields frames until Close. Next returns io.EOF when the source is
// exhausted.
type Stream interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// DirSource replays captured frames from an image file or a directory of
// images (sorted by name). With Loop set it starts over at the end.
type DirSource struct {
	Path string
	Loop bool
}

// Open lists the frames. A missing path means no camera.
func (d DirSource) Open(ctx context.Context, c Constraints) (Stream, error) {
	if d.Path == "" {
		return nil, ErrUnsupported
	}
	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(d.Path)
		if err != nil {
			return nil, fmt.Errorf("read frames: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && isFrame(e.Name()) {
				files = append(files, filepath.Join(d.Path, e.Name()))
			}
		}
		sort.Strings(files)
	} else {
		files = []string{d.Path}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", ErrUnsupported, d.Path)
	}
	return &dirStream{files: files, loop: d.Loop, interval: c.Interval}, nil
}

func isFrame(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

type dirStream struct {
	mu       sync.Mutex
	files    []string
	pos      int
	loop     bool
	interval time.Duration
	started  bool
	closed   bool
}

func (s *dirStream) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, io.EOF
	}
	if s.pos >= len(s.files) {
		if !s.loop {
			s.mu.Unlock()
			return nil, io.EOF
		}
		s.pos = 0
	}
	path := s.files[s.pos]
	wait := s.started && s.interval > 0
	s.started = true
	s.pos++
	s.mu.Unlock()

	if wait {
		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func (s *dirStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
