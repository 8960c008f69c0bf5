// Package capture wraps an audio input device behind a push-style API.
//
// Callers register a frame callback, open the capture, and receive
// fixed-size microphone frames until the capture is closed. Device
// failures at open time are reported as ErrCaptureUnavailable so the
// caller can degrade gracefully instead of crashing.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/voiceline/go-voiceline/pkg/audioio"
)

// ErrCaptureUnavailable indicates the audio input device could not be
// opened (missing hardware, permission denied, device busy).
var ErrCaptureUnavailable = errors.New("capture: device unavailable")

// Capture reads frames from an audioio.Source and pushes them to a
// registered callback on a dedicated pump goroutine.
type Capture struct {
	src    audioio.Source
	logger *slog.Logger

	mu      sync.Mutex
	open    bool
	closed  bool
	onFrame func(audioio.Frame)
	doneCh  chan struct{}

	framesDelivered atomic.Int64
	levelBits       atomic.Uint64 // RMS of the last frame, float64 bits
}

// New creates a capture around src. The source must not be started;
// Open owns its lifecycle.
func New(src audioio.Source, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{src: src, logger: logger}
}

// OnFrame registers the frame callback. Register before Open; frames
// that arrive with no callback registered are dropped.
func (c *Capture) OnFrame(fn func(audioio.Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = fn
}

// Open starts the underlying device and the pump goroutine. Opening an
// already open capture is a no-op.
func (c *Capture) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: capture closed", ErrCaptureUnavailable)
	}
	if c.open {
		return nil
	}

	if err := c.src.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	c.open = true
	c.doneCh = make(chan struct{})
	go c.pump(c.src.Stream(), c.doneCh)

	c.logger.Info("capture opened",
		"backend", c.src.Name(),
		"sample_rate", c.src.Config().SampleRate,
	)
	return nil
}

// pump forwards frames until the source's stream channel closes.
func (c *Capture) pump(stream <-chan audioio.Frame, doneCh chan struct{}) {
	defer close(doneCh)

	for frame := range stream {
		c.mu.Lock()
		fn := c.onFrame
		closed := c.closed
		c.mu.Unlock()
		if fn == nil || closed {
			continue
		}

		c.levelBits.Store(math.Float64bits(audioio.CalculateRMS(frame.Samples)))
		c.framesDelivered.Add(1)
		fn(frame)
	}
}

// Close stops the device and waits for the pump to finish, so no frame
// callback runs after Close returns. Close is idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasOpen := c.open
	c.open = false
	done := c.doneCh
	c.mu.Unlock()

	if !wasOpen {
		return c.src.Close()
	}

	err := c.src.Stop()
	<-done
	if cerr := c.src.Close(); err == nil {
		err = cerr
	}

	c.logger.Info("capture closed", "frames_delivered", c.framesDelivered.Load())
	return err
}

// IsOpen reports whether the capture is currently delivering frames.
func (c *Capture) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Level returns the RMS level of the most recent frame, 0.0 to 1.0.
func (c *Capture) Level() float64 {
	return math.Float64frombits(c.levelBits.Load())
}

// FramesDelivered returns the number of frames pushed to the callback.
func (c *Capture) FramesDelivered() int64 {
	return c.framesDelivered.Load()
}
