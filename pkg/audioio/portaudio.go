//go:build portaudio

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

func init() {
	portAudioCompiled = true
}

var paInitOnce sync.Once
var paInitErr error

// ensurePortAudio initializes the PortAudio library once per process.
// Streams share the library handle; it is released at process exit.
func ensurePortAudio() error {
	paInitOnce.Do(func() {
		paInitErr = portaudio.Initialize()
	})
	return paInitErr
}

// portAudioSource captures audio from the default input device.
type portAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	stream   *portaudio.Stream
	in       []int16
	stopCh   chan struct{}
	doneCh   chan struct{}
	streamCh chan Frame

	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := ensurePortAudio(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &portAudioSource{cfg: cfg, logger: logger}, nil
}

func (s *portAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	s.in = make([]int16, s.cfg.FrameSize()*s.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(s.cfg.Channels, 0, float64(s.cfg.SampleRate), s.cfg.FrameSize(), s.in)
	if err != nil {
		return fmt.Errorf("portaudio open input: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("portaudio start input: %w", err)
	}

	s.stream = stream
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.streamCh = make(chan Frame, 10)

	go s.captureLoop(ctx, s.stopCh, s.streamCh, s.doneCh)

	s.logger.Info("portaudio source started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
		"frame_ms", s.cfg.FrameDuration.Milliseconds(),
	)

	return nil
}

func (s *portAudioSource) captureLoop(ctx context.Context, stopCh chan struct{}, streamCh chan Frame, doneCh chan struct{}) {
	defer close(doneCh)
	defer close(streamCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			select {
			case <-stopCh:
				return
			default:
			}
			s.logger.Debug("portaudio read error", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		samples := make([]int16, len(s.in))
		copy(samples, s.in)
		frame := Frame{Samples: samples, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}

		select {
		case streamCh <- frame:
			s.framesRead.Add(1)
			s.samplesRead.Add(int64(len(samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

func (s *portAudioSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	stream := s.stream
	done := s.doneCh
	s.mu.Unlock()

	// Abort unblocks any in-flight blocking read.
	stream.Abort()
	<-done
	err := stream.Close()

	s.mu.Lock()
	s.stream = nil
	s.mu.Unlock()

	s.logger.Info("portaudio source stopped")
	return err
}

func (s *portAudioSource) Read(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()
	if ch == nil {
		return Frame{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame, ok := <-ch:
		if !ok {
			return Frame{}, io.EOF
		}
		return frame, nil
	}
}

func (s *portAudioSource) Stream() <-chan Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

func (s *portAudioSource) Config() Config { return s.cfg }
func (s *portAudioSource) Name() string   { return "portaudio" }

func (s *portAudioSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

func (s *portAudioSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		FramesRead:  s.framesRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "portaudio",
	}
}

var _ SourceWithStats = (*portAudioSource)(nil)

// portAudioSink plays audio on the default output device.
// Writes are buffered; a dedicated goroutine feeds the device in
// frame-sized blocks so callers never block on the hardware.
type portAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	running bool
	closed  bool
	stream  *portaudio.Stream
	out     []int16
	pending []int16
	doneCh  chan struct{}

	framesWritten  atomic.Int64
	samplesWritten atomic.Int64
	underruns      atomic.Int64
}

func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := ensurePortAudio(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	s := &portAudioSink{cfg: cfg, logger: logger}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

func (s *portAudioSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	s.out = make([]int16, s.cfg.FrameSize()*s.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(0, s.cfg.Channels, float64(s.cfg.SampleRate), s.cfg.FrameSize(), s.out)
	if err != nil {
		return fmt.Errorf("portaudio open output: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("portaudio start output: %w", err)
	}

	s.stream = stream
	s.running = true
	s.doneCh = make(chan struct{})
	s.pending = s.pending[:0]

	go s.playLoop(s.doneCh)

	s.logger.Info("portaudio sink started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
	)

	return nil
}

func (s *portAudioSink) playLoop(doneCh chan struct{}) {
	defer close(doneCh)

	blockSize := len(s.out)
	for {
		s.mu.Lock()
		for s.running && len(s.pending) < blockSize {
			s.cond.Wait()
		}
		if !s.running {
			s.mu.Unlock()
			return
		}
		copy(s.out, s.pending[:blockSize])
		s.pending = s.pending[blockSize:]
		s.cond.Broadcast()
		stream := s.stream
		s.mu.Unlock()

		if err := stream.Write(); err != nil {
			s.underruns.Add(1)
			s.logger.Debug("portaudio write error", "err", err)
		}
	}
}

func (s *portAudioSink) Write(ctx context.Context, frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}

	s.pending = append(s.pending, frame.Samples...)
	s.framesWritten.Add(1)
	s.samplesWritten.Add(int64(len(frame.Samples)))
	s.cond.Broadcast()

	return nil
}

// Flush blocks until the pending buffer has been handed to the device,
// then waits one frame duration for the device buffer to play out. A
// sub-frame tail is zero-padded to a full block so it plays now rather
// than leaking into the next run.
func (s *portAudioSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.running && len(s.pending) > 0 {
		s.pending = PadToBlock(s.pending, len(s.out))
		s.cond.Broadcast()
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		remaining := len(s.pending)
		running := s.running
		s.mu.Unlock()

		if !running || remaining == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.FrameDuration * 2):
	}
	return nil
}

func (s *portAudioSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = s.pending[:0]
	s.cond.Broadcast()
	return nil
}

func (s *portAudioSink) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cond.Broadcast()
	stream := s.stream
	done := s.doneCh
	s.mu.Unlock()

	<-done
	stream.Abort()
	err := stream.Close()

	s.mu.Lock()
	s.stream = nil
	s.mu.Unlock()

	s.logger.Info("portaudio sink stopped")
	return err
}

func (s *portAudioSink) Config() Config { return s.cfg }
func (s *portAudioSink) Name() string   { return "portaudio" }

func (s *portAudioSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

func (s *portAudioSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	buffered := int64(len(s.pending))
	s.mu.Unlock()

	return SinkStats{
		FramesWritten:   s.framesWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Underruns:       s.underruns.Load(),
		Running:         running,
		Backend:         "portaudio",
		BufferedSamples: buffered,
	}
}

var _ SinkWithStats = (*portAudioSink)(nil)
