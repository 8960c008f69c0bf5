package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voiceline/go-voiceline/pkg/audioio"
)

// fakeSink records written frames and lets tests gate the write path.
type fakeSink struct {
	cfg audioio.Config

	mu     sync.Mutex
	frames []audioio.Frame

	writeGate chan struct{} // if non-nil, Write blocks until it is closed
}

func newFakeSink() *fakeSink {
	return &fakeSink{cfg: audioio.DefaultConfig()}
}

func (s *fakeSink) Start(ctx context.Context) error { return nil }
func (s *fakeSink) Stop() error                     { return nil }
func (s *fakeSink) Close() error                    { return nil }
func (s *fakeSink) Flush(ctx context.Context) error { return nil }
func (s *fakeSink) Config() audioio.Config          { return s.cfg }
func (s *fakeSink) Name() string                    { return "fake" }

func (s *fakeSink) Write(ctx context.Context, frame audioio.Frame) error {
	if s.writeGate != nil {
		<-s.writeGate
	}
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Clear() error {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) writtenFrames() []audioio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audioio.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// segment builds a one-frame PCM segment whose samples all carry marker.
func segment(cfg audioio.Config, marker int16) []byte {
	samples := make([]int16, cfg.FrameSize()*cfg.Channels)
	for i := range samples {
		samples[i] = marker
	}
	return audioio.SamplesToBytes(samples)
}

func TestQueue_OrderAndLifecycle(t *testing.T) {
	sink := newFakeSink()
	sink.writeGate = make(chan struct{})
	dec := NewPCMDecoder(sink.cfg.SampleRate)
	q := NewQueue(sink, dec, nil)
	defer q.Close()

	var starts, drains atomic.Int32
	q.OnStart(func() { starts.Add(1) })
	q.OnDrain(func() { drains.Add(1) })

	require.NoError(t, q.Enqueue(segment(sink.cfg, 1)))
	require.NoError(t, q.Enqueue(segment(sink.cfg, 2)))
	require.NoError(t, q.Enqueue(segment(sink.cfg, 3)))

	// Playback start is announced as soon as the run begins, not when
	// the last segment finishes.
	require.Equal(t, int32(1), starts.Load())
	require.Equal(t, int32(0), drains.Load())

	close(sink.writeGate)

	require.Eventually(t, func() bool {
		return !q.Stats().Playing
	}, time.Second, 5*time.Millisecond)

	frames := sink.writtenFrames()
	require.Len(t, frames, 3)
	for i, want := range []int16{1, 2, 3} {
		require.Equal(t, want, frames[i].Samples[0], "frame %d out of order", i)
	}

	require.Equal(t, int32(1), starts.Load())
	require.Equal(t, int32(1), drains.Load())

	stats := q.Stats()
	require.Equal(t, int64(3), stats.SegmentsPlayed)
	require.Equal(t, int64(0), stats.SegmentsDropped)
}

func TestQueue_BadSegmentDropped(t *testing.T) {
	sink := newFakeSink()
	dec := NewPCMDecoder(sink.cfg.SampleRate)
	q := NewQueue(sink, dec, nil)
	defer q.Close()

	require.NoError(t, q.Enqueue(segment(sink.cfg, 1)))
	// Odd byte count cannot decode as PCM16.
	require.NoError(t, q.Enqueue([]byte{0x01, 0x02, 0x03}))
	require.NoError(t, q.Enqueue(segment(sink.cfg, 3)))

	require.Eventually(t, func() bool {
		s := q.Stats()
		return !s.Playing && s.SegmentsPlayed == 2
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, int64(1), q.Stats().SegmentsDropped)

	frames := sink.writtenFrames()
	require.Len(t, frames, 2)
	require.Equal(t, int16(1), frames[0].Samples[0])
	require.Equal(t, int16(3), frames[1].Samples[0])
}

func TestQueue_ClearSuppressesDrain(t *testing.T) {
	sink := newFakeSink()
	sink.writeGate = make(chan struct{})
	dec := NewPCMDecoder(sink.cfg.SampleRate)
	q := NewQueue(sink, dec, nil)
	defer q.Close()

	var drains atomic.Int32
	q.OnDrain(func() { drains.Add(1) })

	require.NoError(t, q.Enqueue(segment(sink.cfg, 1)))
	require.NoError(t, q.Enqueue(segment(sink.cfg, 2)))

	q.Clear()
	close(sink.writeGate)

	require.Eventually(t, func() bool {
		return !q.Stats().Playing
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, int32(0), drains.Load())
	require.Equal(t, 0, q.Stats().Pending)
}

func TestQueue_RestartAfterDrain(t *testing.T) {
	sink := newFakeSink()
	dec := NewPCMDecoder(sink.cfg.SampleRate)
	q := NewQueue(sink, dec, nil)
	defer q.Close()

	var starts, drains atomic.Int32
	q.OnStart(func() { starts.Add(1) })
	q.OnDrain(func() { drains.Add(1) })

	require.NoError(t, q.Enqueue(segment(sink.cfg, 1)))
	require.Eventually(t, func() bool {
		return drains.Load() == 1 && !q.Stats().Playing
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, q.Enqueue(segment(sink.cfg, 2)))
	require.Eventually(t, func() bool {
		return drains.Load() == 2 && !q.Stats().Playing
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, int32(2), starts.Load())
	require.Len(t, sink.writtenFrames(), 2)
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	sink := newFakeSink()
	q := NewQueue(sink, NewPCMDecoder(sink.cfg.SampleRate), nil)

	require.NoError(t, q.Close())
	require.ErrorIs(t, q.Enqueue(segment(sink.cfg, 1)), ErrClosed)
	// Close is idempotent.
	require.NoError(t, q.Close())
}
