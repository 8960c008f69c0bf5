package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/voiceline/go-voiceline/pkg/audioio"
)

// ErrClosed is returned by Enqueue after the queue has been closed.
var ErrClosed = errors.New("playback: queue closed")

// Stats holds playback queue statistics.
type Stats struct {
	SegmentsPlayed  int64 `json:"segments_played"`
	SegmentsDropped int64 `json:"segments_dropped"`
	Pending         int   `json:"pending"`
	Playing         bool  `json:"playing"`
}

// Queue plays encoded audio segments through a sink in arrival order.
//
// A single play goroutine owns the decode-and-write path. It is started
// lazily on the first Enqueue of an idle queue and exits once the queue
// drains, so an idle queue costs nothing.
type Queue struct {
	sink   audioio.Sink
	dec    Decoder
	logger *slog.Logger

	mu      sync.Mutex
	pending [][]byte
	playing bool
	cleared bool
	closed  bool
	onStart func()
	onDrain func()
	wg      sync.WaitGroup

	segmentsPlayed  atomic.Int64
	segmentsDropped atomic.Int64
}

// NewQueue creates a playback queue writing to sink. The sink must be
// started by the caller before segments are enqueued.
func NewQueue(sink audioio.Sink, dec Decoder, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		sink:   sink,
		dec:    dec,
		logger: logger,
	}
}

// OnStart registers a callback fired when playback transitions from
// silent to audible. Set before the first Enqueue.
func (q *Queue) OnStart(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onStart = fn
}

// OnDrain registers a callback fired when the queue has played every
// enqueued segment and the sink has emptied. Set before the first
// Enqueue.
func (q *Queue) OnDrain(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDrain = fn
}

// Enqueue appends one encoded segment. It never blocks on audio I/O;
// decoding and playback happen on the play goroutine.
func (q *Queue) Enqueue(segment []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	q.pending = append(q.pending, segment)
	q.cleared = false

	if q.playing {
		q.mu.Unlock()
		return nil
	}

	q.playing = true
	onStart := q.onStart
	q.wg.Add(1)
	q.mu.Unlock()

	if onStart != nil {
		onStart()
	}
	go q.playLoop()
	return nil
}

// Clear discards all pending segments and any audio buffered in the
// sink. No drain notification fires for a cleared run.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.pending = nil
	q.cleared = true
	q.mu.Unlock()

	if err := q.sink.Clear(); err != nil {
		q.logger.Warn("playback: sink clear failed", "error", err)
	}
}

// Stats returns a snapshot of queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	pending := len(q.pending)
	playing := q.playing
	q.mu.Unlock()

	return Stats{
		SegmentsPlayed:  q.segmentsPlayed.Load(),
		SegmentsDropped: q.segmentsDropped.Load(),
		Pending:         pending,
		Playing:         playing,
	}
}

// Close discards pending audio and waits for the play goroutine to
// exit. The sink is left open; closing it is the caller's job.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.cleared = true
	q.pending = nil
	q.mu.Unlock()

	if err := q.sink.Clear(); err != nil {
		q.logger.Warn("playback: sink clear failed", "error", err)
	}
	q.wg.Wait()
	return nil
}

func (q *Queue) playLoop() {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			segment := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			q.playSegment(ctx, segment)
			continue
		}
		q.mu.Unlock()

		// Nothing queued: let audio buffered in the sink play out
		// before declaring the run over.
		if err := q.sink.Flush(ctx); err != nil {
			q.logger.Warn("playback: flush failed", "error", err)
		}

		q.mu.Lock()
		if len(q.pending) > 0 {
			// More audio arrived during the flush.
			q.mu.Unlock()
			continue
		}
		fireDrain := !q.cleared && !q.closed
		onDrain := q.onDrain
		q.mu.Unlock()

		if fireDrain && onDrain != nil {
			onDrain()
		}

		q.mu.Lock()
		if len(q.pending) > 0 && !q.closed {
			// Segments arrived while the drain callback ran; that is
			// a fresh run, so announce it.
			onStart := q.onStart
			q.mu.Unlock()
			if onStart != nil {
				onStart()
			}
			continue
		}
		q.playing = false
		q.cleared = false
		q.mu.Unlock()
		return
	}
}

// playSegment decodes and writes one segment. Segments that fail to
// decode are dropped; playback continues with the next one.
func (q *Queue) playSegment(ctx context.Context, segment []byte) {
	samples, err := q.dec.Decode(segment)
	if err != nil {
		q.segmentsDropped.Add(1)
		q.logger.Warn("playback: dropping undecodable segment",
			"codec", q.dec.Name(),
			"bytes", len(segment),
			"error", err,
		)
		return
	}

	cfg := q.sink.Config()
	if q.dec.SampleRate() != cfg.SampleRate {
		samples = audioio.Resample(samples, q.dec.SampleRate(), cfg.SampleRate)
	}

	frameSamples := cfg.FrameSize() * cfg.Channels
	for off := 0; off < len(samples); off += frameSamples {
		end := off + frameSamples
		if end > len(samples) {
			end = len(samples)
		}

		q.mu.Lock()
		abort := q.cleared || q.closed
		q.mu.Unlock()
		if abort {
			return
		}

		frame := audioio.Frame{
			Samples:    samples[off:end],
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
		}
		if err := q.sink.Write(ctx, frame); err != nil {
			q.logger.Warn("playback: sink write failed", "error", err)
			return
		}
	}

	q.segmentsPlayed.Add(1)
}
