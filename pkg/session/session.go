// Package session coordinates capture, the agent channel, and playback
// into a live voice conversation.
//
// All state transitions happen on a single event loop goroutine:
// callbacks from the channel and the playback queue post events to a
// channel, and the loop is the only writer of session state. Readers
// get a consistent view through Snapshot.
//
// The conversation status moves idle -> thinking when the user's
// utterance completes, thinking -> speaking when agent audio starts,
// and speaking -> idle when playback drains. The agent is never
// interrupted mid-reply: microphone frames keep flowing upstream, but
// nothing the user says cancels playback in progress.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voiceline/go-voiceline/pkg/audioio"
	"github.com/voiceline/go-voiceline/pkg/capture"
	"github.com/voiceline/go-voiceline/pkg/channel"
	"github.com/voiceline/go-voiceline/pkg/playback"
)

// Channel is the agent link the session talks through.
type Channel interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SendAudioFrame(frame []byte) error
	IsConnected() bool
	OnTranscript(fn func(text string, final bool))
	OnResponseText(fn func(text string))
	OnResponseAudio(fn func(segment []byte))
	OnError(fn func(err error))
	OnDisconnect(fn func(err error))
}

// Capture is the microphone the session reads from.
type Capture interface {
	Open(ctx context.Context) error
	Close() error
	OnFrame(fn func(frame audioio.Frame))
	IsOpen() bool
}

// Player is the playback queue the session speaks through.
type Player interface {
	Enqueue(segment []byte) error
	Clear()
	OnStart(fn func())
	OnDrain(fn func())
}

// The concrete implementations satisfy the session interfaces.
var (
	_ Channel = (*channel.Client)(nil)
	_ Capture = (*capture.Capture)(nil)
	_ Player  = (*playback.Queue)(nil)
)

// ErrSessionActive is returned by Start when the session has already
// been started.
var ErrSessionActive = errors.New("session: already active")

type eventKind int

const (
	evTranscript eventKind = iota
	evResponseText
	evPlaybackStarted
	evPlaybackDrained
	evChannelError
	evChannelClosed
)

type event struct {
	kind  eventKind
	text  string
	final bool
	err   error
}

// Snapshot is a consistent read of session state.
type Snapshot struct {
	Connected      bool   `json:"connected"`
	Capturing      bool   `json:"capturing"`
	Status         string `json:"status"`
	UserTranscript string `json:"user_transcript"`
	AgentResponse  string `json:"agent_response"`
}

// Session owns one live voice conversation.
type Session struct {
	ch      Channel
	cap     Capture
	player  Player
	logger  *slog.Logger
	metrics *MetricsCollector

	events   chan event
	quit     chan struct{}
	loopDone chan struct{}

	mu                sync.RWMutex
	started           bool
	loopRunning       bool
	stopped           bool
	status            Status
	connected         bool
	capturing         bool
	userTranscript    string
	agentResponseText string
}

// New creates a session from its three collaborators. Start wires the
// callbacks and connects.
func New(ch Channel, mic Capture, player Player, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ch:       ch,
		cap:      mic,
		player:   player,
		logger:   logger,
		metrics:  NewMetricsCollector(),
		events:   make(chan event, 256),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Metrics returns the session's per-turn metrics collector.
func (s *Session) Metrics() *MetricsCollector {
	return s.metrics
}

// Start connects the channel, opens capture, and begins the event
// loop. Any failure tears down whatever was already acquired, so a
// failed Start leaves no partial state behind.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionActive
	}
	if s.stopped {
		s.mu.Unlock()
		return errors.New("session: stopped")
	}
	s.started = true
	s.mu.Unlock()

	s.wire()

	if err := s.ch.Connect(ctx); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("session: connect: %w", err)
	}

	if err := s.cap.Open(ctx); err != nil {
		s.ch.Disconnect()
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("session: open capture: %w", err)
	}

	s.mu.Lock()
	s.status = StatusIdle
	s.connected = true
	s.capturing = true
	s.loopRunning = true
	s.mu.Unlock()

	go s.loop()

	s.logger.Info("session started")
	return nil
}

// wire registers all collaborator callbacks. Frames go straight to the
// channel and audio segments straight to the player, preserving
// arrival order; everything that mutates state goes through the loop.
func (s *Session) wire() {
	s.cap.OnFrame(func(frame audioio.Frame) {
		if err := s.ch.SendAudioFrame(frame.Bytes()); err != nil {
			if !errors.Is(err, channel.ErrNotConnected) {
				s.logger.Debug("session: frame send failed", "error", err)
			}
		}
	})

	s.ch.OnTranscript(func(text string, final bool) {
		s.post(event{kind: evTranscript, text: text, final: final})
	})
	s.ch.OnResponseText(func(text string) {
		s.post(event{kind: evResponseText, text: text})
	})
	s.ch.OnResponseAudio(func(segment []byte) {
		s.metrics.IncrementSegments()
		if err := s.player.Enqueue(segment); err != nil {
			s.logger.Warn("session: enqueue failed", "error", err)
		}
	})
	s.ch.OnError(func(err error) {
		s.post(event{kind: evChannelError, err: err})
	})
	s.ch.OnDisconnect(func(err error) {
		s.post(event{kind: evChannelClosed, err: err})
	})

	s.player.OnStart(func() {
		s.post(event{kind: evPlaybackStarted})
	})
	s.player.OnDrain(func() {
		s.post(event{kind: evPlaybackDrained})
	})
}

// post delivers an event to the loop. Events are dropped with a
// warning if the loop has stopped or fallen far behind.
func (s *Session) post(ev event) {
	select {
	case <-s.quit:
	case s.events <- ev:
	default:
		s.logger.Warn("session: event queue full, dropping event", "kind", ev.kind)
	}
}

// loop is the sole mutator of session state.
func (s *Session) loop() {
	defer close(s.loopDone)

	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev.kind {
	case evTranscript:
		s.handleTranscript(ev.text, ev.final)

	case evResponseText:
		s.mu.Lock()
		s.agentResponseText += ev.text
		s.mu.Unlock()

	case evPlaybackStarted:
		// Agent audio only follows a completed utterance. Audio that
		// shows up without one is played but does not move the status.
		s.mu.RLock()
		thinking := s.status == StatusThinking
		s.mu.RUnlock()
		if thinking {
			s.transition(StatusSpeaking)
			s.metrics.MarkFirstAudio()
		}

	case evPlaybackDrained:
		s.mu.RLock()
		speaking := s.status == StatusSpeaking
		s.mu.RUnlock()
		if speaking {
			s.transition(StatusIdle)
			s.metrics.MarkDrain()
		}

	case evChannelError:
		s.logger.Warn("session: channel error", "error", ev.err)

	case evChannelClosed:
		// The link is gone and there is no reconnect: capture and
		// status are frozen as they were so the caller can see what
		// state the conversation died in.
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.logger.Warn("session: channel closed", "error", ev.err)
	}
}

func (s *Session) handleTranscript(text string, final bool) {
	s.mu.Lock()
	s.userTranscript = text
	idle := s.status == StatusIdle
	s.mu.Unlock()

	if !final || text == "" || !idle {
		// Partial transcripts only refresh the read model, and a
		// final utterance while the agent is mid-reply never
		// interrupts it.
		return
	}

	// The utterance is complete; a new turn begins.
	s.mu.Lock()
	s.agentResponseText = ""
	s.mu.Unlock()
	s.metrics.MarkFinalTranscript()
	s.transition(StatusThinking)
}

func (s *Session) transition(to Status) {
	s.mu.Lock()
	from := s.status
	s.status = to
	s.mu.Unlock()

	if from != to {
		s.logger.Info("session: status", "from", from.String(), "to", to.String())
	}
}

// Snapshot returns a consistent view of session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Connected:      s.connected,
		Capturing:      s.capturing,
		Status:         s.status.String(),
		UserTranscript: s.userTranscript,
		AgentResponse:  s.agentResponseText,
	}
}

// Status returns the current conversation status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stop tears the session down: capture closed, channel disconnected,
// pending playback discarded, status forced to idle. Stop is
// idempotent and safe to call from any goroutine.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	loopRunning := s.loopRunning
	s.mu.Unlock()

	close(s.quit)
	if loopRunning {
		<-s.loopDone
	}

	var errs []error
	if err := s.cap.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close capture: %w", err))
	}
	if err := s.ch.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect: %w", err))
	}
	s.player.Clear()

	s.mu.Lock()
	s.status = StatusIdle
	s.connected = false
	s.capturing = false
	s.userTranscript = ""
	s.agentResponseText = ""
	s.mu.Unlock()

	s.logger.Info("session stopped", "turns", s.metrics.Turns())
	return errors.Join(errs...)
}
