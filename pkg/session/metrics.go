package session

import (
	"sync"
	"time"
)

// TurnMetrics tracks latency for one conversation turn. All durations
// are measured from the moment the user's utterance completed.
type TurnMetrics struct {
	// Timestamps for key events
	TranscriptTime time.Time // When the final transcript arrived
	FirstAudioTime time.Time // When agent audio started playing
	DrainTime      time.Time // When agent audio finished playing

	// Computed latencies (from final transcript)
	ThinkingLatency time.Duration // Transcript to first audio
	TurnLatency     time.Duration // Transcript to playback drained

	// Counts for this turn
	SegmentsReceived int // Response audio segments received
}

// MetricsCollector collects per-turn latency metrics. It is
// goroutine-safe and can be used from multiple callbacks.
type MetricsCollector struct {
	mu      sync.Mutex
	current TurnMetrics
	history []TurnMetrics // Recent turns for averaging

	onUpdate func(TurnMetrics)
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]TurnMetrics, 0, 100),
	}
}

// OnUpdate sets a callback that fires whenever metrics are updated.
func (m *MetricsCollector) OnUpdate(fn func(TurnMetrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkFinalTranscript records the end of the user's utterance. This is
// the reference point for the turn's latency measurements.
func (m *MetricsCollector) MarkFinalTranscript() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = TurnMetrics{}
	m.current.TranscriptTime = time.Now()
}

// MarkFirstAudio records when agent audio started playing.
func (m *MetricsCollector) MarkFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		if !m.current.TranscriptTime.IsZero() {
			m.current.ThinkingLatency = m.current.FirstAudioTime.Sub(m.current.TranscriptTime)
		}
		m.notify()
	}
}

// IncrementSegments counts one received response audio segment.
func (m *MetricsCollector) IncrementSegments() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.SegmentsReceived++
}

// MarkDrain records the end of agent playback and archives the turn.
func (m *MetricsCollector) MarkDrain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.DrainTime = time.Now()
	if !m.current.TranscriptTime.IsZero() {
		m.current.TurnLatency = m.current.DrainTime.Sub(m.current.TranscriptTime)
	}
	m.history = append(m.history, m.current)
	if len(m.history) > 100 {
		m.history = m.history[1:]
	}
	m.notify()
}

// Current returns a copy of the in-progress turn's metrics.
func (m *MetricsCollector) Current() TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns the number of completed turns.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// AverageThinkingLatency returns the mean transcript-to-first-audio
// latency over recent turns, or zero if no turns completed.
func (m *MetricsCollector) AverageThinkingLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total time.Duration
	var count int
	for _, turn := range m.history {
		if turn.ThinkingLatency > 0 {
			total += turn.ThinkingLatency
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}

// notify calls the update callback. Caller must hold mu.
func (m *MetricsCollector) notify() {
	if m.onUpdate != nil {
		go m.onUpdate(m.current)
	}
}
