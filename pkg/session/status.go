package session

// Status is the conversation state of a live voice session.
type Status int

const (
	// StatusIdle - listening, nothing in flight.
	StatusIdle Status = iota
	// StatusThinking - the user's utterance is complete and the agent
	// has not yet started speaking.
	StatusThinking
	// StatusSpeaking - agent audio is playing.
	StatusSpeaking
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusThinking:
		return "thinking"
	case StatusSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}
