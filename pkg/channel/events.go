package channel

// Message types on the agent WebSocket.
const (
	// Client -> server
	typeInputAudioAppend = "input_audio.append"

	// Server -> client
	typeTranscript    = "transcript"
	typeResponseText  = "response.text"
	typeResponseAudio = "response.audio"
	typeError         = "error"
)

// message is the wire envelope. Every message carries a type; the other
// fields are populated per type.
type message struct {
	Type string `json:"type"`

	// ID correlates messages within one session.
	ID string `json:"id,omitempty"`

	// Audio carries base64-encoded audio (input frames out,
	// response segments in).
	Audio string `json:"audio,omitempty"`

	// Text carries transcript or response text.
	Text string `json:"text,omitempty"`

	// Final marks a transcript as complete rather than partial.
	Final bool `json:"final,omitempty"`

	// Message carries the error description for type "error".
	Message string `json:"message,omitempty"`
}
