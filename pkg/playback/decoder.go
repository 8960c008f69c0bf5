// Package playback implements an ordered audio playback queue.
//
// Segments of encoded audio are enqueued as they arrive from the agent,
// decoded, and played back through an audioio.Sink in arrival order.
// The queue reports lifecycle transitions (playback started, playback
// drained) through callbacks so callers can track speaking state.
package playback

import (
	"fmt"

	"github.com/voiceline/go-voiceline/pkg/audioio"
)

// Decoder turns an encoded audio segment into PCM16 samples.
type Decoder interface {
	// Decode decodes one segment. The returned samples are interleaved
	// PCM16 at the decoder's native rate.
	Decode(data []byte) ([]int16, error)

	// SampleRate returns the sample rate of decoded output in Hz.
	SampleRate() int

	// Name returns a short codec name for logging.
	Name() string
}

// PCMDecoder passes raw PCM16 little-endian bytes through unchanged.
type PCMDecoder struct {
	rate int
}

// NewPCMDecoder creates a decoder for raw PCM16 at the given rate.
func NewPCMDecoder(sampleRate int) *PCMDecoder {
	return &PCMDecoder{rate: sampleRate}
}

// Decode converts raw bytes to samples. Odd-length input is rejected
// rather than silently truncated.
func (d *PCMDecoder) Decode(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm: truncated sample (%d bytes)", len(data))
	}
	return audioio.BytesToSamples(data), nil
}

// SampleRate returns the configured sample rate.
func (d *PCMDecoder) SampleRate() int {
	return d.rate
}

// Name returns "pcm".
func (d *PCMDecoder) Name() string {
	return "pcm"
}

var _ Decoder = (*PCMDecoder)(nil)
