package playback

import (
	"fmt"
	"sync"

	"gopkg.in/hraban/opus.v2"
)

// OpusDecoder decodes Opus-encoded segments to PCM16.
type OpusDecoder struct {
	mu       sync.Mutex
	dec      *opus.Decoder
	rate     int
	channels int
	buf      []int16
}

// NewOpusDecoder creates an Opus decoder producing PCM16 at the given
// rate and channel count. Opus supports 8, 12, 16, 24 and 48 kHz.
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}

	// Largest Opus frame is 120ms.
	bufSize := sampleRate * 120 / 1000 * channels

	return &OpusDecoder{
		dec:      dec,
		rate:     sampleRate,
		channels: channels,
		buf:      make([]int16, bufSize),
	}, nil
}

// Decode decodes one Opus packet. libopus decoders are stateful, so
// calls are serialized.
func (d *OpusDecoder) Decode(data []byte) ([]int16, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("opus: empty packet")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.dec.Decode(data, d.buf)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}

	out := make([]int16, n*d.channels)
	copy(out, d.buf[:n*d.channels])
	return out, nil
}

// SampleRate returns the decoder output rate.
func (d *OpusDecoder) SampleRate() int {
	return d.rate
}

// Name returns "opus".
func (d *OpusDecoder) Name() string {
	return "opus"
}

var _ Decoder = (*OpusDecoder)(nil)
