package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voiceline/go-voiceline/pkg/audioio"
)

func testConfig() audioio.Config {
	cfg := audioio.DefaultConfig()
	cfg.FrameDuration = 5 * time.Millisecond
	return cfg
}

func TestCapture_DeliversFrames(t *testing.T) {
	src := audioio.NewMockSource(testConfig(), nil, audioio.WithSineWave(440, 0.5))
	c := New(src, nil)

	var frames atomic.Int64
	c.OnFrame(func(frame audioio.Frame) {
		require.Equal(t, 24000, frame.SampleRate)
		frames.Add(1)
	})

	require.NoError(t, c.Open(context.Background()))
	require.True(t, c.IsOpen())

	require.Eventually(t, func() bool {
		return frames.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	// A sine wave has measurable energy.
	require.Greater(t, c.Level(), 0.0)

	require.NoError(t, c.Close())
}

func TestCapture_OpenIdempotent(t *testing.T) {
	src := audioio.NewMockSource(testConfig(), nil)
	c := New(src, nil)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Open(ctx))
}

func TestCapture_NoFramesAfterClose(t *testing.T) {
	src := audioio.NewMockSource(testConfig(), nil)
	c := New(src, nil)

	var frames atomic.Int64
	c.OnFrame(func(audioio.Frame) { frames.Add(1) })

	require.NoError(t, c.Open(context.Background()))
	require.Eventually(t, func() bool {
		return frames.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.False(t, c.IsOpen())

	seen := frames.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, seen, frames.Load(), "frames delivered after Close")

	// Close is idempotent.
	require.NoError(t, c.Close())
}

func TestCapture_OpenFailureIsUnavailable(t *testing.T) {
	src := audioio.NewMockSource(testConfig(), nil)
	require.NoError(t, src.Close())

	c := New(src, nil)
	err := c.Open(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCaptureUnavailable))
	require.False(t, c.IsOpen())
}
