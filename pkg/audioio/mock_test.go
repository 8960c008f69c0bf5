package audioio

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestMockSource_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopping again should be a no-op
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

func TestMockSource_Read(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	expectedSamples := cfg.FrameSize() * cfg.Channels
	if len(frame.Samples) != expectedSamples {
		t.Errorf("Expected %d samples, got %d", expectedSamples, len(frame.Samples))
	}

	if frame.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, frame.SampleRate)
	}

	if frame.Channels != cfg.Channels {
		t.Errorf("Expected %d channels, got %d", cfg.Channels, frame.Channels)
	}
}

func TestMockSource_Stream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stream := src.Stream()
	frameCount := 0

	for {
		select {
		case <-ctx.Done():
			goto done
		case _, ok := <-stream:
			if !ok {
				goto done
			}
			frameCount++
		}
	}

done:
	if frameCount < 3 {
		t.Errorf("Expected at least 3 frames in 100ms, got %d", frameCount)
	}
}

func TestMockSource_SineWave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	hasNonZero := false
	for _, s := range frame.Samples {
		if s != 0 {
			hasNonZero = true
			break
		}
	}

	if !hasNonZero {
		t.Error("Expected non-zero samples from sine wave generator")
	}
}

func TestMockSource_StreamClosesOnStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 5 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stream := src.Stream()

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Drain anything buffered before the stop; the channel must end closed.
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("Stream channel not closed after Stop")
		}
	}
}

func TestMockSource_ReadAfterClose(t *testing.T) {
	cfg := DefaultConfig()
	src := NewMockSource(cfg, nil)

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := src.Start(ctx); err != io.ErrClosedPipe {
		t.Errorf("Expected ErrClosedPipe after Close, got %v", err)
	}
}

func TestMockSource_Stats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 5 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Consume a few frames so the generator is not throttled by overruns.
	for i := 0; i < 3; i++ {
		if _, err := src.Read(ctx); err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	}

	stats := src.Stats()
	if stats.FramesRead < 3 {
		t.Errorf("Expected at least 3 frames read, got %d", stats.FramesRead)
	}
	if stats.Backend != "mock" {
		t.Errorf("Expected backend mock, got %s", stats.Backend)
	}
	if !stats.Running {
		t.Error("Expected Running=true while started")
	}
}

func TestMockSink_WriteFlushClear(t *testing.T) {
	cfg := DefaultConfig()
	sink := NewMockSink(cfg, nil)
	defer sink.Close()

	ctx := context.Background()

	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame := Frame{
		Samples:    make([]int16, cfg.FrameSize()),
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	}

	for i := 0; i < 5; i++ {
		if err := sink.Write(ctx, frame); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	stats := sink.Stats()
	if stats.FramesWritten != 5 {
		t.Errorf("Expected 5 frames written, got %d", stats.FramesWritten)
	}
	if stats.BufferedSamples == 0 {
		t.Error("Expected buffered samples before Flush")
	}

	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	stats = sink.Stats()
	if stats.BufferedSamples != 0 {
		t.Errorf("Expected empty buffer after Flush, got %d samples", stats.BufferedSamples)
	}

	if err := sink.Write(ctx, frame); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := sink.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	stats = sink.Stats()
	if stats.BufferedSamples != 0 {
		t.Errorf("Expected empty buffer after Clear, got %d samples", stats.BufferedSamples)
	}
}

func TestMockSink_WriteWhenStopped(t *testing.T) {
	cfg := DefaultConfig()
	sink := NewMockSink(cfg, nil)
	defer sink.Close()

	ctx := context.Background()
	frame := Frame{Samples: []int16{1, 2, 3}, SampleRate: cfg.SampleRate, Channels: 1}

	if err := sink.Write(ctx, frame); err != io.ErrClosedPipe {
		t.Errorf("Expected ErrClosedPipe before Start, got %v", err)
	}

	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sink.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := sink.Write(ctx, frame); err != io.ErrClosedPipe {
		t.Errorf("Expected ErrClosedPipe after Stop, got %v", err)
	}
}
