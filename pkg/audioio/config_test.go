package audioio

import (
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if cfg.FrameSize() != 480 {
		t.Errorf("Expected 480 samples per frame at 24kHz/20ms, got %d", cfg.FrameSize())
	}
	if cfg.FrameBytes() != 960 {
		t.Errorf("Expected 960 bytes per frame, got %d", cfg.FrameBytes())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"negative channels", func(c *Config) { c.Channels = -1 }, true},
		{"zero frame duration", func(c *Config) { c.FrameDuration = 0 }, true},
		{"custom valid", func(c *Config) {
			c.SampleRate = 48000
			c.Channels = 2
			c.FrameDuration = 10 * time.Millisecond
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
