package channel

import (
	"fmt"
	"strings"
	"time"
)

// Config holds connection settings for the agent channel.
type Config struct {
	// URL is the agent WebSocket endpoint (ws:// or wss://).
	URL string `yaml:"url" json:"url"`

	// APIKey is sent as a bearer token on the handshake. Optional.
	APIKey string `yaml:"api_key" json:"-"`

	// SessionID identifies this conversation. Generated if empty.
	SessionID string `yaml:"session_id" json:"session_id"`

	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`

	// PingInterval is how often keepalive pings are sent.
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`
}

// DefaultConfig returns a Config with sensible defaults. URL must be
// set by the caller.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     20 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("url must use ws:// or wss:// scheme, got %q", c.URL)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake_timeout must be positive, got %v", c.HandshakeTimeout)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping_interval must be positive, got %v", c.PingInterval)
	}
	return nil
}

// WithURL returns a copy of the config with the URL set.
func (c Config) WithURL(url string) Config {
	c.URL = url
	return c
}

// WithAPIKey returns a copy of the config with the API key set.
func (c Config) WithAPIKey(key string) Config {
	c.APIKey = key
	return c
}

// WithSessionID returns a copy of the config with the session ID set.
func (c Config) WithSessionID(id string) Config {
	c.SessionID = id
	return c
}
