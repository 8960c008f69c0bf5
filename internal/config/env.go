// Package config provides configuration helpers for voiceline commands.
package config

import (
	"fmt"
	"os"
)

// Defaults for the voiceline CLI.
const (
	DefaultDashboardPort = "8181"
	DefaultAudioBackend  = "auto"
	DefaultLogLevel      = "info"
)

// AgentURL returns the agent WebSocket URL from VOICELINE_AGENT_URL.
// Falls back to the provided default if not set.
func AgentURL(defaultURL string) string {
	if url := os.Getenv("VOICELINE_AGENT_URL"); url != "" {
		return url
	}
	return defaultURL
}

// AgentURLRequired returns the agent WebSocket URL from VOICELINE_AGENT_URL.
// Exits with a usage hint if not set.
func AgentURLRequired() string {
	url := os.Getenv("VOICELINE_AGENT_URL")
	if url == "" {
		fmt.Fprintln(os.Stderr, "Error: VOICELINE_AGENT_URL environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: VOICELINE_AGENT_URL=wss://agent.example.com/v1/live voiceline run")
		os.Exit(1)
	}
	return url
}

// APIKey returns the session credential from VOICELINE_API_KEY.
// May be empty when the agent endpoint does not require one.
func APIKey() string {
	return os.Getenv("VOICELINE_API_KEY")
}

// AudioBackend returns the audio backend from VOICELINE_AUDIO_BACKEND or default.
func AudioBackend() string {
	if b := os.Getenv("VOICELINE_AUDIO_BACKEND"); b != "" {
		return b
	}
	return DefaultAudioBackend
}

// LogLevel returns the log level from VOICELINE_LOG_LEVEL or default.
func LogLevel() string {
	if lvl := os.Getenv("VOICELINE_LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return DefaultLogLevel
}

// DashboardPort returns the dashboard port from VOICELINE_DASHBOARD_PORT or default.
func DashboardPort() string {
	if port := os.Getenv("VOICELINE_DASHBOARD_PORT"); port != "" {
		return port
	}
	return DefaultDashboardPort
}
