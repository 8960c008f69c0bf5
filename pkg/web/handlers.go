package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/voiceline/go-voiceline/pkg/hub"
)

// handleStatus returns the current session snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.sess.Snapshot())
}

// handleMetrics returns per-turn latency metrics.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	m := s.sess.Metrics()
	return c.JSON(fiber.Map{
		"turns":                   m.Turns(),
		"avg_thinking_latency_ms": m.AverageThinkingLatency().Milliseconds(),
	})
}

// handleGetLogs returns recent log entries.
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// handleGetTranscript returns the recent conversation.
func (s *Server) handleGetTranscript(c *fiber.Ctx) error {
	s.convMu.RLock()
	defer s.convMu.RUnlock()
	return c.JSON(s.conversation)
}

// handleStatusWS serves the live status feed. The current snapshot is
// sent immediately so new subscribers do not wait for a change.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	c.WriteJSON(s.sess.Snapshot())
	hub.NewClient(s.statusHub, c).Run()
}

// handleLogsWS serves the live log feed, seeded with recent history.
func (s *Server) handleLogsWS(c *websocket.Conn) {
	s.logsMu.RLock()
	for _, entry := range s.logs {
		c.WriteJSON(entry)
	}
	s.logsMu.RUnlock()

	hub.NewClient(s.logHub, c).Run()
}
