// Package web provides a real-time dashboard for a live voice session:
// connection and conversation status over REST, plus live status and
// log feeds over websockets.
package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/voiceline/go-voiceline/pkg/hub"
	"github.com/voiceline/go-voiceline/pkg/session"
)

// statePollInterval is how often the session snapshot is checked for
// changes to broadcast.
const statePollInterval = 250 * time.Millisecond

// LogEntry is one log line for the dashboard.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, status, error
	Message string `json:"message"`
}

// ConversationEntry is one message in the conversation feed.
type ConversationEntry struct {
	Time    string `json:"time"`
	Role    string `json:"role"` // user, agent
	Message string `json:"message"`
}

// Server is the dashboard server. It reads session state through
// Snapshot and never mutates the session.
type Server struct {
	app    *fiber.App
	port   string
	sess   *session.Session
	logger *slog.Logger

	logsMu sync.RWMutex
	logs   []LogEntry

	convMu       sync.RWMutex
	conversation []ConversationEntry

	statusHub *hub.Hub
	logHub    *hub.Hub

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewServer creates a dashboard server for sess listening on port.
func NewServer(port string, sess *session.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		port:         port,
		sess:         sess,
		logger:       logger,
		logs:         make([]LogEntry, 0, 500),
		conversation: make([]ConversationEntry, 0, 100),
		statusHub:    hub.New("status", logger),
		logHub:       hub.New("logs", logger),
		stopCh:       make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Voiceline Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/metrics", s.handleMetrics)
	api.Get("/logs", s.handleGetLogs)
	api.Get("/transcript", s.handleGetTranscript)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	s.app = app
	return s
}

// Start runs the hubs, the state watcher, and the HTTP listener. It
// blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", "http://localhost:"+s.port)

	go s.statusHub.Run()
	go s.logHub.Run()
	go s.watchState()

	return s.app.Listen(":" + s.port)
}

// StartAsync runs Start in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server failed", "error", err)
		}
	}()
}

// watchState polls the session snapshot and broadcasts changes to
// status subscribers.
func (s *Server) watchState() {
	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()

	var last session.Snapshot
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			snap := s.sess.Snapshot()
			if snap == last {
				continue
			}

			// Derive the conversation feed from snapshot changes: a
			// completed utterance starts a turn, returning to idle
			// ends one.
			if snap.UserTranscript != last.UserTranscript && snap.Status == "thinking" {
				s.AddConversation("user", snap.UserTranscript)
			}
			if last.Status == "speaking" && snap.Status == "idle" && snap.AgentResponse != "" {
				s.AddConversation("agent", snap.AgentResponse)
			}

			last = snap
			s.statusHub.BroadcastJSON(snap)
		}
	}
}

// AddLog appends a log entry and broadcasts it to log subscribers.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > 500 {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// AddConversation appends an entry to the conversation feed.
func (s *Server) AddConversation(role, message string) {
	entry := ConversationEntry{
		Time:    time.Now().Format("15:04:05"),
		Role:    role,
		Message: message,
	}

	s.convMu.Lock()
	s.conversation = append(s.conversation, entry)
	if len(s.conversation) > 100 {
		s.conversation = s.conversation[1:]
	}
	s.convMu.Unlock()
}

// Shutdown stops the server and disconnects all subscribers.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.statusHub.Stop()
		s.logHub.Stop()
	})
	return s.app.Shutdown()
}
