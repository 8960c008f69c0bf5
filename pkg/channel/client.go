// Package channel implements the WebSocket link to the conversation
// agent.
//
// Outbound microphone frames are sent fire-and-forget; inbound agent
// messages (transcripts, response text, response audio) are demuxed to
// per-type callbacks. The client does not reconnect on its own: when
// the link drops it reports the failure once and stays down until the
// caller dials again.
package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when sending on a channel that is not
// connected.
var ErrNotConnected = errors.New("channel: not connected")

// Client is a WebSocket client for the agent channel. Safe for
// concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	stopCh    chan struct{}
	readDone  chan struct{}

	// wsMu serializes writes; gorilla allows one concurrent writer.
	wsMu sync.Mutex

	onTranscript    func(text string, final bool)
	onResponseText  func(text string)
	onResponseAudio func(segment []byte)
	onError         func(err error)
	onDisconnect    func(err error)

	framesSent   atomic.Int64
	messagesRecv atomic.Int64
}

// NewClient creates a client. Call Connect to establish the link.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("channel config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	return &Client{cfg: cfg, logger: logger}, nil
}

// OnTranscript registers the user-transcript callback. Partial
// transcripts arrive with final=false, the complete utterance with
// final=true.
func (c *Client) OnTranscript(fn func(text string, final bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = fn
}

// OnResponseText registers the agent-response-text callback.
func (c *Client) OnResponseText(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResponseText = fn
}

// OnResponseAudio registers the response-audio callback. The segment
// is the decoded payload, still in the agent's codec.
func (c *Client) OnResponseAudio(fn func(segment []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResponseAudio = fn
}

// OnError registers the callback for agent-reported and protocol
// errors. Errors do not tear down the connection.
func (c *Client) OnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// OnDisconnect registers the callback fired once when the connection
// drops. It does not fire for a deliberate Disconnect.
func (c *Client) OnDisconnect(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// Connect dials the agent endpoint and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	header := http.Header{}
	header.Set("X-Session-ID", c.cfg.SessionID)
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("channel dial %s: %w (status %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("channel dial %s: %w", c.cfg.URL, err)
	}

	c.conn = conn
	c.connected = true
	c.stopCh = make(chan struct{})
	c.readDone = make(chan struct{})

	go c.readLoop(conn, c.stopCh, c.readDone)
	go c.keepAlive(conn, c.stopCh)

	c.logger.Info("channel connected",
		"url", c.cfg.URL,
		"session_id", c.cfg.SessionID,
	)
	return nil
}

// IsConnected reports whether the link is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SessionID returns the session identifier used on the handshake.
func (c *Client) SessionID() string {
	return c.cfg.SessionID
}

// FramesSent returns the number of audio frames sent.
func (c *Client) FramesSent() int64 {
	return c.framesSent.Load()
}

// SendAudioFrame sends one microphone frame, fire-and-forget: no
// acknowledgement is expected or tracked. A write error is returned to
// the caller; if the link is actually down the read loop notices and
// tears the connection down.
func (c *Client) SendAudioFrame(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	msg := message{
		Type:  typeInputAudioAppend,
		ID:    c.cfg.SessionID,
		Audio: base64.StdEncoding.EncodeToString(frame),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("channel marshal frame: %w", err)
	}

	c.wsMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.wsMu.Unlock()
	if err != nil {
		return fmt.Errorf("channel send frame: %w", err)
	}

	c.framesSent.Add(1)
	return nil
}

// readLoop reads and demuxes inbound messages until the connection
// closes or drops.
func (c *Client) readLoop(conn *websocket.Conn, stopCh, readDone chan struct{}) {
	defer close(readDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stopCh:
				// Deliberate disconnect; stay quiet.
				return
			default:
			}
			c.teardown(err)
			return
		}

		c.messagesRecv.Add(1)
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("channel: malformed message", "error", err)
		c.fireError(fmt.Errorf("channel: malformed message: %w", err))
		return
	}

	c.mu.Lock()
	onTranscript := c.onTranscript
	onResponseText := c.onResponseText
	onResponseAudio := c.onResponseAudio
	c.mu.Unlock()

	switch msg.Type {
	case typeTranscript:
		if onTranscript != nil {
			onTranscript(msg.Text, msg.Final)
		}

	case typeResponseText:
		if onResponseText != nil {
			onResponseText(msg.Text)
		}

	case typeResponseAudio:
		segment, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			c.fireError(fmt.Errorf("channel: bad audio payload: %w", err))
			return
		}
		if onResponseAudio != nil {
			onResponseAudio(segment)
		}

	case typeError:
		c.fireError(fmt.Errorf("channel: agent error: %s", msg.Message))

	default:
		c.logger.Debug("channel: ignoring unknown message", "type", msg.Type)
	}
}

func (c *Client) fireError(err error) {
	c.mu.Lock()
	onError := c.onError
	c.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

// keepAlive pings the peer until the connection stops.
func (c *Client) keepAlive(conn *websocket.Conn, stopCh chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("channel: ping failed", "error", err)
				return
			}
		}
	}
}

// teardown handles an unexpected link failure: mark disconnected,
// close the socket, notify once. There is no automatic reconnect.
func (c *Client) teardown(cause error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	conn := c.conn
	c.conn = nil
	close(c.stopCh)
	onDisconnect := c.onDisconnect
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	c.logger.Warn("channel disconnected", "error", cause)
	if onDisconnect != nil {
		onDisconnect(cause)
	}
}

// Disconnect closes the connection deliberately. Idempotent; the
// disconnect callback does not fire.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	conn := c.conn
	c.conn = nil
	close(c.stopCh)
	readDone := c.readDone
	c.mu.Unlock()

	c.wsMu.Lock()
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.wsMu.Unlock()

	err := conn.Close()
	<-readDone

	c.logger.Info("channel disconnected", "frames_sent", c.framesSent.Load())
	return err
}
