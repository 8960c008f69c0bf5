package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voiceline/go-voiceline/pkg/audioio"
	"github.com/voiceline/go-voiceline/pkg/session"
)

type noopChannel struct{}

func (noopChannel) Connect(ctx context.Context) error { return nil }
func (noopChannel) Disconnect() error { return nil }
func (noopChannel) SendAudioFrame(frame []byte) error { return nil }
func (noopChannel) IsConnected() bool { return true }
func (noopChannel) OnTranscript(func(string, bool)) {}
func (noopChannel) OnResponseText(func(string)) {}
func (noopChannel) OnResponseAudio(func([]byte)) {}
func (noopChannel) OnError(func(error)) {}
func (noopChannel) OnDisconnect(func(error)) {}

type noopCapture struct{}

func (noopCapture) Open(ctx context.Context) error { return nil }
func (noopCapture) Close() error { return nil }
func (noopCapture) OnFrame(func(audioio.Frame)) {}
func (noopCapture) IsOpen() bool { return true }

type noopPlayer struct{}

func (noopPlayer) Enqueue(segment []byte) error { return nil }
func (noopPlayer) Clear() {}
func (noopPlayer) OnStart(func()) {}
func (noopPlayer) OnDrain(func()) {}

func testServer(t *testing.T) *Server {
	t.Helper()
	sess := session.New(noopChannel{}, noopCapture{}, noopPlayer{}, nil)
	require.NoError(t, sess.Start(context.Background()))
	t.Cleanup(func() { sess.Stop() })
	return NewServer("0", sess, nil)
}

func TestServer_Status(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("GET", "/api/status", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	require.True(t, snap.Connected)
	require.Equal(t, "idle", snap.Status)
}

func TestServer_Metrics(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("GET", "/api/metrics", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var metrics map[string]int64
	require.NoError(t, json.Unmarshal(body, &metrics))
	require.Equal(t, int64(0), metrics["turns"])
}

func TestServer_LogsAndTranscript(t *testing.T) {
	s := testServer(t)
	s.AddLog("info", "session started")
	s.AddConversation("user", "hello")
	s.AddConversation("agent", "hi there")

	req := httptest.NewRequest("GET", "/api/logs", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var logs []LogEntry
	require.NoError(t, json.Unmarshal(body, &logs))
	require.Len(t, logs, 1)
	require.Equal(t, "session started", logs[0].Message)

	req = httptest.NewRequest("GET", "/api/transcript", nil)
	resp, err = s.app.Test(req)
	require.NoError(t, err)

	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	var conv []ConversationEntry
	require.NoError(t, json.Unmarshal(body, &conv))
	require.Len(t, conv, 2)
	require.Equal(t, "user", conv[0].Role)
	require.Equal(t, "agent", conv[1].Role)
}
