package gateway

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rosalabs/voice-agent/internal/audio"
	"github.com/rosalabs/voice-agent/internal/config"
	"github.com/rosalabs/voice-agent/internal/leads"
	"github.com/rosalabs/voice-agent/internal/live"
	"github.com/rosalabs/voice-agent/internal/session"
)

type fakeLiveSession struct {
	mu     sync.Mutex
	frames []audio.Frame
	closed int
}

func (s *fakeLiveSession) SendAudio(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeLiveSession) SendToolResponse(callID, name string, success bool, message string) error {
	return nil
}

func (s *fakeLiveSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeLiveSession) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeLiveSession) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type fakeDialer struct {
	mu      sync.Mutex
	session *fakeLiveSession
	handler live.Handler
}

func (d *fakeDialer) Dial(ctx context.Context, cfg live.SetupConfig, handler live.Handler) (live.Session, error) {
	d.mu.Lock()
	d.handler = handler
	d.mu.Unlock()
	handler.OnOpen()
	return d.session, nil
}

func (d *fakeDialer) currentHandler() live.Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler
}

type nopStore struct{}

func (nopStore) Save(ctx context.Context, rec leads.Record) error { return nil }
func (nopStore) Ping(ctx context.Context) error                   { return nil }
func (nopStore) Close()                                           {}

func testConfig() *config.Config {
	return &config.Config{
		GeminiModel:        "test-model",
		AgentVoice:         "Kore",
		AgentTZ:            "UTC",
		CaptureSampleRate:  16000,
		PlaybackSampleRate: 24000,
		VolumeGain:         5.0,
		ActivityThreshold:  0.05,
		WatchdogTimeout:    60,
	}
}

func dialTestServer(t *testing.T, dialer *fakeDialer) (*Gateway, *websocket.Conn) {
	t.Helper()

	gw := New(testConfig(), dialer, nopStore{})
	server := httptest.NewServer(gw.Handler())
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial test server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return gw, conn
}

// readEvent reads the next server event with a deadline
func readEvent(t *testing.T, conn *websocket.Conn) ServerEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event ServerEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("Failed to read server event: %v", err)
	}
	return event
}

// waitForState drains events until a state snapshot matches
func waitForState(t *testing.T, conn *websocket.Conn, want session.State) {
	t.Helper()
	for i := 0; i < 20; i++ {
		event := readEvent(t, conn)
		if event.Type == "state" && event.Snapshot != nil && event.Snapshot.State == want {
			return
		}
	}
	t.Fatalf("Never observed state %s", want)
}

// waitForEvent drains events until one of the wanted type arrives
func waitForEvent(t *testing.T, conn *websocket.Conn, wantType string) ServerEvent {
	t.Helper()
	for i := 0; i < 20; i++ {
		event := readEvent(t, conn)
		if event.Type == wantType {
			return event
		}
	}
	t.Fatalf("Never observed event type %s", wantType)
	return ServerEvent{}
}

func TestGateway_ConnectDisconnect(t *testing.T) {
	dialer := &fakeDialer{session: &fakeLiveSession{}}
	_, conn := dialTestServer(t, dialer)

	if err := conn.WriteJSON(ClientMessage{Type: "connect"}); err != nil {
		t.Fatalf("Failed to send connect: %v", err)
	}
	waitForState(t, conn, session.StateConnected)

	if err := conn.WriteJSON(ClientMessage{Type: "disconnect"}); err != nil {
		t.Fatalf("Failed to send disconnect: %v", err)
	}
	waitForState(t, conn, session.StateIdle)

	if dialer.session.closedCount() == 0 {
		t.Error("Expected live session closed on disconnect")
	}
}

func TestGateway_AudioForwarded(t *testing.T) {
	dialer := &fakeDialer{session: &fakeLiveSession{}}
	_, conn := dialTestServer(t, dialer)

	if err := conn.WriteJSON(ClientMessage{Type: "connect"}); err != nil {
		t.Fatalf("Failed to send connect: %v", err)
	}
	waitForState(t, conn, session.StateConnected)

	samples := make([]float32, 160)
	for i := range samples {
		samples[i] = 0.1
	}
	frame := audio.EncodeFrame(samples, 16000)

	if err := conn.WriteJSON(ClientMessage{
		Type:    "audio",
		Payload: base64.StdEncoding.EncodeToString(frame.Data),
	}); err != nil {
		t.Fatalf("Failed to send audio: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for dialer.session.frameCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected capture frame forwarded to the live session")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGateway_PlaybackPushed(t *testing.T) {
	dialer := &fakeDialer{session: &fakeLiveSession{}}
	_, conn := dialTestServer(t, dialer)

	if err := conn.WriteJSON(ClientMessage{Type: "connect"}); err != nil {
		t.Fatalf("Failed to send connect: %v", err)
	}
	waitForState(t, conn, session.StateConnected)

	pcm := make([]byte, 48000) // 1s at 24kHz PCM16
	dialer.currentHandler().OnMessage(&live.ServerMessage{Audio: pcm})

	play := waitForEvent(t, conn, "play")
	if play.ChunkID == "" {
		t.Error("Expected play event with a chunk ID")
	}
	if play.Duration < 0.99 || play.Duration > 1.01 {
		t.Errorf("Expected ~1s duration, got %f", play.Duration)
	}
	decoded, err := base64.StdEncoding.DecodeString(play.Payload)
	if err != nil || len(decoded) != len(pcm) {
		t.Errorf("Expected payload round-trip, err=%v len=%d", err, len(decoded))
	}

	// Interruption stops the scheduled chunk in the browser
	dialer.currentHandler().OnMessage(&live.ServerMessage{Interrupted: true})

	stop := waitForEvent(t, conn, "stop")
	if stop.ChunkID != play.ChunkID {
		t.Errorf("Expected stop for chunk %s, got %s", play.ChunkID, stop.ChunkID)
	}
}

func TestGateway_DisconnectAllTearsDownSessions(t *testing.T) {
	dialer := &fakeDialer{session: &fakeLiveSession{}}
	gw, conn := dialTestServer(t, dialer)

	if err := conn.WriteJSON(ClientMessage{Type: "connect"}); err != nil {
		t.Fatalf("Failed to send connect: %v", err)
	}
	waitForState(t, conn, session.StateConnected)

	// Process shutdown tears the session down without the browser
	// dropping its socket
	gw.DisconnectAll()

	waitForState(t, conn, session.StateIdle)
	if dialer.session.closedCount() == 0 {
		t.Error("Expected live session closed on shutdown")
	}
}
