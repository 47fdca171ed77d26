package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rosalabs/voice-agent/internal/audio"
	"github.com/rosalabs/voice-agent/internal/config"
	"github.com/rosalabs/voice-agent/internal/leads"
	"github.com/rosalabs/voice-agent/internal/live"
	"github.com/rosalabs/voice-agent/internal/observability"
	"github.com/rosalabs/voice-agent/internal/playback"
	"github.com/rosalabs/voice-agent/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin against the UI's host
		// For now, allow all origins (development only)
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ClientMessage is a message from the browser UI
type ClientMessage struct {
	Type    string `json:"type"`              // connect | disconnect | audio
	Payload string `json:"payload,omitempty"` // Base64 encoded PCM16 for audio
}

// ServerEvent is a message pushed to the browser UI
type ServerEvent struct {
	Type string `json:"type"` // state | play | stop

	// state
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`

	// play / stop
	ChunkID  string  `json:"chunkId,omitempty"`
	Payload  string  `json:"payload,omitempty"` // Base64 encoded PCM16
	At       float64 `json:"at,omitempty"`      // Session-clock start time in seconds
	Duration float64 `json:"duration,omitempty"`
}

// clientConn owns one browser connection. It adapts the UI's JSON protocol
// to the session controller's collaborator interfaces: inbound audio events
// become capture frames, and scheduled playback becomes play/stop events
// pushed back to the browser.
type clientConn struct {
	conn   *websocket.Conn
	cfg    *config.Config
	clock  playback.Clock
	logger zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	onFrame func([]float32)
}

// wallClock is a zero-epoch clock started when the connection is accepted
type wallClock struct {
	start time.Time
}

func (c *wallClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// Gateway accepts browser UI connections and tracks their session
// controllers so process shutdown can tear every live session down.
type Gateway struct {
	cfg    *config.Config
	dialer live.Dialer
	store  leads.Store

	mu     sync.Mutex
	active map[*session.Controller]struct{}
}

// New creates a gateway for browser UI connections
func New(cfg *config.Config, dialer live.Dialer, store leads.Store) *Gateway {
	return &Gateway{
		cfg:    cfg,
		dialer: dialer,
		store:  store,
		active: make(map[*session.Controller]struct{}),
	}
}

// Handler is the entry point for browser UI WebSocket connections
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			baseLogger := observability.GetLogger()
			baseLogger.Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		sessionID := observability.NewSessionID()
		logger := observability.WithSessionID(sessionID)

		client := &clientConn{
			conn:   conn,
			cfg:    g.cfg,
			clock:  &wallClock{start: time.Now()},
			logger: logger,
		}

		ctrl := session.NewController(g.cfg, session.Deps{
			Dialer:          g.dialer,
			Capture:         client,
			Store:           g.store,
			Sink:            client,
			Observer:        client.pushSnapshot,
			WatchdogTimeout: time.Duration(g.cfg.WatchdogTimeout) * time.Second,
			Clock:           client.clock,
			Logger:          logger,
			Metrics:         observability.NewSessionMetrics(sessionID),
		})
		g.register(ctrl)
		defer g.deregister(ctrl)
		defer ctrl.Disconnect()

		logger.Info().Msg("UI client connected")
		client.readLoop(ctrl)
		logger.Info().Msg("UI client disconnected")
	}
}

// DisconnectAll tears down every active session. Invoked on process
// shutdown so live channels and pending lead writes close cleanly instead
// of dying with the process; the websocket connections themselves are
// hijacked and outlive http.Server.Shutdown.
func (g *Gateway) DisconnectAll() {
	g.mu.Lock()
	ctrls := make([]*session.Controller, 0, len(g.active))
	for ctrl := range g.active {
		ctrls = append(ctrls, ctrl)
	}
	g.mu.Unlock()

	for _, ctrl := range ctrls {
		ctrl.Disconnect()
	}
}

func (g *Gateway) register(ctrl *session.Controller) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[ctrl] = struct{}{}
}

func (g *Gateway) deregister(ctrl *session.Controller) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, ctrl)
}

// readLoop processes inbound UI messages until the connection drops
func (c *clientConn) readLoop(ctrl *session.Controller) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Error().Err(err).Msg("Failed to parse client message")
			continue
		}

		switch msg.Type {
		case "connect":
			// Connect blocks on the remote dial; keep reading meanwhile
			go func() {
				if err := ctrl.Connect(); err != nil {
					c.logger.Error().Err(err).Msg("Connect failed")
				}
			}()

		case "disconnect":
			ctrl.Disconnect()

		case "audio":
			c.handleAudioEvent(msg.Payload)

		default:
			c.logger.Warn().Str("type", msg.Type).Msg("Unknown client message type")
		}
	}
}

// handleAudioEvent decodes one base64 PCM16 capture buffer and hands it to
// the session's frame callback
func (c *clientConn) handleAudioEvent(payload string) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to decode base64 audio")
		return
	}

	samples, err := audio.DecodePCM16(data)
	if err != nil {
		c.logger.Error().Err(err).Msg("Malformed capture buffer")
		return
	}

	c.mu.Lock()
	onFrame := c.onFrame
	c.mu.Unlock()
	if onFrame != nil {
		onFrame(samples)
	}
}

// Acquire implements session.CaptureSource. The browser owns the actual
// microphone; acquisition here just starts routing its audio events.
func (c *clientConn) Acquire(onFrame func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = onFrame
	return nil
}

// Release implements session.CaptureSource
func (c *clientConn) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = nil
}

// playbackHandle tracks one chunk scheduled in the browser
type playbackHandle struct {
	timer *time.Timer
	stop  func()
}

func (h *playbackHandle) Stop() {
	h.timer.Stop()
	h.stop()
}

// Start implements playback.Sink. The chunk is pushed to the browser with
// its session-clock start time; completion is signalled by a local timer
// since the browser does not report playback progress.
func (c *clientConn) Start(pcm []byte, at float64, onEnded func()) (playback.Handle, error) {
	chunkID := uuid.New().String()
	duration := audio.PCM16Duration(pcm, c.cfg.PlaybackSampleRate)

	if err := c.writeEvent(ServerEvent{
		Type:     "play",
		ChunkID:  chunkID,
		Payload:  base64.StdEncoding.EncodeToString(pcm),
		At:       at,
		Duration: duration,
	}); err != nil {
		return nil, err
	}

	delay := time.Duration((at + duration - c.clock.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(delay, onEnded)

	return &playbackHandle{
		timer: timer,
		stop: func() {
			if err := c.writeEvent(ServerEvent{Type: "stop", ChunkID: chunkID}); err != nil {
				c.logger.Warn().Err(err).Str("chunk_id", chunkID).Msg("Failed to push stop event")
			}
		},
	}, nil
}

// pushSnapshot forwards session state changes to the browser
func (c *clientConn) pushSnapshot(snap session.Snapshot) {
	if err := c.writeEvent(ServerEvent{Type: "state", Snapshot: &snap}); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to push state event")
	}
}

func (c *clientConn) writeEvent(event ServerEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(event)
}
