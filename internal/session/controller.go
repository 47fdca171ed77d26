package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rosalabs/voice-agent/internal/audio"
	"github.com/rosalabs/voice-agent/internal/config"
	"github.com/rosalabs/voice-agent/internal/leads"
	"github.com/rosalabs/voice-agent/internal/live"
	"github.com/rosalabs/voice-agent/internal/observability"
	"github.com/rosalabs/voice-agent/internal/playback"
	"github.com/rosalabs/voice-agent/internal/transcript"
	"github.com/rosalabs/voice-agent/internal/watchdog"
)

// State is the session lifecycle state
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
)

// Snapshot is the observable session state pushed to the UI consumer
// after each dispatch
type Snapshot struct {
	State      State             `json:"state"`
	Error      string            `json:"error,omitempty"`
	Volume     float64           `json:"volume"`
	Transcript []transcript.Item `json:"transcript"`
}

// CaptureSource is the microphone collaborator: one acquisition call
// yielding a live frame stream, or a permission/device error
type CaptureSource interface {
	// Acquire starts capture; onFrame receives each captured buffer of
	// floating-point mono samples until Release
	Acquire(onFrame func(samples []float32)) error

	// Release stops capture and frees the device
	Release()
}

// Deps are the controller's collaborators
type Deps struct {
	Dialer   live.Dialer
	Capture  CaptureSource
	Store    leads.Store
	Sink     playback.Sink
	Observer func(Snapshot)

	// WatchdogTimeout is the inactivity interval before auto-disconnect
	WatchdogTimeout time.Duration

	// Clock overrides the playback clock; defaults to a zero-epoch
	// wall clock started at Connect
	Clock playback.Clock

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Controller owns the session lifecycle: the remote live channel, the
// capture pipeline, and dispatch of inbound messages to the transcript
// assembler, playback scheduler, watchdog and tool-call bridge. At most
// one live session exists at a time.
type Controller struct {
	cfg    *config.Config
	deps   Deps
	bridge *leads.Bridge
	loc    *time.Location

	mu        sync.Mutex
	state     State
	errMsg    string
	volume    float64
	sess      live.Session
	assembler *transcript.Assembler
	scheduler *playback.Scheduler
	dog       *watchdog.Watchdog
	cancel    context.CancelFunc
	ctx       context.Context
}

// NewController creates an idle session controller
func NewController(cfg *config.Config, deps Deps) *Controller {
	loc, err := time.LoadLocation(cfg.AgentTZ)
	if err != nil {
		deps.Logger.Warn().Err(err).Str("tz", cfg.AgentTZ).Msg("Falling back to UTC")
		loc = time.UTC
	}

	return &Controller{
		cfg:       cfg,
		deps:      deps,
		bridge:    leads.NewBridge(deps.Store, deps.Logger, deps.Metrics),
		loc:       loc,
		state:     StateIdle,
		assembler: transcript.NewAssembler(),
	}
}

// sessionClock is a zero-epoch playback clock started at Connect
type sessionClock struct {
	start time.Time
}

func (c *sessionClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// Connect acquires the microphone, opens the remote live session and arms
// the watchdog. No-op unless the controller is Idle.
func (c *Controller) Connect() error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.errMsg = ""
	c.volume = 0
	c.assembler = transcript.NewAssembler()

	clock := c.deps.Clock
	if clock == nil {
		clock = &sessionClock{start: time.Now()}
	}
	c.scheduler = playback.NewScheduler(clock, c.deps.Sink, c.cfg.PlaybackSampleRate, c.deps.Logger)

	c.dog = watchdog.New(c.deps.WatchdogTimeout, c.onWatchdogExpire)
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = ctx, cancel
	c.mu.Unlock()

	c.publish()

	if err := c.deps.Capture.Acquire(c.onCaptureFrame); err != nil {
		c.deps.Logger.Error().Err(err).Msg("Microphone acquisition failed")
		c.failConnect(fmt.Sprintf("No se pudo acceder al micrófono: %v", err))
		return err
	}

	// Arm immediately so the connecting phase is covered
	c.resetDog()

	sess, err := c.deps.Dialer.Dial(ctx, c.setupConfig(), c)
	if err != nil {
		c.deps.Capture.Release()
		c.stopDog()
		if ctx.Err() != nil {
			// Disconnect cancelled the dial; already Idle, not a failure
			// the user should see
			c.deps.Logger.Info().Msg("Dial cancelled by disconnect")
			return nil
		}
		c.deps.Logger.Error().Err(err).Msg("Failed to open live session")
		c.failConnect(fmt.Sprintf("No se pudo conectar: %v", err))
		return err
	}

	c.mu.Lock()
	if c.state == StateIdle {
		// Disconnect raced the dial; the fresh session must not
		// resurrect the torn-down state
		c.mu.Unlock()
		sess.Close()
		return nil
	}
	c.sess = sess
	c.mu.Unlock()

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordSessionStart()
	}

	return nil
}

// Disconnect tears the session down and returns the controller to Idle.
// Idempotent; safe from any lifecycle state and concurrently with
// in-flight work. This is the single cancellation point.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.volume = 0
	sess := c.sess
	c.sess = nil
	dog := c.dog
	c.dog = nil
	scheduler := c.scheduler
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if dog != nil {
		dog.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			c.deps.Logger.Warn().Err(err).Msg("Error closing live session")
		}
	}
	c.deps.Capture.Release()
	if scheduler != nil {
		scheduler.StopAll()
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordSessionEnd()
	}

	c.deps.Logger.Info().Msg("Session disconnected")
	c.publish()
}

// Snapshot returns the current observable state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// OnOpen implements live.Handler
func (c *Controller) OnOpen() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.mu.Unlock()

	c.resetDog()
	c.deps.Logger.Info().Msg("Live session open")
	c.publish()
}

// OnMessage implements live.Handler. All facets of a single message are
// applied before the next message is processed; messages arrive in
// delivery order on the session's read loop.
func (c *Controller) OnMessage(msg *live.ServerMessage) {
	// Any inbound message proves the interaction is alive
	c.resetDog()

	dirty := false

	for _, call := range msg.ToolCalls {
		c.handleToolCall(call)
	}

	if msg.InputTranscription != "" {
		c.currentAssembler().AppendInput(msg.InputTranscription)
		dirty = true
	}
	if msg.OutputTranscription != "" {
		c.currentAssembler().AppendOutput(msg.OutputTranscription)
		dirty = true
	}
	if msg.TurnComplete {
		c.currentAssembler().CompleteTurn()
		dirty = true
	}

	if len(msg.Audio) > 0 {
		if scheduler := c.currentScheduler(); scheduler != nil {
			scheduled := scheduler.Schedule(msg.Audio)
			if c.deps.Metrics != nil {
				status := "scheduled"
				if !scheduled {
					status = "dropped"
				}
				c.deps.Metrics.RecordPlaybackChunk(status)
			}
		}
		if c.deps.Metrics != nil {
			c.deps.Metrics.RecordAudioBytes("out", int64(len(msg.Audio)))
		}
	}

	if msg.Interrupted {
		if scheduler := c.currentScheduler(); scheduler != nil {
			scheduler.StopAll()
		}
		c.currentAssembler().Interrupt()
		dirty = true
	}

	if dirty {
		c.publish()
	}
}

// OnError implements live.Handler
func (c *Controller) OnError(err error) {
	c.deps.Logger.Error().Err(err).Msg("Live session error")
	c.mu.Lock()
	c.errMsg = err.Error()
	c.mu.Unlock()
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordError("live_session_error", "session")
	}
	c.Disconnect()
}

// OnClose implements live.Handler
func (c *Controller) OnClose() {
	c.Disconnect()
}

// onCaptureFrame processes one captured audio buffer: the RMS-derived
// volume sample is computed once and fanned out to the UI observable and
// the watchdog activity check, then the frame is encoded and transmitted
// best-effort.
func (c *Controller) onCaptureFrame(samples []float32) {
	volume := audio.Volume(audio.RMS(samples), c.cfg.VolumeGain)

	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.volume = volume
	sess := c.sess
	c.mu.Unlock()

	if volume > c.cfg.ActivityThreshold {
		c.resetDog()
	}

	c.publish()

	if sess == nil {
		// Live session not open yet; drop the frame
		return
	}

	frame := audio.EncodeFrame(samples, c.cfg.CaptureSampleRate)
	if err := sess.SendAudio(frame); err != nil {
		// A failed send for one frame never blocks subsequent frames
		c.deps.Logger.Warn().Err(err).Msg("Failed to send audio frame")
		if c.deps.Metrics != nil {
			c.deps.Metrics.RecordError("audio_send_error", "session")
		}
		return
	}

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordAudioBytes("in", int64(len(frame.Data)))
	}
}

// handleToolCall bridges one saveLead invocation to the lead store and
// returns its result to the remote agent, keyed by the invocation ID
func (c *Controller) handleToolCall(call live.FunctionCall) {
	c.mu.Lock()
	ctx := c.ctx
	assembler := c.assembler
	c.mu.Unlock()
	if ctx == nil {
		return
	}

	result, handled := c.bridge.HandleToolCall(ctx, call, assembler.History())
	if !handled {
		return
	}

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		// Torn down while persisting; nothing to respond to
		c.deps.Logger.Warn().Str("call_id", call.ID).Msg("Session gone before tool response")
		return
	}

	if err := sess.SendToolResponse(call.ID, call.Name, result.Success, result.Message); err != nil {
		c.deps.Logger.Error().Err(err).Str("call_id", call.ID).Msg("Failed to send tool response")
	}
}

func (c *Controller) onWatchdogExpire() {
	c.deps.Logger.Info().
		Dur("timeout", c.deps.WatchdogTimeout).
		Msg("Inactivity watchdog expired, disconnecting")
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordWatchdogExpiry()
	}
	c.Disconnect()
}

func (c *Controller) setupConfig() live.SetupConfig {
	return live.SetupConfig{
		Model:               c.cfg.GeminiModel,
		Voice:               c.cfg.AgentVoice,
		SystemInstruction:   SystemInstruction(time.Now().In(c.loc)),
		Tools:               []live.FunctionDeclaration{leads.SaveLeadTool()},
		InputTranscription:  true,
		OutputTranscription: true,
	}
}

// failConnect records a connect-attempt failure and returns to Idle
func (c *Controller) failConnect(msg string) {
	c.mu.Lock()
	c.state = StateIdle
	c.errMsg = msg
	c.volume = 0
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) stopDog() {
	if dog := c.currentDog(); dog != nil {
		dog.Stop()
	}
}

// currentDog returns the watchdog for the current session; nil when torn
// down
func (c *Controller) currentDog() *watchdog.Watchdog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dog
}

func (c *Controller) resetDog() {
	if dog := c.currentDog(); dog != nil {
		dog.Reset()
	}
}

func (c *Controller) currentAssembler() *transcript.Assembler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assembler
}

func (c *Controller) currentScheduler() *playback.Scheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:      c.state,
		Error:      c.errMsg,
		Volume:     c.volume,
		Transcript: c.assembler.View(),
	}
}

func (c *Controller) publish() {
	if c.deps.Observer == nil {
		return
	}
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.deps.Observer(snap)
}
