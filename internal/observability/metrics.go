package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_agent_active_sessions",
		Help: "Number of live agent sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_sessions_total",
		Help: "Total number of agent sessions opened",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_agent_session_duration_seconds",
		Help:    "Duration of agent sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	watchdogExpiries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_watchdog_expiries_total",
		Help: "Total sessions torn down by the inactivity watchdog",
	})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	playbackChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_playback_chunks_total",
		Help: "Playback chunks handled by the scheduler",
	}, []string{"status"}) // status: "scheduled" or "dropped"

	// Tool call / lead metrics
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_tool_calls_total",
		Help: "Total tool calls received from the agent",
	}, []string{"tool", "status"})

	leadsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_leads_persisted_total",
		Help: "Total lead records handed to the store",
	}, []string{"status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// Metrics tracks metrics for a single agent session
type Metrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
	started   bool
	ended     bool
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	m.mu.Lock()
	m.started = true
	m.ended = false
	m.startTime = time.Now()
	m.mu.Unlock()

	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session. Safe to call more than once
// and before a recorded start; at most one end is counted per start.
func (m *Metrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.ended {
		return
	}
	m.ended = true

	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordWatchdogExpiry records a session torn down for inactivity
func (m *Metrics) RecordWatchdogExpiry() {
	watchdogExpiries.Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordPlaybackChunk records a playback chunk outcome
func (m *Metrics) RecordPlaybackChunk(status string) {
	playbackChunks.WithLabelValues(status).Inc()
}

// RecordToolCall records a tool call outcome
func (m *Metrics) RecordToolCall(tool string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	toolCalls.WithLabelValues(tool, status).Inc()
}

// RecordLeadPersisted records a lead store write outcome
func (m *Metrics) RecordLeadPersisted(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	leadsPersisted.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}
