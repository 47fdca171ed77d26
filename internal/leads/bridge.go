package leads

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rosalabs/voice-agent/internal/live"
	"github.com/rosalabs/voice-agent/internal/observability"
	"github.com/rosalabs/voice-agent/internal/transcript"
)

// Bridge recognizes saveLead tool invocations from the remote agent,
// forwards the assembled record to the store, and converts the outcome
// into a structured result for the tool response. Store failures never
// propagate; the agent receives an unsuccessful result it can react to
// conversationally.
type Bridge struct {
	store   Store
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewBridge creates a tool-call bridge backed by the given store
func NewBridge(store Store, logger zerolog.Logger, metrics *observability.Metrics) *Bridge {
	return &Bridge{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// HandleToolCall processes one function invocation. The second return
// value is false when the tool name is not recognized; such invocations
// are ignored by the caller.
func (b *Bridge) HandleToolCall(ctx context.Context, call live.FunctionCall, history []transcript.Item) (Result, bool) {
	if call.Name != ToolName {
		b.logger.Warn().Str("tool", call.Name).Msg("Ignoring unknown tool call")
		return Result{}, false
	}

	b.logger.Info().
		Str("call_id", call.ID).
		Int("history_items", len(history)).
		Msg("saveLead tool call received")

	rec, err := RecordFromArgs(call.Args, history)
	if err != nil {
		b.logger.Error().Err(err).Str("call_id", call.ID).Msg("Invalid lead arguments")
		b.recordOutcome(false)
		return Result{Success: false, Message: "Error al guardar: " + err.Error()}, true
	}

	if err := b.store.Save(ctx, rec); err != nil {
		b.logger.Error().Err(err).Str("call_id", call.ID).Msg("Failed to persist lead")
		b.recordOutcome(false)
		return Result{Success: false, Message: "Error al guardar: " + err.Error()}, true
	}

	b.recordOutcome(true)
	return Result{Success: true, Message: "Lead guardado exitosamente en base de datos."}, true
}

func (b *Bridge) recordOutcome(success bool) {
	if b.metrics == nil {
		return
	}
	b.metrics.RecordToolCall(ToolName, success)
	b.metrics.RecordLeadPersisted(success)
}
