package live

import (
	"context"

	"github.com/rosalabs/voice-agent/internal/audio"
)

// Schema describes a parameter schema for a declared function
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// FunctionDeclaration registers one callable tool with the remote agent
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// FunctionCall is one structured tool invocation received from the agent
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ServerMessage is a normalized inbound event. A single message may carry
// any combination of the facets below; the orchestrator applies all of
// them before the next message is processed.
type ServerMessage struct {
	// InputTranscription is a fragment of the user's transcribed speech
	InputTranscription string

	// OutputTranscription is a fragment of the agent's transcribed speech
	OutputTranscription string

	// TurnComplete signals the end of the current conversational turn
	TurnComplete bool

	// Interrupted signals the agent was preempted by user speech
	Interrupted bool

	// Audio is decoded inline playback audio (16-bit PCM, 24kHz mono)
	Audio []byte

	// ToolCalls are structured function invocations to execute
	ToolCalls []FunctionCall
}

// Handler receives session lifecycle callbacks. All callbacks are invoked
// from the session's read loop, one at a time, in delivery order.
type Handler interface {
	// OnOpen fires once the session is established
	OnOpen()

	// OnMessage fires for each inbound server message
	OnMessage(msg *ServerMessage)

	// OnError fires on a fatal session error; OnClose follows
	OnError(err error)

	// OnClose fires exactly once when the session ends
	OnClose()
}

// SetupConfig holds the session open configuration
type SetupConfig struct {
	// Model is the remote model identifier
	Model string

	// Voice selects the prebuilt agent voice
	Voice string

	// SystemInstruction is the agent's system prompt, generated fresh
	// per connection attempt
	SystemInstruction string

	// Tools are the function declarations registered with the agent
	Tools []FunctionDeclaration

	// InputTranscription enables transcription of user speech
	InputTranscription bool

	// OutputTranscription enables transcription of agent speech
	OutputTranscription bool
}

// Session is an open bidirectional channel to the remote agent. It is
// owned exclusively by the session controller and never shared.
type Session interface {
	// SendAudio streams one encoded capture frame, fire-and-forget
	SendAudio(frame audio.Frame) error

	// SendToolResponse returns a tool execution result, keyed by the
	// invocation ID so the remote service can correlate it
	SendToolResponse(callID, name string, success bool, message string) error

	// Close tears down the channel. Idempotent.
	Close() error
}

// Dialer opens live sessions
type Dialer interface {
	Dial(ctx context.Context, cfg SetupConfig, handler Handler) (Session, error)
}
