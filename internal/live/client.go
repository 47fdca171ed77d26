package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rosalabs/voice-agent/internal/audio"
	"github.com/rosalabs/voice-agent/internal/observability"
)

const defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// GeminiDialer opens Gemini Live API sessions over a websocket
type GeminiDialer struct {
	APIKey   string
	Endpoint string // defaults to the production Live API endpoint
}

// NewGeminiDialer creates a dialer for the Gemini Live API
func NewGeminiDialer(apiKey string) *GeminiDialer {
	return &GeminiDialer{APIKey: apiKey}
}

// Wire types for the BidiGenerateContent websocket protocol

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model               string            `json:"model"`
	GenerationConfig    *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction   *content          `json:"systemInstruction,omitempty"`
	Tools               []toolPayload     `json:"tools,omitempty"`
	InputTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type toolPayload struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

type toolResponseMessage struct {
	ToolResponse toolResponse `json:"toolResponse"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	ToolCall      *toolCall      `json:"toolCall,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// geminiSession implements Session over a single websocket connection
type geminiSession struct {
	conn    *websocket.Conn
	handler Handler
	logger  zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Dial opens a live session, sends the setup frame and waits for the
// setup acknowledgment before wiring the read loop.
func (d *GeminiDialer) Dial(ctx context.Context, cfg SetupConfig, handler Handler) (Session, error) {
	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid live endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", d.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial live API: %w", err)
	}

	setup := setupMessage{
		Setup: setupPayload{
			Model: fmt.Sprintf("models/%s", cfg.Model),
			GenerationConfig: &generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
					},
				},
			},
		},
	}
	if cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	if len(cfg.Tools) > 0 {
		setup.Setup.Tools = []toolPayload{{FunctionDeclarations: cfg.Tools}}
	}
	if cfg.InputTranscription {
		setup.Setup.InputTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		setup.Setup.OutputTranscription = &struct{}{}
	}

	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send setup: %w", err)
	}

	// The first server frame acknowledges the setup
	var ack serverMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read setup ack: %w", err)
	}
	if ack.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("unexpected first frame from live API")
	}

	s := &geminiSession{
		conn:    conn,
		handler: handler,
		logger:  observability.GetLogger().With().Str("component", "live").Logger(),
		done:    make(chan struct{}),
	}

	handler.OnOpen()
	go s.readLoop()

	return s, nil
}

// readLoop delivers inbound server messages to the handler in order
func (s *geminiSession) readLoop() {
	defer s.handler.OnClose()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Local close; not an error
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.handler.OnError(err)
				}
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Error().Err(err).Msg("Failed to parse server message")
			continue
		}

		normalized, err := normalize(&msg)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to decode server message")
			continue
		}
		if normalized != nil {
			s.handler.OnMessage(normalized)
		}
	}
}

// normalize flattens a wire message into the facets the orchestrator
// dispatches on
func normalize(msg *serverMessage) (*ServerMessage, error) {
	if msg.ServerContent == nil && msg.ToolCall == nil {
		return nil, nil
	}

	out := &ServerMessage{}

	if sc := msg.ServerContent; sc != nil {
		out.TurnComplete = sc.TurnComplete
		out.Interrupted = sc.Interrupted
		if sc.InputTranscription != nil {
			out.InputTranscription = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscription = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil || p.InlineData.Data == "" {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode inline audio: %w", err)
				}
				out.Audio = append(out.Audio, pcm...)
			}
		}
	}

	if msg.ToolCall != nil {
		out.ToolCalls = msg.ToolCall.FunctionCalls
	}

	return out, nil
}

// SendAudio streams one encoded capture frame
func (s *geminiSession) SendAudio(frame audio.Frame) error {
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{{
				MIMEType: frame.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(frame.Data),
			}},
		},
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// SendToolResponse returns a tool result keyed by the invocation ID
func (s *geminiSession) SendToolResponse(callID, name string, success bool, message string) error {
	msg := toolResponseMessage{
		ToolResponse: toolResponse{
			FunctionResponses: []functionResponse{{
				ID:   callID,
				Name: name,
				Response: map[string]any{
					"success": success,
					"result":  message,
				},
			}},
		},
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// Close tears down the websocket. Idempotent.
func (s *geminiSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
