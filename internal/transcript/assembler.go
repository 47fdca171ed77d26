package transcript

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced an utterance
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Ephemeral item IDs. Fixed sentinels distinct from finalized-item IDs so
// UI reconciliation stays stable across renders.
const (
	currentUserID  = "user-current"
	currentAgentID = "agent-current"
)

// Item is one finalized or in-progress utterance
type Item struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Assembler accumulates partial input/output text fragments per
// conversational turn and finalizes them into an ordered history on turn
// completion. Finalized history is append-only and never mutated in place.
type Assembler struct {
	mu            sync.Mutex
	history       []Item
	currentInput  strings.Builder
	currentOutput strings.Builder
	now           func() time.Time
}

// NewAssembler creates an empty transcript assembler
func NewAssembler() *Assembler {
	return &Assembler{now: time.Now}
}

// AppendInput concatenates a user transcription fragment onto the current
// input accumulator
func (a *Assembler) AppendInput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentInput.WriteString(text)
}

// AppendOutput concatenates an agent transcription fragment onto the
// current output accumulator
func (a *Assembler) AppendOutput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentOutput.WriteString(text)
}

// CompleteTurn finalizes every non-empty accumulator into the history and
// clears it. Both the user and agent turns can be pending when completion
// fires; the user item is appended first.
func (a *Assembler) CompleteTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if text := strings.TrimSpace(a.currentInput.String()); text != "" {
		a.history = append(a.history, Item{
			ID:        fmt.Sprintf("user-%s", uuid.New().String()),
			Speaker:   SpeakerUser,
			Text:      text,
			Timestamp: a.now(),
		})
	}
	a.currentInput.Reset()

	if text := strings.TrimSpace(a.currentOutput.String()); text != "" {
		a.history = append(a.history, Item{
			ID:        fmt.Sprintf("agent-%s", uuid.New().String()),
			Speaker:   SpeakerAgent,
			Text:      text,
			Timestamp: a.now(),
		})
	}
	a.currentOutput.Reset()
}

// Interrupt discards the current output accumulator without finalizing it.
// A barge-in truncates the agent mid-sentence; the partial utterance is
// dropped rather than committed to history.
func (a *Assembler) Interrupt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentOutput.Reset()
}

// View returns the ordered finalized history followed by at most one
// ephemeral item per speaker for any non-empty accumulator. Recomputed on
// every call, never stored.
func (a *Assembler) View() []Item {
	a.mu.Lock()
	defer a.mu.Unlock()

	view := make([]Item, len(a.history), len(a.history)+2)
	copy(view, a.history)

	if text := a.currentInput.String(); text != "" {
		view = append(view, Item{
			ID:        currentUserID,
			Speaker:   SpeakerUser,
			Text:      text,
			Timestamp: a.now(),
		})
	}
	if text := a.currentOutput.String(); text != "" {
		view = append(view, Item{
			ID:        currentAgentID,
			Speaker:   SpeakerAgent,
			Text:      text,
			Timestamp: a.now(),
		})
	}

	return view
}

// History returns a copy of the finalized history only
func (a *Assembler) History() []Item {
	a.mu.Lock()
	defer a.mu.Unlock()

	history := make([]Item, len(a.history))
	copy(history, a.history)
	return history
}

// Reset clears all state for a fresh session
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = nil
	a.currentInput.Reset()
	a.currentOutput.Reset()
}
