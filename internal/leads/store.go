package leads

import (
	"context"

	"github.com/rs/zerolog"
)

// Store persists lead records. Implementations are the external
// persistence collaborator; callers convert failures into an unsuccessful
// Result rather than surfacing them.
type Store interface {
	// Save writes one record
	Save(ctx context.Context, rec Record) error

	// Ping verifies the store is reachable
	Ping(ctx context.Context) error

	// Close releases the store's resources
	Close()
}

// LogStore writes leads to the log instead of a database. Used when no
// DATABASE_URL is configured, so the agent flow still completes locally.
type LogStore struct {
	logger zerolog.Logger
}

// NewLogStore creates a log-only store
func NewLogStore(logger zerolog.Logger) *LogStore {
	return &LogStore{logger: logger}
}

// Save logs the record
func (s *LogStore) Save(ctx context.Context, rec Record) error {
	s.logger.Info().
		Str("contact", rec.ContactName).
		Str("company", rec.CompanyName).
		Str("email", rec.Email).
		Int("history_items", len(rec.ConversationHistory)).
		Msg("Lead captured (no database configured)")
	return nil
}

// Ping always succeeds
func (s *LogStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (s *LogStore) Close() {}
