package leads

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/rosalabs/voice-agent/internal/observability"
)

// PostgresStore persists leads to a Postgres table, one row per record
// with the transcript history as JSONB
type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string
	logger zerolog.Logger
}

// NewPostgresStore connects to Postgres and verifies the connection
func NewPostgresStore(ctx context.Context, databaseURL, table string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		table:  table,
		logger: observability.GetLogger().With().Str("component", "leadstore").Logger(),
	}, nil
}

// Save writes one lead record
func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	history, err := json.Marshal(rec.ConversationHistory)
	if err != nil {
		return fmt.Errorf("failed to encode transcript history: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			contact_name, company_name, industry, company_size, pain_point,
			email, phone, website, meeting_preference,
			conversation_history, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pgx.Identifier{s.table}.Sanitize())

	_, err = s.pool.Exec(ctx, query,
		rec.ContactName, rec.CompanyName, rec.Industry, rec.CompanySize,
		rec.PainPoint, rec.Email, rec.Phone, rec.Website,
		rec.MeetingPreference, history, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert lead: %w", err)
	}

	s.logger.Info().
		Str("company", rec.CompanyName).
		Str("contact", rec.ContactName).
		Msg("Lead persisted")

	return nil
}

// Ping verifies the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}
