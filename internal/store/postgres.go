// Package store is the Postgres persistence layer for agent snapshots and
// the tier-change audit trail, adapted from the same pgxpool connect/ping
// and upsert conventions the rest of the daemon's ancestry used for its own
// forensics tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"

	"github.com/atomreputation/atom/pkg/atom"
)

// PostgresStore implements registry.Loader and ingest.Persister.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for ATOM reputation store")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/store/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Agent reputation schema initialized")
	return nil
}

// LoadSnapshot implements registry.Loader.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, agent atom.AgentID) (atom.AtomStats, bool, error) {
	var raw []byte
	sql := `SELECT stats FROM agent_snapshots WHERE agent_id = $1`
	err := s.pool.QueryRow(ctx, sql, agent[:]).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return atom.AtomStats{}, false, nil
		}
		return atom.AtomStats{}, false, fmt.Errorf("failed to load agent snapshot: %v", err)
	}

	var stats atom.AtomStats
	if err := stats.UnmarshalBinary(raw); err != nil {
		return atom.AtomStats{}, false, fmt.Errorf("failed to decode persisted snapshot: %v", err)
	}
	return stats, true, nil
}

// SaveSnapshot implements registry.Loader.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, agent atom.AgentID, stats atom.AtomStats) error {
	raw, err := stats.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %v", err)
	}

	sql := `
		INSERT INTO agent_snapshots (agent_id, stats, trust_tier, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (agent_id) DO UPDATE
		SET stats = EXCLUDED.stats, trust_tier = EXCLUDED.trust_tier, updated_at = NOW();
	`
	_, err = s.pool.Exec(ctx, sql, agent[:], raw, int16(stats.TrustTier))
	if err != nil {
		return fmt.Errorf("failed to upsert agent snapshot: %v", err)
	}
	return nil
}

// SaveTierChange implements ingest.Persister, recording one audit row per
// committed update_stats call regardless of whether the tier itself moved.
func (s *PostgresStore) SaveTierChange(ctx context.Context, correlationID uuid.UUID, change atom.TierChange) error {
	sql := `
		INSERT INTO tier_changes
			(correlation_id, agent_id, before_tier, after_tier, quality_score, risk_score, confidence, feedback_count, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (correlation_id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, sql,
		correlationID, change.AgentID[:], int16(change.Before), int16(change.After),
		int16(change.Quality), int16(change.Risk), int16(change.Confidence), int64(change.FeedbackCount))
	if err != nil {
		return fmt.Errorf("failed to insert tier change: %v", err)
	}
	return nil
}

// RecentTierChanges returns the most recent audit rows for an agent, newest
// first, for the GET /v1/agents/:id/history endpoint.
func (s *PostgresStore) RecentTierChanges(ctx context.Context, agent atom.AgentID, limit int) ([]atom.TierChange, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	sql := `
		SELECT before_tier, after_tier, quality_score, risk_score, confidence, feedback_count
		FROM tier_changes
		WHERE agent_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, sql, agent[:], limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tier changes: %v", err)
	}
	defer rows.Close()

	var changes []atom.TierChange
	for rows.Next() {
		var before, after, quality, risk, confidence int16
		var feedbackCount int64
		if err := rows.Scan(&before, &after, &quality, &risk, &confidence, &feedbackCount); err != nil {
			return nil, fmt.Errorf("failed to scan tier change row: %v", err)
		}
		changes = append(changes, atom.TierChange{
			AgentID:       agent,
			Before:        atom.Tier(before),
			After:         atom.Tier(after),
			Quality:       uint16(quality),
			Risk:          uint8(risk),
			Confidence:    uint16(confidence),
			FeedbackCount: uint64(feedbackCount),
		})
	}
	if changes == nil {
		changes = []atom.TierChange{}
	}
	return changes, nil
}
