package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mafia-engine/internal/config"
	"github.com/mafia-engine/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			skill_rating INT NOT NULL DEFAULT 1000,
			region VARCHAR(32),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(64) PRIMARY KEY,
			phase VARCHAR(16) NOT NULL,
			day_number INT NOT NULL,
			players JSONB NOT NULL,
			snapshot JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS session_events (
			id BIGSERIAL PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			phase VARCHAR(16) NOT NULL,
			day_number INT NOT NULL,
			player_ids JSONB,
			data JSONB,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS player_outcomes (
			id BIGSERIAL PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			player_id VARCHAR(64) NOT NULL,
			role VARCHAR(32) NOT NULL,
			won BOOLEAN NOT NULL,
			survived BOOLEAN NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, player_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_player_outcomes_player ON player_outcomes(player_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreatePlayer registers a new player
func (r *Repository) CreatePlayer(ctx context.Context, player domain.Player) error {
	query := `
		INSERT INTO players (id, username, skill_rating, region, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	now := time.Now()
	_, err := r.pool.Exec(ctx, query,
		player.ID,
		player.Username,
		player.SkillRating,
		player.Region,
		now,
	)
	if err != nil {
		return fmt.Errorf("creating player: %w", err)
	}
	return nil
}

// GetPlayer retrieves a player by id
func (r *Repository) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	query := `
		SELECT id, username, skill_rating, COALESCE(region, ''), created_at, updated_at
		FROM players
		WHERE id = $1
	`
	var player domain.Player
	err := r.pool.QueryRow(ctx, query, playerID).Scan(
		&player.ID,
		&player.Username,
		&player.SkillRating,
		&player.Region,
		&player.CreatedAt,
		&player.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return &player, nil
}

// UpdateSkillRating sets a player's skill rating
func (r *Repository) UpdateSkillRating(ctx context.Context, playerID string, rating int) error {
	query := `UPDATE players SET skill_rating = $2, updated_at = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, playerID, rating, time.Now())
	if err != nil {
		return fmt.Errorf("updating skill rating: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// SaveSnapshot upserts a session record with its serialized state
func (r *Repository) SaveSnapshot(ctx context.Context, snapshot *domain.SessionSnapshot) error {
	playersJSON, err := json.Marshal(snapshot.Players)
	if err != nil {
		return fmt.Errorf("marshaling players: %w", err)
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	query := `
		INSERT INTO sessions (id, phase, day_number, players, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET phase = $2, day_number = $3, snapshot = $5, updated_at = $7
	`
	_, err = r.pool.Exec(ctx, query,
		snapshot.SessionID,
		string(snapshot.Phase),
		snapshot.DayNumber,
		playersJSON,
		snapshotJSON,
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving session snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves a persisted session snapshot
func (r *Repository) GetSnapshot(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	query := `SELECT snapshot FROM sessions WHERE id = $1`
	var data []byte
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(&data)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session snapshot: %w", err)
	}

	var snapshot domain.SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &snapshot, nil
}

// RecordEvent appends a lifecycle event to the session event log
func (r *Repository) RecordEvent(ctx context.Context, event domain.SessionEvent) error {
	playerIDsJSON, err := json.Marshal(event.PlayerIDs)
	if err != nil {
		return fmt.Errorf("marshaling player ids: %w", err)
	}
	var dataJSON []byte
	if event.Data != nil {
		dataJSON, err = json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("marshaling event data: %w", err)
		}
	}

	query := `
		INSERT INTO session_events (session_id, event_type, phase, day_number, player_ids, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		event.SessionID,
		string(event.Type),
		string(event.Phase),
		event.DayNumber,
		playerIDsJSON,
		dataJSON,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording session event: %w", err)
	}
	return nil
}

// GetEvents returns a session's event log in append order
func (r *Repository) GetEvents(ctx context.Context, sessionID string) ([]domain.SessionEvent, error) {
	query := `
		SELECT event_type, phase, day_number, player_ids, data, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("getting session events: %w", err)
	}
	defer rows.Close()

	var events []domain.SessionEvent
	for rows.Next() {
		var (
			event         domain.SessionEvent
			playerIDsJSON []byte
			dataJSON      []byte
		)
		err := rows.Scan(
			&event.Type,
			&event.Phase,
			&event.DayNumber,
			&playerIDsJSON,
			&dataJSON,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}
		event.SessionID = sessionID
		if len(playerIDsJSON) > 0 {
			if err := json.Unmarshal(playerIDsJSON, &event.PlayerIDs); err != nil {
				return nil, fmt.Errorf("unmarshaling player ids: %w", err)
			}
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &event.Data); err != nil {
				return nil, fmt.Errorf("unmarshaling event data: %w", err)
			}
		}
		events = append(events, event)
	}
	if len(events) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return events, nil
}

// RecordOutcomes writes the per-player results of a finished session
func (r *Repository) RecordOutcomes(ctx context.Context, outcomes []domain.PlayerOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO player_outcomes (session_id, player_id, role, won, survived, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, player_id) DO NOTHING
	`
	now := time.Now()
	for _, outcome := range outcomes {
		batch.Queue(query,
			outcome.SessionID,
			outcome.PlayerID,
			string(outcome.Role),
			outcome.Won,
			outcome.Survived,
			now,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range outcomes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch recording outcomes: %w", err)
		}
	}
	return nil
}

// GetOutcomes retrieves a player's recent outcomes
func (r *Repository) GetOutcomes(ctx context.Context, playerID string, limit int) ([]domain.PlayerOutcome, error) {
	query := `
		SELECT session_id, player_id, role, won, survived
		FROM player_outcomes
		WHERE player_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("getting outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.PlayerOutcome
	for rows.Next() {
		var outcome domain.PlayerOutcome
		err := rows.Scan(
			&outcome.SessionID,
			&outcome.PlayerID,
			&outcome.Role,
			&outcome.Won,
			&outcome.Survived,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
