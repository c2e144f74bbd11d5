package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mafia-engine/internal/domain"
	"github.com/mafia-engine/internal/game"
	"github.com/mafia-engine/internal/matchmaking"
	"github.com/mafia-engine/internal/postgres"
	"github.com/mafia-engine/internal/redis"
	"github.com/mafia-engine/internal/registry"
)

// GameService ties the matchmaking queue, the session engine, and the
// persistence collaborators together. It implements the session creator
// handed to the queue.
type GameService struct {
	registry *registry.Registry
	engine   *game.Engine
	repo     *postgres.Repository
	cache    *redis.Cache
	logger   *slog.Logger

	queue *matchmaking.Queue
}

// NewGameService creates the orchestration service
func NewGameService(
	reg *registry.Registry,
	engine *game.Engine,
	repo *postgres.Repository,
	cache *redis.Cache,
	logger *slog.Logger,
) *GameService {
	return &GameService{
		registry: reg,
		engine:   engine,
		repo:     repo,
		cache:    cache,
		logger:   logger,
	}
}

// SetQueue wires the matchmaking queue after construction; the queue
// needs this service as its session creator.
func (s *GameService) SetQueue(queue *matchmaking.Queue) {
	s.queue = queue
}

// RegisterPlayer adds a player to the registry
func (s *GameService) RegisterPlayer(ctx context.Context, player domain.Player) error {
	return s.registry.CreatePlayer(ctx, player)
}

// GetPlayer resolves a player id against the registry
func (s *GameService) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	return s.registry.GetPlayer(ctx, playerID)
}

// JoinQueue enters a player into the matchmaking queue
func (s *GameService) JoinQueue(ctx context.Context, req domain.JoinQueueRequest) (*domain.QueueStatus, error) {
	if req.PlayerID == "" {
		return nil, domain.ErrInvalidRequest
	}
	return s.queue.Join(ctx, req.PlayerID, req.Preferences(), req.Connection())
}

// LeaveQueue removes a player from the queue; idempotent
func (s *GameService) LeaveQueue(ctx context.Context, playerID string) bool {
	return s.queue.Leave(playerID)
}

// QueueStatus returns a queued player's position and estimated wait
func (s *GameService) QueueStatus(ctx context.Context, playerID string) (*domain.QueueStatus, error) {
	return s.queue.Status(playerID)
}

// QueueStats returns the queue's aggregate snapshot, falling back to the
// last cached snapshot when the queue is not wired
func (s *GameService) QueueStats(ctx context.Context) domain.QueueStats {
	if s.queue != nil {
		return s.queue.Stats()
	}
	if s.cache != nil {
		if stats, err := s.cache.GetQueueStats(ctx); err == nil && stats != nil {
			return *stats
		}
	}
	return domain.QueueStats{}
}

// PlayerOutcomes returns a player's most recent game outcomes
func (s *GameService) PlayerOutcomes(ctx context.Context, playerID string, limit int) ([]domain.PlayerOutcome, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if _, err := s.registry.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}
	return s.repo.GetOutcomes(ctx, playerID, limit)
}

// CreateSession instantiates a session for a matched roster and persists
// the room record. On a persistence failure the in-memory session is
// rolled back so the queue restores its entries.
func (s *GameService) CreateSession(ctx context.Context, playerIDs []string) (*domain.SessionSnapshot, error) {
	snapshot, err := s.engine.CreateSession(ctx, playerIDs)
	if err != nil {
		return nil, err
	}

	if s.repo != nil {
		if err := s.repo.SaveSnapshot(ctx, snapshot); err != nil {
			s.engine.RemoveSession(snapshot.SessionID)
			return nil, fmt.Errorf("persisting session record: %w", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.SetSessionSnapshot(ctx, snapshot); err != nil {
			s.logger.Warn("failed to cache session snapshot",
				"session_id", snapshot.SessionID,
				"error", err,
			)
		}
	}
	return snapshot, nil
}

// ApplyAction applies a player action to a session
func (s *GameService) ApplyAction(ctx context.Context, sessionID string, action domain.Action) (*domain.SessionSnapshot, error) {
	snapshot, err := s.engine.ApplyAction(ctx, sessionID, action)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, snapshot)
	return snapshot, nil
}

// AdvancePhase moves a session to its next phase
func (s *GameService) AdvancePhase(ctx context.Context, sessionID string) (*domain.PhaseTransition, error) {
	transition, err := s.engine.AdvancePhase(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snapshot, snapErr := s.engine.Snapshot(sessionID); snapErr == nil {
		s.cacheSnapshot(ctx, snapshot)
	}
	return transition, nil
}

// GetSession returns a session snapshot, falling back to the cache and
// then the database for sessions no longer held in memory
func (s *GameService) GetSession(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	snapshot, err := s.engine.Snapshot(sessionID)
	if err == nil {
		return snapshot, nil
	}

	if s.cache != nil {
		if cached, cacheErr := s.cache.GetSessionSnapshot(ctx, sessionID); cacheErr == nil {
			return cached, nil
		}
	}
	if s.repo != nil {
		return s.repo.GetSnapshot(ctx, sessionID)
	}
	return nil, err
}

// SessionHistory returns a session's event log, reading the persistent
// log for sessions no longer held in memory
func (s *GameService) SessionHistory(ctx context.Context, sessionID string) ([]domain.SessionEvent, error) {
	history, err := s.engine.History(sessionID)
	if err == nil {
		return history, nil
	}
	if s.repo != nil {
		return s.repo.GetEvents(ctx, sessionID)
	}
	return nil, err
}

// cacheSnapshot writes the snapshot to Redis without blocking the caller
func (s *GameService) cacheSnapshot(ctx context.Context, snapshot *domain.SessionSnapshot) {
	if s.cache == nil || snapshot == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := s.cache.SetSessionSnapshot(bg, snapshot); err != nil {
			s.logger.Warn("failed to cache session snapshot",
				"session_id", snapshot.SessionID,
				"error", err,
			)
		}
	}()
}
