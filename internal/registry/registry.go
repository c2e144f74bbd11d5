package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mafia-engine/internal/domain"
	"github.com/mafia-engine/internal/postgres"
	"github.com/mafia-engine/internal/redis"
)

// Registry is the Postgres-backed player registry with a Redis
// read-through cache
type Registry struct {
	repo   *postgres.Repository
	cache  *redis.Cache
	logger *slog.Logger
}

// NewRegistry creates a player registry
func NewRegistry(repo *postgres.Repository, cache *redis.Cache, logger *slog.Logger) *Registry {
	return &Registry{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// GetPlayer resolves a player id, preferring the cache
func (r *Registry) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	if r.cache != nil {
		info, err := r.cache.GetPlayerInfo(ctx, playerID)
		if err == nil {
			return &domain.Player{
				ID:          info.ID,
				Username:    info.Username,
				SkillRating: info.SkillRating,
				Region:      info.Region,
			}, nil
		}
	}

	player, err := r.repo.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetPlayerInfo(ctx, domain.PlayerInfo{
			ID:          player.ID,
			Username:    player.Username,
			SkillRating: player.SkillRating,
			Region:      player.Region,
		}); err != nil {
			r.logger.Warn("failed to cache player info", "player_id", playerID, "error", err)
		}
	}
	return player, nil
}

// CreatePlayer registers a player and primes the cache
func (r *Registry) CreatePlayer(ctx context.Context, player domain.Player) error {
	if player.ID == "" || player.Username == "" {
		return domain.ErrInvalidRequest
	}
	if player.SkillRating == 0 {
		player.SkillRating = 1000
	}

	if err := r.repo.CreatePlayer(ctx, player); err != nil {
		return fmt.Errorf("creating player: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.SetPlayerInfo(ctx, domain.PlayerInfo{
			ID:          player.ID,
			Username:    player.Username,
			SkillRating: player.SkillRating,
			Region:      player.Region,
		}); err != nil {
			r.logger.Warn("failed to cache player info", "player_id", player.ID, "error", err)
		}
	}
	return nil
}
