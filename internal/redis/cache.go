package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mafia-engine/internal/config"
	"github.com/mafia-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Session snapshots are kept warm for live reads and expire once a
// finished session has gone cold.
const snapshotTTL = 24 * time.Hour

// Cache provides Redis-based caching for player info, live session
// snapshots, and queue statistics
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) playerKey(playerID string) string {
	return fmt.Sprintf("player:%s:info", playerID)
}

func (c *Cache) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:snapshot", sessionID)
}

func (c *Cache) queueStatsKey() string {
	return "queue:stats"
}

// SetPlayerInfo caches a player's registry record
func (c *Cache) SetPlayerInfo(ctx context.Context, info domain.PlayerInfo) error {
	key := c.playerKey(info.ID)
	err := c.client.HSet(ctx, key,
		"username", info.Username,
		"skill_rating", info.SkillRating,
		"region", info.Region,
	).Err()
	if err != nil {
		return fmt.Errorf("setting player info: %w", err)
	}
	return nil
}

// GetPlayerInfo retrieves cached player information
func (c *Cache) GetPlayerInfo(ctx context.Context, playerID string) (*domain.PlayerInfo, error) {
	key := c.playerKey(playerID)
	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("getting player info: %w", err)
	}

	if len(result) == 0 {
		return nil, domain.ErrPlayerNotFound
	}

	rating, _ := strconv.Atoi(result["skill_rating"])
	return &domain.PlayerInfo{
		ID:          playerID,
		Username:    result["username"],
		SkillRating: rating,
		Region:      result["region"],
	}, nil
}

// SetSessionSnapshot caches a session snapshot for lock-free reads
func (c *Cache) SetSessionSnapshot(ctx context.Context, snapshot *domain.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	err = c.client.Set(ctx, c.sessionKey(snapshot.SessionID), data, snapshotTTL).Err()
	if err != nil {
		return fmt.Errorf("setting session snapshot: %w", err)
	}
	return nil
}

// GetSessionSnapshot retrieves a cached session snapshot
func (c *Cache) GetSessionSnapshot(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	data, err := c.client.Get(ctx, c.sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
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

// DeleteSessionSnapshot evicts a session's cached snapshot
func (c *Cache) DeleteSessionSnapshot(ctx context.Context, sessionID string) error {
	err := c.client.Del(ctx, c.sessionKey(sessionID)).Err()
	if err != nil {
		return fmt.Errorf("deleting session snapshot: %w", err)
	}
	return nil
}

// SetQueueStats caches the latest queue statistics snapshot
func (c *Cache) SetQueueStats(ctx context.Context, stats domain.QueueStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling queue stats: %w", err)
	}
	err = c.client.Set(ctx, c.queueStatsKey(), data, time.Minute).Err()
	if err != nil {
		return fmt.Errorf("setting queue stats: %w", err)
	}
	return nil
}

// GetQueueStats retrieves the cached queue statistics snapshot. A nil
// result with nil error means no snapshot has been written yet.
func (c *Cache) GetQueueStats(ctx context.Context) (*domain.QueueStats, error) {
	data, err := c.client.Get(ctx, c.queueStatsKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("getting queue stats: %w", err)
	}

	var stats domain.QueueStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling queue stats: %w", err)
	}
	return &stats, nil
}
