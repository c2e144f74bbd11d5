package service

import (
	"context"
	"log/slog"

	"github.com/mafia-engine/internal/domain"
	"github.com/mafia-engine/internal/kafka"
	"github.com/mafia-engine/internal/postgres"
	"github.com/mafia-engine/internal/redis"
	"github.com/mafia-engine/internal/websocket"
)

// EventFanout dispatches session lifecycle output to the delivery and
// persistence collaborators. Dispatch is fire-and-forget: a collaborator
// failure is logged and never rolls back a committed state transition.
type EventFanout struct {
	hub      *websocket.Hub
	producer *kafka.Producer
	repo     *postgres.Repository
	cache    *redis.Cache
	logger   *slog.Logger
}

// NewEventFanout creates the lifecycle event sink. Any collaborator may
// be nil and is then skipped.
func NewEventFanout(
	hub *websocket.Hub,
	producer *kafka.Producer,
	repo *postgres.Repository,
	cache *redis.Cache,
	logger *slog.Logger,
) *EventFanout {
	return &EventFanout{
		hub:      hub,
		producer: producer,
		repo:     repo,
		cache:    cache,
		logger:   logger,
	}
}

// PublishEvent fans one lifecycle event out to connected clients, the
// event stream, and the event log
func (f *EventFanout) PublishEvent(ctx context.Context, event domain.SessionEvent) {
	if f.hub != nil {
		f.hub.BroadcastSessionEvent(event)
	}
	if f.producer != nil {
		f.producer.PublishEvent(event)
	}
	if f.repo != nil {
		go func() {
			if err := f.repo.RecordEvent(context.WithoutCancel(ctx), event); err != nil {
				f.logger.Warn("failed to record session event",
					"session_id", event.SessionID,
					"type", event.Type,
					"error", err,
				)
			}
		}()
	}
}

// Post-game skill rating deltas
const (
	ratingWin  = 25
	ratingLoss = -15
)

// SessionEnded persists a finished session's final snapshot and outcome
// records, then applies the skill rating deltas
func (f *EventFanout) SessionEnded(ctx context.Context, snapshot *domain.SessionSnapshot, outcomes []domain.PlayerOutcome) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if f.repo != nil {
			if err := f.repo.SaveSnapshot(bg, snapshot); err != nil {
				f.logger.Warn("failed to persist final snapshot",
					"session_id", snapshot.SessionID,
					"error", err,
				)
			}
			if err := f.repo.RecordOutcomes(bg, outcomes); err != nil {
				f.logger.Warn("failed to record outcomes",
					"session_id", snapshot.SessionID,
					"error", err,
				)
			}
			f.adjustRatings(bg, outcomes)
		}
		if f.cache != nil {
			if err := f.cache.SetSessionSnapshot(bg, snapshot); err != nil {
				f.logger.Warn("failed to cache final snapshot",
					"session_id", snapshot.SessionID,
					"error", err,
				)
			}
		}
	}()
}

// adjustRatings applies win/loss deltas to each participant's skill
// rating and refreshes the cached registry records so the matchmaking
// read path sees the new values
func (f *EventFanout) adjustRatings(ctx context.Context, outcomes []domain.PlayerOutcome) {
	for _, outcome := range outcomes {
		player, err := f.repo.GetPlayer(ctx, outcome.PlayerID)
		if err != nil {
			f.logger.Warn("failed to load player for rating update",
				"player_id", outcome.PlayerID,
				"error", err,
			)
			continue
		}

		delta := ratingLoss
		if outcome.Won {
			delta = ratingWin
		}
		rating := player.SkillRating + delta
		if rating < 0 {
			rating = 0
		}

		if err := f.repo.UpdateSkillRating(ctx, outcome.PlayerID, rating); err != nil {
			f.logger.Warn("failed to update skill rating",
				"player_id", outcome.PlayerID,
				"error", err,
			)
			continue
		}
		if f.cache != nil {
			if err := f.cache.SetPlayerInfo(ctx, domain.PlayerInfo{
				ID:          player.ID,
				Username:    player.Username,
				SkillRating: rating,
				Region:      player.Region,
			}); err != nil {
				f.logger.Warn("failed to refresh cached player info",
					"player_id", outcome.PlayerID,
					"error", err,
				)
			}
		}
	}
}
