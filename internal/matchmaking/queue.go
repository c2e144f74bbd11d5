package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mafia-engine/internal/config"
	"github.com/mafia-engine/internal/domain"
)

// PlayerRegistry resolves player ids against the player store
type PlayerRegistry interface {
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
}

// SessionCreator instantiates a game session from a matched roster
type SessionCreator interface {
	CreateSession(ctx context.Context, playerIDs []string) (*domain.SessionSnapshot, error)
}

// Queue owns the pool of waiting players and periodically groups
// compatible entries into session rosters
type Queue struct {
	registry PlayerRegistry
	creator  SessionCreator
	cfg      *config.MatchmakingConfig
	logger   *slog.Logger
	now      func() time.Time

	mu           sync.Mutex
	entries      map[string]*domain.QueueEntry
	order        []string
	regionCounts map[string]int

	// Exponential moving average of how long matched players waited,
	// used for the estimated wait in Status responses.
	avgMatchWait time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	runMu   sync.Mutex
	running bool
}

// Option customizes a Queue
type Option func(*Queue)

// WithClock injects the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a matchmaking queue
func NewQueue(
	registry PlayerRegistry,
	creator SessionCreator,
	cfg *config.MatchmakingConfig,
	logger *slog.Logger,
	opts ...Option,
) *Queue {
	q := &Queue{
		registry:     registry,
		creator:      creator,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		entries:      make(map[string]*domain.QueueEntry),
		regionCounts: make(map[string]int),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Join adds a player to the queue. It fails with ErrPlayerNotFound when
// the id cannot be resolved against the registry and with ErrAlreadyQueued
// when the player already has a live entry.
func (q *Queue) Join(ctx context.Context, playerID string, prefs domain.MatchPreferences, conn domain.ConnectionInfo) (*domain.QueueStatus, error) {
	player, err := q.registry.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("resolving player: %w", err)
	}

	region := conn.Region
	if region == "" {
		region = player.Region
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[playerID]; ok {
		return nil, domain.ErrAlreadyQueued
	}

	entry := &domain.QueueEntry{
		PlayerID:          playerID,
		SkillRating:       player.SkillRating,
		BaseSkillRange:    prefs.SkillRange,
		CurrentSkillRange: prefs.SkillRange,
		MaxWait:           prefs.MaxWait,
		Region:            region,
		Quality:           conn.Quality,
		LatencyMs:         conn.LatencyMs,
		JoinedAt:          q.now(),
	}
	q.entries[playerID] = entry
	q.order = append(q.order, playerID)
	q.regionCounts[region]++

	q.logger.Info("player joined queue",
		"player_id", playerID,
		"skill_rating", entry.SkillRating,
		"region", region,
		"queue_size", len(q.entries),
	)

	return &domain.QueueStatus{
		PlayerID:      playerID,
		Position:      len(q.order),
		QueueSize:     len(q.entries),
		EstimatedWait: q.estimateWaitLocked(len(q.order)),
	}, nil
}

// Leave removes a player's entry if present. It is idempotent and reports
// whether a removal occurred.
func (q *Queue) Leave(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(playerID)
}

// Status returns the player's queue position, the queue size, and an
// estimated wait derived from the observed match cadence
func (q *Queue) Status(playerID string) (*domain.QueueStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[playerID]; !ok {
		return nil, domain.ErrNotQueued
	}
	position := 0
	for i, id := range q.order {
		if id == playerID {
			position = i + 1
			break
		}
	}
	return &domain.QueueStatus{
		PlayerID:      playerID,
		Position:      position,
		QueueSize:     len(q.entries),
		EstimatedWait: q.estimateWaitLocked(position),
	}, nil
}

// Stats returns a read-only aggregate snapshot of the pool
func (q *Queue) Stats() domain.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var totalWait time.Duration
	for _, entry := range q.entries {
		totalWait += now.Sub(entry.JoinedAt)
	}
	avg := time.Duration(0)
	if len(q.entries) > 0 {
		avg = totalWait / time.Duration(len(q.entries))
	}

	regions := make(map[string]int, len(q.regionCounts))
	for region, count := range q.regionCounts {
		regions[region] = count
	}
	return domain.QueueStats{
		PlayersInQueue:     len(q.entries),
		AverageWait:        avg,
		RegionDistribution: regions,
	}
}

// Start launches the periodic matching pass
func (q *Queue) Start(ctx context.Context) error {
	q.runMu.Lock()
	if q.running {
		q.runMu.Unlock()
		return nil
	}
	q.running = true
	q.runMu.Unlock()

	q.logger.Info("matchmaking worker started", "interval", q.cfg.Interval)
	go q.run(ctx)
	return nil
}

// Stop stops the periodic matching pass
func (q *Queue) Stop() error {
	q.runMu.Lock()
	if !q.running {
		q.runMu.Unlock()
		return nil
	}
	q.runMu.Unlock()

	close(q.stopCh)
	<-q.doneCh

	q.runMu.Lock()
	q.running = false
	q.runMu.Unlock()

	q.logger.Info("matchmaking worker stopped")
	return nil
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.doneCh)

	ticker := time.NewTicker(q.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.RunPass(ctx)
		}
	}
}

// RunPass executes one matching pass: expire timed-out entries, widen
// skill ranges, form groups, and hand rosters to the session creator.
// Exposed for manual triggering and tests.
func (q *Queue) RunPass(ctx context.Context) {
	q.mu.Lock()
	q.expireLocked()
	q.expandRangesLocked()
	groups := q.claimGroupsLocked()
	q.mu.Unlock()

	for _, group := range groups {
		q.createSession(ctx, group)
	}
}

// expireLocked drops entries whose max wait has elapsed. No session is
// formed for them.
func (q *Queue) expireLocked() {
	now := q.now()
	for _, id := range append([]string(nil), q.order...) {
		entry := q.entries[id]
		if entry == nil {
			continue
		}
		if now.Sub(entry.JoinedAt) > entry.MaxWait {
			q.removeLocked(id)
			q.logger.Info("queue entry expired",
				"player_id", id,
				"waited", now.Sub(entry.JoinedAt),
			)
		}
	}
}

// expandRangesLocked widens each entry's skill range as a linear function
// of elapsed wait, capped at a multiple of the original range. The result
// only depends on elapsed time, so it is monotonically non-decreasing.
func (q *Queue) expandRangesLocked() {
	now := q.now()
	for _, entry := range q.entries {
		elapsed := now.Sub(entry.JoinedAt).Seconds()
		expanded := float64(entry.BaseSkillRange) + q.cfg.SkillExpandPerSecond*elapsed
		ceiling := float64(entry.BaseSkillRange) * q.cfg.SkillRangeCapMultiple
		if expanded > ceiling {
			expanded = ceiling
		}
		entry.CurrentSkillRange = int(expanded)
	}
}

// claimGroupsLocked greedily scans entries oldest first and claims viable
// groups atomically under the pool lock, so no entry can be allocated to
// two concurrent group formations.
func (q *Queue) claimGroupsLocked() [][]*domain.QueueEntry {
	now := q.now()
	var groups [][]*domain.QueueEntry

	for _, seedID := range append([]string(nil), q.order...) {
		seed := q.entries[seedID]
		if seed == nil {
			continue
		}

		candidates := q.candidatesLocked(seed)
		group := append([]*domain.QueueEntry{seed}, candidates...)
		if len(group) > q.cfg.MaxGroupSize {
			group = group[:q.cfg.MaxGroupSize]
		}

		switch {
		case len(group) >= q.cfg.TargetGroupSize:
			group = group[:q.cfg.TargetGroupSize]
		case len(group) >= q.cfg.MinGroupSize && q.pastGraceLocked(seed, now):
			// Accept a minimum-viable group once the seed has waited
			// out the grace period rather than block formation.
		default:
			continue
		}

		for _, member := range group {
			q.removeLocked(member.PlayerID)
		}
		groups = append(groups, group)
	}
	return groups
}

// candidatesLocked collects partners that are mutually skill-compatible
// with the seed, ordered by skill closeness. Region and connection
// quality only break ties between equally close candidates; they never
// exclude a skill-compatible partner.
func (q *Queue) candidatesLocked(seed *domain.QueueEntry) []*domain.QueueEntry {
	var candidates []*domain.QueueEntry
	for _, id := range q.order {
		if id == seed.PlayerID {
			continue
		}
		entry := q.entries[id]
		if entry == nil {
			continue
		}
		diff := seed.SkillRating - entry.SkillRating
		if diff < 0 {
			diff = -diff
		}
		limit := seed.CurrentSkillRange
		if entry.CurrentSkillRange < limit {
			limit = entry.CurrentSkillRange
		}
		if diff <= limit {
			candidates = append(candidates, entry)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := absDiff(seed.SkillRating, candidates[i].SkillRating)
		dj := absDiff(seed.SkillRating, candidates[j].SkillRating)
		if di != dj {
			return di < dj
		}
		bi := q.affinity(seed, candidates[i])
		bj := q.affinity(seed, candidates[j])
		if bi != bj {
			return bi > bj
		}
		return candidates[i].JoinedAt.Before(candidates[j].JoinedAt)
	})
	return candidates
}

// affinity scores the soft compatibility bonuses: same region and similar
// connection quality
func (q *Queue) affinity(a, b *domain.QueueEntry) int {
	score := 0
	if a.Region != "" && a.Region == b.Region {
		score += 4
	}
	qualityGap := a.Quality.Rank() - b.Quality.Rank()
	if qualityGap < 0 {
		qualityGap = -qualityGap
	}
	score += 3 - qualityGap
	return score
}

// pastGraceLocked reports whether the seed has waited long enough that a
// minimum-viable group should no longer wait for a full one
func (q *Queue) pastGraceLocked(seed *domain.QueueEntry, now time.Time) bool {
	waited := now.Sub(seed.JoinedAt)
	return waited >= q.cfg.GracePeriod || waited*2 >= seed.MaxWait
}

// createSession hands a claimed roster to the session creator. On failure
// the group's entries are restored to the pool unchanged rather than lost.
func (q *Queue) createSession(ctx context.Context, group []*domain.QueueEntry) {
	playerIDs := make([]string, len(group))
	for i, entry := range group {
		playerIDs[i] = entry.PlayerID
	}

	snapshot, err := q.creator.CreateSession(ctx, playerIDs)
	if err != nil {
		q.logger.Error("session creation failed, restoring queue entries",
			"players", len(group),
			"error", err,
		)
		q.restore(group)
		return
	}

	now := q.now()
	q.mu.Lock()
	for _, entry := range group {
		waited := now.Sub(entry.JoinedAt)
		if q.avgMatchWait == 0 {
			q.avgMatchWait = waited
		} else {
			q.avgMatchWait = (q.avgMatchWait*7 + waited) / 8
		}
	}
	q.mu.Unlock()

	q.logger.Info("match formed",
		"session_id", snapshot.SessionID,
		"players", len(group),
	)
}

// restore puts claimed entries back into the pool with their original
// join times, preserving their seniority for the next pass
func (q *Queue) restore(group []*domain.QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, entry := range group {
		if _, ok := q.entries[entry.PlayerID]; ok {
			continue
		}
		q.entries[entry.PlayerID] = entry
		q.order = append(q.order, entry.PlayerID)
		q.regionCounts[entry.Region]++
	}
	sort.SliceStable(q.order, func(i, j int) bool {
		return q.entries[q.order[i]].JoinedAt.Before(q.entries[q.order[j]].JoinedAt)
	})
}

func (q *Queue) removeLocked(playerID string) bool {
	entry, ok := q.entries[playerID]
	if !ok {
		return false
	}
	delete(q.entries, playerID)
	q.regionCounts[entry.Region]--
	if q.regionCounts[entry.Region] <= 0 {
		delete(q.regionCounts, entry.Region)
	}
	for i, id := range q.order {
		if id == playerID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

func (q *Queue) estimateWaitLocked(position int) time.Duration {
	if q.avgMatchWait > 0 {
		groups := (position + q.cfg.TargetGroupSize - 1) / q.cfg.TargetGroupSize
		return q.avgMatchWait * time.Duration(groups)
	}
	return q.cfg.Interval * time.Duration(position)
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
