package game

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mafia-engine/internal/domain"
)

// EventSink receives session lifecycle output. Implementations must not
// block: dispatch is fire-and-forget relative to state mutation, and a
// sink failure never rolls back a committed transition.
type EventSink interface {
	PublishEvent(ctx context.Context, event domain.SessionEvent)
	SessionEnded(ctx context.Context, snapshot *domain.SessionSnapshot, outcomes []domain.PlayerOutcome)
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) PublishEvent(context.Context, domain.SessionEvent) {}
func (NopSink) SessionEnded(context.Context, *domain.SessionSnapshot, []domain.PlayerOutcome) {
}

// Engine owns all live sessions. Every session is mutated through a
// single serialization point keyed by session id, so concurrent actions
// and phase transitions against one session are strictly ordered.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*sessionHandle

	settings domain.SessionSettings
	sink     EventSink
	logger   *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	now          func() time.Time
	tickInterval time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	runMu   sync.Mutex
	running bool
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock injects the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand injects the random source used for role assignment, so tests
// can seed deterministic shuffles
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithTickInterval overrides the phase countdown resolution
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// NewEngine creates a session engine with the given default settings
func NewEngine(settings domain.SessionSettings, sink EventSink, logger *slog.Logger, opts ...Option) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	e := &Engine{
		sessions:     make(map[string]*sessionHandle),
		settings:     settings,
		sink:         sink,
		logger:       logger,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
		tickInterval: time.Second,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type sessionHandle struct {
	mu sync.Mutex
	s  *Session
}

// CreateSession assigns roles to the roster and starts the phase cycle.
// It is the Initialize operation handed the matched player list.
func (e *Engine) CreateSession(ctx context.Context, playerIDs []string) (*domain.SessionSnapshot, error) {
	id := uuid.New().String()
	now := e.now()

	e.rngMu.Lock()
	session, err := NewSession(id, playerIDs, e.settings, e.rng, now)
	e.rngMu.Unlock()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.sessions[id] = &sessionHandle{s: session}
	e.mu.Unlock()

	e.logger.Info("session created",
		"session_id", id,
		"players", len(playerIDs),
	)
	for _, event := range session.History() {
		e.sink.PublishEvent(ctx, event)
	}
	return session.Snapshot(), nil
}

// ApplyAction validates and applies a player action against a session
func (e *Engine) ApplyAction(ctx context.Context, sessionID string, action domain.Action) (*domain.SessionSnapshot, error) {
	handle, err := e.handle(sessionID)
	if err != nil {
		return nil, err
	}

	handle.mu.Lock()
	result, err := handle.s.ApplyAction(action, e.now())
	var snap *domain.SessionSnapshot
	if err == nil {
		snap = handle.s.Snapshot()
	}
	handle.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, event := range result.Events {
		e.sink.PublishEvent(ctx, event)
	}
	return snap, nil
}

// AdvancePhase moves a session to its next phase and publishes the
// resulting lifecycle events
func (e *Engine) AdvancePhase(ctx context.Context, sessionID string) (*domain.PhaseTransition, error) {
	handle, err := e.handle(sessionID)
	if err != nil {
		return nil, err
	}

	handle.mu.Lock()
	before := len(handle.s.history)
	transition, err := handle.s.AdvancePhase(e.now())
	var events []domain.SessionEvent
	var snap *domain.SessionSnapshot
	var outcomes []domain.PlayerOutcome
	if err == nil {
		events = handle.s.History()[before:]
		snap = handle.s.Snapshot()
		outcomes = handle.s.Outcomes()
	}
	handle.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		e.sink.PublishEvent(ctx, event)
	}
	if transition.WinResult != nil {
		e.logger.Info("session ended",
			"session_id", sessionID,
			"winner", transition.WinResult.Winner,
			"reason", transition.WinResult.Reason,
		)
		e.sink.SessionEnded(ctx, snap, outcomes)
	}
	return transition, nil
}

// Snapshot returns a point-in-time copy of a session's state
func (e *Engine) Snapshot(sessionID string) (*domain.SessionSnapshot, error) {
	handle, err := e.handle(sessionID)
	if err != nil {
		return nil, err
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.s.Snapshot(), nil
}

// History returns a session's append-only event log
func (e *Engine) History(sessionID string) ([]domain.SessionEvent, error) {
	handle, err := e.handle(sessionID)
	if err != nil {
		return nil, err
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.s.History(), nil
}

// ActiveSnapshots returns snapshots for every session still in play
func (e *Engine) ActiveSnapshots() []*domain.SessionSnapshot {
	e.mu.RLock()
	handles := make([]*sessionHandle, 0, len(e.sessions))
	for _, h := range e.sessions {
		handles = append(handles, h)
	}
	e.mu.RUnlock()

	snaps := make([]*domain.SessionSnapshot, 0, len(handles))
	for _, h := range handles {
		h.mu.Lock()
		if !h.s.Finished() {
			snaps = append(snaps, h.s.Snapshot())
		}
		h.mu.Unlock()
	}
	return snaps
}

// RemoveSession drops a session from the engine. Used to roll back a
// just-created session when downstream room persistence fails, so the
// matchmaking queue can restore its entries.
func (e *Engine) RemoveSession(sessionID string) {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
}

// ReapFinished drops finished sessions that have been idle longer than
// the retention window and returns their ids. Their terminal snapshots
// and histories are expected to be persisted by the event sink already.
func (e *Engine) ReapFinished(retention time.Duration) []string {
	cutoff := e.now().Add(-retention)

	e.mu.Lock()
	defer e.mu.Unlock()
	var reaped []string
	for id, handle := range e.sessions {
		handle.mu.Lock()
		expired := handle.s.Finished() && !handle.s.updatedAt.After(cutoff)
		handle.mu.Unlock()
		if expired {
			delete(e.sessions, id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}

// SessionCount returns the number of tracked sessions
func (e *Engine) SessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

func (e *Engine) handle(sessionID string) (*sessionHandle, error) {
	e.mu.RLock()
	handle, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return handle, nil
}

// Start launches the phase clock that drives countdowns and automatic
// phase transitions for all live sessions
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return nil
	}
	e.running = true
	e.runMu.Unlock()

	e.logger.Info("phase clock started", "interval", e.tickInterval)
	go e.run(ctx)
	return nil
}

// Stop stops the phase clock
func (e *Engine) Stop() error {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return nil
	}
	e.runMu.Unlock()

	close(e.stopCh)
	<-e.doneCh

	e.runMu.Lock()
	e.running = false
	e.runMu.Unlock()

	e.logger.Info("phase clock stopped")
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	last := e.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			now := e.now()
			e.tickAll(ctx, now.Sub(last))
			last = now
		}
	}
}

// tickAll decrements every live session's countdown by the measured
// elapsed time, so a delayed or skipped tick never loses wall time, and
// advances sessions whose phase has expired.
func (e *Engine) tickAll(ctx context.Context, elapsed time.Duration) {
	e.mu.RLock()
	expired := make([]string, 0)
	for id, handle := range e.sessions {
		handle.mu.Lock()
		if handle.s.Tick(elapsed) {
			expired = append(expired, id)
		}
		handle.mu.Unlock()
	}
	e.mu.RUnlock()

	for _, id := range expired {
		if _, err := e.AdvancePhase(ctx, id); err != nil {
			e.logger.Error("failed to advance expired phase",
				"session_id", id,
				"error", err,
			)
		}
	}
}
