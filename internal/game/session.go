package game

import (
	"math/rand"
	"sort"
	"time"

	"github.com/mafia-engine/internal/domain"
)

// Session owns one game's state. It is not safe for concurrent use; the
// Engine serializes all mutations through a per-session lock.
type Session struct {
	id            string
	phase         domain.Phase
	dayNumber     int
	players       []string
	roles         map[string]domain.Role
	eliminated    map[string]bool
	votes         map[string]domain.Vote
	pending       map[string]domain.PendingEffect
	timeRemaining time.Duration
	settings      domain.SessionSettings
	history       []domain.SessionEvent
	winResult     *domain.WinResult
	createdAt     time.Time
	updatedAt     time.Time
}

// ActionResult reports the outcome of a successfully applied action
type ActionResult struct {
	// Events emitted by the action, already appended to the history
	Events []domain.SessionEvent
	// VoteRemoved reports whether an unvote actually removed a ballot
	VoteRemoved bool
}

// NewSession initializes a session from a matched roster. Roles are
// assigned exactly once here; the player list is fixed from this point on.
func NewSession(id string, playerIDs []string, settings domain.SessionSettings, rng *rand.Rand, now time.Time) (*Session, error) {
	if len(playerIDs) < 4 {
		return nil, domain.ErrInsufficientPlayers
	}
	if settings.MaxPlayers > 0 && len(playerIDs) > settings.MaxPlayers {
		return nil, domain.ErrTooManyPlayers
	}

	players := make([]string, len(playerIDs))
	copy(players, playerIDs)

	// An empty composition scales with the roster instead of producing an
	// all-villager game.
	slots := settings.RoleSlots
	if len(slots) == 0 {
		slots = ScaledRoleSlots(len(players))
	}

	s := &Session{
		id:            id,
		phase:         domain.PhaseDay,
		dayNumber:     1,
		players:       players,
		roles:         AssignRoles(players, slots, rng),
		eliminated:    make(map[string]bool),
		votes:         make(map[string]domain.Vote),
		pending:       make(map[string]domain.PendingEffect),
		timeRemaining: settings.DayPhaseDuration,
		settings:      settings,
		createdAt:     now,
		updatedAt:     now,
	}

	s.appendEvent(domain.SessionEvent{
		SessionID: id,
		Type:      domain.EventSessionCreated,
		Phase:     s.phase,
		DayNumber: s.dayNumber,
		PlayerIDs: players,
		Timestamp: now,
	})
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Finished reports whether the session has reached its terminal state
func (s *Session) Finished() bool { return s.phase == domain.PhaseFinished }

// ApplyAction validates and applies a player action. On a validation
// failure the session is left unmodified.
func (s *Session) ApplyAction(action domain.Action, now time.Time) (*ActionResult, error) {
	if s.phase == domain.PhaseFinished {
		return nil, domain.ErrSessionFinished
	}
	if err := ValidateAction(action, s.Snapshot()); err != nil {
		return nil, err
	}

	result := &ActionResult{}
	switch action.Type {
	case domain.ActionVote:
		// Last vote wins: a voter's new ballot replaces any prior one.
		s.votes[action.PlayerID] = domain.Vote{
			VoterID:  action.PlayerID,
			TargetID: action.TargetID,
			CastAt:   now,
		}
		result.Events = append(result.Events, s.appendEvent(domain.SessionEvent{
			SessionID: s.id,
			Type:      domain.EventPlayerVote,
			Phase:     s.phase,
			DayNumber: s.dayNumber,
			PlayerIDs: []string{action.PlayerID, action.TargetID},
			Timestamp: now,
		}))

	case domain.ActionUnvote:
		_, had := s.votes[action.PlayerID]
		delete(s.votes, action.PlayerID)
		result.VoteRemoved = had

	case domain.ActionNight:
		role := s.roles[action.PlayerID]
		if role == domain.RoleDetective {
			// Investigations resolve immediately as a role-revealing
			// event without touching the alive set.
			result.Events = append(result.Events, s.appendEvent(domain.SessionEvent{
				SessionID: s.id,
				Type:      domain.EventInvestigationResult,
				Phase:     s.phase,
				DayNumber: s.dayNumber,
				PlayerIDs: []string{action.PlayerID, action.TargetID},
				Data: map[string]interface{}{
					"target": action.TargetID,
					"role":   string(s.roles[action.TargetID]),
				},
				Timestamp: now,
			}))
			break
		}
		// One pending effect per actor, last submission wins. Effects
		// are resolved in priority order at the Night-to-Day transition.
		s.pending[action.PlayerID] = domain.PendingEffect{
			ActorID:    action.PlayerID,
			TargetID:   action.TargetID,
			Role:       role,
			RecordedAt: now,
		}
	}

	s.updatedAt = now
	return result, nil
}

// AdvancePhase moves the session to the next phase, performing the
// transition's resolution, clearing votes, resetting the countdown, and
// consulting the win condition evaluator.
func (s *Session) AdvancePhase(now time.Time) (*domain.PhaseTransition, error) {
	if s.phase == domain.PhaseFinished {
		return nil, domain.ErrSessionFinished
	}

	transition := &domain.PhaseTransition{
		SessionID: s.id,
		From:      s.phase,
	}

	switch s.phase {
	case domain.PhaseDay:
		s.phase = domain.PhaseVoting

	case domain.PhaseVoting:
		if target, ok := s.tallyVotes(); ok {
			s.eliminate(target, now)
			transition.Eliminated = append(transition.Eliminated, target)
		}
		s.phase = domain.PhaseNight

	case domain.PhaseNight:
		if target, ok := s.resolveNight(); ok {
			s.eliminate(target, now)
			transition.Eliminated = append(transition.Eliminated, target)
		}
		s.pending = make(map[string]domain.PendingEffect)
		s.phase = domain.PhaseDay
		s.dayNumber++
	}

	s.votes = make(map[string]domain.Vote)
	s.timeRemaining = s.settings.PhaseDuration(s.phase)
	s.updatedAt = now
	transition.To = s.phase
	transition.DayNumber = s.dayNumber

	s.appendEvent(domain.SessionEvent{
		SessionID: s.id,
		Type:      domain.EventPhaseChange,
		Phase:     s.phase,
		DayNumber: s.dayNumber,
		PlayerIDs: transition.Eliminated,
		Data: map[string]interface{}{
			"from": string(transition.From),
			"to":   string(transition.To),
		},
		Timestamp: now,
	})

	if win := EvaluateWin(s.roles, s.eliminated); win != nil {
		s.phase = domain.PhaseFinished
		s.winResult = win
		s.timeRemaining = 0
		transition.To = domain.PhaseFinished
		transition.WinResult = win
		s.appendEvent(domain.SessionEvent{
			SessionID: s.id,
			Type:      domain.EventGameEnd,
			Phase:     s.phase,
			DayNumber: s.dayNumber,
			PlayerIDs: win.Members,
			Data: map[string]interface{}{
				"winner": string(win.Winner),
				"reason": win.Reason,
			},
			Timestamp: now,
		})
	}

	return transition, nil
}

// tallyVotes returns the target holding a strict plurality of the current
// votes. A tie for first place collapses to no elimination.
func (s *Session) tallyVotes() (string, bool) {
	counts := make(map[string]int)
	for _, vote := range s.votes {
		counts[vote.TargetID]++
	}

	best, bestCount, tied := "", 0, false
	for target, count := range counts {
		switch {
		case count > bestCount:
			best, bestCount, tied = target, count, false
		case count == bestCount:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return "", false
	}
	return best, true
}

// resolveNight resolves the pending night effects in a fixed priority
// order: protection cancels a simultaneous kill on the same target. Among
// several recorded kills the most recent one stands.
func (s *Session) resolveNight() (string, bool) {
	protected := make(map[string]bool)
	var kill *domain.PendingEffect
	for actor := range s.pending {
		effect := s.pending[actor]
		switch effect.Role {
		case domain.RoleDoctor:
			protected[effect.TargetID] = true
		case domain.RoleMafia:
			if kill == nil || effect.RecordedAt.After(kill.RecordedAt) {
				e := effect
				kill = &e
			}
		}
	}
	if kill == nil || protected[kill.TargetID] || s.eliminated[kill.TargetID] {
		return "", false
	}
	return kill.TargetID, true
}

func (s *Session) eliminate(playerID string, now time.Time) {
	s.eliminated[playerID] = true
	s.appendEvent(domain.SessionEvent{
		SessionID: s.id,
		Type:      domain.EventPlayerEliminated,
		Phase:     s.phase,
		DayNumber: s.dayNumber,
		PlayerIDs: []string{playerID},
		Timestamp: now,
	})
}

// Tick decrements the phase countdown by the elapsed duration and reports
// whether the current phase has expired.
func (s *Session) Tick(elapsed time.Duration) bool {
	if s.phase == domain.PhaseFinished {
		return false
	}
	s.timeRemaining -= elapsed
	if s.timeRemaining < 0 {
		s.timeRemaining = 0
	}
	return s.timeRemaining == 0
}

// Snapshot returns an immutable copy of the externally visible state
func (s *Session) Snapshot() *domain.SessionSnapshot {
	snap := &domain.SessionSnapshot{
		SessionID:     s.id,
		Phase:         s.phase,
		DayNumber:     s.dayNumber,
		Players:       append([]string(nil), s.players...),
		Roles:         make(map[string]domain.Role, len(s.roles)),
		Eliminated:    make([]string, 0, len(s.eliminated)),
		Votes:         make([]domain.Vote, 0, len(s.votes)),
		TimeRemaining: s.timeRemaining,
		WinResult:     s.winResult,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
	for id, role := range s.roles {
		snap.Roles[id] = role
	}
	for id := range s.eliminated {
		snap.Eliminated = append(snap.Eliminated, id)
	}
	sort.Strings(snap.Eliminated)
	for _, voter := range s.players {
		if vote, ok := s.votes[voter]; ok {
			snap.Votes = append(snap.Votes, vote)
		}
	}
	return snap
}

// History returns a copy of the append-only event log
func (s *Session) History() []domain.SessionEvent {
	return append([]domain.SessionEvent(nil), s.history...)
}

// Outcomes builds the per-player outcome records for a finished session
func (s *Session) Outcomes() []domain.PlayerOutcome {
	if s.winResult == nil {
		return nil
	}
	outcomes := make([]domain.PlayerOutcome, 0, len(s.players))
	for _, id := range s.players {
		role := s.roles[id]
		won := !s.winResult.Draw && (role.IsMafia() == (s.winResult.Winner == domain.FactionMafia))
		outcomes = append(outcomes, domain.PlayerOutcome{
			SessionID: s.id,
			PlayerID:  id,
			Role:      role,
			Won:       won,
			Survived:  !s.eliminated[id],
		})
	}
	return outcomes
}

func (s *Session) appendEvent(event domain.SessionEvent) domain.SessionEvent {
	s.history = append(s.history, event)
	return event
}
