package domain

import (
	"time"
)

// Phase represents the current stage of a session's day/night cycle
type Phase string

const (
	PhaseDay      Phase = "day"
	PhaseVoting   Phase = "voting"
	PhaseNight    Phase = "night"
	PhaseFinished Phase = "finished"
)

// Role represents a player's faction/capability tag, assigned at session start
type Role string

const (
	RoleVillager  Role = "villager"
	RoleMafia     Role = "mafia"
	RoleDetective Role = "detective"
	RoleDoctor    Role = "doctor"
)

// IsMafia reports whether the role belongs to the antagonist faction
func (r Role) IsMafia() bool {
	return r == RoleMafia
}

// RoleSlot describes how many players of a session hold a given role
type RoleSlot struct {
	Role  Role `json:"role" yaml:"role"`
	Count int  `json:"count" yaml:"count"`
}

// SessionSettings configures one session's phase durations and role composition
type SessionSettings struct {
	MaxPlayers         int           `json:"max_players"`
	DayPhaseDuration   time.Duration `json:"day_phase_duration"`
	VotingDuration     time.Duration `json:"voting_duration"`
	NightPhaseDuration time.Duration `json:"night_phase_duration"`
	RoleSlots          []RoleSlot    `json:"role_slots"`
}

// PhaseDuration returns the configured duration for a phase
func (s SessionSettings) PhaseDuration(phase Phase) time.Duration {
	switch phase {
	case PhaseDay:
		return s.DayPhaseDuration
	case PhaseVoting:
		return s.VotingDuration
	case PhaseNight:
		return s.NightPhaseDuration
	default:
		return 0
	}
}

// ActionType identifies a player action submitted to a session
type ActionType string

const (
	ActionVote   ActionType = "vote"
	ActionUnvote ActionType = "unvote"
	ActionNight  ActionType = "night_action"
)

// Action is a proposed player action against a session
type Action struct {
	Type     ActionType `json:"type"`
	PlayerID string     `json:"player_id"`
	TargetID string     `json:"target_id,omitempty"`
}

// Vote is one voter's current-phase ballot
type Vote struct {
	VoterID  string    `json:"voter_id"`
	TargetID string    `json:"target_id"`
	CastAt   time.Time `json:"cast_at"`
}

// PendingEffect is a night action recorded during the Night phase and
// resolved at the Night-to-Day transition
type PendingEffect struct {
	ActorID    string    `json:"actor_id"`
	TargetID   string    `json:"target_id"`
	Role       Role      `json:"role"`
	RecordedAt time.Time `json:"recorded_at"`
}

// EventType identifies a session lifecycle event
type EventType string

const (
	EventSessionCreated      EventType = "session_created"
	EventPhaseChange         EventType = "phase_change"
	EventPlayerVote          EventType = "player_vote"
	EventPlayerEliminated    EventType = "player_eliminated"
	EventInvestigationResult EventType = "investigation_result"
	EventGameEnd             EventType = "game_end"
)

// SessionEvent is a lifecycle event payload suitable for fan-out to
// connected clients and for the append-only session history
type SessionEvent struct {
	SessionID string                 `json:"session_id"`
	Type      EventType              `json:"type"`
	Phase     Phase                  `json:"phase"`
	DayNumber int                    `json:"day_number"`
	PlayerIDs []string               `json:"player_ids,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Faction identifies a winning side
type Faction string

const (
	FactionVillagers Faction = "villagers"
	FactionMafia     Faction = "mafia"
)

// Win reasons reported by the win condition evaluator
const (
	WinReasonAllEliminated   = "All players eliminated"
	WinReasonMafiaEliminated = "All mafia members eliminated"
	WinReasonMafiaMajority   = "Mafia equals or outnumbers villagers"
)

// WinResult is the terminal outcome of a session
type WinResult struct {
	Winner  Faction  `json:"winner"`
	Members []string `json:"members"`
	Reason  string   `json:"reason"`
	Draw    bool     `json:"draw,omitempty"`
}

// PhaseTransition describes the result of advancing a session's phase
type PhaseTransition struct {
	SessionID  string     `json:"session_id"`
	From       Phase      `json:"from"`
	To         Phase      `json:"to"`
	DayNumber  int        `json:"day_number"`
	Eliminated []string   `json:"eliminated,omitempty"`
	WinResult  *WinResult `json:"win_result,omitempty"`
}

// SessionSnapshot is an immutable copy of a session's externally visible
// state, safe to serialize and hand to readers without locking
type SessionSnapshot struct {
	SessionID     string          `json:"session_id"`
	Phase         Phase           `json:"phase"`
	DayNumber     int             `json:"day_number"`
	Players       []string        `json:"players"`
	Roles         map[string]Role `json:"roles"`
	Eliminated    []string        `json:"eliminated"`
	Votes         []Vote          `json:"votes"`
	TimeRemaining time.Duration   `json:"time_remaining"`
	WinResult     *WinResult      `json:"win_result,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsEliminated reports whether a player id is in the snapshot's eliminated set
func (s *SessionSnapshot) IsEliminated(playerID string) bool {
	for _, id := range s.Eliminated {
		if id == playerID {
			return true
		}
	}
	return false
}
