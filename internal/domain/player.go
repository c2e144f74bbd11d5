package domain

import "time"

// Player represents a registered player in the system
type Player struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	SkillRating int       `json:"skill_rating"`
	Region      string    `json:"region,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PlayerInfo is a lightweight player information struct used for caching
type PlayerInfo struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	SkillRating int    `json:"skill_rating"`
	Region      string `json:"region,omitempty"`
}

// PlayerOutcome records one player's result when a session ends
type PlayerOutcome struct {
	SessionID string `json:"session_id"`
	PlayerID  string `json:"player_id"`
	Role      Role   `json:"role"`
	Won       bool   `json:"won"`
	Survived  bool   `json:"survived"`
}
