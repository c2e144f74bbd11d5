package domain

import "time"

// ConnectionQuality is an ordered connection quality grade
type ConnectionQuality string

const (
	ConnectionPoor      ConnectionQuality = "poor"
	ConnectionFair      ConnectionQuality = "fair"
	ConnectionGood      ConnectionQuality = "good"
	ConnectionExcellent ConnectionQuality = "excellent"
)

// Rank returns the quality's position in the poor..excellent ordering
func (q ConnectionQuality) Rank() int {
	switch q {
	case ConnectionPoor:
		return 0
	case ConnectionFair:
		return 1
	case ConnectionGood:
		return 2
	case ConnectionExcellent:
		return 3
	default:
		return 0
	}
}

// MatchPreferences are a player's matchmaking constraints
type MatchPreferences struct {
	SkillRange int           `json:"skill_range"`
	MaxWait    time.Duration `json:"max_wait"`
}

// ConnectionInfo is connection metadata attached to a queue entry
type ConnectionInfo struct {
	Region    string            `json:"region"`
	Quality   ConnectionQuality `json:"quality"`
	LatencyMs int               `json:"latency_ms"`
}

// QueueEntry is one waiting player's matchmaking request record.
// CurrentSkillRange widens monotonically as wait time grows.
type QueueEntry struct {
	PlayerID          string            `json:"player_id"`
	SkillRating       int               `json:"skill_rating"`
	BaseSkillRange    int               `json:"base_skill_range"`
	CurrentSkillRange int               `json:"current_skill_range"`
	MaxWait           time.Duration     `json:"max_wait"`
	Region            string            `json:"region"`
	Quality           ConnectionQuality `json:"quality"`
	LatencyMs         int               `json:"latency_ms"`
	JoinedAt          time.Time         `json:"joined_at"`
}

// QueueStatus is a waiting player's view of the queue
type QueueStatus struct {
	PlayerID      string        `json:"player_id"`
	Position      int           `json:"position"`
	QueueSize     int           `json:"queue_size"`
	EstimatedWait time.Duration `json:"estimated_wait"`
}

// QueueStats is a read-only snapshot of the queue's aggregate state
type QueueStats struct {
	PlayersInQueue     int            `json:"players_in_queue"`
	AverageWait        time.Duration  `json:"average_wait"`
	RegionDistribution map[string]int `json:"region_distribution"`
}

// JoinQueueRequest is a request to enter the matchmaking queue
type JoinQueueRequest struct {
	PlayerID          string            `json:"player_id"`
	SkillRange        int               `json:"skill_range,omitempty"`
	MaxWaitSeconds    int               `json:"max_wait_seconds,omitempty"`
	Region            string            `json:"region,omitempty"`
	ConnectionQuality ConnectionQuality `json:"connection_quality,omitempty"`
	LatencyMs         int               `json:"latency_ms,omitempty"`
}

// Preferences converts the request's matchmaking constraints, applying defaults
func (r *JoinQueueRequest) Preferences() MatchPreferences {
	prefs := MatchPreferences{
		SkillRange: r.SkillRange,
		MaxWait:    time.Duration(r.MaxWaitSeconds) * time.Second,
	}
	if prefs.SkillRange <= 0 {
		prefs.SkillRange = 100
	}
	if prefs.MaxWait <= 0 {
		prefs.MaxWait = 5 * time.Minute
	}
	return prefs
}

// Connection converts the request's connection metadata, applying defaults
func (r *JoinQueueRequest) Connection() ConnectionInfo {
	conn := ConnectionInfo{
		Region:    r.Region,
		Quality:   r.ConnectionQuality,
		LatencyMs: r.LatencyMs,
	}
	if conn.Quality == "" {
		conn.Quality = ConnectionGood
	}
	return conn
}
