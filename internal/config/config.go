package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mafia-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Game        GameConfig        `yaml:"game"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ActionsTopic  string        `yaml:"actions_topic"`
	EventsTopic   string        `yaml:"events_topic"`
	GroupID       string        `yaml:"group_id"`
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// MatchmakingConfig holds matchmaking queue configuration
type MatchmakingConfig struct {
	// Interval between matching passes
	Interval time.Duration `yaml:"interval"`
	// MinGroupSize is the minimum viable session size
	MinGroupSize int `yaml:"min_group_size"`
	// TargetGroupSize is preferred over a minimum-viable group while
	// entries are still within the grace period
	TargetGroupSize int `yaml:"target_group_size"`
	// MaxGroupSize caps a single session roster
	MaxGroupSize int `yaml:"max_group_size"`
	// GracePeriod bounds how long group formation waits for a full
	// target-size group before accepting a minimum-viable one
	GracePeriod time.Duration `yaml:"grace_period"`
	// SkillExpandPerSecond widens an entry's skill range per second waited
	SkillExpandPerSecond float64 `yaml:"skill_expand_per_second"`
	// SkillRangeCapMultiple caps the widened range at a multiple of the
	// entry's original range
	SkillRangeCapMultiple float64 `yaml:"skill_range_cap_multiple"`
}

// GameConfig holds default session settings
type GameConfig struct {
	MaxPlayers         int               `yaml:"max_players"`
	DayPhaseDuration   time.Duration     `yaml:"day_phase_duration"`
	VotingDuration     time.Duration     `yaml:"voting_duration"`
	NightPhaseDuration time.Duration     `yaml:"night_phase_duration"`
	// RoleSlots fixes the role composition for every session. Left empty,
	// the composition scales with each session's roster size.
	RoleSlots []domain.RoleSlot `yaml:"role_slots"`
	// TickInterval drives the per-session phase countdown
	TickInterval time.Duration `yaml:"tick_interval"`
}

// SessionSettings converts the game configuration to per-session settings
func (c *GameConfig) SessionSettings() domain.SessionSettings {
	return domain.SessionSettings{
		MaxPlayers:         c.MaxPlayers,
		DayPhaseDuration:   c.DayPhaseDuration,
		VotingDuration:     c.VotingDuration,
		NightPhaseDuration: c.NightPhaseDuration,
		RoleSlots:          c.RoleSlots,
	}
}

// SnapshotConfig holds session snapshot persistence worker configuration
type SnapshotConfig struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.ActionsTopic == "" {
		c.Kafka.ActionsTopic = "mafia-actions"
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "mafia-session-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "mafia-engine"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Matchmaking defaults
	if c.Matchmaking.Interval == 0 {
		c.Matchmaking.Interval = 3 * time.Second
	}
	if c.Matchmaking.MinGroupSize == 0 {
		c.Matchmaking.MinGroupSize = 4
	}
	if c.Matchmaking.TargetGroupSize == 0 {
		c.Matchmaking.TargetGroupSize = 8
	}
	if c.Matchmaking.MaxGroupSize == 0 {
		c.Matchmaking.MaxGroupSize = 20
	}
	if c.Matchmaking.GracePeriod == 0 {
		c.Matchmaking.GracePeriod = 30 * time.Second
	}
	if c.Matchmaking.SkillExpandPerSecond == 0 {
		c.Matchmaking.SkillExpandPerSecond = 2
	}
	if c.Matchmaking.SkillRangeCapMultiple == 0 {
		c.Matchmaking.SkillRangeCapMultiple = 4
	}

	// Game defaults
	if c.Game.MaxPlayers == 0 {
		c.Game.MaxPlayers = 12
	}
	if c.Game.DayPhaseDuration == 0 {
		c.Game.DayPhaseDuration = 3 * time.Minute
	}
	if c.Game.VotingDuration == 0 {
		c.Game.VotingDuration = 1 * time.Minute
	}
	if c.Game.NightPhaseDuration == 0 {
		c.Game.NightPhaseDuration = 90 * time.Second
	}
	if c.Game.TickInterval == 0 {
		c.Game.TickInterval = 1 * time.Second
	}

	// Formed groups must fit inside a single session
	if c.Matchmaking.MaxGroupSize > c.Game.MaxPlayers {
		c.Matchmaking.MaxGroupSize = c.Game.MaxPlayers
	}
	if c.Matchmaking.TargetGroupSize > c.Matchmaking.MaxGroupSize {
		c.Matchmaking.TargetGroupSize = c.Matchmaking.MaxGroupSize
	}
	if c.Matchmaking.MinGroupSize > c.Matchmaking.TargetGroupSize {
		c.Matchmaking.MinGroupSize = c.Matchmaking.TargetGroupSize
	}

	// Snapshot defaults
	if c.Snapshot.Interval == 0 {
		c.Snapshot.Interval = 30 * time.Second
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Snapshot.Enabled = true
	return cfg
}
