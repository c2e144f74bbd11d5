package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mafia-engine/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() on a missing file succeeded")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q, want default", cfg.Redis.Addr)
	}
	if cfg.Kafka.ActionsTopic != "mafia-actions" {
		t.Errorf("actions topic = %q, want default", cfg.Kafka.ActionsTopic)
	}
	if cfg.Matchmaking.MinGroupSize != 4 {
		t.Errorf("min group size = %d, want 4", cfg.Matchmaking.MinGroupSize)
	}
	if cfg.Game.NightPhaseDuration != 90*time.Second {
		t.Errorf("night duration = %s, want 90s", cfg.Game.NightPhaseDuration)
	}
	if len(cfg.Game.RoleSlots) != 0 {
		t.Errorf("role slots = %d, want none so sessions scale with roster size", len(cfg.Game.RoleSlots))
	}
	if cfg.Matchmaking.MaxGroupSize != cfg.Game.MaxPlayers {
		t.Errorf("max group size = %d, want clamped to max players %d",
			cfg.Matchmaking.MaxGroupSize, cfg.Game.MaxPlayers)
	}
}

func TestGroupSizesClampedToSessionCap(t *testing.T) {
	path := writeConfig(t, `
game:
  max_players: 6
matchmaking:
  min_group_size: 8
  target_group_size: 10
  max_group_size: 20
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Matchmaking.MaxGroupSize != 6 {
		t.Errorf("max group size = %d, want 6", cfg.Matchmaking.MaxGroupSize)
	}
	if cfg.Matchmaking.TargetGroupSize != 6 {
		t.Errorf("target group size = %d, want 6", cfg.Matchmaking.TargetGroupSize)
	}
	if cfg.Matchmaking.MinGroupSize != 6 {
		t.Errorf("min group size = %d, want 6", cfg.Matchmaking.MinGroupSize)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "secret")
	path := writeConfig(t, `
postgres:
  password: ${TEST_PG_PASSWORD}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Postgres.Password != "secret" {
		t.Errorf("postgres password = %q, want expanded env value", cfg.Postgres.Password)
	}
}

func TestSessionSettingsConversion(t *testing.T) {
	cfg := DefaultConfig()
	settings := cfg.Game.SessionSettings()

	if settings.MaxPlayers != 12 {
		t.Errorf("max players = %d, want 12", settings.MaxPlayers)
	}
	if settings.PhaseDuration(domain.PhaseDay) != 3*time.Minute {
		t.Errorf("day duration = %s, want 3m", settings.PhaseDuration(domain.PhaseDay))
	}
	if settings.PhaseDuration(domain.PhaseFinished) != 0 {
		t.Errorf("finished duration = %s, want 0", settings.PhaseDuration(domain.PhaseFinished))
	}
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "mafia",
		Password: "pw",
		Database: "mafia",
	}
	want := "postgres://mafia:pw@db.internal:5433/mafia?sslmode=disable"
	if got := cfg.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
