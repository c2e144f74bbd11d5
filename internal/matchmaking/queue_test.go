package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mafia-engine/internal/config"
	"github.com/mafia-engine/internal/domain"
)

var queueBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeRegistry resolves any player id and records a fixed skill rating
// per player
type fakeRegistry struct {
	ratings map[string]int
	regions map[string]string
}

func (f *fakeRegistry) GetPlayer(_ context.Context, playerID string) (*domain.Player, error) {
	rating, ok := f.ratings[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &domain.Player{
		ID:          playerID,
		Username:    playerID,
		SkillRating: rating,
		Region:      f.regions[playerID],
	}, nil
}

// fakeCreator records rosters handed to it and can be set to fail
type fakeCreator struct {
	mu      sync.Mutex
	rosters [][]string
	fail    bool
}

func (f *fakeCreator) CreateSession(_ context.Context, playerIDs []string) (*domain.SessionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("boom")
	}
	roster := append([]string(nil), playerIDs...)
	f.rosters = append(f.rosters, roster)
	return &domain.SessionSnapshot{
		SessionID: fmt.Sprintf("session-%d", len(f.rosters)),
		Players:   roster,
	}, nil
}

func (f *fakeCreator) sessions() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.rosters...)
}

func testMatchConfig() *config.MatchmakingConfig {
	return &config.MatchmakingConfig{
		Interval:              3 * time.Second,
		MinGroupSize:          4,
		TargetGroupSize:       4,
		MaxGroupSize:          8,
		GracePeriod:           30 * time.Second,
		SkillExpandPerSecond:  2,
		SkillRangeCapMultiple: 4,
	}
}

type queueFixture struct {
	queue    *Queue
	registry *fakeRegistry
	creator  *fakeCreator
	mu       sync.Mutex
	current  time.Time
}

func (f *queueFixture) advance(d time.Duration) {
	f.mu.Lock()
	f.current = f.current.Add(d)
	f.mu.Unlock()
}

func newQueueFixture(cfg *config.MatchmakingConfig) *queueFixture {
	f := &queueFixture{
		registry: &fakeRegistry{ratings: map[string]int{}, regions: map[string]string{}},
		creator:  &fakeCreator{},
		current:  queueBase,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.queue = NewQueue(f.registry, f.creator, cfg, logger, WithClock(func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.current
	}))
	return f
}

func (f *queueFixture) join(t *testing.T, playerID string, rating int, prefs domain.MatchPreferences) *domain.QueueStatus {
	t.Helper()
	f.registry.ratings[playerID] = rating
	status, err := f.queue.Join(context.Background(), playerID, prefs, domain.ConnectionInfo{Quality: domain.ConnectionGood})
	if err != nil {
		t.Fatalf("Join(%s) error = %v", playerID, err)
	}
	return status
}

func defaultPrefs() domain.MatchPreferences {
	return domain.MatchPreferences{SkillRange: 100, MaxWait: 5 * time.Minute}
}

func TestJoinUnknownPlayer(t *testing.T) {
	f := newQueueFixture(testMatchConfig())

	_, err := f.queue.Join(context.Background(), "ghost", defaultPrefs(), domain.ConnectionInfo{})
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("Join() error = %v, want ErrPlayerNotFound", err)
	}
}

func TestJoinDuplicate(t *testing.T) {
	f := newQueueFixture(testMatchConfig())
	f.join(t, "p1", 1000, defaultPrefs())

	_, err := f.queue.Join(context.Background(), "p1", defaultPrefs(), domain.ConnectionInfo{})
	if !errors.Is(err, domain.ErrAlreadyQueued) {
		t.Fatalf("second Join() error = %v, want ErrAlreadyQueued", err)
	}

	// After leaving, the player may join again.
	if !f.queue.Leave("p1") {
		t.Fatal("Leave() = false, want true")
	}
	f.join(t, "p1", 1000, defaultPrefs())
}

func TestLeaveIdempotent(t *testing.T) {
	f := newQueueFixture(testMatchConfig())

	if f.queue.Leave("p1") {
		t.Error("Leave() on empty queue = true, want false")
	}
	f.join(t, "p1", 1000, defaultPrefs())
	if !f.queue.Leave("p1") {
		t.Error("Leave() = false, want true")
	}
	if f.queue.Leave("p1") {
		t.Error("repeated Leave() = true, want false")
	}
}

func TestStatus(t *testing.T) {
	f := newQueueFixture(testMatchConfig())

	if _, err := f.queue.Status("p1"); !errors.Is(err, domain.ErrNotQueued) {
		t.Fatalf("Status() error = %v, want ErrNotQueued", err)
	}

	f.join(t, "p1", 1000, defaultPrefs())
	f.join(t, "p2", 1000, defaultPrefs())

	status, err := f.queue.Status("p2")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Position != 2 {
		t.Errorf("position = %d, want 2", status.Position)
	}
	if status.QueueSize != 2 {
		t.Errorf("queue size = %d, want 2", status.QueueSize)
	}
}

func TestMatchFormsTargetGroup(t *testing.T) {
	f := newQueueFixture(testMatchConfig())
	for i := 1; i <= 4; i++ {
		f.join(t, fmt.Sprintf("p%d", i), 1000+i*10, defaultPrefs())
	}

	f.queue.RunPass(context.Background())

	sessions := f.creator.sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	if len(sessions[0]) != 4 {
		t.Fatalf("roster size = %d, want 4", len(sessions[0]))
	}
	if got := f.queue.Stats().PlayersInQueue; got != 0 {
		t.Errorf("players left in queue = %d, want 0", got)
	}
}

func TestMatchRespectsSkillRange(t *testing.T) {
	f := newQueueFixture(testMatchConfig())
	prefs := domain.MatchPreferences{SkillRange: 50, MaxWait: 5 * time.Minute}
	f.join(t, "p1", 1000, prefs)
	f.join(t, "p2", 1040, prefs)
	f.join(t, "p3", 1060, prefs)
	f.join(t, "p4", 2000, prefs) // far outside everyone's range

	f.queue.RunPass(context.Background())

	if got := len(f.creator.sessions()); got != 0 {
		t.Fatalf("sessions = %d, want 0 while no 4 players are compatible", got)
	}
	if got := f.queue.Stats().PlayersInQueue; got != 4 {
		t.Errorf("players in queue = %d, want 4", got)
	}
}

// Skill ranges widen with wait time, so an initially incompatible pool
// becomes matchable.
func TestSkillRangeExpansion(t *testing.T) {
	cfg := testMatchConfig()
	f := newQueueFixture(cfg)
	prefs := domain.MatchPreferences{SkillRange: 50, MaxWait: 10 * time.Minute}
	f.join(t, "p1", 1000, prefs)
	f.join(t, "p2", 1100, prefs)
	f.join(t, "p3", 1150, prefs)
	f.join(t, "p4", 1200, prefs)

	f.queue.RunPass(context.Background())
	if got := len(f.creator.sessions()); got != 0 {
		t.Fatalf("sessions = %d, want 0 before expansion", got)
	}

	// After 60s each range has widened to 50 + 2*60 = 170, so a
	// mid-rated seed reaches the whole pool.
	f.advance(60 * time.Second)
	f.queue.RunPass(context.Background())

	sessions := f.creator.sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions after expansion = %d, want 1", len(sessions))
	}
}

func TestSkillRangeExpansionCapped(t *testing.T) {
	cfg := testMatchConfig()
	f := newQueueFixture(cfg)
	prefs := domain.MatchPreferences{SkillRange: 50, MaxWait: time.Hour}
	f.join(t, "p1", 1000, prefs)
	f.join(t, "p2", 1000, prefs)
	f.join(t, "p3", 1000, prefs)
	f.join(t, "p4", 1250, prefs) // beyond the 4x cap of 200

	// Uncapped expansion would reach 50 + 2*1800 after 30 minutes; the
	// cap holds every range at 200, keeping p4 unreachable.
	f.advance(30 * time.Minute)
	f.queue.RunPass(context.Background())

	if got := len(f.creator.sessions()); got != 0 {
		t.Fatalf("sessions = %d, want 0 when spread exceeds the range cap", got)
	}
	if got := f.queue.Stats().PlayersInQueue; got != 4 {
		t.Errorf("players in queue = %d, want 4", got)
	}
}

func TestExpiredEntriesRemovedWithoutMatch(t *testing.T) {
	f := newQueueFixture(testMatchConfig())
	prefs := domain.MatchPreferences{SkillRange: 50, MaxWait: 20 * time.Second}
	f.join(t, "p1", 1000, prefs)
	f.join(t, "p2", 5000, prefs)

	f.advance(21 * time.Second)
	f.queue.RunPass(context.Background())

	if got := len(f.creator.sessions()); got != 0 {
		t.Fatalf("sessions = %d, want 0", got)
	}
	if got := f.queue.Stats().PlayersInQueue; got != 0 {
		t.Errorf("players in queue = %d, want 0 after expiry", got)
	}
	if _, err := f.queue.Status("p1"); !errors.Is(err, domain.ErrNotQueued) {
		t.Errorf("Status() after expiry error = %v, want ErrNotQueued", err)
	}
}

// A minimum-viable group only forms once the seed has waited out the
// grace period.
func TestGracePeriodGatesSmallGroups(t *testing.T) {
	cfg := testMatchConfig()
	cfg.MinGroupSize = 4
	cfg.TargetGroupSize = 6
	f := newQueueFixture(cfg)
	for i := 1; i <= 4; i++ {
		f.join(t, fmt.Sprintf("p%d", i), 1000, defaultPrefs())
	}

	f.queue.RunPass(context.Background())
	if got := len(f.creator.sessions()); got != 0 {
		t.Fatalf("sessions = %d, want 0 inside the grace period", got)
	}

	f.advance(cfg.GracePeriod)
	f.queue.RunPass(context.Background())
	sessions := f.creator.sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions past grace = %d, want 1", len(sessions))
	}
	if len(sessions[0]) != 4 {
		t.Errorf("roster size = %d, want the minimum-viable 4", len(sessions[0]))
	}
}

func TestFailedSessionRestoresEntries(t *testing.T) {
	f := newQueueFixture(testMatchConfig())
	for i := 1; i <= 4; i++ {
		f.join(t, fmt.Sprintf("p%d", i), 1000, defaultPrefs())
		f.advance(time.Second)
	}
	f.creator.fail = true

	f.queue.RunPass(context.Background())

	if got := f.queue.Stats().PlayersInQueue; got != 4 {
		t.Fatalf("players in queue = %d, want all 4 restored", got)
	}

	// Seniority survives the restore: p1 is still at the front.
	status, err := f.queue.Status("p1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Position != 1 {
		t.Errorf("restored position = %d, want 1", status.Position)
	}

	// The next pass with a healthy creator matches the same group.
	f.creator.fail = false
	f.queue.RunPass(context.Background())
	if got := len(f.creator.sessions()); got != 1 {
		t.Errorf("sessions after recovery = %d, want 1", got)
	}
}

func TestMaxGroupSizeCap(t *testing.T) {
	cfg := testMatchConfig()
	cfg.MinGroupSize = 4
	cfg.TargetGroupSize = 20
	cfg.MaxGroupSize = 6
	f := newQueueFixture(cfg)
	for i := 1; i <= 10; i++ {
		f.join(t, fmt.Sprintf("p%d", i), 1000, defaultPrefs())
	}

	f.advance(cfg.GracePeriod)
	f.queue.RunPass(context.Background())

	sessions := f.creator.sessions()
	if len(sessions) == 0 {
		t.Fatal("no sessions formed")
	}
	for _, roster := range sessions {
		if len(roster) > 6 {
			t.Errorf("roster size = %d, exceeds max group size 6", len(roster))
		}
	}
}

func TestStats(t *testing.T) {
	f := newQueueFixture(testMatchConfig())
	f.registry.regions["p1"] = "eu-west"
	f.registry.regions["p2"] = "eu-west"
	f.registry.regions["p3"] = "us-east"
	for _, id := range []string{"p1", "p2", "p3"} {
		f.join(t, id, 1000, defaultPrefs())
	}

	f.advance(10 * time.Second)
	stats := f.queue.Stats()
	if stats.PlayersInQueue != 3 {
		t.Errorf("players in queue = %d, want 3", stats.PlayersInQueue)
	}
	if stats.AverageWait != 10*time.Second {
		t.Errorf("average wait = %s, want 10s", stats.AverageWait)
	}
	if stats.RegionDistribution["eu-west"] != 2 || stats.RegionDistribution["us-east"] != 1 {
		t.Errorf("region distribution = %v", stats.RegionDistribution)
	}
}
