package game

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/mafia-engine/internal/domain"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testSettings() domain.SessionSettings {
	return domain.SessionSettings{
		MaxPlayers:         12,
		DayPhaseDuration:   3 * time.Minute,
		VotingDuration:     time.Minute,
		NightPhaseDuration: 90 * time.Second,
		RoleSlots:          []domain.RoleSlot{{Role: domain.RoleMafia, Count: 1}},
	}
}

func newTestSession(t *testing.T, players []string) *Session {
	t.Helper()
	s, err := NewSession("s1", players, testSettings(), rand.New(rand.NewSource(1)), testBase)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

// playersByRole splits the roster into the single mafia member and the
// rest, in roster order.
func playersByRole(t *testing.T, s *Session) (mafia string, others []string) {
	t.Helper()
	snap := s.Snapshot()
	for _, id := range snap.Players {
		if snap.Roles[id].IsMafia() {
			if mafia != "" {
				t.Fatalf("expected one mafia member, found %s and %s", mafia, id)
			}
			mafia = id
			continue
		}
		others = append(others, id)
	}
	if mafia == "" {
		t.Fatal("no mafia member assigned")
	}
	return mafia, others
}

func advance(t *testing.T, s *Session, now time.Time) *domain.PhaseTransition {
	t.Helper()
	transition, err := s.AdvancePhase(now)
	if err != nil {
		t.Fatalf("AdvancePhase() error = %v", err)
	}
	return transition
}

func apply(t *testing.T, s *Session, action domain.Action, now time.Time) *ActionResult {
	t.Helper()
	result, err := s.ApplyAction(action, now)
	if err != nil {
		t.Fatalf("ApplyAction(%+v) error = %v", action, err)
	}
	return result
}

func TestNewSessionErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	if _, err := NewSession("s1", []string{"p1", "p2", "p3"}, testSettings(), rng, testBase); !errors.Is(err, domain.ErrInsufficientPlayers) {
		t.Fatalf("NewSession(3 players) error = %v, want ErrInsufficientPlayers", err)
	}

	settings := testSettings()
	settings.MaxPlayers = 4
	players := []string{"p1", "p2", "p3", "p4", "p5"}
	if _, err := NewSession("s1", players, settings, rng, testBase); !errors.Is(err, domain.ErrTooManyPlayers) {
		t.Fatalf("NewSession(5 players, max 4) error = %v, want ErrTooManyPlayers", err)
	}
}

func TestMinimumRosterWithScaledRolesStaysLive(t *testing.T) {
	settings := testSettings()
	settings.RoleSlots = nil

	s, err := NewSession("s1", []string{"p1", "p2", "p3", "p4"}, settings, rand.New(rand.NewSource(1)), testBase)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	snap := s.Snapshot()
	mafia := 0
	for _, role := range snap.Roles {
		if role.IsMafia() {
			mafia++
		}
	}
	if mafia != 1 {
		t.Fatalf("scaled 4-player composition assigned %d mafia, want 1", mafia)
	}

	transition := advance(t, s, testBase.Add(time.Minute))
	if transition.To != domain.PhaseVoting {
		t.Fatalf("first transition to %s, want voting", transition.To)
	}
	if got := s.Snapshot(); got.WinResult != nil {
		t.Fatalf("4-player session finished on first transition: winner=%s reason=%q",
			got.WinResult.Winner, got.WinResult.Reason)
	}
}

func TestNewSessionInitialState(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4"})
	snap := s.Snapshot()

	if snap.Phase != domain.PhaseDay {
		t.Errorf("phase = %s, want day", snap.Phase)
	}
	if snap.DayNumber != 1 {
		t.Errorf("day number = %d, want 1", snap.DayNumber)
	}
	if len(snap.Eliminated) != 0 {
		t.Errorf("eliminated = %v, want empty", snap.Eliminated)
	}
	if snap.TimeRemaining != 3*time.Minute {
		t.Errorf("time remaining = %s, want 3m", snap.TimeRemaining)
	}

	history := s.History()
	if len(history) != 1 || history[0].Type != domain.EventSessionCreated {
		t.Fatalf("history = %+v, want single session_created event", history)
	}
}

func TestPhaseCycle(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4", "p5", "p6"})
	now := testBase

	tr := advance(t, s, now)
	if tr.From != domain.PhaseDay || tr.To != domain.PhaseVoting {
		t.Fatalf("transition = %s->%s, want day->voting", tr.From, tr.To)
	}
	if got := s.Snapshot().TimeRemaining; got != time.Minute {
		t.Errorf("voting time remaining = %s, want 1m", got)
	}

	tr = advance(t, s, now)
	if tr.From != domain.PhaseVoting || tr.To != domain.PhaseNight {
		t.Fatalf("transition = %s->%s, want voting->night", tr.From, tr.To)
	}
	if got := s.Snapshot().TimeRemaining; got != 90*time.Second {
		t.Errorf("night time remaining = %s, want 90s", got)
	}

	tr = advance(t, s, now)
	if tr.From != domain.PhaseNight || tr.To != domain.PhaseDay {
		t.Fatalf("transition = %s->%s, want night->day", tr.From, tr.To)
	}
	if tr.DayNumber != 2 {
		t.Errorf("day number = %d, want 2", tr.DayNumber)
	}
}

func TestVotingLastVoteWins(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4", "p5", "p6"})
	mafia, others := playersByRole(t, s)
	now := testBase
	advance(t, s, now) // day -> voting

	// Everyone first votes for others[0], then two voters switch to the
	// mafia member. The replacement ballots must fully supersede.
	for _, voter := range []string{others[1], others[2], others[3]} {
		apply(t, s, domain.Action{Type: domain.ActionVote, PlayerID: voter, TargetID: others[0]}, now)
	}
	apply(t, s, domain.Action{Type: domain.ActionVote, PlayerID: others[1], TargetID: mafia}, now)
	apply(t, s, domain.Action{Type: domain.ActionVote, PlayerID: others[2], TargetID: mafia}, now)
	apply(t, s, domain.Action{Type: domain.ActionVote, PlayerID: others[4], TargetID: mafia}, now)

	tr := advance(t, s, now)
	if len(tr.Eliminated) != 1 || tr.Eliminated[0] != mafia {
		t.Fatalf("eliminated = %v, want [%s]", tr.Eliminated, mafia)
	}
	if s.Snapshot().WinResult == nil {
		t.Fatal("expected win result after mafia eliminated")
	}
}

func TestVotingTieNoElimination(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4", "p5", "p6"})
	_, others := playersByRole(t, s)
	now := testBase
	advance(t, s, now)

	apply(t, s, domain.Action{Type: domain.ActionVote, PlayerID: others[0], TargetID: others[1]}, now)
	apply(t, s, domain.Action{Type: domain.ActionVote, PlayerID: others[1], TargetID: others[0]}, now)

	tr := advance(t, s, now)
	if len(tr.Eliminated) != 0 {
		t.Fatalf("eliminated = %v, want none on a tie", tr.Eliminated)
	}
}

func TestUnvoteRemovesBallot(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4", "p5", "p6"})
	_, others := playersByRole(t, s)
	now := testBase
	advance(t, s, now)

	result := apply(t, s, domain.Action{Type: domain.ActionUnvote, PlayerID: others[0]}, now)
	if result.VoteRemoved {
		t.Error("unvote with no ballot reported VoteRemoved = true")
	}

	apply(t, s, domain.Action{Type: domain.ActionVote, PlayerID: others[0], TargetID: others[1]}, now)
	result = apply(t, s, domain.Action{Type: domain.ActionUnvote, PlayerID: others[0]}, now)
	if !result.VoteRemoved {
		t.Error("unvote after vote reported VoteRemoved = false")
	}
	if got := len(s.Snapshot().Votes); got != 0 {
		t.Errorf("votes after unvote = %d, want 0", got)
	}
}

func TestVotesClearedOnTransition(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4", "p5", "p6"})
	_, others := playersByRole(t, s)
	now := testBase
	advance(t, s, now)

	apply(t, s, domain.Action{Type: domain.ActionVote, PlayerID: others[0], TargetID: others[1]}, now)
	advance(t, s, now)

	if got := len(s.Snapshot().Votes); got != 0 {
		t.Errorf("votes after transition = %d, want 0", got)
	}
}

func TestNightKillResolvedAtDawn(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4", "p5", "p6"})
	mafia, others := playersByRole(t, s)
	now := testBase
	advance(t, s, now) // voting
	advance(t, s, now) // night

	apply(t, s, domain.Action{Type: domain.ActionNight, PlayerID: mafia, TargetID: others[0]}, now)

	// The kill is pending until the transition; the target is still alive.
	if s.Snapshot().IsEliminated(others[0]) {
		t.Fatal("target eliminated before night resolution")
	}

	tr := advance(t, s, now)
	if len(tr.Eliminated) != 1 || tr.Eliminated[0] != others[0] {
		t.Fatalf("eliminated = %v, want [%s]", tr.Eliminated, others[0])
	}
}

func TestNightProtectionCancelsKill(t *testing.T) {
	settings := testSettings()
	settings.RoleSlots = []domain.RoleSlot{
		{Role: domain.RoleMafia, Count: 1},
		{Role: domain.RoleDoctor, Count: 1},
	}
	s, err := NewSession("s1", []string{"p1", "p2", "p3", "p4", "p5", "p6"}, settings, rand.New(rand.NewSource(1)), testBase)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	snap := s.Snapshot()
	var mafia, doctor, victim string
	for _, id := range snap.Players {
		switch snap.Roles[id] {
		case domain.RoleMafia:
			mafia = id
		case domain.RoleDoctor:
			doctor = id
		default:
			if victim == "" {
				victim = id
			}
		}
	}

	now := testBase
	advance(t, s, now) // voting
	advance(t, s, now) // night

	apply(t, s, domain.Action{Type: domain.ActionNight, PlayerID: mafia, TargetID: victim}, now)
	apply(t, s, domain.Action{Type: domain.ActionNight, PlayerID: doctor, TargetID: victim}, now)

	tr := advance(t, s, now)
	if len(tr.Eliminated) != 0 {
		t.Fatalf("eliminated = %v, want none when the kill target is protected", tr.Eliminated)
	}
	if s.Snapshot().IsEliminated(victim) {
		t.Error("protected target was eliminated")
	}
}

func TestNightLatestKillWins(t *testing.T) {
	settings := testSettings()
	settings.RoleSlots = []domain.RoleSlot{{Role: domain.RoleMafia, Count: 2}}
	s, err := NewSession("s1", []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}, settings, rand.New(rand.NewSource(1)), testBase)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	snap := s.Snapshot()
	var mafia []string
	var victims []string
	for _, id := range snap.Players {
		if snap.Roles[id].IsMafia() {
			mafia = append(mafia, id)
		} else {
			victims = append(victims, id)
		}
	}

	now := testBase
	advance(t, s, now) // voting
	advance(t, s, now) // night

	apply(t, s, domain.Action{Type: domain.ActionNight, PlayerID: mafia[0], TargetID: victims[0]}, now)
	apply(t, s, domain.Action{Type: domain.ActionNight, PlayerID: mafia[1], TargetID: victims[1]}, now.Add(time.Second))

	tr := advance(t, s, now.Add(2*time.Second))
	if len(tr.Eliminated) != 1 || tr.Eliminated[0] != victims[1] {
		t.Fatalf("eliminated = %v, want the most recent kill target %s", tr.Eliminated, victims[1])
	}
}

func TestDetectiveInvestigationEvent(t *testing.T) {
	settings := testSettings()
	settings.RoleSlots = []domain.RoleSlot{
		{Role: domain.RoleMafia, Count: 1},
		{Role: domain.RoleDetective, Count: 1},
	}
	s, err := NewSession("s1", []string{"p1", "p2", "p3", "p4", "p5", "p6"}, settings, rand.New(rand.NewSource(1)), testBase)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	snap := s.Snapshot()
	var mafia, detective string
	for _, id := range snap.Players {
		switch snap.Roles[id] {
		case domain.RoleMafia:
			mafia = id
		case domain.RoleDetective:
			detective = id
		}
	}

	now := testBase
	advance(t, s, now) // voting
	advance(t, s, now) // night

	result := apply(t, s, domain.Action{Type: domain.ActionNight, PlayerID: detective, TargetID: mafia}, now)
	if len(result.Events) != 1 {
		t.Fatalf("events = %d, want 1 investigation result", len(result.Events))
	}
	event := result.Events[0]
	if event.Type != domain.EventInvestigationResult {
		t.Fatalf("event type = %s, want investigation_result", event.Type)
	}
	if got := event.Data["role"]; got != string(domain.RoleMafia) {
		t.Errorf("revealed role = %v, want mafia", got)
	}

	// Investigation has no effect on the alive set.
	tr := advance(t, s, now)
	if len(tr.Eliminated) != 0 {
		t.Fatalf("eliminated = %v, want none", tr.Eliminated)
	}
}

func TestFinishedSessionIsTerminal(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4"})
	mafia, others := playersByRole(t, s)
	now := testBase

	// Vote out a villager, then the mafia kills another: 1 mafia vs 1
	// villager reaches mafia parity.
	advance(t, s, now) // voting
	apply(t, s, domain.Action{Type: domain.ActionVote, PlayerID: mafia, TargetID: others[0]}, now)
	tr := advance(t, s, now) // night, others[0] eliminated
	if len(tr.Eliminated) != 1 {
		t.Fatalf("eliminated = %v, want one villager", tr.Eliminated)
	}

	apply(t, s, domain.Action{Type: domain.ActionNight, PlayerID: mafia, TargetID: others[1]}, now)
	tr = advance(t, s, now)
	if tr.WinResult == nil {
		t.Fatal("expected win result at mafia parity")
	}
	if tr.To != domain.PhaseFinished {
		t.Errorf("transition target = %s, want finished", tr.To)
	}
	if tr.WinResult.Winner != domain.FactionMafia {
		t.Errorf("winner = %s, want mafia", tr.WinResult.Winner)
	}
	if tr.WinResult.Reason != domain.WinReasonMafiaMajority {
		t.Errorf("reason = %q, want %q", tr.WinResult.Reason, domain.WinReasonMafiaMajority)
	}

	if _, err := s.ApplyAction(domain.Action{Type: domain.ActionNight, PlayerID: mafia, TargetID: others[2]}, now); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("ApplyAction() after finish error = %v, want ErrSessionFinished", err)
	}
	if _, err := s.AdvancePhase(now); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("AdvancePhase() after finish error = %v, want ErrSessionFinished", err)
	}
	if s.Tick(time.Hour) {
		t.Error("Tick() on finished session reported expiry")
	}
}

func TestOutcomes(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4"})
	mafia, others := playersByRole(t, s)
	now := testBase

	if s.Outcomes() != nil {
		t.Fatal("Outcomes() on a live session should be nil")
	}

	advance(t, s, now)
	apply(t, s, domain.Action{Type: domain.ActionVote, PlayerID: mafia, TargetID: others[0]}, now)
	advance(t, s, now)
	apply(t, s, domain.Action{Type: domain.ActionNight, PlayerID: mafia, TargetID: others[1]}, now)
	advance(t, s, now)

	outcomes := s.Outcomes()
	if len(outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(outcomes))
	}
	for _, o := range outcomes {
		wantWon := o.PlayerID == mafia
		if o.Won != wantWon {
			t.Errorf("player %s won = %v, want %v", o.PlayerID, o.Won, wantWon)
		}
		wantSurvived := o.PlayerID != others[0] && o.PlayerID != others[1]
		if o.Survived != wantSurvived {
			t.Errorf("player %s survived = %v, want %v", o.PlayerID, o.Survived, wantSurvived)
		}
	}
}

func TestTickCountdown(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4"})

	if s.Tick(time.Minute) {
		t.Error("Tick(1m) expired a 3m day phase")
	}
	if !s.Tick(5 * time.Minute) {
		t.Error("Tick(5m) did not expire the day phase")
	}
	if got := s.Snapshot().TimeRemaining; got != 0 {
		t.Errorf("time remaining = %s, want 0 after expiry", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestSession(t, []string{"p1", "p2", "p3", "p4"})
	snap := s.Snapshot()
	snap.Players[0] = "mutated"
	snap.Roles["p1"] = domain.RoleMafia

	fresh := s.Snapshot()
	if fresh.Players[0] != "p1" {
		t.Error("snapshot mutation leaked into session players")
	}
}
