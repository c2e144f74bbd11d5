package game

import (
	"reflect"
	"testing"

	"github.com/mafia-engine/internal/domain"
)

func TestEvaluateWin(t *testing.T) {
	roles := map[string]domain.Role{
		"m1": domain.RoleMafia,
		"v1": domain.RoleVillager,
		"v2": domain.RoleDoctor,
		"v3": domain.RoleDetective,
	}

	tests := []struct {
		name       string
		eliminated map[string]bool
		wantWinner domain.Faction
		wantReason string
		wantDraw   bool
		wantNil    bool
	}{
		{
			name:       "game continues at 1 mafia vs 3",
			eliminated: map[string]bool{},
			wantNil:    true,
		},
		{
			name:       "game continues at 1 mafia vs 2",
			eliminated: map[string]bool{"v1": true},
			wantNil:    true,
		},
		{
			name:       "mafia parity at 1 vs 1",
			eliminated: map[string]bool{"v1": true, "v2": true},
			wantWinner: domain.FactionMafia,
			wantReason: domain.WinReasonMafiaMajority,
		},
		{
			name:       "villagers win when mafia eliminated",
			eliminated: map[string]bool{"m1": true},
			wantWinner: domain.FactionVillagers,
			wantReason: domain.WinReasonMafiaEliminated,
		},
		{
			name:       "everyone eliminated is a draw",
			eliminated: map[string]bool{"m1": true, "v1": true, "v2": true, "v3": true},
			wantWinner: domain.FactionVillagers,
			wantReason: domain.WinReasonAllEliminated,
			wantDraw:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EvaluateWin(roles, tt.eliminated)
			if tt.wantNil {
				if result != nil {
					t.Fatalf("EvaluateWin() = %+v, want nil", result)
				}
				return
			}
			if result == nil {
				t.Fatal("EvaluateWin() = nil, want a result")
			}
			if result.Winner != tt.wantWinner {
				t.Errorf("winner = %s, want %s", result.Winner, tt.wantWinner)
			}
			if result.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", result.Reason, tt.wantReason)
			}
			if result.Draw != tt.wantDraw {
				t.Errorf("draw = %v, want %v", result.Draw, tt.wantDraw)
			}
		})
	}
}

func TestEvaluateWinMembers(t *testing.T) {
	roles := map[string]domain.Role{
		"m2": domain.RoleMafia,
		"m1": domain.RoleMafia,
		"v1": domain.RoleVillager,
		"v2": domain.RoleVillager,
	}

	result := EvaluateWin(roles, map[string]bool{"v1": true})
	if result == nil {
		t.Fatal("EvaluateWin() = nil, want mafia majority")
	}
	if want := []string{"m1", "m2"}; !reflect.DeepEqual(result.Members, want) {
		t.Errorf("members = %v, want %v", result.Members, want)
	}
}

// Once a terminal verdict is reached, further eliminations never flip it
// back to nil.
func TestEvaluateWinIdempotent(t *testing.T) {
	roles := map[string]domain.Role{
		"m1": domain.RoleMafia,
		"v1": domain.RoleVillager,
		"v2": domain.RoleVillager,
	}

	eliminated := map[string]bool{"m1": true}
	first := EvaluateWin(roles, eliminated)
	if first == nil {
		t.Fatal("EvaluateWin() = nil, want villager win")
	}

	eliminated["v1"] = true
	second := EvaluateWin(roles, eliminated)
	if second == nil {
		t.Fatal("EvaluateWin() flipped back to nil after a further elimination")
	}
	if second.Winner != first.Winner {
		t.Errorf("winner changed from %s to %s", first.Winner, second.Winner)
	}
}
