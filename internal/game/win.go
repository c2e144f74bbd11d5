package game

import (
	"sort"

	"github.com/mafia-engine/internal/domain"
)

// EvaluateWin computes whether the game has ended. It is a pure function
// of the alive set: idempotent, side-effect free, and safe to call after
// every phase transition and elimination. A nil result means the game
// continues.
func EvaluateWin(roles map[string]domain.Role, eliminated map[string]bool) *domain.WinResult {
	alive := 0
	aliveMafia := 0
	for id, role := range roles {
		if eliminated[id] {
			continue
		}
		alive++
		if role.IsMafia() {
			aliveMafia++
		}
	}

	if alive == 0 {
		return &domain.WinResult{
			Winner:  domain.FactionVillagers,
			Members: factionMembers(roles, false),
			Reason:  domain.WinReasonAllEliminated,
			Draw:    true,
		}
	}

	if aliveMafia == 0 {
		return &domain.WinResult{
			Winner:  domain.FactionVillagers,
			Members: factionMembers(roles, false),
			Reason:  domain.WinReasonMafiaEliminated,
		}
	}

	// Mafia wins once it equals or outnumbers the rest of the table.
	if aliveMafia*2 >= alive {
		return &domain.WinResult{
			Winner:  domain.FactionMafia,
			Members: factionMembers(roles, true),
			Reason:  domain.WinReasonMafiaMajority,
		}
	}

	return nil
}

func factionMembers(roles map[string]domain.Role, mafia bool) []string {
	var members []string
	for id, role := range roles {
		if role.IsMafia() == mafia {
			members = append(members, id)
		}
	}
	sort.Strings(members)
	return members
}
