package game

import (
	"math/rand"

	"github.com/mafia-engine/internal/domain"
)

// ScaledRoleSlots derives a role composition from the roster size: one
// mafia per four players, a detective from six players up, a doctor from
// eight players up, the rest villagers. The mafia count stays below half
// the roster at every size.
func ScaledRoleSlots(playerCount int) []domain.RoleSlot {
	mafia := playerCount / 4
	if mafia < 1 {
		mafia = 1
	}
	slots := []domain.RoleSlot{{Role: domain.RoleMafia, Count: mafia}}
	if playerCount >= 6 {
		slots = append(slots, domain.RoleSlot{Role: domain.RoleDetective, Count: 1})
	}
	if playerCount >= 8 {
		slots = append(slots, domain.RoleSlot{Role: domain.RoleDoctor, Count: 1})
	}
	return slots
}

// AssignRoles expands the settings' role slots into one role token per
// player, padding any shortfall with the villager role, then shuffles the
// player list and the token list independently and zips them. The returned
// map holds exactly one role per player and the role counts match the
// requested composition.
func AssignRoles(playerIDs []string, slots []domain.RoleSlot, rng *rand.Rand) map[string]domain.Role {
	tokens := make([]domain.Role, 0, len(playerIDs))
	for _, slot := range slots {
		for i := 0; i < slot.Count && len(tokens) < len(playerIDs); i++ {
			tokens = append(tokens, slot.Role)
		}
	}
	for len(tokens) < len(playerIDs) {
		tokens = append(tokens, domain.RoleVillager)
	}

	shuffled := make([]string, len(playerIDs))
	copy(shuffled, playerIDs)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	rng.Shuffle(len(tokens), func(i, j int) {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	})

	roles := make(map[string]domain.Role, len(playerIDs))
	for i, id := range shuffled {
		roles[id] = tokens[i]
	}
	return roles
}
