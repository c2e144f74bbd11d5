package game

import (
	"github.com/mafia-engine/internal/domain"
)

// ValidateAction checks whether a proposed action is legal given the
// session state in the snapshot. It has no side effects and is safe to
// call speculatively, e.g. for client-side prediction. Rejections carry a
// specific reason error from the domain package.
func ValidateAction(action domain.Action, s *domain.SessionSnapshot) error {
	if !contains(s.Players, action.PlayerID) {
		return domain.ErrNotInSession
	}
	if s.IsEliminated(action.PlayerID) {
		return domain.ErrActorEliminated
	}

	switch action.Type {
	case domain.ActionVote:
		if s.Phase != domain.PhaseVoting {
			return domain.ErrNotVotingPhase
		}
		if !contains(s.Players, action.TargetID) {
			return domain.ErrNotInSession
		}
		if s.IsEliminated(action.TargetID) {
			return domain.ErrTargetEliminated
		}
		if action.TargetID == action.PlayerID {
			return domain.ErrSelfTarget
		}
		return nil

	case domain.ActionUnvote:
		if s.Phase != domain.PhaseVoting {
			return domain.ErrNotVotingPhase
		}
		return nil

	case domain.ActionNight:
		if s.Phase != domain.PhaseNight {
			return domain.ErrNotNightPhase
		}
		if !contains(s.Players, action.TargetID) {
			return domain.ErrNotInSession
		}
		if s.IsEliminated(action.TargetID) {
			return domain.ErrTargetEliminated
		}
		// Self-targeting is allowed at night, e.g. self-protection.
		return nil

	default:
		return domain.ErrUnknownAction
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
