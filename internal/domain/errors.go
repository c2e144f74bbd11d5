package domain

import "errors"

// Domain errors
var (
	ErrPlayerNotFound      = errors.New("player not found")
	ErrAlreadyQueued       = errors.New("player already queued")
	ErrNotQueued           = errors.New("player not in queue")
	ErrSessionNotFound     = errors.New("session not found")
	ErrInsufficientPlayers = errors.New("not enough players to start a session")
	ErrTooManyPlayers      = errors.New("too many players for session settings")
	ErrSessionFinished     = errors.New("session is finished")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// Action validation errors. The reason strings are part of the API surface
// and are returned verbatim to clients.
var (
	ErrNotInSession     = errors.New("Player not in game")
	ErrActorEliminated  = errors.New("Eliminated players cannot perform actions")
	ErrNotVotingPhase   = errors.New("Voting only allowed during voting phase")
	ErrNotNightPhase    = errors.New("Night actions only allowed during night phase")
	ErrTargetEliminated = errors.New("Cannot target eliminated players")
	ErrSelfTarget       = errors.New("Cannot target yourself")
	ErrUnknownAction    = errors.New("unknown action type")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNotQueued)
}

// IsValidationError reports whether an error is an action validation
// rejection, as opposed to an input or resource error.
func IsValidationError(err error) bool {
	for _, e := range []error{
		ErrNotInSession,
		ErrActorEliminated,
		ErrNotVotingPhase,
		ErrNotNightPhase,
		ErrTargetEliminated,
		ErrSelfTarget,
		ErrUnknownAction,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
