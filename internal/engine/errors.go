package engine

import "errors"

// Rejections: reported to the caller, never persisted.
var ErrInvalidPhase = errors.New("invalid phase for action")
var ErrNotYourTurn = errors.New("not your turn")
var ErrAlreadyActed = errors.New("already acted this turn")
var ErrTurnConcluded = errors.New("turn already concluded")
var ErrPlayerNotActive = errors.New("player not active")
var ErrPlayerEliminated = errors.New("player eliminated")
var ErrHandlerRejected = errors.New("action rejected by game")
var ErrTimerRunning = errors.New("turn timer has not expired")
var ErrNotEnoughPlayers = errors.New("not enough players")
var ErrPlayerExists = errors.New("player already in match")

// ErrTransitionLost means another caller won the round transition. It never
// reaches callers of the engine; it shows up as Result.TransitionLost.
var ErrTransitionLost = errors.New("round transition already in progress")

var ErrMatchNotFound = errors.New("match not found")
var ErrMatchExists = errors.New("match already exists")
var ErrVersionConflict = errors.New("match version conflict")
var ErrUnknownGame = errors.New("unknown game type")
var ErrInvalidSettings = errors.New("invalid match settings")

var rejections = []error{
	ErrInvalidPhase,
	ErrNotYourTurn,
	ErrAlreadyActed,
	ErrTurnConcluded,
	ErrPlayerNotActive,
	ErrPlayerEliminated,
	ErrHandlerRejected,
	ErrTimerRunning,
	ErrNotEnoughPlayers,
	ErrPlayerExists,
}

// IsRejection reports whether err is a validation failure that left the
// persisted match untouched.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidPhase, "invalid_phase"},
	{ErrNotYourTurn, "not_your_turn"},
	{ErrAlreadyActed, "already_acted"},
	{ErrTurnConcluded, "turn_concluded"},
	{ErrPlayerNotActive, "player_not_active"},
	{ErrPlayerEliminated, "player_eliminated"},
	{ErrHandlerRejected, "handler_rejected"},
	{ErrTimerRunning, "timer_running"},
	{ErrNotEnoughPlayers, "not_enough_players"},
	{ErrPlayerExists, "player_exists"},
	{ErrMatchNotFound, "match_not_found"},
	{ErrMatchExists, "match_exists"},
	{ErrUnknownGame, "unknown_game"},
	{ErrInvalidSettings, "invalid_settings"},
	{ErrVersionConflict, "version_conflict"},
}

// ErrorCode maps err to a stable machine-readable code for clients.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
