package engine

import "errors"

// Action validation failures. They are reported to the acting client only.
var (
	ErrPlayerNotFound           = errors.New("player not found")
	ErrNotPlayersTurn           = errors.New("not your turn")
	ErrPlayerInactive           = errors.New("player is not active in this hand")
	ErrNothingToCheck           = errors.New("cannot check: there is a bet to match")
	ErrNoBetToCall              = errors.New("no bet to call")
	ErrInsufficientChipsToCall  = errors.New("insufficient chips to call")
	ErrRaiseBelowCurrentBet     = errors.New("raise must exceed the current bet")
	ErrInsufficientChipsToRaise = errors.New("insufficient chips to raise")
	ErrRaiseBelowMinimum        = errors.New("raise is below the minimum")
	ErrInvalidAction            = errors.New("invalid action")
	ErrInvalidAmount            = errors.New("invalid amount")
)

// Table lifecycle failures.
var (
	ErrHandNotInProgress = errors.New("no hand in progress")
	ErrHandInProgress    = errors.New("hand already in progress")
	ErrNotEnoughPlayers  = errors.New("not enough players to start a hand")
	ErrTableFull         = errors.New("table full")
)

// IsValidationError reports whether err is a rule violation caused by the
// player's request rather than a fault in the table.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrPlayerNotFound, ErrNotPlayersTurn, ErrPlayerInactive, ErrNothingToCheck,
		ErrNoBetToCall, ErrInsufficientChipsToCall, ErrRaiseBelowCurrentBet,
		ErrInsufficientChipsToRaise, ErrRaiseBelowMinimum, ErrInvalidAction,
		ErrInvalidAmount, ErrHandNotInProgress, ErrHandInProgress, ErrNotEnoughPlayers,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
