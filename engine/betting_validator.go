package engine

import (
	"fmt"

	"poker-table/models"
)

type BettingValidator struct {
	currentBet int
	minRaise   int
}

func NewBettingValidator(currentBet, minRaise int) *BettingValidator {
	return &BettingValidator{
		currentBet: currentBet,
		minRaise:   minRaise,
	}
}

func (bv *BettingValidator) validateCheck(playerBet int) error {
	if playerBet != bv.currentBet {
		return fmt.Errorf("%w: current bet %d, yours %d", ErrNothingToCheck, bv.currentBet, playerBet)
	}
	return nil
}

// validateCall reports whether the call must be converted into an all-in.
func (bv *BettingValidator) validateCall(playerBet, playerChips int, shortCallAllIn bool) (bool, error) {
	gap := bv.currentBet - playerBet
	if gap <= 0 {
		return false, ErrNoBetToCall
	}
	if gap > playerChips {
		if shortCallAllIn && playerChips > 0 {
			return true, nil
		}
		return false, fmt.Errorf("%w: need %d, have %d", ErrInsufficientChipsToCall, gap, playerChips)
	}
	return false, nil
}

// validateRaise checks a raise to the street total amount.
func (bv *BettingValidator) validateRaise(amount, playerBet, playerChips int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: raise amount must be positive", ErrInvalidAmount)
	}
	if amount <= bv.currentBet {
		return fmt.Errorf("%w: raise to %d, current bet %d", ErrRaiseBelowCurrentBet, amount, bv.currentBet)
	}
	if amount-playerBet > playerChips {
		return fmt.Errorf("%w: raise needs %d, have %d", ErrInsufficientChipsToRaise, amount-playerBet, playerChips)
	}
	if amount < bv.minTotalBet() {
		return fmt.Errorf("%w: raise must be at least %d (current bet %d + min raise %d)",
			ErrRaiseBelowMinimum, bv.minTotalBet(), bv.currentBet, bv.minRaise)
	}
	return nil
}

func (bv *BettingValidator) validateAllIn(playerChips int) error {
	if playerChips <= 0 {
		return fmt.Errorf("%w: no chips to go all-in", ErrInvalidAction)
	}
	return nil
}

func (bv *BettingValidator) minTotalBet() int {
	return bv.currentBet + bv.minRaise
}

// ValidateAction checks a proposed action against the table without mutating
// it. It returns the action that will actually be applied, which differs from
// the request only when an undersized call becomes an all-in.
func ValidateAction(table *models.Table, playerID string, action models.PlayerAction, amount int, shortCallAllIn bool) (models.PlayerAction, error) {
	if table.Status != models.StatusPlaying {
		return "", ErrHandNotInProgress
	}

	player := table.PlayerByID(playerID)
	if player == nil {
		return "", fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}
	if !player.IsActive || !player.InHand {
		return "", ErrPlayerInactive
	}
	if !player.IsCurrentToAct || player.SeatNumber != table.CurrentSeat {
		return "", ErrNotPlayersTurn
	}

	bv := NewBettingValidator(table.CurrentBet, table.MinRaise)
	switch action {
	case models.ActionFold:
		return action, nil
	case models.ActionCheck:
		return action, bv.validateCheck(player.Bet)
	case models.ActionCall:
		allIn, err := bv.validateCall(player.Bet, player.Chips, shortCallAllIn)
		if err != nil {
			return "", err
		}
		if allIn {
			return models.ActionAllIn, nil
		}
		return action, nil
	case models.ActionRaise:
		return action, bv.validateRaise(amount, player.Bet, player.Chips)
	case models.ActionAllIn:
		return action, bv.validateAllIn(player.Chips)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}
