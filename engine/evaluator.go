package engine

import (
	"fmt"

	"github.com/paulhankin/poker"

	"poker-table/models"
)

// HandValue is a ranked hand. Larger Value beats smaller, across categories.
type HandValue struct {
	Value       int
	Description string
}

// Evaluator ranks a player's hole cards against the board.
type Evaluator func(holeCards, communityCards []models.Card) (HandValue, error)

var suitIndex = map[models.Suit]poker.Suit{
	models.Clubs:    poker.Club,
	models.Diamonds: poker.Diamond,
	models.Hearts:   poker.Heart,
	models.Spades:   poker.Spade,
}

func toPokerCard(c models.Card) (poker.Card, error) {
	suit, ok := suitIndex[c.Suit]
	if !ok {
		return 0, fmt.Errorf("invalid suit in card %s", c)
	}
	v := c.Value()
	if v == 0 {
		return 0, fmt.Errorf("invalid rank in card %s", c)
	}
	// The evaluator numbers ranks ace=1 through king=13.
	if v == 14 {
		v = 1
	}
	return poker.MakeCard(suit, poker.Rank(v))
}

// EvaluateHand ranks the best five-card hand out of two hole cards and a full board.
func EvaluateHand(holeCards, communityCards []models.Card) (HandValue, error) {
	if len(holeCards) != 2 || len(communityCards) != 5 {
		return HandValue{}, fmt.Errorf("evaluate: need 2 hole and 5 board cards, got %d and %d",
			len(holeCards), len(communityCards))
	}

	var hand [7]poker.Card
	for i, c := range append(append([]models.Card(nil), communityCards...), holeCards...) {
		pc, err := toPokerCard(c)
		if err != nil {
			return HandValue{}, fmt.Errorf("evaluate: %w", err)
		}
		hand[i] = pc
	}

	desc, err := poker.Describe(hand[:])
	if err != nil {
		return HandValue{}, fmt.Errorf("describe hand: %w", err)
	}
	return HandValue{Value: int(poker.Eval7(&hand)), Description: desc}, nil
}
