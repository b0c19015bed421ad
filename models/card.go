package models

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

type Suit string
type Rank string

const (
	Hearts   Suit = "h"
	Diamonds Suit = "d"
	Clubs    Suit = "c"
	Spades   Suit = "s"
)

const (
	Two   Rank = "2"
	Three Rank = "3"
	Four  Rank = "4"
	Five  Rank = "5"
	Six   Rank = "6"
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "T"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
	Ace   Rank = "A"
)

// DeckSize is the number of cards in a standard deck.
const DeckSize = 52

// ErrDeckExhausted is returned when a draw is attempted on an empty deck.
// With at most 10 seats a hand never needs more than 25 cards, so callers
// treat it as an invariant violation.
var ErrDeckExhausted = errors.New("deck exhausted")

var (
	allSuits = []Suit{Hearts, Diamonds, Clubs, Spades}
	allRanks = []Rank{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}
)

type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Value returns the numeric rank with aces high (2..14), or 0 for an unknown rank.
func (c Card) Value() int {
	for i, r := range allRanks {
		if r == c.Rank {
			return i + 2
		}
	}
	return 0
}

// ParseCard parses the two-character form produced by String, e.g. "Th" or "As".
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	c := Card{Rank: Rank(s[:1]), Suit: Suit(s[1:])}
	if c.Value() == 0 {
		return Card{}, fmt.Errorf("invalid rank in card %q", s)
	}
	switch c.Suit {
	case Hearts, Diamonds, Clubs, Spades:
	default:
		return Card{}, fmt.Errorf("invalid suit in card %q", s)
	}
	return c, nil
}

// Deck is an ordered sequence of cards consumed from the front.
type Deck struct {
	cards []Card
}

func orderedCards() []Card {
	cards := make([]Card, 0, DeckSize)
	for _, suit := range allSuits {
		for _, rank := range allRanks {
			cards = append(cards, Card{Rank: rank, Suit: suit})
		}
	}
	return cards
}

// NewShuffledDeck returns all 52 cards in a uniformly random order. A nil rng
// falls back to a time-seeded source.
func NewShuffledDeck(rng *rand.Rand) *Deck {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	cards := orderedCards()
	// rand.Shuffle is a Fisher-Yates shuffle.
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return &Deck{cards: cards}
}

// NewStackedDeck builds a deck that deals the given cards in order. Used to
// replay or script hands.
func NewStackedDeck(cards []Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrDeckExhausted
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, nil
}

func (d *Deck) DrawN(n int) ([]Card, error) {
	if len(d.cards) < n {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrDeckExhausted, n, len(d.cards))
	}
	cards := make([]Card, n)
	copy(cards, d.cards[:n])
	d.cards = d.cards[n:]
	return cards, nil
}

func (d *Deck) Remaining() int {
	return len(d.cards)
}
