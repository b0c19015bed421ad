package models

import (
	"sort"
	"time"
)

type TableStatus string
type Street string

const (
	StatusWaiting  TableStatus = "waiting"
	StatusPlaying  TableStatus = "playing"
	StatusFinished TableStatus = "finished"
)

const (
	StreetPreFlop  Street = "pre-flop"
	StreetFlop     Street = "flop"
	StreetTurn     Street = "turn"
	StreetRiver    Street = "river"
	StreetShowdown Street = "showdown"
)

type TableConfig struct {
	SmallBlind    int `json:"smallBlind"`
	BigBlind      int `json:"bigBlind"`
	MaxSeats      int `json:"maxSeats"`
	StartingChips int `json:"startingChips"`
}

// DefaultTableConfig matches the server defaults.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		SmallBlind:    10,
		BigBlind:      20,
		MaxSeats:      8,
		StartingChips: 1000,
	}
}

type SidePot struct {
	Amount          int      `json:"amount"`
	EligiblePlayers []string `json:"eligiblePlayers"`
}

type Winner struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"name"`
	Amount      int    `json:"amount"`
	PotIndex    int    `json:"potIndex"`
	HandRank    string `json:"handRank,omitempty"`
	HandCards   []Card `json:"handCards,omitempty"`
}

// Table is the authoritative state of one table and its current hand.
// Players is kept in join order; seat order is derived with PlayersBySeat.
type Table struct {
	TableID        string      `json:"tableId"`
	Config         TableConfig `json:"config"`
	Status         TableStatus `json:"status"`
	Street         Street      `json:"phase"`
	HandNumber     int         `json:"handNumber"`
	Players        []*Player   `json:"players"`
	CommunityCards []Card      `json:"communityCards"`
	Pot            int         `json:"pot"`
	CurrentBet     int         `json:"currentBet"`
	MinRaise       int         `json:"minRaise"`
	DealerSeat     int         `json:"dealerSeat"`
	SmallBlindSeat int         `json:"smallBlindSeat"`
	BigBlindSeat   int         `json:"bigBlindSeat"`
	CurrentSeat    int         `json:"currentPosition"`
	SidePots       []SidePot   `json:"sidePots,omitempty"`
	Winners        []Winner    `json:"winners,omitempty"`
	Deck           *Deck       `json:"-"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func NewTable(tableID string, config TableConfig) *Table {
	return &Table{
		TableID:        tableID,
		Config:         config,
		Status:         StatusWaiting,
		Street:         StreetPreFlop,
		Players:        make([]*Player, 0, config.MaxSeats),
		CommunityCards: make([]Card, 0, 5),
		CreatedAt:      time.Now(),
	}
}

func (t *Table) PlayerByID(playerID string) *Player {
	for _, p := range t.Players {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

func (t *Table) PlayerAtSeat(seat int) *Player {
	for _, p := range t.Players {
		if p.SeatNumber == seat {
			return p
		}
	}
	return nil
}

// PlayersBySeat returns the players sorted by ascending seat number.
func (t *Table) PlayersBySeat() []*Player {
	out := append([]*Player(nil), t.Players...)
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out
}

// CurrentPlayer returns the player whose turn it is, or nil.
func (t *Table) CurrentPlayer() *Player {
	if t.Status != StatusPlaying || t.CurrentSeat == 0 {
		return nil
	}
	return t.PlayerAtSeat(t.CurrentSeat)
}

func (t *Table) RemovePlayer(playerID string) bool {
	for i, p := range t.Players {
		if p.PlayerID == playerID {
			t.Players = append(t.Players[:i], t.Players[i+1:]...)
			return true
		}
	}
	return false
}

// TotalChips is the sum of every stack plus the pot.
func (t *Table) TotalChips() int {
	total := t.Pot
	for _, p := range t.Players {
		total += p.Chips
	}
	return total
}
