package protocol

import (
	"time"

	"poker-table/models"
)

type PlayerView struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Seat           int      `json:"seat"`
	Chips          int      `json:"chips"`
	Bet            int      `json:"bet"`
	TotalBet       int      `json:"totalBet"`
	Cards          []string `json:"cards"`
	IsActive       bool     `json:"isActive"`
	IsCurrentToAct bool     `json:"isCurrentToAct"`
	IsDealer       bool     `json:"isDealer"`
	IsSmallBlind   bool     `json:"isSmallBlind"`
	IsBigBlind     bool     `json:"isBigBlind"`
	HasActed       bool     `json:"hasActed"`
	Folded         bool     `json:"folded"`
	AllIn          bool     `json:"allIn"`
	Connected      bool     `json:"connected"`
	LastAction     string   `json:"lastAction,omitempty"`
}

type SidePotView struct {
	Amount          int      `json:"amount"`
	EligiblePlayers []string `json:"eligiblePlayers"`
}

type WinnerView struct {
	PlayerID  string   `json:"playerId"`
	Name      string   `json:"name"`
	Amount    int      `json:"amount"`
	PotIndex  int      `json:"potIndex"`
	HandRank  string   `json:"handRank,omitempty"`
	HandCards []string `json:"handCards,omitempty"`
}

// GameState is the full table snapshot sent after every mutation.
type GameState struct {
	TableID         string        `json:"tableId"`
	Seq             uint64        `json:"seq"`
	HandNumber      int           `json:"handNumber"`
	Status          string        `json:"status"`
	Phase           string        `json:"phase"`
	Players         []PlayerView  `json:"players"`
	CommunityCards  []string      `json:"communityCards"`
	Pot             int           `json:"pot"`
	CurrentBet      int           `json:"currentBet"`
	MinRaise        int           `json:"minRaise"`
	DealerSeat      int           `json:"dealerSeat"`
	SmallBlind      int           `json:"smallBlind"`
	BigBlind        int           `json:"bigBlind"`
	CurrentPosition int           `json:"currentPosition"`
	ActionDeadline  *int64        `json:"actionDeadline,omitempty"`
	SidePots        []SidePotView `json:"sidePots,omitempty"`
	Winners         []WinnerView  `json:"winners,omitempty"`
}

func cardStrings(cards []models.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}

// revealed reports whether p's hole cards are public: only after a showdown
// and only for players who stayed in.
func revealed(table *models.Table, p *models.Player) bool {
	return table.Status == models.StatusFinished &&
		table.Street == models.StreetShowdown &&
		p.InHand && !p.Folded
}

// NewGameState renders table for viewerID. Hole cards are hidden except the
// viewer's own and those revealed at showdown. An empty viewerID gives the
// public view. A zero deadline is omitted.
func NewGameState(table *models.Table, viewerID string, seq uint64, deadline time.Time) GameState {
	players := table.PlayersBySeat()
	state := GameState{
		TableID:         table.TableID,
		Seq:             seq,
		HandNumber:      table.HandNumber,
		Status:          string(table.Status),
		Phase:           string(table.Street),
		Players:         make([]PlayerView, 0, len(players)),
		CommunityCards:  cardStrings(table.CommunityCards),
		Pot:             table.Pot,
		CurrentBet:      table.CurrentBet,
		MinRaise:        table.MinRaise,
		DealerSeat:      table.DealerSeat,
		SmallBlind:      table.Config.SmallBlind,
		BigBlind:        table.Config.BigBlind,
		CurrentPosition: table.CurrentSeat,
	}

	for _, p := range players {
		view := PlayerView{
			ID:             p.PlayerID,
			Name:           p.DisplayName,
			Seat:           p.SeatNumber,
			Chips:          p.Chips,
			Bet:            p.Bet,
			TotalBet:       p.TotalBet,
			Cards:          []string{},
			IsActive:       p.IsActive,
			IsCurrentToAct: p.IsCurrentToAct,
			IsDealer:       p.IsDealer,
			IsSmallBlind:   p.IsSmallBlind,
			IsBigBlind:     p.IsBigBlind,
			HasActed:       p.HasActed,
			Folded:         p.Folded,
			AllIn:          p.IsAllIn(),
			Connected:      p.Connected,
			LastAction:     string(p.LastAction),
		}
		if (viewerID != "" && p.PlayerID == viewerID) || revealed(table, p) {
			view.Cards = cardStrings(p.Cards)
		}
		state.Players = append(state.Players, view)
	}

	if !deadline.IsZero() && table.Status == models.StatusPlaying {
		ms := deadline.UnixMilli()
		state.ActionDeadline = &ms
	}

	for _, sp := range table.SidePots {
		state.SidePots = append(state.SidePots, SidePotView{
			Amount:          sp.Amount,
			EligiblePlayers: append([]string(nil), sp.EligiblePlayers...),
		})
	}
	for _, w := range table.Winners {
		state.Winners = append(state.Winners, WinnerView{
			PlayerID:  w.PlayerID,
			Name:      w.DisplayName,
			Amount:    w.Amount,
			PotIndex:  w.PotIndex,
			HandRank:  w.HandRank,
			HandCards: cardStrings(w.HandCards),
		})
	}
	return state
}
