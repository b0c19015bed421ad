package models

type PlayerAction string

const (
	ActionFold  PlayerAction = "fold"
	ActionCheck PlayerAction = "check"
	ActionCall  PlayerAction = "call"
	ActionRaise PlayerAction = "raise"
	ActionAllIn PlayerAction = "all-in"
)

// ParseAction maps the wire spelling of an action to a PlayerAction. "allin" is
// accepted as an alias for "all-in".
func ParseAction(s string) (PlayerAction, bool) {
	switch s {
	case "fold":
		return ActionFold, true
	case "check":
		return ActionCheck, true
	case "call":
		return ActionCall, true
	case "raise":
		return ActionRaise, true
	case "all-in", "allin":
		return ActionAllIn, true
	}
	return "", false
}

// Player is one seated participant. Bet is the current-street commitment and
// TotalBet the commitment for the whole hand.
type Player struct {
	PlayerID       string       `json:"id"`
	DisplayName    string       `json:"name"`
	SeatNumber     int          `json:"seat"`
	Chips          int          `json:"chips"`
	Cards          []Card       `json:"cards"`
	Bet            int          `json:"bet"`
	TotalBet       int          `json:"totalBet"`
	IsActive       bool         `json:"isActive"`
	IsCurrentToAct bool         `json:"isCurrentToAct"`
	IsDealer       bool         `json:"isDealer"`
	IsSmallBlind   bool         `json:"isSmallBlind"`
	IsBigBlind     bool         `json:"isBigBlind"`
	HasActed       bool         `json:"hasActed"`
	Folded         bool         `json:"folded"`
	Connected      bool         `json:"connected"`
	LastAction     PlayerAction `json:"lastAction,omitempty"`

	// InHand is set for players dealt into the current hand.
	InHand bool `json:"-"`
}

func NewPlayer(id, name string, seatNumber, chips int) *Player {
	if name == "" {
		name = id
	}
	return &Player{
		PlayerID:    id,
		DisplayName: name,
		SeatNumber:  seatNumber,
		Chips:       chips,
		IsActive:    true,
		Connected:   true,
		Cards:       make([]Card, 0, 2),
	}
}

// ResetForHand clears every per-hand field. The player stays active only if
// still connected with chips behind.
func (p *Player) ResetForHand() {
	p.Cards = make([]Card, 0, 2)
	p.Bet = 0
	p.TotalBet = 0
	p.HasActed = false
	p.IsCurrentToAct = false
	p.IsDealer = false
	p.IsSmallBlind = false
	p.IsBigBlind = false
	p.Folded = false
	p.InHand = false
	p.LastAction = ""
	p.IsActive = p.Connected && p.Chips > 0
}

// ResetForStreet clears the per-street bet and action flag.
func (p *Player) ResetForStreet() {
	p.Bet = 0
	p.HasActed = false
}

// Commit moves up to amount chips from the stack into the current bet and
// returns what was actually committed.
func (p *Player) Commit(amount int) int {
	if amount > p.Chips {
		amount = p.Chips
	}
	if amount < 0 {
		amount = 0
	}
	p.Chips -= amount
	p.Bet += amount
	p.TotalBet += amount
	return amount
}

// Fold marks the player out of the hand and mucks the cards.
func (p *Player) Fold() {
	p.IsActive = false
	p.IsCurrentToAct = false
	p.Folded = true
	p.Cards = make([]Card, 0, 2)
}

// IsAllIn reports whether the player is still contesting the hand with no chips behind.
func (p *Player) IsAllIn() bool {
	return p.IsActive && p.InHand && p.Chips == 0
}

// CanAct reports whether the player can still take betting actions this hand.
func (p *Player) CanAct() bool {
	return p.IsActive && p.InHand && p.Chips > 0
}
