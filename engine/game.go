package engine

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"poker-table/models"
)

// Options tunes a Game. Zero values fall back to production defaults.
type Options struct {
	// Rand drives the shuffle and dealer selection.
	Rand *rand.Rand
	// Evaluator ranks hands at showdown.
	Evaluator Evaluator
	// NewDeck overrides deck creation, e.g. to deal a scripted hand.
	NewDeck func(*rand.Rand) *models.Deck
	// ShortCallAllIn turns a call the player cannot cover into an all-in
	// instead of rejecting it.
	ShortCallAllIn bool
}

// Game is the hand state machine for one table. It is not safe for
// concurrent use; a single goroutine owns it.
type Game struct {
	table          *models.Table
	rng            *rand.Rand
	evaluate       Evaluator
	newDeck        func(*rand.Rand) *models.Deck
	shortCallAllIn bool
	onEvent        func(models.Event)
}

func NewGame(table *models.Table, opts Options, onEvent func(models.Event)) *Game {
	g := &Game{
		table:          table,
		rng:            opts.Rand,
		evaluate:       opts.Evaluator,
		newDeck:        opts.NewDeck,
		shortCallAllIn: opts.ShortCallAllIn,
		onEvent:        onEvent,
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if g.evaluate == nil {
		g.evaluate = EvaluateHand
	}
	if g.newDeck == nil {
		g.newDeck = models.NewShuffledDeck
	}
	return g
}

func (g *Game) Table() *models.Table {
	return g.table
}

func (g *Game) emit(kind models.EventType, playerID, message string, data interface{}) {
	if g.onEvent == nil {
		return
	}
	g.onEvent(models.Event{
		Event:    kind,
		TableID:  g.table.TableID,
		PlayerID: playerID,
		Message:  message,
		Data:     data,
	})
}

// CanStartHand reports whether enough connected players with chips are seated.
func (g *Game) CanStartHand() bool {
	if g.table.Status == models.StatusPlaying {
		return false
	}
	return countPlayers(g.table.Players, isReadyToPlay) >= 2
}

// StartHand deals a new hand: random dealer, blinds, two hole cards each.
func (g *Game) StartHand() error {
	t := g.table
	if t.Status == models.StatusPlaying {
		return ErrHandInProgress
	}
	if countPlayers(t.Players, isReadyToPlay) < 2 {
		return ErrNotEnoughPlayers
	}

	g.purgeDeparted()
	for _, p := range t.Players {
		p.ResetForHand()
	}

	dealt := NewPositionFinder(filterPlayers(t.Players, func(p *models.Player) bool { return p.IsActive })).players
	for _, p := range dealt {
		p.InHand = true
	}

	t.HandNumber++
	t.Status = models.StatusPlaying
	t.Street = models.StreetPreFlop
	t.CommunityCards = make([]models.Card, 0, 5)
	t.Pot = 0
	t.SidePots = nil
	t.Winners = nil
	t.Deck = g.newDeck(g.rng)

	dealer := dealt[g.rng.Intn(len(dealt))]
	dealer.IsDealer = true
	t.DealerSeat = dealer.SeatNumber
	g.emit(models.EventHandStarted, "", fmt.Sprintf("Hand #%d started", t.HandNumber), nil)
	g.emit(models.EventDealerAssigned, dealer.PlayerID,
		fmt.Sprintf("%s is the dealer (seat %d)", dealer.DisplayName, dealer.SeatNumber), nil)

	pf := NewPositionFinder(t.Players)
	sbSeat, bbSeat := pf.calculateBlindPositions(t.DealerSeat, len(dealt))
	t.SmallBlindSeat, t.BigBlindSeat = sbSeat, bbSeat

	sb := t.PlayerAtSeat(sbSeat)
	sb.IsSmallBlind = true
	g.postBlind(sb, t.Config.SmallBlind, "small blind")

	bb := t.PlayerAtSeat(bbSeat)
	bb.IsBigBlind = true
	g.postBlind(bb, t.Config.BigBlind, "big blind")

	t.CurrentBet = t.Config.BigBlind
	t.MinRaise = t.Config.BigBlind

	for _, p := range seatOrderFrom(dealt, t.DealerSeat) {
		cards, err := t.Deck.DrawN(2)
		if err != nil {
			return fmt.Errorf("deal hole cards: %w", err)
		}
		p.Cards = cards
	}

	t.CurrentSeat = bbSeat
	return g.progress()
}

func (g *Game) postBlind(p *models.Player, amount int, name string) {
	posted := p.Commit(amount)
	g.table.Pot += posted
	g.emit(models.EventBlindPosted, p.PlayerID,
		fmt.Sprintf("%s posts %s of %d", p.DisplayName, name, posted),
		models.BlindPostedEvent{Seat: p.SeatNumber, Amount: posted, Blind: name})
}

// ApplyAction validates and applies an action for the player whose turn it is.
func (g *Game) ApplyAction(playerID string, action models.PlayerAction, amount int) error {
	t := g.table
	resolved, err := ValidateAction(t, playerID, action, amount, g.shortCallAllIn)
	if err != nil {
		return err
	}

	p := t.PlayerByID(playerID)
	committed := 0

	switch resolved {
	case models.ActionFold:
		p.Fold()
	case models.ActionCheck:
	case models.ActionCall:
		committed = p.Commit(t.CurrentBet - p.Bet)
	case models.ActionRaise:
		committed = p.Commit(amount - p.Bet)
		g.raiseTo(p, p.Bet)
	case models.ActionAllIn:
		committed = p.Commit(p.Chips)
		if p.Bet > t.CurrentBet {
			g.raiseTo(p, p.Bet)
		}
	}

	t.Pot += committed
	p.HasActed = true
	p.LastAction = resolved

	g.emit(models.EventPlayerActed, p.PlayerID, describeAction(p, resolved),
		models.PlayerActedEvent{Action: resolved, Amount: p.Bet})

	return g.progress()
}

// raiseTo makes total the new bet to match. The increment becomes the
// minimum raise, also for an all-in short of a full raise, and the action
// reopens for everyone else.
func (g *Game) raiseTo(p *models.Player, total int) {
	t := g.table
	t.MinRaise = total - t.CurrentBet
	t.CurrentBet = total
	reopenBettingForPlayers(t.Players, p)
}

func describeAction(p *models.Player, action models.PlayerAction) string {
	switch action {
	case models.ActionFold:
		return fmt.Sprintf("%s folds", p.DisplayName)
	case models.ActionCheck:
		return fmt.Sprintf("%s checks", p.DisplayName)
	case models.ActionCall:
		return fmt.Sprintf("%s calls %d", p.DisplayName, p.Bet)
	case models.ActionRaise:
		return fmt.Sprintf("%s raises to %d", p.DisplayName, p.Bet)
	default:
		return fmt.Sprintf("%s is all-in for %d", p.DisplayName, p.Bet)
	}
}

// progress moves the hand forward after a state change: it ends the hand when
// one player is left, advances streets when betting is complete, and
// otherwise passes the turn.
func (g *Game) progress() error {
	t := g.table
	clearCurrentToAct(t.Players)

	if countPlayers(t.Players, isActive) == 1 {
		return g.awardUncontested()
	}

	if g.isBettingRoundComplete() {
		return g.advanceStreet()
	}

	next := NewPositionFinder(t.Players).findNextToAct(t.CurrentSeat)
	if next == 0 {
		return g.advanceStreet()
	}
	g.setCurrent(next)
	return nil
}

func (g *Game) setCurrent(seat int) {
	t := g.table
	clearCurrentToAct(t.Players)
	t.CurrentSeat = seat
	if p := t.PlayerAtSeat(seat); p != nil {
		p.IsCurrentToAct = true
	}
}

// isBettingRoundComplete holds when every active player with chips behind
// has acted this street and matched the current bet.
func (g *Game) isBettingRoundComplete() bool {
	for _, p := range g.table.Players {
		if !isActive(p) || p.Chips == 0 {
			continue
		}
		if !p.HasActed || p.Bet != g.table.CurrentBet {
			return false
		}
	}
	return true
}

// advanceStreet deals the next street. When fewer than two players can still
// bet, the remaining board is run out straight to showdown.
func (g *Game) advanceStreet() error {
	t := g.table
	for {
		resetPlayersForNewStreet(t.Players)
		t.CurrentBet = 0
		t.MinRaise = t.Config.BigBlind

		var deal int
		switch t.Street {
		case models.StreetPreFlop:
			t.Street, deal = models.StreetFlop, 3
		case models.StreetFlop:
			t.Street, deal = models.StreetTurn, 1
		case models.StreetTurn:
			t.Street, deal = models.StreetRiver, 1
		default:
			return g.showdown()
		}

		cards, err := t.Deck.DrawN(deal)
		if err != nil {
			return fmt.Errorf("deal %s: %w", t.Street, err)
		}
		t.CommunityCards = append(t.CommunityCards, cards...)
		g.emit(models.EventStreetDealt, "", fmt.Sprintf("%s: %s", streetName(t.Street), formatCards(t.CommunityCards)), cards)

		if countPlayers(t.Players, canAct) < 2 {
			continue
		}
		g.setCurrent(NewPositionFinder(t.Players).findNextToAct(t.DealerSeat))
		return nil
	}
}

func streetName(s models.Street) string {
	switch s {
	case models.StreetFlop:
		return "Flop"
	case models.StreetTurn:
		return "Turn"
	case models.StreetRiver:
		return "River"
	}
	return string(s)
}

func formatCards(cards []models.Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

func (g *Game) showdown() error {
	t := g.table
	t.Street = models.StreetShowdown

	inHand := filterPlayers(t.Players, func(p *models.Player) bool { return p.InHand })
	pots := ComputeSidePots(inHand)
	winners, err := AwardPots(pots, inHand, t.CommunityCards, t.DealerSeat, g.evaluate)
	if err != nil {
		return fmt.Errorf("showdown: %w", err)
	}
	t.SidePots = pots
	g.finishHand(winners)
	return nil
}

// awardUncontested gives the whole pot to the last player standing without a
// showdown.
func (g *Game) awardUncontested() error {
	t := g.table
	winner := filterPlayers(t.Players, isActive)[0]
	winner.Chips += t.Pot
	t.SidePots = []models.SidePot{{Amount: t.Pot, EligiblePlayers: []string{winner.PlayerID}}}
	g.finishHand([]models.Winner{{
		PlayerID:    winner.PlayerID,
		DisplayName: winner.DisplayName,
		Amount:      t.Pot,
	}})
	return nil
}

func (g *Game) finishHand(winners []models.Winner) {
	t := g.table
	t.Winners = winners
	t.Pot = 0
	t.Status = models.StatusFinished
	t.CurrentSeat = 0
	clearCurrentToAct(t.Players)

	for _, w := range winners {
		msg := fmt.Sprintf("%s wins %d", w.DisplayName, w.Amount)
		if w.HandRank != "" {
			msg += " with " + w.HandRank
		}
		g.emit(models.EventHandComplete, w.PlayerID, msg, models.HandCompleteEvent{Winners: winners})
	}
	g.purgeDeparted()
}

// purgeDeparted drops players whose connection left, once their chips are no
// longer part of a live hand.
func (g *Game) purgeDeparted() {
	kept := g.table.Players[:0]
	for _, p := range g.table.Players {
		if p.Connected {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(g.table.Players); i++ {
		g.table.Players[i] = nil
	}
	g.table.Players = kept
}

// RemovePlayer handles a departure. During a hand the player is folded and
// kept until the hand resolves; otherwise the record is deleted.
func (g *Game) RemovePlayer(playerID string) error {
	t := g.table
	p := t.PlayerByID(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}

	if t.Status != models.StatusPlaying || !p.InHand {
		t.RemovePlayer(playerID)
		return nil
	}

	p.Connected = false
	if !p.IsActive {
		return nil
	}

	wasCurrent := p.IsCurrentToAct
	p.Fold()
	p.HasActed = true
	p.LastAction = models.ActionFold

	if wasCurrent || countPlayers(t.Players, isActive) == 1 {
		return g.progress()
	}
	return nil
}

// TimeoutAction picks the action taken for a player who lets the clock run
// out: check when that is legal, fold otherwise.
func (g *Game) TimeoutAction() (string, models.PlayerAction, bool) {
	p := g.table.CurrentPlayer()
	if p == nil {
		return "", "", false
	}
	if p.Bet == g.table.CurrentBet {
		return p.PlayerID, models.ActionCheck, true
	}
	return p.PlayerID, models.ActionFold, true
}

// AbortHand refunds every contribution and returns the table to waiting.
// It is the recovery path after an invariant violation.
func (g *Game) AbortHand() {
	t := g.table
	for _, p := range t.Players {
		p.Chips += p.TotalBet
		p.ResetForHand()
	}
	t.Pot = 0
	t.CurrentBet = 0
	t.MinRaise = t.Config.BigBlind
	t.CurrentSeat = 0
	t.CommunityCards = make([]models.Card, 0, 5)
	t.SidePots = nil
	t.Winners = nil
	t.Deck = nil
	t.Street = models.StreetPreFlop
	t.Status = models.StatusWaiting
	g.purgeDeparted()
}
