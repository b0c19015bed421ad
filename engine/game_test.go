package engine

import (
	"errors"
	"math/rand"
	"testing"

	"poker-table/models"
)

func newTestTable(t *testing.T, n int, events *[]models.Event) *Table {
	t.Helper()
	config := models.TableConfig{SmallBlind: 10, BigBlind: 20, MaxSeats: 8, StartingChips: 1000}
	table := NewTable("test-table", config, Options{
		Rand:           rand.New(rand.NewSource(7)),
		ShortCallAllIn: true,
	}, func(e models.Event) {
		if events != nil {
			*events = append(*events, e)
		}
	})
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		if _, _, err := table.Join(id, "Player "+id); err != nil {
			t.Fatalf("Join(%s): %v", id, err)
		}
	}
	return table
}

func currentToActCount(state *models.Table) int {
	n := 0
	for _, p := range state.Players {
		if p.IsCurrentToAct {
			n++
		}
	}
	return n
}

// passiveAction calls a bet if there is one and checks otherwise.
func passiveAction(state *models.Table) (string, models.PlayerAction) {
	p := state.CurrentPlayer()
	if p.Bet < state.CurrentBet {
		return p.PlayerID, models.ActionCall
	}
	return p.PlayerID, models.ActionCheck
}

func TestStartHand_HeadsUpBlinds(t *testing.T) {
	var events []models.Event
	table := newTestTable(t, 2, &events)
	state := table.State()

	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	if state.Pot != 30 {
		t.Errorf("Expected pot 30, got %d", state.Pot)
	}
	if state.CurrentBet != 20 {
		t.Errorf("Expected current bet 20, got %d", state.CurrentBet)
	}
	if state.SmallBlindSeat != state.DealerSeat {
		t.Errorf("Heads-up: expected dealer seat %d to post the small blind, got %d", state.DealerSeat, state.SmallBlindSeat)
	}
	sb := state.PlayerAtSeat(state.SmallBlindSeat)
	bb := state.PlayerAtSeat(state.BigBlindSeat)
	if sb.Chips != 990 || bb.Chips != 980 {
		t.Errorf("Expected stacks 990/980, got %d/%d", sb.Chips, bb.Chips)
	}
	for _, p := range state.Players {
		if len(p.Cards) != 2 {
			t.Errorf("Expected 2 hole cards for %s, got %d", p.PlayerID, len(p.Cards))
		}
	}
	if state.CurrentSeat != state.SmallBlindSeat || !sb.IsCurrentToAct {
		t.Errorf("Expected small blind to act first, current seat %d", state.CurrentSeat)
	}
	if currentToActCount(state) != 1 {
		t.Errorf("Expected exactly one player to act, got %d", currentToActCount(state))
	}
	if state.Deck.Remaining() != models.DeckSize-4 {
		t.Errorf("Expected %d cards left in deck, got %d", models.DeckSize-4, state.Deck.Remaining())
	}

	var sawDealer, blinds int
	for _, e := range events {
		switch e.Event {
		case models.EventDealerAssigned:
			sawDealer++
		case models.EventBlindPosted:
			blinds++
		}
	}
	if sawDealer != 1 || blinds != 2 {
		t.Errorf("Expected one dealer event and two blind events, got %d and %d", sawDealer, blinds)
	}
}

func TestStartHand_RequiresTwoPlayers(t *testing.T) {
	table := newTestTable(t, 1, nil)
	if err := table.StartHand(); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Errorf("Expected ErrNotEnoughPlayers, got %v", err)
	}
	if table.State().Status != models.StatusWaiting {
		t.Errorf("Expected table to stay waiting, got %s", table.State().Status)
	}
}

func TestStartHand_RejectsWhilePlaying(t *testing.T) {
	table := newTestTable(t, 2, nil)
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	if err := table.StartHand(); !errors.Is(err, ErrHandInProgress) {
		t.Errorf("Expected ErrHandInProgress, got %v", err)
	}
}

func TestGame_StreetDealing(t *testing.T) {
	table := newTestTable(t, 2, nil)
	state := table.State()
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	wantBoard := map[models.Street]int{
		models.StreetPreFlop: 0,
		models.StreetFlop:    3,
		models.StreetTurn:    4,
		models.StreetRiver:   5,
	}
	for i := 0; i < 20 && state.Status == models.StatusPlaying; i++ {
		if got := len(state.CommunityCards); got != wantBoard[state.Street] {
			t.Fatalf("On %s expected %d community cards, got %d", state.Street, wantBoard[state.Street], got)
		}
		id, action := passiveAction(state)
		if err := table.ApplyAction(id, action, 0); err != nil {
			t.Fatalf("ApplyAction(%s, %s) on %s: %v", id, action, state.Street, err)
		}
	}

	if state.Status != models.StatusFinished {
		t.Fatalf("Expected hand to finish, got %s", state.Status)
	}
	if state.Street != models.StreetShowdown {
		t.Errorf("Expected showdown, got %s", state.Street)
	}
	if len(state.CommunityCards) != 5 {
		t.Errorf("Expected 5 community cards at showdown, got %d", len(state.CommunityCards))
	}
	if len(state.Winners) == 0 {
		t.Error("Expected at least one winner")
	}
	if state.TotalChips() != 2000 {
		t.Errorf("Expected 2000 chips in play, got %d", state.TotalChips())
	}
}

func TestGame_PostflopFirstToActIsLeftOfDealer(t *testing.T) {
	table := newTestTable(t, 3, nil)
	state := table.State()
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	for state.Street == models.StreetPreFlop {
		id, action := passiveAction(state)
		if err := table.ApplyAction(id, action, 0); err != nil {
			t.Fatalf("ApplyAction: %v", err)
		}
	}
	if want := NextActiveSeat(state.Players, state.DealerSeat); state.CurrentSeat != want {
		t.Errorf("Expected seat %d to act first on the flop, got %d", want, state.CurrentSeat)
	}
	if state.CurrentBet != 0 || state.MinRaise != 20 {
		t.Errorf("Expected street reset, got currentBet %d minRaise %d", state.CurrentBet, state.MinRaise)
	}
}

func TestGame_ChipConservationAndSingleActor(t *testing.T) {
	table := newTestTable(t, 4, nil)
	state := table.State()
	total := state.TotalChips()

	for hand := 0; hand < 5; hand++ {
		if !table.CanStartHand() {
			break
		}
		if err := table.StartHand(); err != nil {
			t.Fatalf("StartHand: %v", err)
		}
		for i := 0; i < 100 && state.Status == models.StatusPlaying; i++ {
			if currentToActCount(state) != 1 {
				t.Fatalf("Expected exactly one player to act, got %d", currentToActCount(state))
			}
			p := state.CurrentPlayer()
			var err error
			switch {
			case i%7 == 3:
				err = table.ApplyAction(p.PlayerID, models.ActionRaise, state.CurrentBet+state.MinRaise)
				if errors.Is(err, ErrInsufficientChipsToRaise) {
					err = table.ApplyAction(p.PlayerID, models.ActionAllIn, 0)
				}
			case i%11 == 5:
				err = table.ApplyAction(p.PlayerID, models.ActionFold, 0)
			default:
				id, action := passiveAction(state)
				err = table.ApplyAction(id, action, 0)
			}
			if err != nil {
				t.Fatalf("hand %d step %d: %v", hand, i, err)
			}
			if got := state.TotalChips(); got != total {
				t.Fatalf("hand %d step %d: chips not conserved, %d != %d", hand, i, got, total)
			}
			pot := 0
			for _, pl := range state.Players {
				pot += pl.TotalBet
			}
			if state.Status == models.StatusPlaying && pot != state.Pot {
				t.Fatalf("Expected pot %d to equal total contributions %d", state.Pot, pot)
			}
		}
		if state.Status != models.StatusFinished {
			t.Fatalf("hand %d did not finish", hand)
		}
		if currentToActCount(state) != 0 {
			t.Errorf("Expected nobody to act between hands")
		}
	}
}

func TestGame_FoldWinsWithoutShowdown(t *testing.T) {
	table := newTestTable(t, 2, nil)
	state := table.State()
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	sb := state.PlayerAtSeat(state.SmallBlindSeat)
	bb := state.PlayerAtSeat(state.BigBlindSeat)

	if err := table.ApplyAction(sb.PlayerID, models.ActionFold, 0); err != nil {
		t.Fatalf("fold: %v", err)
	}

	if state.Status != models.StatusFinished {
		t.Fatalf("Expected hand to finish, got %s", state.Status)
	}
	if bb.Chips != 1010 || sb.Chips != 990 {
		t.Errorf("Expected stacks 1010/990, got %d/%d", bb.Chips, sb.Chips)
	}
	if len(state.Winners) != 1 || state.Winners[0].PlayerID != bb.PlayerID || state.Winners[0].HandRank != "" {
		t.Errorf("Expected uncontested win for %s, got %+v", bb.PlayerID, state.Winners)
	}
	if len(state.CommunityCards) != 0 {
		t.Errorf("Expected no board, got %d cards", len(state.CommunityCards))
	}
	if len(sb.Cards) != 0 {
		t.Errorf("Expected folded cards to be cleared")
	}
}

func TestGame_RaiseReopensAndSetsMinimum(t *testing.T) {
	table := newTestTable(t, 3, nil)
	state := table.State()
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	first := state.CurrentPlayer()
	if err := table.ApplyAction(first.PlayerID, models.ActionRaise, 60); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if state.CurrentBet != 60 || state.MinRaise != 40 {
		t.Fatalf("Expected currentBet 60 and minRaise 40, got %d and %d", state.CurrentBet, state.MinRaise)
	}

	second := state.CurrentPlayer()
	if err := table.ApplyAction(second.PlayerID, models.ActionRaise, 99); !errors.Is(err, ErrRaiseBelowMinimum) {
		t.Fatalf("Expected ErrRaiseBelowMinimum, got %v", err)
	}
	if err := table.ApplyAction(second.PlayerID, models.ActionRaise, 100); err != nil {
		t.Fatalf("raise to 100: %v", err)
	}
	if first.HasActed {
		t.Error("Expected raise to reopen action for the first raiser")
	}
}

func TestGame_AllInAboveCurrentBetReopens(t *testing.T) {
	t.Run("full raise", func(t *testing.T) {
		table := newTestTable(t, 3, nil)
		state := table.State()
		if err := table.StartHand(); err != nil {
			t.Fatalf("StartHand: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := table.ApplyAction(state.CurrentPlayer().PlayerID, models.ActionCall, 0); err != nil {
				t.Fatalf("call %d: %v", i, err)
			}
		}

		bb := state.CurrentPlayer()
		if bb.SeatNumber != state.BigBlindSeat {
			t.Fatalf("Expected big blind to act, got seat %d", bb.SeatNumber)
		}
		if err := table.ApplyAction(bb.PlayerID, models.ActionAllIn, 0); err != nil {
			t.Fatalf("all-in: %v", err)
		}
		if state.CurrentBet != 1000 || state.MinRaise != 980 {
			t.Errorf("Expected currentBet 1000 and minRaise 980, got %d and %d", state.CurrentBet, state.MinRaise)
		}
		for _, p := range state.Players {
			if p != bb && p.HasActed {
				t.Errorf("Expected all-in raise to reopen action for %s", p.PlayerID)
			}
		}
		if state.CurrentSeat != state.DealerSeat {
			t.Errorf("Expected action back on seat %d, got %d", state.DealerSeat, state.CurrentSeat)
		}
	})

	t.Run("short of a full raise", func(t *testing.T) {
		table := newTestTable(t, 3, nil)
		state := table.State()
		if err := table.StartHand(); err != nil {
			t.Fatalf("StartHand: %v", err)
		}
		first := state.CurrentPlayer()
		if err := table.ApplyAction(first.PlayerID, models.ActionCall, 0); err != nil {
			t.Fatalf("call: %v", err)
		}

		sb := state.CurrentPlayer()
		if sb.SeatNumber != state.SmallBlindSeat {
			t.Fatalf("Expected small blind to act, got seat %d", sb.SeatNumber)
		}
		sb.Chips = 15 // 25 in total with the blind
		if err := table.ApplyAction(sb.PlayerID, models.ActionAllIn, 0); err != nil {
			t.Fatalf("all-in: %v", err)
		}
		if state.CurrentBet != 25 || state.MinRaise != 5 {
			t.Errorf("Expected currentBet 25 and minRaise 5, got %d and %d", state.CurrentBet, state.MinRaise)
		}
		if first.HasActed {
			t.Error("Expected short all-in to reopen action for the caller")
		}
		if !sb.HasActed || sb.Chips != 0 {
			t.Errorf("Expected small blind all-in, hasActed %v chips %d", sb.HasActed, sb.Chips)
		}

		bb := state.CurrentPlayer()
		if bb.SeatNumber != state.BigBlindSeat {
			t.Fatalf("Expected big blind to act, got seat %d", bb.SeatNumber)
		}
		if err := table.ApplyAction(bb.PlayerID, models.ActionRaise, 29); !errors.Is(err, ErrRaiseBelowMinimum) {
			t.Fatalf("Expected ErrRaiseBelowMinimum, got %v", err)
		}
		if err := table.ApplyAction(bb.PlayerID, models.ActionRaise, 30); err != nil {
			t.Fatalf("raise to 30: %v", err)
		}
		if state.MinRaise != 5 || state.CurrentBet != 30 {
			t.Errorf("Expected currentBet 30 and minRaise 5, got %d and %d", state.CurrentBet, state.MinRaise)
		}
	})
}

func TestGame_PreflopOrderAndBigBlindOption(t *testing.T) {
	table := newTestTable(t, 3, nil)
	state := table.State()
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	if want := NextActiveSeat(state.Players, state.DealerSeat); state.SmallBlindSeat != want {
		t.Errorf("Expected small blind on seat %d, got %d", want, state.SmallBlindSeat)
	}
	if want := NextActiveSeat(state.Players, state.SmallBlindSeat); state.BigBlindSeat != want {
		t.Errorf("Expected big blind on seat %d, got %d", want, state.BigBlindSeat)
	}
	if want := NextActiveSeat(state.Players, state.BigBlindSeat); state.CurrentSeat != want {
		t.Fatalf("Expected seat %d after the big blind to act first, got %d", want, state.CurrentSeat)
	}
	if state.CurrentSeat != state.DealerSeat {
		t.Errorf("Three-handed: expected the dealer to act first, got seat %d", state.CurrentSeat)
	}

	for i := 0; i < 2; i++ {
		if err := table.ApplyAction(state.CurrentPlayer().PlayerID, models.ActionCall, 0); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if state.Street != models.StreetPreFlop {
		t.Fatalf("Expected big blind option before the flop, street is %s", state.Street)
	}
	if state.CurrentSeat != state.BigBlindSeat {
		t.Fatalf("Expected big blind on seat %d to act, got %d", state.BigBlindSeat, state.CurrentSeat)
	}

	bb := state.CurrentPlayer()
	if err := table.ApplyAction(bb.PlayerID, models.ActionCheck, 0); err != nil {
		t.Fatalf("check option: %v", err)
	}
	if state.Street != models.StreetFlop || len(state.CommunityCards) != 3 {
		t.Errorf("Expected flop after the option, got %s with %d cards", state.Street, len(state.CommunityCards))
	}
	if state.Pot != 60 {
		t.Errorf("Expected pot 60, got %d", state.Pot)
	}
}

func TestGame_AllInRunsOutBoard(t *testing.T) {
	table := newTestTable(t, 2, nil)
	state := table.State()
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	sb := state.CurrentPlayer()
	if err := table.ApplyAction(sb.PlayerID, models.ActionAllIn, 0); err != nil {
		t.Fatalf("all-in: %v", err)
	}
	bb := state.CurrentPlayer()
	if bb == nil || bb.PlayerID == sb.PlayerID {
		t.Fatalf("Expected big blind to face the all-in")
	}
	if err := table.ApplyAction(bb.PlayerID, models.ActionCall, 0); err != nil {
		t.Fatalf("call: %v", err)
	}

	if state.Status != models.StatusFinished {
		t.Fatalf("Expected hand to finish, got %s", state.Status)
	}
	if len(state.CommunityCards) != 5 {
		t.Errorf("Expected board to run out to 5 cards, got %d", len(state.CommunityCards))
	}
	if state.TotalChips() != 2000 {
		t.Errorf("Expected 2000 chips in play, got %d", state.TotalChips())
	}
}

func TestGame_ShortCallBecomesAllIn(t *testing.T) {
	table := newTestTable(t, 2, nil)
	state := table.State()
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	sb := state.CurrentPlayer()
	bb := state.PlayerAtSeat(state.BigBlindSeat)
	bb.Chips = 30 // 50 behind the blind in total

	if err := table.ApplyAction(sb.PlayerID, models.ActionRaise, 200); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if err := table.ApplyAction(bb.PlayerID, models.ActionCall, 0); err != nil {
		t.Fatalf("short call: %v", err)
	}
	if bb.LastAction != models.ActionAllIn {
		t.Errorf("Expected short call to be recorded as all-in, got %s", bb.LastAction)
	}
	if state.Status != models.StatusFinished {
		t.Errorf("Expected hand to run out, got %s", state.Status)
	}
}

func TestGame_DisconnectMidHand(t *testing.T) {
	table := newTestTable(t, 3, nil)
	state := table.State()
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	var leaver *models.Player
	for _, p := range state.Players {
		if !p.IsCurrentToAct {
			leaver = p
			break
		}
	}
	stacks := make(map[string]int)
	for _, p := range state.Players {
		stacks[p.PlayerID] = p.Chips
	}
	pot := state.Pot

	if err := table.Leave(leaver.PlayerID); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	if leaver.IsActive || len(leaver.Cards) != 0 {
		t.Errorf("Expected leaver to be inactive with no cards")
	}
	if state.Pot != pot {
		t.Errorf("Expected pot to stay %d, got %d", pot, state.Pot)
	}
	for _, p := range state.Players {
		if p.Chips != stacks[p.PlayerID] {
			t.Errorf("Expected %s stack to stay %d, got %d", p.PlayerID, stacks[p.PlayerID], p.Chips)
		}
	}
	if state.PlayerByID(leaver.PlayerID) == nil {
		t.Fatal("Expected leaver to stay seated until the hand ends")
	}

	for i := 0; i < 30 && state.Status == models.StatusPlaying; i++ {
		id, action := passiveAction(state)
		if err := table.ApplyAction(id, action, 0); err != nil {
			t.Fatalf("ApplyAction: %v", err)
		}
	}
	if state.PlayerByID(leaver.PlayerID) != nil {
		t.Error("Expected departed player to be purged when the hand finished")
	}
}

func TestGame_CurrentPlayerDisconnectPassesTurn(t *testing.T) {
	table := newTestTable(t, 3, nil)
	state := table.State()
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	current := state.CurrentPlayer()
	if err := table.Leave(current.PlayerID); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	next := state.CurrentPlayer()
	if next == nil || next.PlayerID == current.PlayerID {
		t.Fatalf("Expected the turn to move on, got %+v", next)
	}
	if currentToActCount(state) != 1 {
		t.Errorf("Expected exactly one player to act, got %d", currentToActCount(state))
	}
}

func TestGame_TimeoutAction(t *testing.T) {
	table := newTestTable(t, 2, nil)
	state := table.State()
	if _, _, ok := table.TimeoutAction(); ok {
		t.Error("Expected no timeout action without a hand")
	}
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	id, action, ok := table.TimeoutAction()
	if !ok || id != state.CurrentPlayer().PlayerID || action != models.ActionFold {
		t.Errorf("Expected small blind facing a bet to fold, got %s %s %v", id, action, ok)
	}

	if err := table.ApplyAction(id, models.ActionCall, 0); err != nil {
		t.Fatalf("call: %v", err)
	}
	_, action, _ = table.TimeoutAction()
	if action != models.ActionCheck {
		t.Errorf("Expected big blind option to time out as a check, got %s", action)
	}
}

func TestGame_AbortHandRefunds(t *testing.T) {
	table := newTestTable(t, 3, nil)
	state := table.State()
	if err := table.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	p := state.CurrentPlayer()
	if err := table.ApplyAction(p.PlayerID, models.ActionRaise, 80); err != nil {
		t.Fatalf("raise: %v", err)
	}

	table.AbortHand()

	if state.Status != models.StatusWaiting || state.Pot != 0 {
		t.Errorf("Expected waiting table with empty pot, got %s and %d", state.Status, state.Pot)
	}
	for _, pl := range state.Players {
		if pl.Chips != 1000 {
			t.Errorf("Expected %s refunded to 1000, got %d", pl.PlayerID, pl.Chips)
		}
	}
}

func TestGame_DeckExhaustionIsReported(t *testing.T) {
	config := models.TableConfig{SmallBlind: 10, BigBlind: 20, MaxSeats: 8, StartingChips: 1000}
	table := NewTable("short-deck", config, Options{
		NewDeck: func(*rand.Rand) *models.Deck { return models.NewStackedDeck(nil) },
	}, nil)
	table.Join("a", "")
	table.Join("b", "")

	err := table.StartHand()
	if !errors.Is(err, models.ErrDeckExhausted) {
		t.Fatalf("Expected ErrDeckExhausted, got %v", err)
	}
	table.AbortHand()
	if table.State().TotalChips() != 2000 {
		t.Errorf("Expected chips to be restored, got %d", table.State().TotalChips())
	}
}
