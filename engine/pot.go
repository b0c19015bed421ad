package engine

import (
	"fmt"
	"sort"

	"poker-table/models"
)

// ComputeSidePots partitions the chips committed this hand into layers. Each
// all-in total is a layer boundary and the largest contribution closes the
// last layer. A player is eligible for a layer when they have not folded and
// contributed at least its upper bound. Chips from a layer nobody can contest
// are merged into the layer below.
func ComputeSidePots(players []*models.Player) []models.SidePot {
	maxTotal := 0
	levels := make(map[int]bool)
	for _, p := range players {
		if p.TotalBet > maxTotal {
			maxTotal = p.TotalBet
		}
		if isAllIn(p) && p.TotalBet > 0 {
			levels[p.TotalBet] = true
		}
	}
	if maxTotal == 0 {
		return nil
	}
	levels[maxTotal] = true

	thresholds := make([]int, 0, len(levels))
	for l := range levels {
		thresholds = append(thresholds, l)
	}
	sort.Ints(thresholds)

	contenders := NewPositionFinder(filterPlayers(players, isActive)).players

	pots := make([]models.SidePot, 0, len(thresholds))
	carry := 0
	prev := 0
	for _, th := range thresholds {
		amount := carry
		for _, p := range players {
			amount += clamp(p.TotalBet, prev, th)
		}

		eligible := make([]string, 0, len(contenders))
		for _, p := range contenders {
			if p.TotalBet >= th {
				eligible = append(eligible, p.PlayerID)
			}
		}
		prev = th

		if len(eligible) == 0 {
			if len(pots) > 0 {
				pots[len(pots)-1].Amount += amount
				carry = 0
			} else {
				carry = amount
			}
			continue
		}
		carry = 0
		if amount == 0 {
			continue
		}
		pots = append(pots, models.SidePot{Amount: amount, EligiblePlayers: eligible})
	}
	if carry > 0 && len(pots) > 0 {
		pots[len(pots)-1].Amount += carry
	}
	return pots
}

// clamp returns how much of total falls in the band (lo, hi].
func clamp(total, lo, hi int) int {
	if total <= lo {
		return 0
	}
	if total >= hi {
		return hi - lo
	}
	return total - lo
}

// AwardPots decides the winners of each pot and credits their stacks. Ties
// split a pot evenly; leftover odd chips go one at a time to the tied winners
// in seat order starting left of the dealer. When a pot has a single eligible
// player no cards are evaluated.
func AwardPots(pots []models.SidePot, players []*models.Player, board []models.Card, dealerSeat int, evaluate Evaluator) ([]models.Winner, error) {
	byID := make(map[string]*models.Player, len(players))
	for _, p := range players {
		byID[p.PlayerID] = p
	}

	values := make(map[string]HandValue)
	winners := make([]models.Winner, 0, len(pots))

	for idx, pot := range pots {
		contenders := make([]*models.Player, 0, len(pot.EligiblePlayers))
		for _, id := range pot.EligiblePlayers {
			if p := byID[id]; p != nil {
				contenders = append(contenders, p)
			}
		}
		if len(contenders) == 0 {
			return nil, fmt.Errorf("pot %d has no eligible players", idx)
		}

		if len(contenders) == 1 {
			p := contenders[0]
			p.Chips += pot.Amount
			winners = append(winners, models.Winner{
				PlayerID:    p.PlayerID,
				DisplayName: p.DisplayName,
				Amount:      pot.Amount,
				PotIndex:    idx,
			})
			continue
		}

		best := -1
		var potWinners []*models.Player
		for _, p := range contenders {
			hv, ok := values[p.PlayerID]
			if !ok {
				var err error
				hv, err = evaluate(p.Cards, board)
				if err != nil {
					return nil, fmt.Errorf("evaluate %s: %w", p.PlayerID, err)
				}
				values[p.PlayerID] = hv
			}
			switch {
			case hv.Value > best:
				best = hv.Value
				potWinners = []*models.Player{p}
			case hv.Value == best:
				potWinners = append(potWinners, p)
			}
		}

		potWinners = seatOrderFrom(potWinners, dealerSeat)
		share := pot.Amount / len(potWinners)
		remainder := pot.Amount % len(potWinners)
		for i, p := range potWinners {
			amount := share
			if i < remainder {
				amount++
			}
			p.Chips += amount
			winners = append(winners, models.Winner{
				PlayerID:    p.PlayerID,
				DisplayName: p.DisplayName,
				Amount:      amount,
				PotIndex:    idx,
				HandRank:    values[p.PlayerID].Description,
				HandCards:   append([]models.Card(nil), p.Cards...),
			})
		}
	}
	return winners, nil
}
