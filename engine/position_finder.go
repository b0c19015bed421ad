package engine

import (
	"sort"

	"poker-table/models"
)

// PositionFinder walks players clockwise by seat number.
type PositionFinder struct {
	players []*models.Player
}

func NewPositionFinder(players []*models.Player) *PositionFinder {
	sorted := append([]*models.Player(nil), players...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SeatNumber < sorted[j].SeatNumber })
	return &PositionFinder{players: sorted}
}

// findNext returns the first matching seat strictly greater than currentSeat,
// wrapping to the lowest matching seat. It returns 0 when nothing matches.
func (pf *PositionFinder) findNext(currentSeat int, filter PlayerFilter) int {
	for _, p := range pf.players {
		if p.SeatNumber > currentSeat && filter(p) {
			return p.SeatNumber
		}
	}
	for _, p := range pf.players {
		if filter(p) {
			return p.SeatNumber
		}
	}
	return 0
}

func (pf *PositionFinder) findNextActive(currentSeat int) int {
	return pf.findNext(currentSeat, isActive)
}

func (pf *PositionFinder) findNextToAct(currentSeat int) int {
	return pf.findNext(currentSeat, canAct)
}

// calculateBlindPositions uses the heads-up convention where the dealer
// posts the small blind.
func (pf *PositionFinder) calculateBlindPositions(dealerSeat, activePlayers int) (int, int) {
	if activePlayers == 2 {
		return dealerSeat, pf.findNextActive(dealerSeat)
	}
	sb := pf.findNextActive(dealerSeat)
	bb := pf.findNextActive(sb)
	return sb, bb
}

// seatOrderFrom returns the given players ordered clockwise starting with the
// first seat after startSeat.
func seatOrderFrom(players []*models.Player, startSeat int) []*models.Player {
	pf := NewPositionFinder(players)
	out := make([]*models.Player, 0, len(players))
	for _, p := range pf.players {
		if p.SeatNumber > startSeat {
			out = append(out, p)
		}
	}
	for _, p := range pf.players {
		if p.SeatNumber <= startSeat {
			out = append(out, p)
		}
	}
	return out
}

// NextActiveSeat returns the seat of the next active player after
// currentSeat in clockwise order, or 0 if there is none.
func NextActiveSeat(players []*models.Player, currentSeat int) int {
	return NewPositionFinder(players).findNextActive(currentSeat)
}
