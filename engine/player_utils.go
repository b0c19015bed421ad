package engine

import "poker-table/models"

type PlayerFilter func(*models.Player) bool

// isActive matches players still contesting the current hand.
func isActive(p *models.Player) bool {
	return p != nil && p.IsActive && p.InHand
}

func canAct(p *models.Player) bool {
	return p != nil && p.CanAct()
}

func isAllIn(p *models.Player) bool {
	return p != nil && p.IsAllIn()
}

// isReadyToPlay matches players that can be dealt into the next hand.
func isReadyToPlay(p *models.Player) bool {
	return p != nil && p.Connected && p.Chips > 0
}

func countPlayers(players []*models.Player, filter PlayerFilter) int {
	count := 0
	for _, p := range players {
		if filter(p) {
			count++
		}
	}
	return count
}

func filterPlayers(players []*models.Player, filter PlayerFilter) []*models.Player {
	out := make([]*models.Player, 0, len(players))
	for _, p := range players {
		if filter(p) {
			out = append(out, p)
		}
	}
	return out
}

func resetPlayersForNewStreet(players []*models.Player) {
	for _, p := range players {
		p.ResetForStreet()
	}
}

// reopenBettingForPlayers clears HasActed for everyone who can still act
// after except increases the bet.
func reopenBettingForPlayers(players []*models.Player, except *models.Player) {
	for _, p := range players {
		if p != except && canAct(p) {
			p.HasActed = false
		}
	}
}

func clearCurrentToAct(players []*models.Player) {
	for _, p := range players {
		p.IsCurrentToAct = false
	}
}
