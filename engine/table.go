package engine

import (
	"fmt"

	"poker-table/models"
)

// Table pairs a table's state with the game that mutates it and owns seating.
type Table struct {
	model *models.Table
	game  *Game
}

func NewTable(tableID string, config models.TableConfig, opts Options, onEvent func(models.Event)) *Table {
	if config.MaxSeats <= 0 {
		config.MaxSeats = models.DefaultTableConfig().MaxSeats
	}
	model := models.NewTable(tableID, config)
	return &Table{model: model, game: NewGame(model, opts, onEvent)}
}

// Join seats a player, or reconnects them if they already hold a seat. New
// players take the lowest free seat and sit out any hand already in progress.
func (t *Table) Join(playerID, displayName string) (*models.Player, bool, error) {
	if p := t.model.PlayerByID(playerID); p != nil {
		p.Connected = true
		if displayName != "" {
			p.DisplayName = displayName
		}
		if t.model.Status != models.StatusPlaying {
			p.IsActive = p.Chips > 0
		}
		return p, true, nil
	}

	seat := t.lowestFreeSeat()
	if seat == 0 {
		return nil, false, fmt.Errorf("%w: %d seats taken", ErrTableFull, t.model.Config.MaxSeats)
	}

	p := models.NewPlayer(playerID, displayName, seat, t.model.Config.StartingChips)
	if t.model.Status == models.StatusPlaying {
		p.IsActive = false
	}
	t.model.Players = append(t.model.Players, p)
	return p, false, nil
}

func (t *Table) lowestFreeSeat() int {
	taken := make(map[int]bool, len(t.model.Players))
	for _, p := range t.model.Players {
		taken[p.SeatNumber] = true
	}
	for seat := 1; seat <= t.model.Config.MaxSeats; seat++ {
		if !taken[seat] {
			return seat
		}
	}
	return 0
}

func (t *Table) Leave(playerID string) error {
	return t.game.RemovePlayer(playerID)
}

func (t *Table) StartHand() error {
	return t.game.StartHand()
}

func (t *Table) CanStartHand() bool {
	return t.game.CanStartHand()
}

func (t *Table) ApplyAction(playerID string, action models.PlayerAction, amount int) error {
	return t.game.ApplyAction(playerID, action, amount)
}

func (t *Table) TimeoutAction() (string, models.PlayerAction, bool) {
	return t.game.TimeoutAction()
}

func (t *Table) AbortHand() {
	t.game.AbortHand()
}

// Idle parks a finished table in waiting when no next hand can be dealt.
func (t *Table) Idle() bool {
	if t.model.Status != models.StatusFinished {
		return false
	}
	t.model.Status = models.StatusWaiting
	return true
}

func (t *Table) State() *models.Table {
	return t.model
}
