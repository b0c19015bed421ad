// Package store mirrors table state to external storage. Mirroring is best
// effort: callers go through Async, which never blocks and never reports
// failures back to the game.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"poker-table/internal/protocol"
	"poker-table/models"
)

// Mirror is a storage backend.
type Mirror interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	SaveHand(ctx context.Context, hand HandResult) error
}

// Recorder accepts records without blocking. Implementations drop rather
// than wait.
type Recorder interface {
	RecordSnapshot(snap Snapshot)
	RecordHand(hand HandResult)
}

// StateReader returns the last stored public gameState for a table, or nil
// when none is stored.
type StateReader interface {
	LatestState(ctx context.Context, tableID string) ([]byte, error)
}

type PlayerRow struct {
	PlayerID  string
	Name      string
	Seat      int
	Chips     int
	Connected bool
}

// Snapshot is a table's state after one mutation. State holds the public
// gameState document, so hole cards are never stored.
type Snapshot struct {
	TableID    string
	Seq        uint64
	HandNumber int
	Status     string
	Phase      string
	Pot        int
	Config     models.TableConfig
	Players    []PlayerRow
	State      json.RawMessage
	TakenAt    time.Time
}

// HandResult is written once per finished hand.
type HandResult struct {
	HandID     string                `json:"handId"`
	TableID    string                `json:"tableId"`
	HandNumber int                   `json:"handNumber"`
	Board      []string              `json:"board"`
	Pot        int                   `json:"pot"`
	Winners    []protocol.WinnerView `json:"winners"`
	FinishedAt time.Time             `json:"finishedAt"`
}

func NewSnapshot(table *models.Table, seq uint64) (Snapshot, error) {
	state, err := json.Marshal(protocol.NewGameState(table, "", seq, time.Time{}))
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal snapshot state: %w", err)
	}

	snap := Snapshot{
		TableID:    table.TableID,
		Seq:        seq,
		HandNumber: table.HandNumber,
		Status:     string(table.Status),
		Phase:      string(table.Street),
		Pot:        table.Pot,
		Config:     table.Config,
		State:      state,
		TakenAt:    time.Now().UTC(),
	}
	for _, p := range table.PlayersBySeat() {
		snap.Players = append(snap.Players, PlayerRow{
			PlayerID:  p.PlayerID,
			Name:      p.DisplayName,
			Seat:      p.SeatNumber,
			Chips:     p.Chips,
			Connected: p.Connected,
		})
	}
	return snap, nil
}

// NewHandResult summarises a finished hand. The pot is the sum awarded.
func NewHandResult(table *models.Table) HandResult {
	state := protocol.NewGameState(table, "", 0, time.Time{})
	pot := 0
	for _, w := range table.Winners {
		pot += w.Amount
	}
	return HandResult{
		HandID:     uuid.New().String(),
		TableID:    table.TableID,
		HandNumber: table.HandNumber,
		Board:      state.CommunityCards,
		Pot:        pot,
		Winners:    state.Winners,
		FinishedAt: time.Now().UTC(),
	}
}

// Multi writes to every mirror and joins their errors.
type Multi []Mirror

func (m Multi) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, mirror := range m {
		if err := mirror.SaveSnapshot(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) SaveHand(ctx context.Context, hand HandResult) error {
	var errs []error
	for _, mirror := range m {
		if err := mirror.SaveHand(ctx, hand); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is the Recorder used when no store is configured.
type Discard struct{}

func (Discard) RecordSnapshot(Snapshot) {}
func (Discard) RecordHand(HandResult)   {}
