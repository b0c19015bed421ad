package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

//go:embed schema.sql
var postgresSchema string

// PostgresMirror writes to Postgres with plain SQL upserts.
type PostgresMirror struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, applies the schema and returns the mirror.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresMirror, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	m := NewPostgresMirror(db)
	if err := m.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func NewPostgresMirror(db *sql.DB) *PostgresMirror {
	return &PostgresMirror{db: db}
}

func (m *PostgresMirror) Migrate(ctx context.Context) error {
	if m.db == nil {
		return errors.New("nil database handle")
	}
	if _, err := m.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (m *PostgresMirror) Close() error {
	return m.db.Close()
}

const upsertTableSQL = `
INSERT INTO poker_tables (id, status, phase, hand_number, pot, small_blind, big_blind, max_seats, seq, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  phase = EXCLUDED.phase,
  hand_number = EXCLUDED.hand_number,
  pot = EXCLUDED.pot,
  seq = EXCLUDED.seq,
  updated_at = EXCLUDED.updated_at
WHERE poker_tables.seq <= EXCLUDED.seq
`

const upsertPlayerSQL = `
INSERT INTO table_players (table_id, player_id, name, seat_number, chips, connected, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (table_id, player_id) DO UPDATE SET
  name = EXCLUDED.name,
  seat_number = EXCLUDED.seat_number,
  chips = EXCLUDED.chips,
  connected = EXCLUDED.connected,
  updated_at = EXCLUDED.updated_at
`

const pruneFormerPlayersSQL = `
DELETE FROM table_players WHERE table_id = $1 AND NOT (player_id = ANY($2))
`

const upsertSnapshotSQL = `
INSERT INTO table_snapshots (table_id, seq, state, taken_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (table_id) DO UPDATE SET
  seq = EXCLUDED.seq,
  state = EXCLUDED.state,
  taken_at = EXCLUDED.taken_at
WHERE table_snapshots.seq <= EXCLUDED.seq
`

func (m *PostgresMirror) SaveSnapshot(ctx context.Context, snap Snapshot) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, upsertTableSQL,
		snap.TableID,
		snap.Status,
		snap.Phase,
		snap.HandNumber,
		snap.Pot,
		snap.Config.SmallBlind,
		snap.Config.BigBlind,
		snap.Config.MaxSeats,
		int64(snap.Seq),
		snap.TakenAt,
	); err != nil {
		return fmt.Errorf("upsert table %s: %w", snap.TableID, err)
	}

	ids := make([]string, 0, len(snap.Players))
	for _, p := range snap.Players {
		ids = append(ids, p.PlayerID)
		if _, err = tx.ExecContext(ctx, upsertPlayerSQL,
			snap.TableID, p.PlayerID, p.Name, p.Seat, p.Chips, p.Connected, snap.TakenAt,
		); err != nil {
			return fmt.Errorf("upsert player %s: %w", p.PlayerID, err)
		}
	}
	if _, err = tx.ExecContext(ctx, pruneFormerPlayersSQL, snap.TableID, pq.Array(ids)); err != nil {
		return fmt.Errorf("prune players: %w", err)
	}

	if _, err = tx.ExecContext(ctx, upsertSnapshotSQL,
		snap.TableID, int64(snap.Seq), []byte(snap.State), snap.TakenAt,
	); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (m *PostgresMirror) SaveHand(ctx context.Context, hand HandResult) error {
	winners, err := json.Marshal(hand.Winners)
	if err != nil {
		return fmt.Errorf("marshal winners: %w", err)
	}
	const q = `
INSERT INTO hands (id, table_id, hand_number, board, pot, winners, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`
	_, err = m.db.ExecContext(ctx, q,
		hand.HandID,
		hand.TableID,
		hand.HandNumber,
		strings.Join(hand.Board, " "),
		hand.Pot,
		winners,
		hand.FinishedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("insert hand %s (%s): %w", hand.HandID, pqErr.Code.Name(), err)
		}
		return fmt.Errorf("insert hand %s: %w", hand.HandID, err)
	}
	return nil
}

func (m *PostgresMirror) LatestState(ctx context.Context, tableID string) ([]byte, error) {
	var state []byte
	err := m.db.QueryRowContext(ctx, `SELECT state FROM table_snapshots WHERE table_id = $1`, tableID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}
