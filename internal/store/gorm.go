package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TableRecord is the latest known state of a hosted table.
type TableRecord struct {
	ID         string    `gorm:"column:id;type:varchar(64);primaryKey" json:"id"`
	Status     string    `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Phase      string    `gorm:"column:phase;type:varchar(16)" json:"phase"`
	HandNumber int       `gorm:"column:hand_number;not null;default:0" json:"hand_number"`
	Pot        int       `gorm:"column:pot;not null;default:0" json:"pot"`
	SmallBlind int       `gorm:"column:small_blind;not null" json:"small_blind"`
	BigBlind   int       `gorm:"column:big_blind;not null" json:"big_blind"`
	MaxSeats   int       `gorm:"column:max_seats;not null" json:"max_seats"`
	Seq        uint64    `gorm:"column:seq;not null;default:0" json:"seq"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (TableRecord) TableName() string {
	return "poker_tables"
}

// SeatRecord is one seated player.
type SeatRecord struct {
	TableID   string    `gorm:"column:table_id;type:varchar(64);primaryKey" json:"table_id"`
	PlayerID  string    `gorm:"column:player_id;type:varchar(64);primaryKey" json:"player_id"`
	Name      string    `gorm:"column:name;type:varchar(100)" json:"name"`
	Seat      int       `gorm:"column:seat_number;not null" json:"seat_number"`
	Chips     int       `gorm:"column:chips;not null" json:"chips"`
	Connected bool      `gorm:"column:connected;not null" json:"connected"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (SeatRecord) TableName() string {
	return "table_players"
}

// SnapshotRecord keeps the last public gameState per table.
type SnapshotRecord struct {
	TableID string    `gorm:"column:table_id;type:varchar(64);primaryKey" json:"table_id"`
	Seq     uint64    `gorm:"column:seq;not null" json:"seq"`
	State   string    `gorm:"column:state;type:text;not null" json:"state"`
	TakenAt time.Time `gorm:"column:taken_at" json:"taken_at"`
}

func (SnapshotRecord) TableName() string {
	return "table_snapshots"
}

// HandRecord is the result of one finished hand.
type HandRecord struct {
	ID         string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	TableID    string    `gorm:"column:table_id;type:varchar(64);not null;index:idx_hands_table" json:"table_id"`
	HandNumber int       `gorm:"column:hand_number;not null" json:"hand_number"`
	Board      string    `gorm:"column:board;type:varchar(32)" json:"board"`
	Pot        int       `gorm:"column:pot;not null" json:"pot"`
	Winners    string    `gorm:"column:winners;type:text" json:"winners"`
	FinishedAt time.Time `gorm:"column:finished_at" json:"finished_at"`
}

func (HandRecord) TableName() string {
	return "hands"
}

// GormMirror writes to sqlite or MySQL through gorm.
type GormMirror struct {
	db *gorm.DB
}

// NewGormMirror migrates the mirror tables and returns the mirror.
func NewGormMirror(db *gorm.DB) (*GormMirror, error) {
	if err := db.AutoMigrate(&TableRecord{}, &SeatRecord{}, &SnapshotRecord{}, &HandRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormMirror{db: db}, nil
}

func (m *GormMirror) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table := TableRecord{
			ID:         snap.TableID,
			Status:     snap.Status,
			Phase:      snap.Phase,
			HandNumber: snap.HandNumber,
			Pot:        snap.Pot,
			SmallBlind: snap.Config.SmallBlind,
			BigBlind:   snap.Config.BigBlind,
			MaxSeats:   snap.Config.MaxSeats,
			Seq:        snap.Seq,
			UpdatedAt:  snap.TakenAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "phase", "hand_number", "pot", "seq", "updated_at"}),
		}).Create(&table).Error; err != nil {
			return fmt.Errorf("upsert table %s: %w", snap.TableID, err)
		}

		ids := make([]string, 0, len(snap.Players))
		for _, p := range snap.Players {
			ids = append(ids, p.PlayerID)
			seat := SeatRecord{
				TableID:   snap.TableID,
				PlayerID:  p.PlayerID,
				Name:      p.Name,
				Seat:      p.Seat,
				Chips:     p.Chips,
				Connected: p.Connected,
				UpdatedAt: snap.TakenAt,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "table_id"}, {Name: "player_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "seat_number", "chips", "connected", "updated_at"}),
			}).Create(&seat).Error; err != nil {
				return fmt.Errorf("upsert player %s: %w", p.PlayerID, err)
			}
		}

		departed := tx.Where("table_id = ?", snap.TableID)
		if len(ids) > 0 {
			departed = departed.Where("player_id NOT IN ?", ids)
		}
		if err := departed.Delete(&SeatRecord{}).Error; err != nil {
			return fmt.Errorf("prune players: %w", err)
		}

		record := SnapshotRecord{
			TableID: snap.TableID,
			Seq:     snap.Seq,
			State:   string(snap.State),
			TakenAt: snap.TakenAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "table_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"seq", "state", "taken_at"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}
		return nil
	})
}

func (m *GormMirror) SaveHand(ctx context.Context, hand HandResult) error {
	winners, err := json.Marshal(hand.Winners)
	if err != nil {
		return fmt.Errorf("marshal winners: %w", err)
	}
	record := HandRecord{
		ID:         hand.HandID,
		TableID:    hand.TableID,
		HandNumber: hand.HandNumber,
		Board:      strings.Join(hand.Board, " "),
		Pot:        hand.Pot,
		Winners:    string(winners),
		FinishedAt: hand.FinishedAt,
	}
	if err := m.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("insert hand %s: %w", hand.HandID, err)
	}
	return nil
}

// LatestState returns the stored gameState document for a table, or nil.
func (m *GormMirror) LatestState(ctx context.Context, tableID string) ([]byte, error) {
	var record SnapshotRecord
	err := m.db.WithContext(ctx).Where("table_id = ?", tableID).Limit(1).Find(&record).Error
	if err != nil {
		return nil, err
	}
	if record.TableID == "" {
		return nil, nil
	}
	return []byte(record.State), nil
}
