package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"poker-table/internal/db"
	"poker-table/models"
)

func sampleTable() *models.Table {
	table := models.NewTable("t1", models.DefaultTableConfig())
	a := models.NewPlayer("alice", "Alice", 1, 990)
	a.InHand = true
	a.Cards = []models.Card{{Rank: models.Ace, Suit: models.Spades}, {Rank: models.Ace, Suit: models.Hearts}}
	b := models.NewPlayer("bob", "Bob", 2, 980)
	b.InHand = true
	b.Cards = []models.Card{{Rank: models.Two, Suit: models.Clubs}, {Rank: models.Three, Suit: models.Clubs}}
	table.Players = []*models.Player{a, b}
	table.Status = models.StatusPlaying
	table.Street = models.StreetPreFlop
	table.HandNumber = 1
	table.Pot = 30
	return table
}

func newSQLiteMirror(t *testing.T) (*GormMirror, *db.DB) {
	t.Helper()
	database, err := db.New(db.Config{Driver: "sqlite", SQLitePath: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	m, err := NewGormMirror(database.DB)
	require.NoError(t, err)
	return m, database
}

func TestNewSnapshotOmitsHoleCards(t *testing.T) {
	snap, err := NewSnapshot(sampleTable(), 4)
	require.NoError(t, err)

	assert.Equal(t, "t1", snap.TableID)
	assert.Equal(t, uint64(4), snap.Seq)
	assert.Len(t, snap.Players, 2)
	assert.NotContains(t, string(snap.State), `"As"`)
	assert.NotContains(t, string(snap.State), `"2c"`)
}

func TestGormMirrorUpsertsAndPrunes(t *testing.T) {
	m, database := newSQLiteMirror(t)
	ctx := context.Background()
	table := sampleTable()

	snap, err := NewSnapshot(table, 1)
	require.NoError(t, err)
	require.NoError(t, m.SaveSnapshot(ctx, snap))

	table.Players[0].Chips = 1020
	table.Players = table.Players[:1]
	snap, err = NewSnapshot(table, 2)
	require.NoError(t, err)
	require.NoError(t, m.SaveSnapshot(ctx, snap))

	var seats []SeatRecord
	require.NoError(t, database.Where("table_id = ?", "t1").Find(&seats).Error)
	require.Len(t, seats, 1)
	assert.Equal(t, "alice", seats[0].PlayerID)
	assert.Equal(t, 1020, seats[0].Chips)

	var rec TableRecord
	require.NoError(t, database.First(&rec, "id = ?", "t1").Error)
	assert.Equal(t, uint64(2), rec.Seq)
	assert.Equal(t, "playing", rec.Status)

	state, err := m.LatestState(ctx, "t1")
	require.NoError(t, err)
	assert.JSONEq(t, string(snap.State), string(state))

	missing, err := m.LatestState(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGormMirrorSavesHand(t *testing.T) {
	m, database := newSQLiteMirror(t)
	table := sampleTable()
	table.Status = models.StatusFinished
	table.Winners = []models.Winner{{PlayerID: "alice", DisplayName: "Alice", Amount: 30}}

	hand := NewHandResult(table)
	require.NoError(t, m.SaveHand(context.Background(), hand))

	var rec HandRecord
	require.NoError(t, database.First(&rec, "id = ?", hand.HandID).Error)
	assert.Equal(t, 30, rec.Pot)
	assert.Contains(t, rec.Winners, `"alice"`)
}

func TestRedisMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	m := NewRedisMirror(client, time.Minute)
	ctx := context.Background()

	snap, err := NewSnapshot(sampleTable(), 3)
	require.NoError(t, err)
	require.NoError(t, m.SaveSnapshot(ctx, snap))

	state, err := m.LatestState(ctx, "t1")
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(state, &decoded))
	assert.Equal(t, float64(3), decoded["seq"])
	assert.Equal(t, time.Minute, mr.TTL(SnapshotKey("t1")))

	for i := 1; i <= handHistoryLength+5; i++ {
		require.NoError(t, m.SaveHand(ctx, HandResult{HandID: "h", TableID: "t1", HandNumber: i}))
	}
	hands, err := m.RecentHands(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, hands, handHistoryLength)
	assert.Equal(t, handHistoryLength+5, hands[0].HandNumber)

	mr.FastForward(2 * time.Minute)
	state, err = m.LatestState(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

type recordingMirror struct {
	mu    sync.Mutex
	snaps []Snapshot
	hands []HandResult
	err   error
	block chan struct{}
}

func (r *recordingMirror) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return r.err
}

func (r *recordingMirror) SaveHand(ctx context.Context, hand HandResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hands = append(r.hands, hand)
	return r.err
}

func TestAsyncDrainsOnClose(t *testing.T) {
	rec := &recordingMirror{err: errors.New("disk on fire")}
	a := NewAsync(rec, zap.NewNop(), 8, time.Second)

	a.RecordSnapshot(Snapshot{TableID: "t1", Seq: 1})
	a.RecordSnapshot(Snapshot{TableID: "t1", Seq: 2})
	a.RecordHand(HandResult{TableID: "t1", HandNumber: 1})
	a.Close()

	require.Len(t, rec.snaps, 2)
	assert.Equal(t, uint64(2), rec.snaps[1].Seq)
	assert.Len(t, rec.hands, 1)

	// no panic, no effect
	a.RecordSnapshot(Snapshot{TableID: "t1", Seq: 3})
	a.Close()
	assert.Len(t, rec.snaps, 2)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	rec := &recordingMirror{block: make(chan struct{})}
	a := NewAsync(rec, zap.NewNop(), 1, time.Second)

	for i := 0; i < 10; i++ {
		a.RecordSnapshot(Snapshot{TableID: "t1", Seq: uint64(i)})
	}
	assert.Positive(t, a.Dropped())

	close(rec.block)
	a.Close()
	assert.Less(t, len(rec.snaps), 10)
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingMirror{}
	bad := &recordingMirror{err: errors.New("boom")}
	m := Multi{bad, ok}

	err := m.SaveSnapshot(context.Background(), Snapshot{TableID: "t1"})
	assert.EqualError(t, err, "boom")
	assert.Len(t, ok.snaps, 1, "a failing mirror does not stop the others")
}
