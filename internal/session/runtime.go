package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"poker-table/engine"
	"poker-table/internal/locks"
	"poker-table/internal/logger"
	"poker-table/internal/protocol"
	"poker-table/internal/store"
	"poker-table/models"
)

const commandBuffer = 64

type command interface{}

type joinCmd struct {
	playerID string
	name     string
	conn     Conn
	reply    chan error
}

type leaveCmd struct {
	connID string
}

type messageCmd struct {
	connID string
	msg    protocol.Inbound
}

// turnKey identifies one player's turn. A timer armed for a turn is ignored
// once the table has moved past it.
type turnKey struct {
	hand   int
	street models.Street
	seat   int
}

type timeoutCmd struct {
	turn turnKey
}

type nextHandCmd struct {
	hand int
}

type infoCmd struct {
	reply chan TableInfo
}

type lockLostCmd struct {
	err error
}

type shutdownCmd struct{}

type member struct {
	conn     Conn
	playerID string
}

// tableRuntime is the single writer for one table. Every field below is
// owned by the run goroutine.
type tableRuntime struct {
	id    string
	reg   *Registry
	log   *zap.Logger
	table *engine.Table
	lock  *locks.Lock

	cmds chan command
	done chan struct{}

	conns    map[string]*member
	byPlayer map[string]string
	pending  []models.Event
	seq      uint64
	stopped  bool

	turn         turnKey
	deadline     time.Time
	actionTimer  *time.Timer
	nextHandFor  int
	nextHand     *time.Timer
	recordedHand int
}

func newTableRuntime(reg *Registry, tableID string, lock *locks.Lock) *tableRuntime {
	rt := &tableRuntime{
		id:       tableID,
		reg:      reg,
		log:      logger.Table(reg.log, tableID),
		lock:     lock,
		cmds:     make(chan command, commandBuffer),
		done:     make(chan struct{}),
		conns:    make(map[string]*member),
		byPlayer: make(map[string]string),
	}
	rt.table = engine.NewTable(tableID, reg.cfg.Table, reg.cfg.NewEngineOptions(tableID), func(ev models.Event) {
		rt.pending = append(rt.pending, ev)
	})
	return rt
}

// submit queues cmd unless the runtime has stopped.
func (rt *tableRuntime) submit(cmd command) bool {
	select {
	case <-rt.done:
		return false
	default:
	}
	select {
	case rt.cmds <- cmd:
		return true
	case <-rt.done:
		return false
	}
}

func (rt *tableRuntime) info(ctx context.Context) (TableInfo, error) {
	reply := make(chan TableInfo, 1)
	if !rt.submit(infoCmd{reply: reply}) {
		return TableInfo{}, ErrTableNotFound
	}
	select {
	case info := <-reply:
		return info, nil
	case <-rt.done:
		select {
		case info := <-reply:
			return info, nil
		default:
		}
		return TableInfo{}, ErrTableNotFound
	case <-ctx.Done():
		return TableInfo{}, ctx.Err()
	}
}

func (rt *tableRuntime) run() {
	defer rt.reg.wg.Done()
	defer func() {
		if rt.lock != nil {
			rt.reg.releaseLock(rt.id, rt.lock)
		}
	}()
	defer close(rt.done)

	for cmd := range rt.cmds {
		rt.handle(cmd)
		if rt.stopped {
			return
		}
	}
}

func (rt *tableRuntime) handle(cmd command) {
	switch c := cmd.(type) {
	case joinCmd:
		rt.join(c)
	case leaveCmd:
		rt.leave(c.connID)
	case messageCmd:
		rt.message(c.connID, c.msg)
	case timeoutCmd:
		rt.timeout(c.turn)
	case nextHandCmd:
		rt.startNextHand(c.hand)
	case infoCmd:
		c.reply <- rt.snapshotInfo()
	case lockLostCmd:
		rt.log.Error("table ownership lost, closing table", zap.Error(c.err))
		rt.closeAll(websocket.CloseTryAgainLater, "table ownership lost")
		rt.lock = nil
		rt.stop("ownership lost")
	case shutdownCmd:
		rt.closeAll(websocket.CloseGoingAway, "server shutting down")
		rt.stop("shutdown")
	default:
		rt.log.Warn("unknown command", zap.String("type", fmt.Sprintf("%T", cmd)))
	}
}

func (rt *tableRuntime) join(c joinCmd) {
	player, reconnect, err := rt.table.Join(c.playerID, c.name)
	if err != nil {
		rt.log.Info("join rejected", zap.String("player_id", c.playerID), zap.Error(err))
		c.reply <- err
		if len(rt.conns) == 0 {
			rt.stop("no connections")
		}
		return
	}

	if oldID, ok := rt.byPlayer[c.playerID]; ok && oldID != c.conn.ID() {
		if old := rt.conns[oldID]; old != nil {
			delete(rt.conns, oldID)
			old.conn.Close(websocket.CloseNormalClosure, "superseded by new connection")
		}
	}
	rt.conns[c.conn.ID()] = &member{conn: c.conn, playerID: c.playerID}
	rt.byPlayer[c.playerID] = c.conn.ID()

	verb := "joined"
	if reconnect {
		verb = "reconnected"
	}
	rt.log.Info("player "+verb,
		zap.String("player_id", c.playerID),
		zap.String("conn_id", c.conn.ID()),
		zap.Int("seat", player.SeatNumber))
	rt.notice(c.playerID, fmt.Sprintf("%s %s (seat %d)", player.DisplayName, verb, player.SeatNumber))
	rt.flush()
	c.reply <- nil
}

func (rt *tableRuntime) leave(connID string) {
	m, ok := rt.conns[connID]
	if !ok {
		return
	}
	delete(rt.conns, connID)
	if rt.byPlayer[m.playerID] == connID {
		delete(rt.byPlayer, m.playerID)
	}

	name := m.playerID
	if p := rt.table.State().PlayerByID(m.playerID); p != nil {
		name = p.DisplayName
	}
	rt.log.Info("player left", zap.String("player_id", m.playerID), zap.String("conn_id", connID))

	if len(rt.conns) == 0 {
		rt.stop("last connection left")
		return
	}

	rt.broadcast(protocol.MustEncode(protocol.TypePlayerLeft, protocol.PlayerLeft{PlayerID: m.playerID}))
	rt.notice(m.playerID, name+" left the table")
	rt.mutate(nil, func() error {
		err := rt.table.Leave(m.playerID)
		if errors.Is(err, engine.ErrPlayerNotFound) {
			return nil
		}
		return err
	})
}

func (rt *tableRuntime) message(connID string, msg protocol.Inbound) {
	m, ok := rt.conns[connID]
	if !ok {
		return
	}

	switch msg := msg.(type) {
	case protocol.PlayerAction:
		if msg.PlayerID != "" && msg.PlayerID != m.playerID {
			rt.sendError(m, "playerId does not match this connection")
			return
		}
		if rt.reg.tracker.Seen(rt.id, m.playerID, msg.RequestID) {
			rt.log.Debug("duplicate action dropped",
				zap.String("player_id", m.playerID),
				zap.String("request_id", msg.RequestID))
			return
		}
		ok := rt.mutate(m, func() error {
			return rt.table.ApplyAction(m.playerID, msg.Action, msg.Amount)
		})
		if ok {
			rt.reg.tracker.Record(rt.id, m.playerID, msg.RequestID)
		}

	case protocol.StartGame:
		rt.mutate(m, rt.table.StartHand)

	case protocol.Chat:
		rt.broadcast(protocol.MustEncode(protocol.TypeChat, protocol.ChatMessage{
			PlayerID:  m.playerID,
			Message:   msg.Message,
			Timestamp: time.Now().UnixMilli(),
		}))

	case protocol.Ping:
		m.conn.Send(protocol.MustEncode(protocol.TypePong, protocol.Pong{Timestamp: time.Now().UnixMilli()}))

	default:
		rt.sendError(m, protocol.ErrUnknownType.Error())
	}
}

func (rt *tableRuntime) timeout(turn turnKey) {
	if turn != rt.turn || rt.table.State().Status != models.StatusPlaying {
		return
	}
	playerID, action, ok := rt.table.TimeoutAction()
	if !ok {
		return
	}

	name := playerID
	if p := rt.table.State().PlayerByID(playerID); p != nil {
		name = p.DisplayName
	}
	rt.log.Info("action timeout", zap.String("player_id", playerID), zap.String("action", string(action)))
	rt.notice(playerID, fmt.Sprintf("%s ran out of time", name))
	rt.mutate(nil, func() error {
		return rt.table.ApplyAction(playerID, action, 0)
	})
}

func (rt *tableRuntime) startNextHand(hand int) {
	state := rt.table.State()
	if state.HandNumber != hand || state.Status != models.StatusFinished {
		return
	}
	if !rt.table.CanStartHand() {
		rt.table.Idle()
		rt.notice("", "Waiting for players")
		rt.flush()
		return
	}
	rt.mutate(nil, rt.table.StartHand)
}

// mutate runs op against the table and broadcasts the result. Rule
// violations go back to origin only; a broken deck aborts the hand.
func (rt *tableRuntime) mutate(origin *member, op func() error) bool {
	err := op()
	switch {
	case err == nil:
		rt.flush()
		return true
	case errors.Is(err, models.ErrDeckExhausted):
		rt.log.Error("invariant violated, aborting hand",
			zap.Int("hand_number", rt.table.State().HandNumber),
			zap.Error(err))
		rt.table.AbortHand()
		rt.notice("", "Hand aborted, bets returned")
		rt.flush()
		return false
	default:
		rt.pending = nil
		if !engine.IsValidationError(err) {
			rt.log.Warn("table operation failed", zap.Error(err))
		}
		if origin != nil {
			rt.sendError(origin, err.Error())
		}
		return false
	}
}

// flush publishes one mutation: queued notices as system chat, then one
// gameState per connection, then a snapshot for the store.
func (rt *tableRuntime) flush() {
	now := time.Now().UnixMilli()
	for _, ev := range rt.pending {
		rt.broadcast(protocol.MustEncode(protocol.TypeChat, protocol.ChatMessage{
			PlayerID:  protocol.SystemPlayerID,
			Message:   ev.Message,
			Timestamp: now,
		}))
	}
	rt.pending = nil

	rt.armTimers()
	rt.seq++
	state := rt.table.State()
	for connID, m := range rt.conns {
		data := protocol.MustEncode(protocol.TypeGameState, protocol.NewGameState(state, m.playerID, rt.seq, rt.deadline))
		if !m.conn.Send(data) {
			rt.log.Warn("state dropped for slow connection",
				zap.String("conn_id", connID),
				zap.Uint64("seq", rt.seq))
		}
	}

	snap, err := store.NewSnapshot(state, rt.seq)
	if err != nil {
		rt.log.Error("failed to build snapshot", zap.Error(err))
	} else {
		rt.reg.recorder.RecordSnapshot(snap)
	}
	if state.Status == models.StatusFinished && rt.recordedHand != state.HandNumber {
		rt.recordedHand = state.HandNumber
		rt.reg.recorder.RecordHand(store.NewHandResult(state))
	}
}

func (rt *tableRuntime) armTimers() {
	state := rt.table.State()

	if state.Status == models.StatusPlaying && rt.reg.cfg.ActionTimeout > 0 {
		turn := turnKey{hand: state.HandNumber, street: state.Street, seat: state.CurrentSeat}
		if turn != rt.turn || rt.actionTimer == nil {
			rt.stopActionTimer()
			rt.turn = turn
			rt.deadline = time.Now().Add(rt.reg.cfg.ActionTimeout)
			rt.actionTimer = time.AfterFunc(rt.reg.cfg.ActionTimeout, func() {
				rt.submit(timeoutCmd{turn: turn})
			})
		}
	} else {
		rt.stopActionTimer()
		rt.turn = turnKey{}
	}

	if state.Status == models.StatusFinished && rt.nextHandFor != state.HandNumber {
		rt.nextHandFor = state.HandNumber
		hand := state.HandNumber
		if rt.nextHand != nil {
			rt.nextHand.Stop()
		}
		rt.nextHand = time.AfterFunc(rt.reg.cfg.HandEndDelay, func() {
			rt.submit(nextHandCmd{hand: hand})
		})
	}
}

func (rt *tableRuntime) stopActionTimer() {
	if rt.actionTimer != nil {
		rt.actionTimer.Stop()
		rt.actionTimer = nil
	}
	rt.deadline = time.Time{}
}

func (rt *tableRuntime) notice(playerID, message string) {
	rt.pending = append(rt.pending, models.Event{
		Event:    models.EventNotice,
		TableID:  rt.id,
		PlayerID: playerID,
		Message:  message,
	})
}

func (rt *tableRuntime) broadcast(data []byte) {
	for _, m := range rt.conns {
		m.conn.Send(data)
	}
}

func (rt *tableRuntime) sendError(m *member, message string) {
	m.conn.Send(protocol.MustEncode(protocol.TypeError, protocol.ErrorMessage{Message: message}))
}

func (rt *tableRuntime) closeAll(code int, reason string) {
	for connID, m := range rt.conns {
		m.conn.Close(code, reason)
		delete(rt.conns, connID)
	}
	rt.byPlayer = make(map[string]string)
}

func (rt *tableRuntime) stop(reason string) {
	rt.stopActionTimer()
	if rt.nextHand != nil {
		rt.nextHand.Stop()
	}
	rt.reg.tracker.ForgetTable(rt.id)
	rt.reg.forget(rt.id, rt)
	rt.stopped = true
	rt.log.Info("table closed", zap.String("reason", reason))
}

func (rt *tableRuntime) snapshotInfo() TableInfo {
	state := rt.table.State()
	return TableInfo{
		TableID:     rt.id,
		Status:      string(state.Status),
		HandNumber:  state.HandNumber,
		Players:     len(state.Players),
		Connections: len(rt.conns),
		State:       protocol.NewGameState(state, "", rt.seq, rt.deadline),
	}
}
