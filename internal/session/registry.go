package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"poker-table/engine"
	"poker-table/internal/locks"
	"poker-table/internal/protocol"
	"poker-table/internal/store"
	"poker-table/models"
)

var (
	ErrRegistryClosed   = errors.New("registry closed")
	ErrTableUnavailable = errors.New("table is hosted elsewhere")
	ErrTableNotFound    = errors.New("table not found")
)

const joinAttempts = 3

// Conn is a registered client connection. Send must not block; it reports
// false when the message could not be queued.
type Conn interface {
	ID() string
	Send(data []byte) bool
	Close(code int, reason string)
}

type Config struct {
	Table          models.TableConfig
	ActionTimeout  time.Duration
	HandEndDelay   time.Duration
	ShortCallAllIn bool
	LockTTL        time.Duration

	// NewEngineOptions overrides the engine options of each new table.
	NewEngineOptions func(tableID string) engine.Options
}

// TableInfo is a point-in-time view of a live table. State is the public
// gameState, without hole cards.
type TableInfo struct {
	TableID     string             `json:"tableId"`
	Status      string             `json:"status"`
	HandNumber  int                `json:"handNumber"`
	Players     int                `json:"players"`
	Connections int                `json:"connections"`
	State       protocol.GameState `json:"state"`
}

// Registry owns every table hosted by this process. Each table runs on its
// own goroutine; the registry only routes to it.
type Registry struct {
	cfg      Config
	log      *zap.Logger
	recorder store.Recorder
	locks    *locks.LockManager
	tracker  *ActionTracker

	mu     sync.Mutex
	tables map[string]*tableRuntime
	closed bool
	wg     sync.WaitGroup
}

// NewRegistry builds a registry. recorder may be nil to disable mirroring and
// lockManager may be nil when tables are not shared between processes.
func NewRegistry(cfg Config, recorder store.Recorder, lockManager *locks.LockManager, log *zap.Logger) *Registry {
	if recorder == nil {
		recorder = store.Discard{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = locks.DefaultLockTTL
	}
	if cfg.NewEngineOptions == nil {
		shortCall := cfg.ShortCallAllIn
		cfg.NewEngineOptions = func(string) engine.Options {
			return engine.Options{
				Rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
				ShortCallAllIn: shortCall,
			}
		}
	}
	return &Registry{
		cfg:      cfg,
		log:      log.Named("session"),
		recorder: recorder,
		locks:    lockManager,
		tracker:  NewActionTracker(5 * time.Minute),
		tables:   make(map[string]*tableRuntime),
	}
}

// Join seats playerID at tableID, creating the table on first use, and
// registers conn for its broadcasts. A player already connected elsewhere
// loses the older connection.
func (r *Registry) Join(ctx context.Context, tableID, playerID, name string, conn Conn) error {
	var lastErr error
	for attempt := 0; attempt < joinAttempts; attempt++ {
		rt, err := r.runtimeFor(ctx, tableID)
		if err != nil {
			return err
		}

		reply := make(chan error, 1)
		if !rt.submit(joinCmd{playerID: playerID, name: name, conn: conn, reply: reply}) {
			lastErr = fmt.Errorf("table %s closed during join", tableID)
			continue
		}

		select {
		case err := <-reply:
			return err
		case <-rt.done:
			// The reply is sent before done closes, so check it once more.
			select {
			case err := <-reply:
				return err
			default:
			}
			lastErr = fmt.Errorf("table %s closed during join", tableID)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// Leave unregisters a connection. Unknown connections are ignored.
func (r *Registry) Leave(tableID, connID string) {
	if rt := r.lookup(tableID); rt != nil {
		rt.submit(leaveCmd{connID: connID})
	}
}

// Dispatch queues an inbound message from a registered connection.
func (r *Registry) Dispatch(tableID, connID string, msg protocol.Inbound) {
	if rt := r.lookup(tableID); rt != nil {
		rt.submit(messageCmd{connID: connID, msg: msg})
	}
}

func (r *Registry) Table(ctx context.Context, tableID string) (TableInfo, error) {
	rt := r.lookup(tableID)
	if rt == nil {
		return TableInfo{}, ErrTableNotFound
	}
	return rt.info(ctx)
}

// Tables lists live tables ordered by id.
func (r *Registry) Tables(ctx context.Context) []TableInfo {
	r.mu.Lock()
	runtimes := make([]*tableRuntime, 0, len(r.tables))
	for _, rt := range r.tables {
		runtimes = append(runtimes, rt)
	}
	r.mu.Unlock()

	infos := make([]TableInfo, 0, len(runtimes))
	for _, rt := range runtimes {
		info, err := rt.info(ctx)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].TableID < infos[j].TableID })
	return infos
}

// Close disconnects every client and waits for all tables to stop.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	runtimes := make([]*tableRuntime, 0, len(r.tables))
	for _, rt := range r.tables {
		runtimes = append(runtimes, rt)
	}
	r.mu.Unlock()

	for _, rt := range runtimes {
		rt.submit(shutdownCmd{})
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	defer r.tracker.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) lookup(tableID string) *tableRuntime {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tables[tableID]
}

func (r *Registry) runtimeFor(ctx context.Context, tableID string) (*tableRuntime, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if rt, ok := r.tables[tableID]; ok {
		r.mu.Unlock()
		return rt, nil
	}
	r.mu.Unlock()

	var lock *locks.Lock
	if r.locks != nil {
		l, err := r.locks.AcquireLock(ctx, locks.TableKey(tableID), r.cfg.LockTTL)
		if err != nil {
			if rt := r.lookup(tableID); rt != nil {
				return rt, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrTableUnavailable, err)
		}
		lock = l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.tables[tableID] != nil {
		if lock != nil {
			go r.releaseLock(tableID, lock)
		}
		if r.closed {
			return nil, ErrRegistryClosed
		}
		return r.tables[tableID], nil
	}

	rt := newTableRuntime(r, tableID, lock)
	r.tables[tableID] = rt
	r.wg.Add(1)
	go rt.run()
	if lock != nil {
		lock.KeepAlive(context.Background(), func(err error) {
			rt.submit(lockLostCmd{err: err})
		})
	}
	r.log.Info("table opened", zap.String("table_id", tableID))
	return rt, nil
}

// forget drops rt from the registry if it is still the table's runtime.
func (r *Registry) forget(tableID string, rt *tableRuntime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tables[tableID] == rt {
		delete(r.tables, tableID)
	}
}

func (r *Registry) releaseLock(tableID string, lock *locks.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		r.log.Debug("table lock not released", zap.String("table_id", tableID), zap.Error(err))
	}
}
