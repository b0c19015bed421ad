package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 5 * time.Second
)

type job struct {
	snap *Snapshot
	hand *HandResult
}

// Async feeds a Mirror from a bounded queue on its own goroutine. Records
// arriving while the queue is full are dropped and counted.
type Async struct {
	mirror  Mirror
	log     *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan job
	done   chan struct{}

	dropped atomic.Int64
}

func NewAsync(mirror Mirror, log *zap.Logger, queueSize int, timeout time.Duration) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	a := &Async{
		mirror:  mirror,
		log:     log.Named("store"),
		timeout: timeout,
		queue:   make(chan job, queueSize),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) RecordSnapshot(snap Snapshot) {
	a.enqueue(job{snap: &snap})
}

func (a *Async) RecordHand(hand HandResult) {
	a.enqueue(job{hand: &hand})
}

func (a *Async) enqueue(j job) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- j:
	default:
		n := a.dropped.Add(1)
		a.log.Warn("persistence queue full, record dropped", zap.Int64("dropped_total", n))
	}
}

// Dropped is the number of records lost to a full queue.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.queue {
		a.write(j)
	}
}

func (a *Async) write(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	switch {
	case j.snap != nil:
		if err := a.mirror.SaveSnapshot(ctx, *j.snap); err != nil {
			a.log.Error("failed to save snapshot",
				zap.String("table_id", j.snap.TableID),
				zap.Uint64("seq", j.snap.Seq),
				zap.Error(err))
		}
	case j.hand != nil:
		if err := a.mirror.SaveHand(ctx, *j.hand); err != nil {
			a.log.Error("failed to save hand",
				zap.String("table_id", j.hand.TableID),
				zap.Int("hand_number", j.hand.HandNumber),
				zap.Error(err))
		}
	}
}

// Close stops accepting records and waits for the queue to drain.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}
