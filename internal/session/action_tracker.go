package session

import (
	"sync"
	"time"
)

// actionKey scopes a client request id to one player at one table, so two
// clients that happen to pick the same id never shadow each other.
type actionKey struct {
	tableID   string
	playerID  string
	requestID string
}

// ActionTracker remembers the request ids of applied player actions so a
// client that resends after a reconnect does not act twice.
type ActionTracker struct {
	mu      sync.Mutex
	applied map[actionKey]time.Time

	retention time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewActionTracker starts a tracker that forgets requests after retention.
func NewActionTracker(retention time.Duration) *ActionTracker {
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	at := &ActionTracker{
		applied:   make(map[actionKey]time.Time),
		retention: retention,
		stop:      make(chan struct{}),
	}
	go at.sweep()
	return at
}

// Seen reports whether the request was already applied. Requests without an
// id are never deduplicated.
func (at *ActionTracker) Seen(tableID, playerID, requestID string) bool {
	if requestID == "" {
		return false
	}
	at.mu.Lock()
	defer at.mu.Unlock()
	_, ok := at.applied[actionKey{tableID, playerID, requestID}]
	return ok
}

// Record marks the request as applied.
func (at *ActionTracker) Record(tableID, playerID, requestID string) {
	if requestID == "" {
		return
	}
	at.mu.Lock()
	defer at.mu.Unlock()
	at.applied[actionKey{tableID, playerID, requestID}] = time.Now()
}

// ForgetTable drops every request recorded for tableID.
func (at *ActionTracker) ForgetTable(tableID string) int {
	at.mu.Lock()
	defer at.mu.Unlock()
	n := 0
	for key := range at.applied {
		if key.tableID == tableID {
			delete(at.applied, key)
			n++
		}
	}
	return n
}

// Expire removes requests applied before now-age and returns how many went.
func (at *ActionTracker) Expire(age time.Duration) int {
	at.mu.Lock()
	defer at.mu.Unlock()
	cutoff := time.Now().Add(-age)
	n := 0
	for key, appliedAt := range at.applied {
		if appliedAt.Before(cutoff) {
			delete(at.applied, key)
			n++
		}
	}
	return n
}

func (at *ActionTracker) Len() int {
	at.mu.Lock()
	defer at.mu.Unlock()
	return len(at.applied)
}

func (at *ActionTracker) sweep() {
	ticker := time.NewTicker(at.retention)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			at.Expire(at.retention)
		case <-at.stop:
			return
		}
	}
}

func (at *ActionTracker) Stop() {
	at.stopOnce.Do(func() { close(at.stop) })
}
