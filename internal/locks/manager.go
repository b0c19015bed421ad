package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrLockTimeout occurs when lock acquisition times out
	ErrLockTimeout = errors.New("timeout acquiring lock")
	// ErrLockNotHeld occurs when trying to release a lock not held by this instance
	ErrLockNotHeld = errors.New("lock not held by this instance")
	// ErrLockAlreadyHeld occurs when lock is already held by another instance
	ErrLockAlreadyHeld = errors.New("lock already held by another instance")
)

const (
	DefaultLockTTL        = 30 * time.Second
	DefaultAcquireTimeout = 5 * time.Second
	DefaultRetryAttempts  = 3
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// LockManager hands out Redis locks owned by this server process.
type LockManager struct {
	redis      redis.UniversalClient
	instanceID string
	log        *zap.Logger
	backoff    func(attempt int) time.Duration
}

// Lock is a held lock. It stays valid until Release or until its TTL lapses
// without an Extend.
type Lock struct {
	key        string
	value      string
	manager    *LockManager
	ttl        time.Duration
	acquiredAt time.Time
	stop       context.CancelFunc
	done       chan struct{}
}

func NewLockManager(redisClient redis.UniversalClient, log *zap.Logger) *LockManager {
	return &LockManager{
		redis:      redisClient,
		instanceID: uuid.New().String(),
		log:        log.Named("locks"),
		backoff:    calculateBackoff,
	}
}

func (lm *LockManager) InstanceID() string {
	return lm.instanceID
}

// TableKey is the ownership key for a table.
func TableKey(tableID string) string {
	return "table:" + tableID + ":owner"
}

// AcquireLock takes key with SET NX PX, retrying with exponential backoff.
func (lm *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if ttl == 0 {
		ttl = DefaultLockTTL
	}

	acquireCtx, cancel := context.WithTimeout(ctx, DefaultAcquireTimeout)
	defer cancel()

	lockValue := fmt.Sprintf("%s:%s", lm.instanceID, uuid.New().String())
	lockKey := "lock:" + key

	var lastErr error
	for attempt := 0; attempt < DefaultRetryAttempts; attempt++ {
		acquired, err := lm.redis.SetNX(acquireCtx, lockKey, lockValue, ttl).Result()
		if err != nil {
			lastErr = fmt.Errorf("redis error: %w", err)
			lm.log.Warn("lock acquire failed", zap.String("key", lockKey), zap.Int("attempt", attempt+1), zap.Error(err))
		} else if acquired {
			lm.log.Debug("lock acquired", zap.String("key", lockKey), zap.Duration("ttl", ttl))
			return &Lock{
				key:        lockKey,
				value:      lockValue,
				manager:    lm,
				ttl:        ttl,
				acquiredAt: time.Now(),
			}, nil
		} else {
			lastErr = ErrLockAlreadyHeld
		}

		if attempt == DefaultRetryAttempts-1 {
			break
		}
		select {
		case <-acquireCtx.Done():
			return nil, ErrLockTimeout
		case <-time.After(lm.backoff(attempt)):
		}
	}

	if lastErr == nil {
		lastErr = ErrLockTimeout
	}
	return nil, lastErr
}

// Release deletes the lock if this instance still holds it.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return ErrLockNotHeld
	}
	if l.stop != nil {
		l.stop()
		<-l.done
	}

	result, err := releaseScript.Run(ctx, l.manager.redis, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == int64(0) {
		return ErrLockNotHeld
	}

	l.manager.log.Debug("lock released", zap.String("key", l.key), zap.Duration("held", time.Since(l.acquiredAt)))
	return nil
}

// Extend resets the lock TTL if this instance still holds it.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if l == nil {
		return ErrLockNotHeld
	}

	result, err := extendScript.Run(ctx, l.manager.redis, []string{l.key}, l.value, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if result == int64(0) {
		return ErrLockNotHeld
	}
	l.ttl = ttl
	return nil
}

// KeepAlive extends the lock every third of its TTL until Release is called
// or ctx ends. onLost runs once if the lock cannot be renewed.
func (l *Lock) KeepAlive(ctx context.Context, onLost func(error)) {
	ctx, l.stop = context.WithCancel(ctx)
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(ctx, l.ttl); err != nil {
					if ctx.Err() != nil {
						return
					}
					l.manager.log.Error("lost lock", zap.String("key", l.key), zap.Error(err))
					if onLost != nil {
						onLost(err)
					}
					return
				}
			}
		}
	}()
}

// Holder returns the value stored under key, or "" when it is free.
func (lm *LockManager) Holder(ctx context.Context, key string) (string, error) {
	value, err := lm.redis.Get(ctx, "lock:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get lock: %w", err)
	}
	return value, nil
}

// calculateBackoff: 500ms, 1s, 2s
func calculateBackoff(attempt int) time.Duration {
	backoff := time.Duration(500*(1<<attempt)) * time.Millisecond
	if backoff > 2*time.Second {
		backoff = 2 * time.Second
	}
	return backoff
}
