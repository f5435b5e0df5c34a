package businessflow

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLocker guards the settlement batch against concurrent runs.
// Acquire returns ErrSettlementInProgress when another run holds the lock.
type RunLocker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// localRunLock rejects overlapping runs inside one process
type localRunLock struct {
	held atomic.Bool
}

func (l *localRunLock) Acquire(context.Context) (func(), error) {
	if !l.held.CompareAndSwap(false, true) {
		return nil, ErrSettlementInProgress
	}
	return func() { l.held.Store(false) }, nil
}

// releaseLockScript deletes the key only if it still carries our token
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLocker holds the settlement lock across processes with SET NX PX
type RedisRunLocker struct {
	rc  *redis.Client
	key string
	ttl time.Duration
}

// NewRedisRunLocker creates a redis backed lock. The TTL bounds how long a crashed holder blocks others.
func NewRedisRunLocker(rc *redis.Client, key string, ttl time.Duration) *RedisRunLocker {
	return &RedisRunLocker{rc: rc, key: key, ttl: ttl}
}

func (l *RedisRunLocker) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.rc.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire settlement lock: %w", err)
	}
	if !ok {
		return nil, ErrSettlementInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(ctx, l.rc, []string{l.key}, token).Err(); err != nil {
			log.Printf("settlement: failed to release lock %s: %v", l.key, err)
		}
	}, nil
}

// chainedLocker acquires every lock in order and releases them in reverse
type chainedLocker []RunLocker

func (c chainedLocker) Acquire(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, l := range c {
		release, err := l.Acquire(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
