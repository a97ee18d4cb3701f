package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes writers of a single configuration.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex. Entries are dropped once no
// goroutine holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*lockEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-entry.ch
				l.release(key, entry)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lease-based lock shared by every API replica.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 50 * time.Millisecond}
}

// NewRedisClient builds the client used by RedisLocker.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("deployassist:lock:%s", key)
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release with a fresh context so a cancelled request still frees the lease.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, r.client, []string{lockKey}, token).Err()
		})
	}, nil
}
