// Package lock serializes mining runs per project, in process or across replicas via Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can keep a Redis lock
const DefaultTTL = 10 * time.Minute

var (
	// ErrLocked is returned when the key is already held
	ErrLocked = errors.New("lock held by another run")

	// ErrNotHeld is returned when releasing a lock that expired or was taken over
	ErrNotHeld = errors.New("lock not held")
)

// Release gives a lock back
type Release func(ctx context.Context) error

// Locker hands out non-blocking exclusive locks by key
type Locker interface {
	// TryAcquire takes the lock for key or returns ErrLocked without waiting
	TryAcquire(ctx context.Context, key string) (Release, error)
}

// ProjectKey is the lock key for mining a project
func ProjectKey(projectID string) string {
	return "project:" + projectID
}

// LocalLocker locks within a single process
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process Locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryAcquire implements Locker
func (l *LocalLocker) TryAcquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		err := ErrNotHeld
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
			err = nil
		})
		return err
	}, nil
}

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker locks across processes sharing a Redis instance
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a Locker storing keys under prefix. A ttl of zero or less
// uses DefaultTTL.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// TryAcquire implements Locker
func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (Release, error) {
	redisKey := l.prefix + key
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		result, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		if result == 0 {
			return ErrNotHeld
		}
		return nil
	}, nil
}
