// Package lock serializes finalization of a movement across requests and,
// with Redis, across server replicas.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Locker hands out exclusive locks by key. Obtain blocks until the lock is
// held or ctx is done.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Local is an in-process keyed mutex.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{locks: map[string]*localEntry{}}
}

// Obtain waits for key to be free.
func (l *Local) Obtain(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return &localLock{l: l, key: key, e: e}, nil
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}
}

func (l *Local) unref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

type localLock struct {
	l    *Local
	key  string
	e    *localEntry
	once sync.Once
}

func (k *localLock) Release(context.Context) error {
	k.once.Do(func() {
		<-k.e.ch
		k.l.unref(k.key, k.e)
	})
	return nil
}

// Redis locks through bsm/redislock. Locks expire after TTL so a crashed
// holder cannot block finalization forever.
type Redis struct {
	client *redislock.Client
	TTL    time.Duration
	Retry  time.Duration
}

// DefaultTTL bounds how long one finalization may hold its lock.
const DefaultTTL = 2 * time.Minute

// NewRedis connects to the Redis server at url (redis://host:port/db).
func NewRedis(ctx context.Context, url string) (*Redis, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisClient(rdb), rdb, nil
}

// NewRedisClient returns a Redis locker on an existing client.
func NewRedisClient(rdb redis.UniversalClient) *Redis {
	return &Redis{client: redislock.New(rdb), TTL: DefaultTTL, Retry: 100 * time.Millisecond}
}

// Obtain retries until the lock is free or ctx is done.
func (r *Redis) Obtain(ctx context.Context, key string) (Lock, error) {
	l, err := r.client.Obtain(ctx, "inventar:"+key, r.TTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.Retry),
	})
	if err != nil {
		return nil, fmt.Errorf("obtaining lock %s: %w", key, err)
	}
	return l, nil
}
