package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the lock still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisBurstLock struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisBurstLock expires locks after ttl unless the holder extends them,
// so a crashed run cannot block an org forever.
func NewRedisBurstLock(rdb *redis.Client, ttl time.Duration) *RedisBurstLock {
	return &RedisBurstLock{rdb: rdb, ttl: ttl}
}

func (l *RedisBurstLock) Acquire(ctx context.Context, orgID string) (Lease, bool, error) {
	lease := &redisLease{
		rdb:   l.rdb,
		ttl:   l.ttl,
		key:   "burst:" + orgID,
		org:   orgID,
		token: uuid.NewString(),
	}

	ok, err := l.rdb.SetNX(ctx, lease.key, lease.token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return lease, true, nil
}

type redisLease struct {
	rdb   *redis.Client
	ttl   time.Duration
	key   string
	org   string
	token string
}

func (l *redisLease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *redisLease) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		slog.Warn("burst lock release failed", "org_id", l.org, "error", err)
	}
}

// LocalBurstLock is the in-process fallback when Redis is not configured.
type LocalBurstLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalBurstLock() *LocalBurstLock {
	return &LocalBurstLock{held: make(map[string]struct{})}
}

func (l *LocalBurstLock) Acquire(_ context.Context, orgID string) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[orgID]; busy {
		return nil, false, nil
	}
	l.held[orgID] = struct{}{}
	return &localLease{lock: l, org: orgID}, true, nil
}

// localLease never expires; it is held until Release.
type localLease struct {
	lock *LocalBurstLock
	org  string
	once sync.Once
}

func (l *localLease) Extend(context.Context) error { return nil }

func (l *localLease) Release() {
	l.once.Do(func() {
		l.lock.mu.Lock()
		delete(l.lock.held, l.org)
		l.lock.mu.Unlock()
	})
}
