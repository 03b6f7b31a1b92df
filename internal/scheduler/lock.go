package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes a named job across process replicas.
type Locker interface {
	// Acquire takes the named lock for at most ttl. It returns false
	// when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release frees the named lock if this locker still holds it.
	Release(ctx context.Context, name string) error
}

const lockKeyPrefix = "goalcast:job-lock:"

// releaseScript deletes the lock only when the stored token is ours, so a
// run that outlived its ttl cannot free a lock another replica re-took.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX on a shared Redis.
type RedisLocker struct {
	client *redis.Client
	token  string
}

// NewRedisLocker creates a locker with a per-process holder token.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, token: uuid.NewString()}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, lockKeyPrefix+name, l.token, ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, name string) error {
	return releaseScript.Run(ctx, l.client, []string{lockKeyPrefix + name}, l.token).Err()
}

// LocalLocker is the single-process fallback used when Redis is not
// configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time)}
}

func (l *LocalLocker) Acquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if expires, ok := l.held[name]; ok && time.Now().Before(expires) {
		return false, nil
	}
	l.held[name] = time.Now().Add(ttl)
	return true, nil
}

func (l *LocalLocker) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	return nil
}
