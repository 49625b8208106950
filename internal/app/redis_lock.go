/**
 * @description
 * Distributed lease lock over Redis used to keep scheduled jobs from running
 * on more than one instance at a time. Acquire is SET NX PX; release compares
 * the lease token before deleting so an expired holder cannot drop a lock it
 * no longer owns.
 */
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockClient is the subset of the Redis API the locker uses. Satisfied by
// *redis.Client and redis.UniversalClient.
type LockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// RedisLocker implements the Locker interface over Redis.
type RedisLocker struct {
	client LockClient
	prefix string
	ttl    time.Duration

	// mu guards tokens: the cron jobs run in separate goroutines and can
	// acquire concurrently.
	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisLocker creates a lease locker. The TTL bounds how long a crashed
// holder can block other instances.
func NewRedisLocker(client LockClient, prefix string, ttl time.Duration) *RedisLocker {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "reelforge:lock"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &RedisLocker{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
		tokens: make(map[string]string),
	}
}

// TryAcquire attempts to take the lease for key. Returns false without error
// when another holder has it.
func (r *RedisLocker) TryAcquire(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil {
		return true, nil
	}

	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.lockKey(key), token, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring scheduler lock %q: %w", key, err)
	}
	if ok {
		r.mu.Lock()
		r.tokens[key] = token
		r.mu.Unlock()
	}
	return ok, nil
}

// Release drops the lease if this instance still holds it.
func (r *RedisLocker) Release(ctx context.Context, key string) {
	if r == nil || r.client == nil {
		return
	}

	r.mu.Lock()
	token, held := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()
	if !held {
		return
	}

	_ = releaseLockScript.Run(ctx, r.client, []string{r.lockKey(key)}, token).Err()
}

func (r *RedisLocker) lockKey(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}
