package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// stubLockClient implements LockClient in memory.
type stubLockClient struct {
	mu   sync.Mutex
	keys map[string]string
}

func newStubLockClient() *stubLockClient {
	return &stubLockClient{keys: map[string]string{}}
}

func (s *stubLockClient) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.keys[key]; held {
		return redis.NewBoolResult(false, nil)
	}
	s.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (s *stubLockClient) compareAndDelete(key string, token interface{}) *redis.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] == token {
		delete(s.keys, key)
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (s *stubLockClient) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return s.compareAndDelete(keys[0], args[0])
}

func (s *stubLockClient) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return s.compareAndDelete(keys[0], args[0])
}

func (s *stubLockClient) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.Eval(ctx, script, keys, args...)
}

func (s *stubLockClient) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.EvalSha(ctx, sha1, keys, args...)
}

func (s *stubLockClient) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (s *stubLockClient) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	client := newStubLockClient()
	locker := NewRedisLocker(client, "test:lock", time.Minute)
	ctx := context.Background()

	ok, err := locker.TryAcquire(ctx, "job")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}

	other := NewRedisLocker(client, "test:lock", time.Minute)
	ok, err = other.TryAcquire(ctx, "job")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected acquire to fail while lease is held")
	}

	// A non-holder releasing must not drop the lease.
	other.Release(ctx, "job")
	if _, held := client.keys["test:lock:job"]; !held {
		t.Fatal("expected lease to survive a non-holder release")
	}

	locker.Release(ctx, "job")
	ok, err = other.TryAcquire(ctx, "job")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected acquire to succeed after release")
	}
}

func TestRedisLockerConcurrentJobs(t *testing.T) {
	// Both cron jobs fire at the same instant when their schedules align, each
	// in its own goroutine against the shared locker.
	locker := NewRedisLocker(newStubLockClient(), "test:lock", time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, key := range []string{lockKeyCycleReset, lockKeyLapseCheck} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ok, err := locker.TryAcquire(ctx, key)
				if err != nil {
					t.Errorf("unexpected error acquiring %s: %v", key, err)
					return
				}
				if !ok {
					t.Errorf("expected to acquire %s", key)
					return
				}
				locker.Release(ctx, key)
			}
		}(key)
	}
	wg.Wait()
}
