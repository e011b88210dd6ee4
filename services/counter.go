package services

import (
	"context"
	"os"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
)

// CounterStore tracks attempt counts per bucket key inside a fixed decay
// window. TryAcquire is the atomicity boundary: concurrent calls for the same
// key must never observe the same pre-increment count.
type CounterStore interface {
	// TryAcquire increments the counter for key, creating it with expiry
	// decay when absent, and reports whether the attempt is admitted. The
	// increment happens even when the attempt is denied.
	TryAcquire(ctx context.Context, key string, maxAttempts int, decay time.Duration) (bool, error)

	// Attempts returns the current count for key, 0 when absent.
	Attempts(ctx context.Context, key string) (int, error)

	// Remaining returns max(0, maxAttempts - Attempts(key)).
	Remaining(ctx context.Context, key string, maxAttempts int) (int, error)

	// AvailableIn returns the time until the window for key resets, 0 when
	// no entry exists.
	AvailableIn(ctx context.Context, key string) (time.Duration, error)
}

// CounterService selects the backing store: redis in production, the in-memory
// store when RATE_LIMIT_STORE=memory.
type CounterService struct {
	appContext.DefaultService

	backend string
	store   CounterStore
}

const COUNTER_SVC = "counter_svc"

func (svc CounterService) Id() string {
	return COUNTER_SVC
}

func (svc *CounterService) Configure(ctx *appContext.Context) error {
	svc.backend = os.Getenv("RATE_LIMIT_STORE")
	if svc.backend == "" {
		svc.backend = "redis"
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *CounterService) Start() error {
	switch svc.backend {
	case "memory":
		svc.store = NewMemoryCounterStore()
	default:
		redisSvc := svc.Service(REDIS_SVC).(*RedisService)
		svc.store = &RedisCounterStore{redis: redisSvc}
	}

	log.WithField("backend", svc.backend).Info("Attempt counter store started")
	return nil
}

func (svc *CounterService) Store() CounterStore {
	return svc.store
}

// RedisCounterStore keeps one redis string per bucket key. INCR decides the
// count, EXPIRE NX pins the window at creation.
type RedisCounterStore struct {
	redis *RedisService
}

func (s *RedisCounterStore) TryAcquire(ctx context.Context, key string, maxAttempts int, decay time.Duration) (bool, error) {
	count, err := s.redis.IncrWithTTL(ctx, key, decay)
	if err != nil {
		return false, err
	}
	return count <= int64(maxAttempts), nil
}

func (s *RedisCounterStore) Attempts(ctx context.Context, key string) (int, error) {
	count, err := s.redis.GetInt(ctx, key)
	return int(count), err
}

func (s *RedisCounterStore) Remaining(ctx context.Context, key string, maxAttempts int) (int, error) {
	attempts, err := s.Attempts(ctx, key)
	if err != nil {
		return 0, err
	}
	if remaining := maxAttempts - attempts; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (s *RedisCounterStore) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.redis.TTL(ctx, key)
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// MemoryCounterStore is a mutex-guarded fixed-window counter map. Entries are
// pruned lazily on access and by Cleanup.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*memoryCounter
	now     func() time.Time
}

type memoryCounter struct {
	count     int
	expiresAt time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		entries: make(map[string]*memoryCounter),
		now:     time.Now,
	}
}

func (s *MemoryCounterStore) TryAcquire(_ context.Context, key string, maxAttempts int, decay time.Duration) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.expiresAt.After(now) {
		entry = &memoryCounter{expiresAt: now.Add(decay)}
		s.entries[key] = entry
	}

	entry.count++
	return entry.count <= maxAttempts, nil
}

func (s *MemoryCounterStore) Attempts(_ context.Context, key string) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.expiresAt.After(now) {
		return 0, nil
	}
	return entry.count, nil
}

func (s *MemoryCounterStore) Remaining(ctx context.Context, key string, maxAttempts int) (int, error) {
	attempts, err := s.Attempts(ctx, key)
	if err != nil {
		return 0, err
	}
	if remaining := maxAttempts - attempts; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (s *MemoryCounterStore) AvailableIn(_ context.Context, key string) (time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.expiresAt.After(now) {
		return 0, nil
	}
	return entry.expiresAt.Sub(now), nil
}

// Cleanup drops expired entries.
func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if !entry.expiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}
