package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/readiness/internal/resilience"
	"github.com/pitabwire/readiness/model"
)

// IdempotencyStore deduplicates retried transitions.
// The key format is "idem:{submissionId}:{key}".
type IdempotencyStore interface {
	// Check looks up a previous result by key. If the key exists and the
	// input hash matches, it returns the cached result. If the key exists
	// but the hash differs, it returns a CONFLICT error.
	Check(ctx context.Context, key string, inputHash string) (result *TransitionResult, found bool, err error)

	// Store saves a transition result keyed by the idempotency key with a TTL.
	Store(ctx context.Context, key string, inputHash string, result TransitionResult, ttl time.Duration) error
}

// idempotencyEntry is the stored value for an idempotency key.
type idempotencyEntry struct {
	InputHash string           `json:"input_hash"`
	Result    TransitionResult `json:"result"`
}

// --- MemoryIdempotencyStore ---

// MemoryIdempotencyStore is an in-memory IdempotencyStore with TTL support.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	now     func() time.Time
}

type memEntry struct {
	data      idempotencyEntry
	expiresAt time.Time
}

// NewMemoryIdempotencyStore creates a new in-memory idempotency store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

// Check looks up a cached result. Returns a conflict error if the input hash differs.
func (s *MemoryIdempotencyStore) Check(_ context.Context, key string, inputHash string) (*TransitionResult, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	if entry.data.InputHash != inputHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used with different input", key),
		)
	}

	result := entry.data.Result
	result.Submission = result.Submission.Clone()
	return &result, true, nil
}

// Store saves a result with TTL.
func (s *MemoryIdempotencyStore) Store(_ context.Context, key string, inputHash string, result TransitionResult, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result.Submission = result.Submission.Clone()
	s.entries[key] = &memEntry{
		data: idempotencyEntry{
			InputHash: inputHash,
			Result:    result,
		},
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Ping always succeeds.
func (s *MemoryIdempotencyStore) Ping(context.Context) error { return nil }

// Len returns the number of entries (including expired ones). For testing.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// --- RedisIdempotencyStore ---

// RedisIdempotencyStore is a Redis-backed IdempotencyStore with TTL.
type RedisIdempotencyStore struct {
	client redis.Cmdable
}

// NewRedisIdempotencyStore creates a new Redis-backed idempotency store.
func NewRedisIdempotencyStore(client redis.Cmdable) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Check looks up a cached result in Redis. Returns a conflict error if the input hash differs.
func (s *RedisIdempotencyStore) Check(ctx context.Context, key string, inputHash string) (*TransitionResult, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var entry idempotencyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal idempotency entry %q: %w", key, err)
	}

	if entry.InputHash != inputHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used with different input", key),
		)
	}

	return &entry.Result, true, nil
}

// Store saves a result in Redis with TTL.
func (s *RedisIdempotencyStore) Store(ctx context.Context, key string, inputHash string, result TransitionResult, ttl time.Duration) error {
	data, err := json.Marshal(idempotencyEntry{
		InputHash: inputHash,
		Result:    result,
	})
	if err != nil {
		return fmt.Errorf("marshal idempotency entry: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// FormatIdempotencyKey builds the standard idempotency key.
func FormatIdempotencyKey(submissionID, key string) string {
	return fmt.Sprintf("idem:%s:%s", submissionID, key)
}

// hashRequest produces a deterministic hash of the caller-controlled fields
// of a transition request. At is excluded so a retry stamped later still
// matches.
func hashRequest(req TransitionRequest) string {
	data, _ := json.Marshal(struct {
		Action  model.Action `json:"action"`
		ActorID string       `json:"actor_id"`
		Role    model.Role   `json:"actor_role"`
		Comment string       `json:"comment"`
	}{req.Action, req.ActorID, req.ActorRole, req.Comment})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// --- GuardedIdempotencyStore ---

// GuardedIdempotencyStore fails fast while its breaker is open so a
// struggling remote store is not waited on for every transition. Typed
// refusals such as CONFLICT do not count as failures.
type GuardedIdempotencyStore struct {
	next    IdempotencyStore
	breaker *resilience.Breaker
}

// NewGuardedIdempotencyStore wraps next with breaker.
func NewGuardedIdempotencyStore(next IdempotencyStore, breaker *resilience.Breaker) *GuardedIdempotencyStore {
	return &GuardedIdempotencyStore{next: next, breaker: breaker}
}

// Check delegates to the wrapped store unless the breaker is open.
func (s *GuardedIdempotencyStore) Check(ctx context.Context, key string, inputHash string) (result *TransitionResult, found bool, err error) {
	err = s.breaker.Do(func() error {
		var inner error
		result, found, inner = s.next.Check(ctx, key, inputHash)
		return inner
	}, infrastructureFailure)
	if errors.Is(err, resilience.ErrOpen) {
		return nil, false, fmt.Errorf("idempotency store: %w", err)
	}
	return result, found, err
}

// Store delegates to the wrapped store unless the breaker is open.
func (s *GuardedIdempotencyStore) Store(ctx context.Context, key string, inputHash string, result TransitionResult, ttl time.Duration) error {
	err := s.breaker.Do(func() error {
		return s.next.Store(ctx, key, inputHash, result, ttl)
	}, infrastructureFailure)
	if errors.Is(err, resilience.ErrOpen) {
		return fmt.Errorf("idempotency store: %w", err)
	}
	return err
}

// Ping reports the breaker state before probing the wrapped store.
func (s *GuardedIdempotencyStore) Ping(ctx context.Context) error {
	if err := s.breaker.Allow(); err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	if p, ok := s.next.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// infrastructureFailure reports whether err is an outage rather than a
// typed refusal.
func infrastructureFailure(err error) bool {
	return model.ErrorCode(err) == ""
}
