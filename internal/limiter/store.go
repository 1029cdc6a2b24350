// Package limiter implements the Limit Gate and Counter Store: the
// rate/cost check performed before a request reaches an upstream provider,
// and the bucketed atomic counters it checks against. Grounded on the
// sharded in-memory + pluggable-Redis pattern already used by
// routers/round_robin_store.go and internal/router/redis_scripts.go for the
// router's own distributed counters, generalized here to the spec's
// CounterKey{scope,dimension,bucket} shape.
package limiter

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opengw/llmgateway/internal/canon"
)

// Store is the Counter Store contract (C6): atomic per-key add/get, plus a
// sweep hook for bucket garbage collection. Implementations must make Add
// linearizable per key; ordering across different keys is not guaranteed.
type Store interface {
	Add(ctx context.Context, key canon.CounterKey, delta float64) (float64, error)
	Get(ctx context.Context, key canon.CounterKey) (float64, error)
	Sweep(ctx context.Context, now time.Time) error
}

const shardCount = 32

// MemoryStore is a sharded, per-shard-locked in-memory Counter Store.
// Counters are monotonic within a bucket except via Sweep, matching the
// spec's invariant.
type MemoryStore struct {
	shards [shardCount]*shard
}

type shard struct {
	mu     sync.Mutex
	values map[string]bucketedValue
}

type bucketedValue struct {
	key   canon.CounterKey
	value float64
}

// NewMemoryStore constructs a ready-to-use in-memory counter store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{values: make(map[string]bucketedValue)}
	}
	return s
}

func (s *MemoryStore) shardFor(k canon.CounterKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k.String()))
	return s.shards[h.Sum32()%shardCount]
}

// Add atomically increments the counter for key by delta and returns the
// new value. Safe for concurrent use across goroutines; a given key is only
// ever touched under its shard's lock.
func (s *MemoryStore) Add(_ context.Context, key canon.CounterKey, delta float64) (float64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	k := key.String()
	v := sh.values[k]
	v.key = key
	v.value += delta
	sh.values[k] = v
	return v.value, nil
}

// Get returns the current value for key, or 0 if never written.
func (s *MemoryStore) Get(_ context.Context, key canon.CounterKey) (float64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.values[key.String()].value, nil
}

// Sweep drops buckets whose Bucket string is older than the current bucket
// for its scope, bounding memory growth. It is safe to call concurrently
// with Add/Get; a counter being swept concurrently with an Add may survive
// one extra sweep cycle, which is acceptable since buckets are advisory.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) error {
	currentHour := BucketFor(canon.ScopeRateHourly, now)
	currentDay := BucketFor(canon.ScopeCostDaily, now)
	currentMonth := BucketFor(canon.ScopeCostMonthly, now)

	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, v := range sh.values {
			var current string
			switch v.key.Scope {
			case canon.ScopeRateHourly:
				current = currentHour
			case canon.ScopeCostDaily:
				current = currentDay
			case canon.ScopeCostMonthly:
				current = currentMonth
			default:
				continue // cost_total has no bucket, never swept
			}
			if v.key.Bucket != "" && v.key.Bucket < current {
				delete(sh.values, k)
			}
		}
		sh.mu.Unlock()
	}
	return nil
}

// BucketFor truncates now (UTC) into the bucket string for scope, per the
// spec's bucket format: "YYYY-MM-DD-HH" hourly, "YYYY-MM-DD" daily,
// "YYYY-MM" monthly, empty for cost_total.
func BucketFor(scope canon.CounterScope, now time.Time) string {
	u := now.UTC()
	switch scope {
	case canon.ScopeRateHourly:
		return u.Format("2006-01-02-15")
	case canon.ScopeCostDaily:
		return u.Format("2006-01-02")
	case canon.ScopeCostMonthly:
		return u.Format("2006-01")
	case canon.ScopeCostTotal:
		return ""
	default:
		return u.Format("2006-01-02-15")
	}
}

// RedisStore is a Redis-backed Counter Store for multi-instance deployments,
// using INCRBYFLOAT for atomic, linearizable-per-key updates — the
// floating-point analogue of the HINCRBY pattern in
// internal/router/redis_scripts.go's recordSuccessScript.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed counter store. ttl bounds how long a
// bucket's key survives; it should comfortably exceed the bucket's natural
// lifetime (e.g. 48h for hourly buckets) so Sweep is advisory, not required
// for correctness.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisStore{client: client, prefix: "llmux:limiter:", ttl: ttl}
}

func (r *RedisStore) redisKey(key canon.CounterKey) string {
	return r.prefix + key.String()
}

// Add issues INCRBYFLOAT then refreshes the TTL in a pipeline, so the
// increment and the expiry reset are sent in one round trip without needing
// a Lua script for this simple case.
func (r *RedisStore) Add(ctx context.Context, key canon.CounterKey, delta float64) (float64, error) {
	rk := r.redisKey(key)
	pipe := r.client.Pipeline()
	incr := pipe.IncrByFloat(ctx, rk, delta)
	pipe.Expire(ctx, rk, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Get reads the current value, returning 0 for an unset key.
func (r *RedisStore) Get(ctx context.Context, key canon.CounterKey) (float64, error) {
	val, err := r.client.Get(ctx, r.redisKey(key)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// Sweep is a no-op for RedisStore: TTLs already expire stale buckets.
func (r *RedisStore) Sweep(_ context.Context, _ time.Time) error {
	return nil
}
