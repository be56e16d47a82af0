package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/pkg/logger"
	"github.com/alem-hub/socialgraph/pkg/retry"
)

// KV is the subset of Cache the relation cache needs.
type KV interface {
	GetString(ctx context.Context, key string) (string, error)
	SetIfVersion(ctx context.Context, key, value string, ttl time.Duration, versionKey, version string) (bool, error)
	DeleteAndBump(ctx context.Context, key, versionKey string, versionTTL time.Duration) error
}

// CacheObserver receives one result label per lookup: hit, miss, error or rejected.
type CacheObserver interface {
	CacheResult(result string)
}

// Cache lookup results reported to the observer.
const (
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// BreakerConfig configures the circuit breaker in front of Redis.
type BreakerConfig struct {
	Name string

	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts. Zero never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the breaker settings used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "redis-relation-cache",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// RelationCacheConfig configures a RelationCache.
type RelationCacheConfig struct {
	// TTL applies to cached edges and to the per-pair version keys.
	TTL time.Duration

	// AbsentTTL applies to cached absences. It is capped at TTL.
	AbsentTTL time.Duration

	Breaker  BreakerConfig
	Observer CacheObserver
	Logger   *logger.Logger
}

// RelationCache implements graph.RelationCache on Redis. Values are "1" for
// an existing edge and "0" for a known absence. Each pair also has a version
// key that Invalidate increments; Fill only writes while the version is the
// one the reader saw before going to the store.
type RelationCache struct {
	kv        KV
	ttl       time.Duration
	absentTTL time.Duration
	breaker   *gobreaker.CircuitBreaker
	observer CacheObserver
	log      *logger.Logger
}

var _ graph.RelationCache = (*RelationCache)(nil)

// NewRelationCache creates a relation cache over kv.
func NewRelationCache(kv KV, cfg RelationCacheConfig) *RelationCache {
	if cfg.TTL <= 0 {
		cfg.TTL = TTLRelation
	}
	if cfg.AbsentTTL <= 0 {
		cfg.AbsentTTL = TTLRelationAbsent
	}
	if cfg.AbsentTTL > cfg.TTL {
		cfg.AbsentTTL = cfg.TTL
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultBreakerConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	log := cfg.Logger.With(logger.Component("relation_cache"))

	threshold := cfg.Breaker.ConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Breaker.Name,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
		// Context cancellation is the caller's doing, not a Redis fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &RelationCache{
		kv:        kv,
		ttl:       cfg.TTL,
		absentTTL: cfg.AbsentTTL,
		breaker:   breaker,
		observer:  cfg.Observer,
		log:       log,
	}
}

// RelationKey builds the cache key for a pair, e.g. "follow:{source}:{target}".
func RelationKey(rel graph.Relation, sourceID, targetID string) string {
	prefix := PrefixFollow
	if rel == graph.RelationLike {
		prefix = PrefixLike
	}
	return prefix + sourceID + ":" + targetID
}

// VersionKey builds the invalidation counter key for a pair.
func VersionKey(rel graph.Relation, sourceID, targetID string) string {
	return PrefixVersion + RelationKey(rel, sourceID, targetID)
}

// Get returns the cached answer. On a miss the pair's current version is
// read as well, so that a later Fill can detect an invalidation.
func (c *RelationCache) Get(ctx context.Context, rel graph.Relation, sourceID, targetID string) (graph.RelationLookup, error) {
	key := RelationKey(rel, sourceID, targetID)
	versionKey := VersionKey(rel, sourceID, targetID)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		v, err := c.kv.GetString(ctx, key)
		switch {
		case err == nil:
			return graph.RelationLookup{Exists: v == "1", Found: v == "1" || v == "0"}, nil
		case !errors.Is(err, ErrCacheMiss):
			return nil, err
		}

		version, err := c.kv.GetString(ctx, versionKey)
		if errors.Is(err, ErrCacheMiss) {
			return graph.RelationLookup{Version: "0"}, nil
		}
		if err != nil {
			return nil, err
		}
		return graph.RelationLookup{Version: version}, nil
	})
	if err != nil {
		return graph.RelationLookup{}, c.fail(err)
	}

	lookup := result.(graph.RelationLookup)
	if lookup.Found {
		c.report(ResultHit)
	} else {
		c.report(ResultMiss)
	}
	return lookup, nil
}

// Fill records a store read taken after a miss that returned version. The
// write is skipped when the pair was invalidated since then.
func (c *RelationCache) Fill(ctx context.Context, rel graph.Relation, sourceID, targetID string, exists bool, version string) error {
	value, ttl := "0", c.absentTTL
	if exists {
		value, ttl = "1", c.ttl
	}
	key := RelationKey(rel, sourceID, targetID)
	versionKey := VersionKey(rel, sourceID, targetID)

	written, err := c.breaker.Execute(func() (interface{}, error) {
		return c.kv.SetIfVersion(ctx, key, value, ttl, versionKey, version)
	})
	if err != nil {
		return c.fail(err)
	}
	if !written.(bool) {
		c.log.Debug("relation cache fill skipped, pair changed during read",
			logger.String("key", key),
		)
	}
	return nil
}

// Invalidate drops the cached answer for a pair and advances its version.
func (c *RelationCache) Invalidate(ctx context.Context, rel graph.Relation, sourceID, targetID string) error {
	key := RelationKey(rel, sourceID, targetID)
	versionKey := VersionKey(rel, sourceID, targetID)

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.kv.DeleteAndBump(ctx, key, versionKey, c.ttl)
	})
	if err != nil {
		return c.fail(err)
	}
	return nil
}

// State reports the breaker state, for health output.
func (c *RelationCache) State() string {
	return c.breaker.State().String()
}

// fail classifies an error: a rejected call is final, anything else from
// Redis may succeed on another attempt.
func (c *RelationCache) fail(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.report(ResultRejected)
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	c.report(ResultError)
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCacheKeyEmpty) || errors.Is(err, ErrCacheInvalidTTL) {
		return err
	}
	return retry.Retryable(err)
}

func (c *RelationCache) report(result string) {
	if c.observer != nil {
		c.observer.CacheResult(result)
	}
}
