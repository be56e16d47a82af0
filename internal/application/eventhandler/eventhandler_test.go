package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/socialgraph/internal/application/command"
	"github.com/alem-hub/socialgraph/internal/application/query"
	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
	"github.com/alem-hub/socialgraph/internal/infrastructure/messaging"
	"github.com/alem-hub/socialgraph/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/socialgraph/pkg/retry"
)

// memCache is a versioned graph.RelationCache with the same fill rules as
// the Redis implementation.
type memCache struct {
	mu            sync.Mutex
	values        map[string]bool
	versions      map[string]int
	errs          []error
	invalidations int
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]bool), versions: make(map[string]int)}
}

func cacheKey(rel graph.Relation, a, b string) string {
	return string(rel) + ":" + a + ":" + b
}

func (c *memCache) Get(_ context.Context, rel graph.Relation, a, b string) (graph.RelationLookup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(rel, a, b)
	if v, ok := c.values[key]; ok {
		return graph.RelationLookup{Exists: v, Found: true}, nil
	}
	return graph.RelationLookup{Version: strconv.Itoa(c.versions[key])}, nil
}

func (c *memCache) Fill(_ context.Context, rel graph.Relation, a, b string, exists bool, version string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(rel, a, b)
	if strconv.Itoa(c.versions[key]) == version {
		c.values[key] = exists
	}
	return nil
}

func (c *memCache) Invalidate(_ context.Context, rel graph.Relation, a, b string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return err
	}
	key := cacheKey(rel, a, b)
	delete(c.values, key)
	c.versions[key]++
	c.invalidations++
	return nil
}

func (c *memCache) cached(rel graph.Relation, a, b string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[cacheKey(rel, a, b)]
	return ok
}

func (c *memCache) invalidated() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

// slowFirstInvalidation holds back the first invalidation it sees, the way a
// retried Redis write lands late.
type slowFirstInvalidation struct {
	*memCache
	once  sync.Once
	delay time.Duration
}

func (s *slowFirstInvalidation) Invalidate(ctx context.Context, rel graph.Relation, a, b string) error {
	s.once.Do(func() { time.Sleep(s.delay) })
	return s.memCache.Invalidate(ctx, rel, a, b)
}

type busStub struct {
	typed map[shared.EventType]int
	all   int
}

func (b *busStub) Subscribe(t shared.EventType, _ shared.EventHandler) error {
	if b.typed == nil {
		b.typed = make(map[shared.EventType]int)
	}
	b.typed[t]++
	return nil
}

func (b *busStub) SubscribeAll(shared.EventHandler) error {
	b.all++
	return nil
}

func TestRelationCacheInvalidator_DropsCachedAnswers(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	require.NoError(t, cache.Fill(ctx, graph.RelationFollow, "a", "b", false, "0"))
	require.NoError(t, cache.Fill(ctx, graph.RelationLike, "a", "b", true, "0"))
	h := NewRelationCacheInvalidator(cache, nil)

	require.NoError(t, h.Handle(shared.NewRelationEvent(shared.EventFollowCreated, "e1", "a", "b", "venue")))
	require.NoError(t, h.Handle(shared.NewRelationEvent(shared.EventLikeRemoved, "e2", "a", "b", "venue")))

	assert.False(t, cache.cached(graph.RelationFollow, "a", "b"))
	assert.False(t, cache.cached(graph.RelationLike, "a", "b"))
	assert.Equal(t, 2, cache.invalidated())
}

func TestRelationCacheInvalidator_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	cache.errs = []error{retry.Retryable(errors.New("timeout"))}
	require.NoError(t, cache.Fill(ctx, graph.RelationFollow, "a", "b", false, "0"))
	h := NewRelationCacheInvalidator(cache, nil)

	require.NoError(t, h.Handle(shared.NewRelationEvent(shared.EventFollowCreated, "e1", "a", "b", "user")))

	assert.False(t, cache.cached(graph.RelationFollow, "a", "b"))
	assert.Equal(t, 1, cache.invalidated())
}

func TestRelationCacheInvalidator_SwallowsPermanentFailures(t *testing.T) {
	cache := newMemCache()
	cache.errs = []error{errors.New("breaker open")}
	h := NewRelationCacheInvalidator(cache, nil)

	assert.NoError(t, h.Handle(shared.NewRelationEvent(shared.EventFollowRemoved, "e1", "a", "b", "user")))
	assert.Zero(t, cache.invalidated())
}

func TestRelationCacheInvalidator_IgnoresOtherEvents(t *testing.T) {
	cache := newMemCache()
	h := NewRelationCacheInvalidator(cache, nil)
	assert.NoError(t, h.Handle(shared.NewAccountCreatedEvent("a", "alice")))
	assert.Zero(t, cache.invalidated())
}

func TestRelationCacheInvalidator_Register(t *testing.T) {
	bus := &busStub{}
	require.NoError(t, NewRelationCacheInvalidator(newMemCache(), nil).Register(bus))
	assert.Len(t, bus.typed, 4)
	assert.Zero(t, bus.all)
}

func newTestAccount(t *testing.T, store *memory.Store, n int) *graph.Account {
	t.Helper()
	acc, err := graph.NewAccount(graph.NewAccountParams{
		ID:           uuid.NewString(),
		Username:     fmt.Sprintf("user_%d", n),
		PasswordHash: "hash",
		DisplayName:  fmt.Sprintf("User %d", n),
	})
	require.NoError(t, err)
	require.NoError(t, store.Repositories().Accounts.Create(context.Background(), acc))
	return acc
}

// A late, out-of-order delivery of follow.created after the unfollow must not
// make the cache claim an edge the store no longer has.
func TestRelationCacheInvalidator_LateDeliveryOnAsyncBus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a, b := newTestAccount(t, store, 1), newTestAccount(t, store, 2)

	cache := newMemCache()
	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	defer bus.Close()
	slow := &slowFirstInvalidation{memCache: cache, delay: 50 * time.Millisecond}
	require.NoError(t, NewRelationCacheInvalidator(slow, nil).Register(bus))

	follow := command.NewFollowHandler(store, bus).WithRelationCache(cache)
	unfollow := command.NewUnfollowHandler(store, bus).WithRelationCache(cache)
	isFollowing := query.NewIsFollowingHandler(store, cache)
	q := query.RelationQuery{SourceID: a.ID, TargetID: b.ID}

	_, err := follow.Handle(ctx, command.FollowCommand{FollowerID: a.ID, TargetID: b.ID, TargetType: graph.TargetUser})
	require.NoError(t, err)
	ok, err := isFollowing.Handle(ctx, q)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = unfollow.Handle(ctx, command.UnfollowCommand{FollowerID: a.ID, TargetID: b.ID})
	require.NoError(t, err)
	ok, err = isFollowing.Handle(ctx, q)
	require.NoError(t, err)
	assert.False(t, ok, "the synchronous invalidation must already be visible")

	// Two synchronous invalidations plus the two bus deliveries.
	require.Eventually(t, func() bool { return cache.invalidated() == 4 }, time.Second, 5*time.Millisecond)

	exists, err := store.Repositories().Follows.Exists(ctx, a.ID, b.ID)
	require.NoError(t, err)
	ok, err = isFollowing.Handle(ctx, q)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, exists, ok)
}

type recordedMetrics struct {
	relations   []string
	reviews     []int
	entities    []string
	corrections int
	checked     int
}

func (m *recordedMetrics) RelationChanged(relation, family string, active bool) {
	state := "removed"
	if active {
		state = "created"
	}
	m.relations = append(m.relations, relation+"/"+family+"/"+state)
}

func (m *recordedMetrics) ReviewChanged(_ bool, rating int, _ float64) {
	m.reviews = append(m.reviews, rating)
}

func (m *recordedMetrics) EntityCreated(kind string) { m.entities = append(m.entities, kind) }

func (m *recordedMetrics) CountersReconciled(checked, corrections int) {
	m.checked += checked
	m.corrections += corrections
}

type remoteEvent struct {
	shared.BaseEvent
	payload map[string]interface{}
}

func (e remoteEvent) Payload() map[string]interface{} { return e.payload }

func TestMetricsRecorder(t *testing.T) {
	m := &recordedMetrics{}
	r := NewMetricsRecorder(m)

	require.NoError(t, r.Handle(shared.NewRelationEvent(shared.EventFollowCreated, "e", "a", "p", "venue")))
	require.NoError(t, r.Handle(shared.NewRelationEvent(shared.EventLikeRemoved, "e", "a", "b", "user")))
	require.NoError(t, r.Handle(shared.NewReviewEvent(shared.EventReviewCreated, "r", "a", "p", 4, 1, 4)))
	require.NoError(t, r.Handle(shared.NewProfileCreatedEvent("p", "slug", "venue")))
	require.NoError(t, r.Handle(shared.NewCountersReconciledEvent("run", 10, 1)))
	require.NoError(t, r.Handle(remoteEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventCountersReconciled, "run-2"),
		payload:   map[string]interface{}{"checked": float64(5), "corrections": float64(2)},
	}))

	assert.Equal(t, []string{"follow/profile/created", "like/account/removed"}, m.relations)
	assert.Equal(t, []int{4}, m.reviews)
	assert.Equal(t, []string{"venue"}, m.entities)
	assert.Equal(t, 15, m.checked)
	assert.Equal(t, 3, m.corrections)

	bus := &busStub{}
	require.NoError(t, r.Register(bus))
	assert.Equal(t, 1, bus.all)
}
