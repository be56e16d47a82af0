// Package eventhandler contains subscribers to domain events. They keep
// derived state (the relation cache, metrics) in step with committed
// changes and never write to the graph store.
package eventhandler

import (
	"context"
	"time"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
	"github.com/alem-hub/socialgraph/pkg/logger"
	"github.com/alem-hub/socialgraph/pkg/retry"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON RELATION CHANGED
// Invalidates the cached answer for a follow or like pair. The command
// handlers already invalidate synchronously after commit; this subscriber
// retries in the background so a failed attempt there does not leave a
// stale answer until the TTL. Invalidation is idempotent, so delivery order
// and duplicate delivery do not matter.
// ═══════════════════════════════════════════════════════════════════════════

// RelationCacheInvalidator handles follow/like created and removed events.
type RelationCacheInvalidator struct {
	cache   graph.RelationCache
	retrier *retry.Retrier
	log     *logger.Logger
	timeout time.Duration
}

// NewRelationCacheInvalidator creates a new RelationCacheInvalidator.
func NewRelationCacheInvalidator(cache graph.RelationCache, log *logger.Logger) *RelationCacheInvalidator {
	if log == nil {
		log = logger.Nop()
	}
	return &RelationCacheInvalidator{
		cache:   cache,
		retrier: retry.CacheRetrier(),
		log:     log.With(logger.Component("relation_cache_invalidator")),
		timeout: 2 * time.Second,
	}
}

// EventTypes lists the events this handler subscribes to.
func (h *RelationCacheInvalidator) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventFollowCreated,
		shared.EventFollowRemoved,
		shared.EventLikeCreated,
		shared.EventLikeRemoved,
	}
}

// Handle implements shared.EventHandler. Cache failures are logged and
// swallowed: the cache is advisory and reads fall back to the store.
func (h *RelationCacheInvalidator) Handle(event shared.Event) error {
	rel, ok := event.(shared.RelationEvent)
	if !ok {
		return nil
	}

	var relation graph.Relation
	switch rel.EventType() {
	case shared.EventFollowCreated, shared.EventFollowRemoved:
		relation = graph.RelationFollow
	case shared.EventLikeCreated, shared.EventLikeRemoved:
		relation = graph.RelationLike
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		return h.cache.Invalidate(ctx, relation, rel.SourceID, rel.TargetID)
	})
	if err != nil {
		h.log.Warn("relation cache invalidation failed",
			logger.String("relation", string(relation)),
			logger.AccountID(rel.SourceID),
			logger.TargetID(rel.TargetID),
			logger.Err(err),
		)
	}
	return nil
}

// Subscriber is the subscription half of an event bus.
type Subscriber interface {
	Subscribe(eventType shared.EventType, handler shared.EventHandler) error
	SubscribeAll(handler shared.EventHandler) error
}

// Register subscribes the invalidator to every event it handles.
func (h *RelationCacheInvalidator) Register(bus Subscriber) error {
	for _, t := range h.EventTypes() {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}
