package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIKE COMMAND
// Same state machine as follow, but only the target's likes_count moves.
// ══════════════════════════════════════════════════════════════════════════════

// LikeCommand contains the data to like a target.
type LikeCommand struct {
	UserID     string
	TargetID   string
	TargetType graph.TargetType

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c LikeCommand) Validate() error {
	if err := requireID("Like", "userId", c.UserID); err != nil {
		return err
	}
	if err := requireID("Like", "targetId", c.TargetID); err != nil {
		return err
	}
	if !c.TargetType.IsValid() {
		return shared.ErrInvalidTargetType
	}
	if c.UserID == c.TargetID {
		return shared.ErrSelfLike
	}
	return nil
}

// LikeResult contains the result of a like.
type LikeResult struct {
	Like    *graph.Like
	Created bool
	Events  []shared.Event
}

// LikeHandler handles the LikeCommand.
type LikeHandler struct {
	store          graph.Store
	eventPublisher shared.EventPublisher
	cache          graph.RelationCache
}

// NewLikeHandler creates a new LikeHandler.
func NewLikeHandler(store graph.Store, eventPublisher shared.EventPublisher) *LikeHandler {
	return &LikeHandler{
		store:          store,
		eventPublisher: eventPublisher,
	}
}

// WithRelationCache makes the handler invalidate the pair in cache after a
// committed change.
func (h *LikeHandler) WithRelationCache(cache graph.RelationCache) *LikeHandler {
	h.cache = cache
	return h
}

// Handle likes the target. Liking twice is a no-op that returns the existing edge.
func (h *LikeHandler) Handle(ctx context.Context, cmd LikeCommand) (result *LikeResult, err error) {
	ctx, span := startSpan(ctx, "Like",
		attribute.String("graph.user_id", cmd.UserID),
		attribute.String("graph.target_id", cmd.TargetID),
		attribute.String("graph.target_type", cmd.TargetType.String()),
	)
	defer func() { finishSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("like: validation failed: %w", err)
	}

	candidate, err := graph.NewLike(graph.NewEdgeParams{
		ID:         uuid.NewString(),
		SourceID:   cmd.UserID,
		TargetID:   cmd.TargetID,
		TargetType: cmd.TargetType,
	})
	if err != nil {
		return nil, fmt.Errorf("like: %w", err)
	}

	result = &LikeResult{}
	err = h.store.WithinTx(ctx, func(repos graph.Repositories) error {
		*result = LikeResult{}
		existing, err := repos.Likes.Get(ctx, cmd.UserID, cmd.TargetID)
		if err != nil {
			return fmt.Errorf("lookup edge: %w", err)
		}
		if existing != nil {
			result.Like = existing
			return nil
		}

		created, err := repos.Likes.Insert(ctx, candidate)
		if err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
		if !created {
			existing, err := repos.Likes.Get(ctx, cmd.UserID, cmd.TargetID)
			if err != nil {
				return fmt.Errorf("reload edge: %w", err)
			}
			result.Like = existing
			return nil
		}

		if err := adjustTargetCounters(ctx, repos, candidate.TargetID, candidate.TargetType,
			candidate.TargetType.Family().LikeCounters(), 1); err != nil {
			return fmt.Errorf("increment likes count: %w", err)
		}
		// The actor must exist even though no counter is kept on its side.
		if _, err := repos.Accounts.GetByID(ctx, candidate.UserID); err != nil {
			return fmt.Errorf("load liker: %w", err)
		}

		result.Like = candidate
		result.Created = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("like: %w", err)
	}

	if result.Created {
		invalidateRelation(ctx, h.cache, graph.RelationLike, result.Like.UserID, result.Like.TargetID)

		event := shared.NewRelationEvent(shared.EventLikeCreated, result.Like.ID,
			result.Like.UserID, result.Like.TargetID, result.Like.TargetType.String())
		event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
		result.Events = append(result.Events, event)
		publish(h.eventPublisher, result.Events)
	}

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLIKE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// UnlikeCommand contains the data to remove a like edge.
type UnlikeCommand struct {
	UserID   string
	TargetID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UnlikeCommand) Validate() error {
	if err := requireID("Unlike", "userId", c.UserID); err != nil {
		return err
	}
	return requireID("Unlike", "targetId", c.TargetID)
}

// UnlikeResult contains the result of an unlike.
type UnlikeResult struct {
	Removed bool
	Like    *graph.Like
	Events  []shared.Event
}

// UnlikeHandler handles the UnlikeCommand.
type UnlikeHandler struct {
	store          graph.Store
	eventPublisher shared.EventPublisher
	cache          graph.RelationCache
}

// NewUnlikeHandler creates a new UnlikeHandler.
func NewUnlikeHandler(store graph.Store, eventPublisher shared.EventPublisher) *UnlikeHandler {
	return &UnlikeHandler{
		store:          store,
		eventPublisher: eventPublisher,
	}
}

// WithRelationCache makes the handler invalidate the pair in cache after a
// committed change.
func (h *UnlikeHandler) WithRelationCache(cache graph.RelationCache) *UnlikeHandler {
	h.cache = cache
	return h
}

// Handle removes the like if present and reports whether it did.
func (h *UnlikeHandler) Handle(ctx context.Context, cmd UnlikeCommand) (result *UnlikeResult, err error) {
	ctx, span := startSpan(ctx, "Unlike",
		attribute.String("graph.user_id", cmd.UserID),
		attribute.String("graph.target_id", cmd.TargetID),
	)
	defer func() { finishSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("unlike: validation failed: %w", err)
	}

	result = &UnlikeResult{}
	err = h.store.WithinTx(ctx, func(repos graph.Repositories) error {
		*result = UnlikeResult{}
		removed, ok, err := repos.Likes.Delete(ctx, cmd.UserID, cmd.TargetID)
		if err != nil {
			return fmt.Errorf("delete edge: %w", err)
		}
		if !ok {
			return nil
		}

		if err := adjustTargetCounters(ctx, repos, removed.TargetID, removed.TargetType,
			removed.TargetType.Family().LikeCounters(), -1); err != nil {
			return fmt.Errorf("decrement likes count: %w", err)
		}

		result.Removed = true
		result.Like = removed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unlike: %w", err)
	}

	if result.Removed {
		invalidateRelation(ctx, h.cache, graph.RelationLike, result.Like.UserID, result.Like.TargetID)

		event := shared.NewRelationEvent(shared.EventLikeRemoved, result.Like.ID,
			result.Like.UserID, result.Like.TargetID, result.Like.TargetType.String())
		event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
		result.Events = append(result.Events, event)
		publish(h.eventPublisher, result.Events)
	}

	return result, nil
}
