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
// FOLLOW COMMAND
// Creates a follow edge from an account to any target and moves the
// follower/following counters in the same transaction.
// ══════════════════════════════════════════════════════════════════════════════

// FollowCommand contains the data to follow a target.
type FollowCommand struct {
	FollowerID string
	TargetID   string
	TargetType graph.TargetType

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c FollowCommand) Validate() error {
	if err := requireID("Follow", "followerId", c.FollowerID); err != nil {
		return err
	}
	if err := requireID("Follow", "targetId", c.TargetID); err != nil {
		return err
	}
	if !c.TargetType.IsValid() {
		return shared.ErrInvalidTargetType
	}
	if c.FollowerID == c.TargetID {
		return shared.ErrSelfFollow
	}
	return nil
}

// FollowResult contains the result of a follow.
type FollowResult struct {
	// Follow is the stored edge, new or pre-existing.
	Follow *graph.Follow

	// Created is false when the edge already existed and nothing changed.
	Created bool

	// Events contains domain events generated.
	Events []shared.Event
}

// FollowHandler handles the FollowCommand.
type FollowHandler struct {
	store          graph.Store
	eventPublisher shared.EventPublisher
	cache          graph.RelationCache
}

// NewFollowHandler creates a new FollowHandler.
func NewFollowHandler(store graph.Store, eventPublisher shared.EventPublisher) *FollowHandler {
	return &FollowHandler{
		store:          store,
		eventPublisher: eventPublisher,
	}
}

// WithRelationCache makes the handler invalidate the pair in cache after a
// committed change.
func (h *FollowHandler) WithRelationCache(cache graph.RelationCache) *FollowHandler {
	h.cache = cache
	return h
}

// Handle follows the target. Calling it again for the same pair returns the
// existing edge and leaves every counter untouched.
func (h *FollowHandler) Handle(ctx context.Context, cmd FollowCommand) (result *FollowResult, err error) {
	ctx, span := startSpan(ctx, "Follow",
		attribute.String("graph.follower_id", cmd.FollowerID),
		attribute.String("graph.target_id", cmd.TargetID),
		attribute.String("graph.target_type", cmd.TargetType.String()),
	)
	defer func() { finishSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("follow: validation failed: %w", err)
	}

	candidate, err := graph.NewFollow(graph.NewEdgeParams{
		ID:         uuid.NewString(),
		SourceID:   cmd.FollowerID,
		TargetID:   cmd.TargetID,
		TargetType: cmd.TargetType,
	})
	if err != nil {
		return nil, fmt.Errorf("follow: %w", err)
	}

	result = &FollowResult{}
	err = h.store.WithinTx(ctx, func(repos graph.Repositories) error {
		*result = FollowResult{}
		existing, err := repos.Follows.Get(ctx, cmd.FollowerID, cmd.TargetID)
		if err != nil {
			return fmt.Errorf("lookup edge: %w", err)
		}
		if existing != nil {
			result.Follow = existing
			return nil
		}

		created, err := repos.Follows.Insert(ctx, candidate)
		if err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
		if !created {
			// A concurrent follow for the same pair won the insert.
			existing, err := repos.Follows.Get(ctx, cmd.FollowerID, cmd.TargetID)
			if err != nil {
				return fmt.Errorf("reload edge: %w", err)
			}
			result.Follow = existing
			return nil
		}

		if err := adjustTargetCounters(ctx, repos, candidate.TargetID, candidate.TargetType,
			candidate.TargetType.Family().FollowCounters(), 1); err != nil {
			return fmt.Errorf("increment target counters: %w", err)
		}
		if err := repos.Accounts.AdjustCounter(ctx, candidate.FollowerID, graph.CounterFollowing, 1); err != nil {
			return fmt.Errorf("increment following count: %w", err)
		}

		result.Follow = candidate
		result.Created = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("follow: %w", err)
	}

	if result.Created {
		invalidateRelation(ctx, h.cache, graph.RelationFollow, result.Follow.FollowerID, result.Follow.TargetID)

		event := shared.NewRelationEvent(shared.EventFollowCreated, result.Follow.ID,
			result.Follow.FollowerID, result.Follow.TargetID, result.Follow.TargetType.String())
		event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
		result.Events = append(result.Events, event)
		publish(h.eventPublisher, result.Events)
	}

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNFOLLOW COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// UnfollowCommand contains the data to remove a follow edge.
type UnfollowCommand struct {
	FollowerID string
	TargetID   string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UnfollowCommand) Validate() error {
	if err := requireID("Unfollow", "followerId", c.FollowerID); err != nil {
		return err
	}
	return requireID("Unfollow", "targetId", c.TargetID)
}

// UnfollowResult contains the result of an unfollow.
type UnfollowResult struct {
	// Removed is false when there was no edge to remove.
	Removed bool

	// Follow is the removed edge, if any.
	Follow *graph.Follow

	// Events contains domain events generated.
	Events []shared.Event
}

// UnfollowHandler handles the UnfollowCommand.
type UnfollowHandler struct {
	store          graph.Store
	eventPublisher shared.EventPublisher
	cache          graph.RelationCache
}

// NewUnfollowHandler creates a new UnfollowHandler.
func NewUnfollowHandler(store graph.Store, eventPublisher shared.EventPublisher) *UnfollowHandler {
	return &UnfollowHandler{
		store:          store,
		eventPublisher: eventPublisher,
	}
}

// WithRelationCache makes the handler invalidate the pair in cache after a
// committed change.
func (h *UnfollowHandler) WithRelationCache(cache graph.RelationCache) *UnfollowHandler {
	h.cache = cache
	return h
}

// Handle removes the edge if it exists. The counter table to decrement is
// taken from the removed row, not from the caller.
func (h *UnfollowHandler) Handle(ctx context.Context, cmd UnfollowCommand) (result *UnfollowResult, err error) {
	ctx, span := startSpan(ctx, "Unfollow",
		attribute.String("graph.follower_id", cmd.FollowerID),
		attribute.String("graph.target_id", cmd.TargetID),
	)
	defer func() { finishSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("unfollow: validation failed: %w", err)
	}

	result = &UnfollowResult{}
	err = h.store.WithinTx(ctx, func(repos graph.Repositories) error {
		*result = UnfollowResult{}
		removed, ok, err := repos.Follows.Delete(ctx, cmd.FollowerID, cmd.TargetID)
		if err != nil {
			return fmt.Errorf("delete edge: %w", err)
		}
		if !ok {
			return nil
		}

		if err := adjustTargetCounters(ctx, repos, removed.TargetID, removed.TargetType,
			removed.TargetType.Family().FollowCounters(), -1); err != nil {
			return fmt.Errorf("decrement target counters: %w", err)
		}
		if err := repos.Accounts.AdjustCounter(ctx, removed.FollowerID, graph.CounterFollowing, -1); err != nil {
			return fmt.Errorf("decrement following count: %w", err)
		}

		result.Removed = true
		result.Follow = removed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unfollow: %w", err)
	}

	if result.Removed {
		invalidateRelation(ctx, h.cache, graph.RelationFollow, result.Follow.FollowerID, result.Follow.TargetID)

		event := shared.NewRelationEvent(shared.EventFollowRemoved, result.Follow.ID,
			result.Follow.FollowerID, result.Follow.TargetID, result.Follow.TargetType.String())
		event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
		result.Events = append(result.Events, event)
		publish(h.eventPublisher, result.Events)
	}

	return result, nil
}
