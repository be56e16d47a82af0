package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET FOLLOWERS / GET FOLLOWING
// ══════════════════════════════════════════════════════════════════════════════

// GetFollowersQuery lists the follow edges pointing at a target.
type GetFollowersQuery struct {
	TargetID string
	Page     Page
}

// Validate validates the query.
func (q GetFollowersQuery) Validate() error {
	return requireID("GetFollowers", "targetId", q.TargetID)
}

// GetFollowersHandler handles the GetFollowersQuery.
type GetFollowersHandler struct {
	store graph.Store
}

// NewGetFollowersHandler creates a new GetFollowersHandler.
func NewGetFollowersHandler(store graph.Store) *GetFollowersHandler {
	return &GetFollowersHandler{store: store}
}

// Handle returns followers newest first. An unknown target has no followers.
func (h *GetFollowersHandler) Handle(ctx context.Context, q GetFollowersQuery) (follows []*graph.Follow, err error) {
	ctx, span := startSpan(ctx, "GetFollowers", attribute.String("graph.target_id", q.TargetID))
	defer func() { finishSpan(span, err) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}
	opts, err := q.Page.options()
	if err != nil {
		return nil, err
	}

	follows, err = h.store.Repositories().Follows.ListByTarget(ctx, q.TargetID, opts)
	if err != nil {
		return nil, fmt.Errorf("get_followers: %w", err)
	}
	return follows, nil
}

// GetFollowingQuery lists the follow edges leaving an account.
type GetFollowingQuery struct {
	UserID string
	Page   Page
}

// Validate validates the query.
func (q GetFollowingQuery) Validate() error {
	return requireID("GetFollowing", "userId", q.UserID)
}

// GetFollowingHandler handles the GetFollowingQuery.
type GetFollowingHandler struct {
	store graph.Store
}

// NewGetFollowingHandler creates a new GetFollowingHandler.
func NewGetFollowingHandler(store graph.Store) *GetFollowingHandler {
	return &GetFollowingHandler{store: store}
}

// Handle returns the account's follows newest first.
func (h *GetFollowingHandler) Handle(ctx context.Context, q GetFollowingQuery) (follows []*graph.Follow, err error) {
	ctx, span := startSpan(ctx, "GetFollowing", attribute.String("graph.user_id", q.UserID))
	defer func() { finishSpan(span, err) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}
	opts, err := q.Page.options()
	if err != nil {
		return nil, err
	}

	follows, err = h.store.Repositories().Follows.ListBySource(ctx, q.UserID, opts)
	if err != nil {
		return nil, fmt.Errorf("get_following: %w", err)
	}
	return follows, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// IS FOLLOWING / IS LIKED
// Pure reads. When a relation cache is configured it is consulted first and
// filled from the store on a miss. Cache failures are not fatal.
// ══════════════════════════════════════════════════════════════════════════════

// RelationQuery asks whether source has an edge to target.
type RelationQuery struct {
	SourceID string
	TargetID string
}

func (q RelationQuery) validate(op, sourceField string) error {
	if err := requireID(op, sourceField, q.SourceID); err != nil {
		return err
	}
	return requireID(op, "targetId", q.TargetID)
}

// IsFollowingHandler answers whether an account follows a target.
type IsFollowingHandler struct {
	store graph.Store
	cache graph.RelationCache
}

// NewIsFollowingHandler creates a new IsFollowingHandler. cache may be nil.
func NewIsFollowingHandler(store graph.Store, cache graph.RelationCache) *IsFollowingHandler {
	return &IsFollowingHandler{store: store, cache: cache}
}

// Handle reports whether the follow edge exists.
func (h *IsFollowingHandler) Handle(ctx context.Context, q RelationQuery) (ok bool, err error) {
	ctx, span := startSpan(ctx, "IsFollowing",
		attribute.String("graph.follower_id", q.SourceID),
		attribute.String("graph.target_id", q.TargetID),
	)
	defer func() { finishSpan(span, err) }()

	if err := q.validate("IsFollowing", "followerId"); err != nil {
		return false, err
	}
	ok, err = readThrough(ctx, h.cache, graph.RelationFollow, q, func(ctx context.Context) (bool, error) {
		return h.store.Repositories().Follows.Exists(ctx, q.SourceID, q.TargetID)
	})
	if err != nil {
		return false, fmt.Errorf("is_following: %w", err)
	}
	return ok, nil
}

// IsLikedHandler answers whether an account likes a target.
type IsLikedHandler struct {
	store graph.Store
	cache graph.RelationCache
}

// NewIsLikedHandler creates a new IsLikedHandler. cache may be nil.
func NewIsLikedHandler(store graph.Store, cache graph.RelationCache) *IsLikedHandler {
	return &IsLikedHandler{store: store, cache: cache}
}

// Handle reports whether the like edge exists.
func (h *IsLikedHandler) Handle(ctx context.Context, q RelationQuery) (ok bool, err error) {
	ctx, span := startSpan(ctx, "IsLiked",
		attribute.String("graph.user_id", q.SourceID),
		attribute.String("graph.target_id", q.TargetID),
	)
	defer func() { finishSpan(span, err) }()

	if err := q.validate("IsLiked", "userId"); err != nil {
		return false, err
	}
	ok, err = readThrough(ctx, h.cache, graph.RelationLike, q, func(ctx context.Context) (bool, error) {
		return h.store.Repositories().Likes.Exists(ctx, q.SourceID, q.TargetID)
	})
	if err != nil {
		return false, fmt.Errorf("is_liked: %w", err)
	}
	return ok, nil
}

// readThrough serves from the cache when it can. A miss loads from the store
// and fills the cache, unless a writer invalidated the pair in the meantime.
func readThrough(ctx context.Context, cache graph.RelationCache, rel graph.Relation, q RelationQuery, load func(context.Context) (bool, error)) (bool, error) {
	var lookup graph.RelationLookup
	cached := false
	if cache != nil {
		var err error
		lookup, err = cache.Get(ctx, rel, q.SourceID, q.TargetID)
		if err == nil && lookup.Found {
			return lookup.Exists, nil
		}
		cached = err == nil
	}

	exists, err := load(ctx)
	if err != nil {
		return false, err
	}

	// Without a version from a successful lookup there is nothing to fill against.
	if cached {
		_ = cache.Fill(ctx, rel, q.SourceID, q.TargetID, exists, lookup.Version)
	}
	return exists, nil
}
