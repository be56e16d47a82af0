package graph

import (
	"context"

	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// The domain defines the contracts; infrastructure/persistence implements them
// for PostgreSQL and for an in-memory store.
// ══════════════════════════════════════════════════════════════════════════════

// ListOptions bounds list reads. Limit == 0 means no limit.
type ListOptions = shared.ListOptions

// CounterAdjuster moves denormalized counters on one entity family.
type CounterAdjuster interface {
	// AdjustCounter adds delta to the counter and clamps the result at zero.
	// Returns a not-found error when no row has the id.
	AdjustCounter(ctx context.Context, id string, kind CounterKind, delta int) error

	// SetCounter overwrites the counter. Used by reconciliation only.
	SetCounter(ctx context.Context, id string, kind CounterKind, value int) error
}

// AccountRepository stores accounts.
type AccountRepository interface {
	CounterAdjuster

	// Create inserts a new account.
	// Returns ErrUsernameTaken when the username is in use.
	Create(ctx context.Context, account *Account) error

	// GetByID returns ErrAccountNotFound when no account has the id.
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetForUpdate is GetByID with a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Account, error)

	// GetByIDs returns the accounts that exist among ids, keyed by id.
	GetByIDs(ctx context.Context, ids []string) (map[string]*Account, error)

	// ListIDs returns every account id. Used by reconciliation.
	ListIDs(ctx context.Context) ([]string, error)
}

// ProfileRepository stores profiles.
type ProfileRepository interface {
	CounterAdjuster

	// Create inserts a new profile.
	// Returns ErrSlugTaken when the slug is in use.
	Create(ctx context.Context, profile *Profile) error

	// GetByID returns ErrProfileNotFound when no profile has the id.
	GetByID(ctx context.Context, id string) (*Profile, error)

	// GetForUpdate is GetByID with a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Profile, error)

	// SetReviewAggregate overwrites reviews_count and rating.
	SetReviewAggregate(ctx context.Context, id string, count int, rating float64) error

	// ListIDs returns every profile id. Used by reconciliation.
	ListIDs(ctx context.Context) ([]string, error)
}

// FollowRepository stores follow edges.
type FollowRepository interface {
	// Get returns the edge for the pair, or nil when there is none.
	Get(ctx context.Context, followerID, targetID string) (*Follow, error)

	// Insert stores the edge unless the pair already exists. created is false
	// when the pair was already present, in which case nothing is written.
	Insert(ctx context.Context, follow *Follow) (created bool, err error)

	// Delete removes the edge for the pair and returns the removed row.
	// ok is false when there was nothing to remove.
	Delete(ctx context.Context, followerID, targetID string) (removed *Follow, ok bool, err error)

	// ListByTarget returns followers of a target, newest first.
	ListByTarget(ctx context.Context, targetID string, opts ListOptions) ([]*Follow, error)

	// ListBySource returns what an account follows, newest first.
	ListBySource(ctx context.Context, followerID string, opts ListOptions) ([]*Follow, error)

	// Exists reports whether the pair has an edge.
	Exists(ctx context.Context, followerID, targetID string) (bool, error)

	// CountByTarget counts live edges pointing at the target.
	CountByTarget(ctx context.Context, targetID string) (int, error)

	// CountBySource counts live edges leaving the account.
	CountBySource(ctx context.Context, followerID string) (int, error)
}

// LikeRepository stores like edges. Same contract as FollowRepository.
type LikeRepository interface {
	Get(ctx context.Context, userID, targetID string) (*Like, error)
	Insert(ctx context.Context, like *Like) (created bool, err error)
	Delete(ctx context.Context, userID, targetID string) (removed *Like, ok bool, err error)
	ListByTarget(ctx context.Context, targetID string, opts ListOptions) ([]*Like, error)
	ListBySource(ctx context.Context, userID string, opts ListOptions) ([]*Like, error)
	Exists(ctx context.Context, userID, targetID string) (bool, error)
	CountByTarget(ctx context.Context, targetID string) (int, error)
}

// ReviewRepository stores reviews.
type ReviewRepository interface {
	// Create inserts a review.
	Create(ctx context.Context, review *Review) error

	// GetByID returns ErrReviewNotFound when no review has the id.
	GetByID(ctx context.Context, id string) (*Review, error)

	// Delete removes the review and returns the removed row.
	// ok is false when there was nothing to remove.
	Delete(ctx context.Context, id string) (removed *Review, ok bool, err error)

	// ListByTarget returns reviews of a profile, newest first.
	ListByTarget(ctx context.Context, targetID string, opts ListOptions) ([]*Review, error)

	// RatingsByTarget returns every rating for the profile.
	RatingsByTarget(ctx context.Context, targetID string) ([]int, error)
}

// Repositories bundles the repositories that share one unit of work.
type Repositories struct {
	Accounts AccountRepository
	Profiles ProfileRepository
	Follows  FollowRepository
	Likes    LikeRepository
	Reviews  ReviewRepository
}

// Store gives access to repositories, either directly or inside a transaction.
type Store interface {
	// Repositories returns repositories that run outside any transaction.
	Repositories() Repositories

	// WithinTx runs fn in a single transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
}

// CounterTarget returns the counter table for a target type.
func CounterTarget(repos Repositories, targetType TargetType) (CounterAdjuster, error) {
	switch targetType.Family() {
	case FamilyAccount:
		return repos.Accounts, nil
	case FamilyProfile:
		return repos.Profiles, nil
	default:
		return nil, shared.ErrInvalidTargetType
	}
}

// Relation names an edge set for caching purposes.
type Relation string

const (
	RelationFollow Relation = "follow"
	RelationLike   Relation = "like"
)

// RelationLookup is the result of a relation cache read. On a miss Version
// identifies the pair's invalidation generation at the time of the read.
type RelationLookup struct {
	Exists  bool
	Found   bool
	Version string
}

// RelationCache caches edge existence for (source, target) pairs.
//
// Writers call Invalidate after every committed edge change. Readers that
// miss load the answer from the store and hand it back to Fill with the
// Version from their lookup; Fill drops the value if the pair was
// invalidated in between, so a slow read never overwrites a newer change.
type RelationCache interface {
	Get(ctx context.Context, rel Relation, sourceID, targetID string) (RelationLookup, error)
	Fill(ctx context.Context, rel Relation, sourceID, targetID string, exists bool, version string) error
	Invalidate(ctx context.Context, rel Relation, sourceID, targetID string) error
}
