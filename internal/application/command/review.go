package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE REVIEW COMMAND
// Inserts a review and recomputes the profile's reviews_count and rating
// from every review of that profile, under a lock on the profile row.
// ══════════════════════════════════════════════════════════════════════════════

// CreateReviewCommand contains the review payload.
type CreateReviewCommand struct {
	UserID   string
	TargetID string

	// TargetType is optional. When given it must name a profile type.
	TargetType graph.TargetType

	Rating       int
	Comment      string
	AuthorName   string
	AuthorAvatar string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CreateReviewCommand) Validate() error {
	if err := requireID("CreateReview", "userId", c.UserID); err != nil {
		return err
	}
	if err := requireID("CreateReview", "targetId", c.TargetID); err != nil {
		return err
	}
	if c.TargetType != "" && c.TargetType.Family() != graph.FamilyProfile {
		return shared.ErrReviewTargetNotAProfile
	}
	if !shared.Rating(c.Rating).IsValid() {
		return shared.ErrInvalidRating
	}
	return nil
}

// CreateReviewResult contains the stored review and the fresh aggregate.
type CreateReviewResult struct {
	Review       *graph.Review
	ReviewsCount int
	Rating       float64
	Events       []shared.Event
}

// CreateReviewHandler handles the CreateReviewCommand.
type CreateReviewHandler struct {
	store          graph.Store
	eventPublisher shared.EventPublisher
}

// NewCreateReviewHandler creates a new CreateReviewHandler.
func NewCreateReviewHandler(store graph.Store, eventPublisher shared.EventPublisher) *CreateReviewHandler {
	return &CreateReviewHandler{
		store:          store,
		eventPublisher: eventPublisher,
	}
}

// Handle stores the review and recomputes the aggregate in one transaction.
func (h *CreateReviewHandler) Handle(ctx context.Context, cmd CreateReviewCommand) (result *CreateReviewResult, err error) {
	ctx, span := startSpan(ctx, "CreateReview",
		attribute.String("graph.user_id", cmd.UserID),
		attribute.String("graph.target_id", cmd.TargetID),
		attribute.Int("review.rating", cmd.Rating),
	)
	defer func() { finishSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_review: validation failed: %w", err)
	}

	review, err := graph.NewReview(graph.NewReviewParams{
		ID:           uuid.NewString(),
		UserID:       cmd.UserID,
		TargetID:     cmd.TargetID,
		Rating:       cmd.Rating,
		Comment:      cmd.Comment,
		AuthorName:   cmd.AuthorName,
		AuthorAvatar: cmd.AuthorAvatar,
	})
	if err != nil {
		return nil, fmt.Errorf("create_review: %w", err)
	}

	result = &CreateReviewResult{Review: review}
	err = h.store.WithinTx(ctx, func(repos graph.Repositories) error {
		if _, err := lockReviewTarget(ctx, repos, review.TargetID); err != nil {
			return err
		}

		author, err := repos.Accounts.GetByID(ctx, review.UserID)
		if err != nil {
			return fmt.Errorf("load author: %w", err)
		}
		if review.AuthorName == "" {
			review.AuthorName = author.DisplayName
		}
		if review.AuthorAvatar == "" {
			review.AuthorAvatar = author.AvatarURL
		}

		if err := repos.Reviews.Create(ctx, review); err != nil {
			return fmt.Errorf("insert review: %w", err)
		}

		result.ReviewsCount, result.Rating, err = recomputeAggregate(ctx, repos, review.TargetID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create_review: %w", err)
	}

	event := shared.NewReviewEvent(shared.EventReviewCreated, review.ID, review.UserID, review.TargetID,
		review.Rating, result.ReviewsCount, result.Rating)
	event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
	result.Events = append(result.Events, event)
	publish(h.eventPublisher, result.Events)

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE REVIEW COMMAND
// Deleting a review runs the same full recompute as creating one.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteReviewCommand identifies the review to delete.
type DeleteReviewCommand struct {
	ReviewID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c DeleteReviewCommand) Validate() error {
	return requireID("DeleteReview", "id", c.ReviewID)
}

// DeleteReviewResult contains the outcome of a delete.
type DeleteReviewResult struct {
	// Deleted is false when no review had the id.
	Deleted      bool
	Review       *graph.Review
	ReviewsCount int
	Rating       float64
	Events       []shared.Event
}

// DeleteReviewHandler handles the DeleteReviewCommand.
type DeleteReviewHandler struct {
	store          graph.Store
	eventPublisher shared.EventPublisher
}

// NewDeleteReviewHandler creates a new DeleteReviewHandler.
func NewDeleteReviewHandler(store graph.Store, eventPublisher shared.EventPublisher) *DeleteReviewHandler {
	return &DeleteReviewHandler{
		store:          store,
		eventPublisher: eventPublisher,
	}
}

// Handle deletes the review and recomputes the target's aggregate.
func (h *DeleteReviewHandler) Handle(ctx context.Context, cmd DeleteReviewCommand) (result *DeleteReviewResult, err error) {
	ctx, span := startSpan(ctx, "DeleteReview", attribute.String("review.id", cmd.ReviewID))
	defer func() { finishSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("delete_review: validation failed: %w", err)
	}

	result = &DeleteReviewResult{}
	err = h.store.WithinTx(ctx, func(repos graph.Repositories) error {
		*result = DeleteReviewResult{}
		review, err := repos.Reviews.GetByID(ctx, cmd.ReviewID)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load review: %w", err)
		}

		// Lock the profile before touching its reviews, same order as create.
		if _, err := repos.Profiles.GetForUpdate(ctx, review.TargetID); err != nil {
			return fmt.Errorf("lock profile: %w", err)
		}

		removed, ok, err := repos.Reviews.Delete(ctx, cmd.ReviewID)
		if err != nil {
			return fmt.Errorf("delete review: %w", err)
		}
		if !ok {
			return nil
		}

		result.Deleted = true
		result.Review = removed
		result.ReviewsCount, result.Rating, err = recomputeAggregate(ctx, repos, removed.TargetID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete_review: %w", err)
	}

	if result.Deleted {
		event := shared.NewReviewEvent(shared.EventReviewDeleted, result.Review.ID, result.Review.UserID,
			result.Review.TargetID, result.Review.Rating, result.ReviewsCount, result.Rating)
		event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
		result.Events = append(result.Events, event)
		publish(h.eventPublisher, result.Events)
	}

	return result, nil
}

// lockReviewTarget locks the profile being reviewed. An id that belongs to an
// account is a validation failure: accounts cannot be reviewed.
func lockReviewTarget(ctx context.Context, repos graph.Repositories, targetID string) (*graph.Profile, error) {
	profile, err := repos.Profiles.GetForUpdate(ctx, targetID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("lock profile: %w", err)
	}
	if _, accErr := repos.Accounts.GetByID(ctx, targetID); accErr == nil {
		return nil, shared.ErrReviewTargetNotAProfile
	}
	return nil, shared.ErrProfileNotFound
}

// recomputeAggregate rescans every rating of the profile and overwrites
// reviews_count and rating.
func recomputeAggregate(ctx context.Context, repos graph.Repositories, profileID string) (int, float64, error) {
	ratings, err := repos.Reviews.RatingsByTarget(ctx, profileID)
	if err != nil {
		return 0, 0, fmt.Errorf("load ratings: %w", err)
	}
	count, mean := graph.AggregateRating(ratings)
	if err := repos.Profiles.SetReviewAggregate(ctx, profileID, count, mean); err != nil {
		return 0, 0, fmt.Errorf("store aggregate: %w", err)
	}
	return count, mean, nil
}
