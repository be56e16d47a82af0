package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
)

// GetReviewsQuery lists the reviews of a profile.
type GetReviewsQuery struct {
	TargetID string
	Page     Page
}

// Validate validates the query.
func (q GetReviewsQuery) Validate() error {
	return requireID("GetReviews", "targetId", q.TargetID)
}

// GetReviewsHandler handles the GetReviewsQuery.
type GetReviewsHandler struct {
	store graph.Store
}

// NewGetReviewsHandler creates a new GetReviewsHandler.
func NewGetReviewsHandler(store graph.Store) *GetReviewsHandler {
	return &GetReviewsHandler{store: store}
}

// Handle returns reviews newest first.
func (h *GetReviewsHandler) Handle(ctx context.Context, q GetReviewsQuery) (reviews []*graph.Review, err error) {
	ctx, span := startSpan(ctx, "GetReviews", attribute.String("graph.target_id", q.TargetID))
	defer func() { finishSpan(span, err) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}
	opts, err := q.Page.options()
	if err != nil {
		return nil, err
	}

	reviews, err = h.store.Repositories().Reviews.ListByTarget(ctx, q.TargetID, opts)
	if err != nil {
		return nil, fmt.Errorf("get_reviews: %w", err)
	}
	return reviews, nil
}
