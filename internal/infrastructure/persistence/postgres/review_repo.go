package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// ReviewRepository implements graph.ReviewRepository.
type ReviewRepository struct {
	q Querier
}

// NewReviewRepository creates a repository over a pool or a transaction.
func NewReviewRepository(q Querier) *ReviewRepository {
	return &ReviewRepository{q: q}
}

const reviewColumns = `
	id, user_id, target_id, rating, comment, author_name, author_avatar, created_at`

// Create inserts a review.
func (r *ReviewRepository) Create(ctx context.Context, review *graph.Review) error {
	query := `
		INSERT INTO reviews (
			id, user_id, target_id, rating, comment, author_name, author_avatar, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.q.Exec(ctx, query,
		review.ID,
		review.UserID,
		review.TargetID,
		review.Rating,
		review.Comment,
		review.AuthorName,
		review.AuthorAvatar,
		review.CreatedAt,
	)
	if err != nil {
		switch {
		case IsForeignKeyViolation(err) && ConstraintName(err) == "reviews_target_fkey":
			return shared.ErrProfileNotFound
		case IsForeignKeyViolation(err):
			return shared.ErrAccountNotFound
		case IsCheckViolation(err):
			return shared.ErrInvalidRating
		}
		return fmt.Errorf("failed to create review: %w", err)
	}

	return nil
}

// GetByID retrieves a review by id.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*graph.Review, error) {
	query := `SELECT` + reviewColumns + ` FROM reviews WHERE id = $1`

	review, err := scanReview(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}

	return review, nil
}

// Delete removes the review and returns it.
func (r *ReviewRepository) Delete(ctx context.Context, id string) (*graph.Review, bool, error) {
	query := `DELETE FROM reviews WHERE id = $1 RETURNING` + reviewColumns

	review, err := scanReview(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to delete review: %w", err)
	}

	return review, true, nil
}

// ListByTarget returns reviews of a profile, newest first.
func (r *ReviewRepository) ListByTarget(ctx context.Context, targetID string, opts graph.ListOptions) ([]*graph.Review, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT` + reviewColumns + `
		FROM reviews
		WHERE target_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.q.Query(ctx, query, targetID, limitArg(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*graph.Review{}
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	return reviews, rows.Err()
}

// RatingsByTarget returns every rating for the profile.
func (r *ReviewRepository) RatingsByTarget(ctx context.Context, targetID string) ([]int, error) {
	rows, err := r.q.Query(ctx, `SELECT rating FROM reviews WHERE target_id = $1`, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}
	defer rows.Close()

	var ratings []int
	for rows.Next() {
		var rating int
		if err := rows.Scan(&rating); err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}

	return ratings, rows.Err()
}

func scanReview(row pgx.Row) (*graph.Review, error) {
	var rv graph.Review
	err := row.Scan(
		&rv.ID,
		&rv.UserID,
		&rv.TargetID,
		&rv.Rating,
		&rv.Comment,
		&rv.AuthorName,
		&rv.AuthorAvatar,
		&rv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rv, nil
}
