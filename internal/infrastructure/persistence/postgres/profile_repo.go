package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// ProfileRepository implements graph.ProfileRepository.
type ProfileRepository struct {
	q Querier
}

// NewProfileRepository creates a repository over a pool or a transaction.
func NewProfileRepository(q Querier) *ProfileRepository {
	return &ProfileRepository{q: q}
}

const profileColumns = `
	id, slug, entity_type, name, description, location, image_url,
	followers_count, likes_count, members_count, reviews_count, rating,
	created_at, updated_at`

// Create inserts a new profile.
func (r *ProfileRepository) Create(ctx context.Context, profile *graph.Profile) error {
	query := `
		INSERT INTO profiles (
			id, slug, entity_type, name, description, location, image_url,
			followers_count, likes_count, members_count, reviews_count, rating,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.q.Exec(ctx, query,
		profile.ID,
		profile.Slug,
		string(profile.EntityType),
		profile.Name,
		profile.Description,
		profile.Location,
		profile.ImageURL,
		profile.FollowersCount,
		profile.LikesCount,
		profile.MembersCount,
		profile.ReviewsCount,
		profile.Rating,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrSlugTaken
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetByID retrieves a profile by id.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*graph.Profile, error) {
	return r.get(ctx, `SELECT`+profileColumns+` FROM profiles WHERE id = $1`, id)
}

// GetForUpdate retrieves a profile and locks its row until the surrounding
// transaction ends. Outside a transaction the lock is released immediately.
func (r *ProfileRepository) GetForUpdate(ctx context.Context, id string) (*graph.Profile, error) {
	return r.get(ctx, `SELECT`+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, id)
}

func (r *ProfileRepository) get(ctx context.Context, query, id string) (*graph.Profile, error) {
	profile, err := scanProfile(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// SetReviewAggregate overwrites reviews_count and rating.
func (r *ProfileRepository) SetReviewAggregate(ctx context.Context, id string, count int, rating float64) error {
	query := `
		UPDATE profiles
		SET reviews_count = GREATEST($2, 0), rating = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, count, rating)
	if err != nil {
		return fmt.Errorf("failed to set review aggregate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProfileNotFound
	}

	return nil
}

// ListIDs returns every profile id in ascending order.
func (r *ProfileRepository) ListIDs(ctx context.Context) ([]string, error) {
	return listIDs(ctx, r.q, "profiles")
}

// AdjustCounter adds delta to a counter, flooring the stored value at zero.
func (r *ProfileRepository) AdjustCounter(ctx context.Context, id string, kind graph.CounterKind, delta int) error {
	return adjustCounter(ctx, r.q, "profiles", graph.FamilyProfile, shared.ErrProfileNotFound, id, kind, delta)
}

// SetCounter overwrites a counter.
func (r *ProfileRepository) SetCounter(ctx context.Context, id string, kind graph.CounterKind, value int) error {
	return setCounter(ctx, r.q, "profiles", graph.FamilyProfile, shared.ErrProfileNotFound, id, kind, value)
}

func scanProfile(row pgx.Row) (*graph.Profile, error) {
	var p graph.Profile
	var entityType string
	err := row.Scan(
		&p.ID,
		&p.Slug,
		&entityType,
		&p.Name,
		&p.Description,
		&p.Location,
		&p.ImageURL,
		&p.FollowersCount,
		&p.LikesCount,
		&p.MembersCount,
		&p.ReviewsCount,
		&p.Rating,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.EntityType = graph.ProfileType(entityType)
	return &p, nil
}
