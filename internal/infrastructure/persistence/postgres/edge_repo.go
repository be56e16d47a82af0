package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EDGE TABLE
// follows and likes share one shape: (id, source, target_id, target_type,
// created_at) with a unique (source, target_id) pair.
// ══════════════════════════════════════════════════════════════════════════════

type edgeRow struct {
	ID         string
	SourceID   string
	TargetID   string
	TargetType graph.TargetType
	CreatedAt  time.Time
}

type edgeTable struct {
	q         Querier
	table     string
	sourceCol string
}

func (t edgeTable) columns() string {
	return fmt.Sprintf("id, %s, target_id, target_type, created_at", t.sourceCol)
}

func scanEdge(row pgx.Row) (*edgeRow, error) {
	var e edgeRow
	var targetType string
	if err := row.Scan(&e.ID, &e.SourceID, &e.TargetID, &targetType, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.TargetType = graph.TargetType(targetType)
	return &e, nil
}

func (t edgeTable) get(ctx context.Context, sourceID, targetID string) (*edgeRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND target_id = $2`,
		t.columns(), t.table, t.sourceCol)

	edge, err := scanEdge(t.q.QueryRow(ctx, query, sourceID, targetID))
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s edge: %w", t.table, err)
	}
	return edge, nil
}

// insert relies on the unique pair constraint, so a concurrent insert of the
// same pair reports created == false instead of failing.
func (t edgeTable) insert(ctx context.Context, e edgeRow) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (%s, target_id) DO NOTHING`,
		t.table, t.columns(), t.sourceCol)

	tag, err := t.q.Exec(ctx, query, e.ID, e.SourceID, e.TargetID, e.TargetType.String(), e.CreatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, shared.ErrAccountNotFound
		}
		return false, fmt.Errorf("failed to insert %s edge: %w", t.table, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t edgeTable) delete(ctx context.Context, sourceID, targetID string) (*edgeRow, bool, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE %s = $1 AND target_id = $2
		RETURNING %s`,
		t.table, t.sourceCol, t.columns())

	edge, err := scanEdge(t.q.QueryRow(ctx, query, sourceID, targetID))
	if err != nil {
		if IsNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to delete %s edge: %w", t.table, err)
	}
	return edge, true, nil
}

func (t edgeTable) list(ctx context.Context, column, id string, opts graph.ListOptions) ([]*edgeRow, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		t.columns(), t.table, column)

	rows, err := t.q.Query(ctx, query, id, limitArg(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", t.table, err)
	}
	defer rows.Close()

	edges := []*edgeRow{}
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s edge: %w", t.table, err)
		}
		edges = append(edges, edge)
	}

	return edges, rows.Err()
}

func (t edgeTable) exists(ctx context.Context, sourceID, targetID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND target_id = $2)`,
		t.table, t.sourceCol)

	var exists bool
	if err := t.q.QueryRow(ctx, query, sourceID, targetID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s edge: %w", t.table, err)
	}
	return exists, nil
}

func (t edgeTable) count(ctx context.Context, column, id string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, t.table, column)

	var n int
	if err := t.q.QueryRow(ctx, query, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.table, err)
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FOLLOWS
// ══════════════════════════════════════════════════════════════════════════════

// FollowRepository implements graph.FollowRepository.
type FollowRepository struct {
	t edgeTable
}

// NewFollowRepository creates a repository over a pool or a transaction.
func NewFollowRepository(q Querier) *FollowRepository {
	return &FollowRepository{t: edgeTable{q: q, table: "follows", sourceCol: "follower_id"}}
}

func toFollow(e *edgeRow) *graph.Follow {
	if e == nil {
		return nil
	}
	return &graph.Follow{
		ID:         e.ID,
		FollowerID: e.SourceID,
		TargetID:   e.TargetID,
		TargetType: e.TargetType,
		CreatedAt:  e.CreatedAt,
	}
}

func toFollows(edges []*edgeRow) []*graph.Follow {
	out := make([]*graph.Follow, 0, len(edges))
	for _, e := range edges {
		out = append(out, toFollow(e))
	}
	return out
}

// Get returns the edge for the pair, or nil.
func (r *FollowRepository) Get(ctx context.Context, followerID, targetID string) (*graph.Follow, error) {
	e, err := r.t.get(ctx, followerID, targetID)
	if err != nil {
		return nil, err
	}
	return toFollow(e), nil
}

// Insert stores the edge unless the pair already exists.
func (r *FollowRepository) Insert(ctx context.Context, follow *graph.Follow) (bool, error) {
	return r.t.insert(ctx, edgeRow{
		ID:         follow.ID,
		SourceID:   follow.FollowerID,
		TargetID:   follow.TargetID,
		TargetType: follow.TargetType,
		CreatedAt:  follow.CreatedAt,
	})
}

// Delete removes the edge for the pair and returns it.
func (r *FollowRepository) Delete(ctx context.Context, followerID, targetID string) (*graph.Follow, bool, error) {
	e, ok, err := r.t.delete(ctx, followerID, targetID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return toFollow(e), true, nil
}

// ListByTarget returns followers of a target, newest first.
func (r *FollowRepository) ListByTarget(ctx context.Context, targetID string, opts graph.ListOptions) ([]*graph.Follow, error) {
	edges, err := r.t.list(ctx, "target_id", targetID, opts)
	if err != nil {
		return nil, err
	}
	return toFollows(edges), nil
}

// ListBySource returns what an account follows, newest first.
func (r *FollowRepository) ListBySource(ctx context.Context, followerID string, opts graph.ListOptions) ([]*graph.Follow, error) {
	edges, err := r.t.list(ctx, "follower_id", followerID, opts)
	if err != nil {
		return nil, err
	}
	return toFollows(edges), nil
}

// Exists reports whether the pair has an edge.
func (r *FollowRepository) Exists(ctx context.Context, followerID, targetID string) (bool, error) {
	return r.t.exists(ctx, followerID, targetID)
}

// CountByTarget counts followers of the target.
func (r *FollowRepository) CountByTarget(ctx context.Context, targetID string) (int, error) {
	return r.t.count(ctx, "target_id", targetID)
}

// CountBySource counts the targets an account follows.
func (r *FollowRepository) CountBySource(ctx context.Context, followerID string) (int, error) {
	return r.t.count(ctx, "follower_id", followerID)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIKES
// ══════════════════════════════════════════════════════════════════════════════

// LikeRepository implements graph.LikeRepository.
type LikeRepository struct {
	t edgeTable
}

// NewLikeRepository creates a repository over a pool or a transaction.
func NewLikeRepository(q Querier) *LikeRepository {
	return &LikeRepository{t: edgeTable{q: q, table: "likes", sourceCol: "user_id"}}
}

func toLike(e *edgeRow) *graph.Like {
	if e == nil {
		return nil
	}
	return &graph.Like{
		ID:         e.ID,
		UserID:     e.SourceID,
		TargetID:   e.TargetID,
		TargetType: e.TargetType,
		CreatedAt:  e.CreatedAt,
	}
}

func toLikes(edges []*edgeRow) []*graph.Like {
	out := make([]*graph.Like, 0, len(edges))
	for _, e := range edges {
		out = append(out, toLike(e))
	}
	return out
}

// Get returns the edge for the pair, or nil.
func (r *LikeRepository) Get(ctx context.Context, userID, targetID string) (*graph.Like, error) {
	e, err := r.t.get(ctx, userID, targetID)
	if err != nil {
		return nil, err
	}
	return toLike(e), nil
}

// Insert stores the edge unless the pair already exists.
func (r *LikeRepository) Insert(ctx context.Context, like *graph.Like) (bool, error) {
	return r.t.insert(ctx, edgeRow{
		ID:         like.ID,
		SourceID:   like.UserID,
		TargetID:   like.TargetID,
		TargetType: like.TargetType,
		CreatedAt:  like.CreatedAt,
	})
}

// Delete removes the edge for the pair and returns it.
func (r *LikeRepository) Delete(ctx context.Context, userID, targetID string) (*graph.Like, bool, error) {
	e, ok, err := r.t.delete(ctx, userID, targetID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return toLike(e), true, nil
}

// ListByTarget returns likers of a target, newest first.
func (r *LikeRepository) ListByTarget(ctx context.Context, targetID string, opts graph.ListOptions) ([]*graph.Like, error) {
	edges, err := r.t.list(ctx, "target_id", targetID, opts)
	if err != nil {
		return nil, err
	}
	return toLikes(edges), nil
}

// ListBySource returns what an account likes, newest first.
func (r *LikeRepository) ListBySource(ctx context.Context, userID string, opts graph.ListOptions) ([]*graph.Like, error) {
	edges, err := r.t.list(ctx, "user_id", userID, opts)
	if err != nil {
		return nil, err
	}
	return toLikes(edges), nil
}

// Exists reports whether the pair has an edge.
func (r *LikeRepository) Exists(ctx context.Context, userID, targetID string) (bool, error) {
	return r.t.exists(ctx, userID, targetID)
}

// CountByTarget counts likes of the target.
func (r *LikeRepository) CountByTarget(ctx context.Context, targetID string) (int, error) {
	return r.t.count(ctx, "target_id", targetID)
}
