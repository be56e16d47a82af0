package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MEMBERS QUERY
// Members of a profile are the accounts with a live follow edge to it.
// Followers are resolved with one batch lookup rather than one per edge.
// ══════════════════════════════════════════════════════════════════════════════

// GetMembersQuery identifies the profile.
type GetMembersQuery struct {
	ProfileID string
	Page      Page
}

// Validate validates the query.
func (q GetMembersQuery) Validate() error {
	return requireID("GetMembers", "profileId", q.ProfileID)
}

// GetMembersHandler handles the GetMembersQuery.
type GetMembersHandler struct {
	store graph.Store
}

// NewGetMembersHandler creates a new GetMembersHandler.
func NewGetMembersHandler(store graph.Store) *GetMembersHandler {
	return &GetMembersHandler{store: store}
}

// Handle returns the member accounts in follow recency order, each at most
// once. Edges whose follower no longer resolves are skipped.
func (h *GetMembersHandler) Handle(ctx context.Context, q GetMembersQuery) (members []*graph.Account, err error) {
	ctx, span := startSpan(ctx, "GetMembers", attribute.String("graph.profile_id", q.ProfileID))
	defer func() { finishSpan(span, err) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}
	opts, err := q.Page.options()
	if err != nil {
		return nil, err
	}

	repos := h.store.Repositories()
	edges, err := repos.Follows.ListByTarget(ctx, q.ProfileID, opts)
	if err != nil {
		return nil, fmt.Errorf("get_members: list followers: %w", err)
	}

	ids := followerIDs(edges)
	if len(ids) == 0 {
		return []*graph.Account{}, nil
	}

	accounts, err := repos.Accounts.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get_members: load accounts: %w", err)
	}

	members = make([]*graph.Account, 0, len(ids))
	for _, id := range ids {
		if acc, ok := accounts[id]; ok {
			members = append(members, acc)
		}
	}
	span.SetAttributes(attribute.Int("graph.members", len(members)))
	return members, nil
}

// followerIDs returns the distinct follower ids in edge order.
func followerIDs(edges []*graph.Follow) []string {
	seen := make(map[string]struct{}, len(edges))
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		if _, dup := seen[e.FollowerID]; dup {
			continue
		}
		seen[e.FollowerID] = struct{}{}
		ids = append(ids, e.FollowerID)
	}
	return ids
}
