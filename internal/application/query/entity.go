package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
)

// GetAccountHandler loads one account by id.
type GetAccountHandler struct {
	store graph.Store
}

// NewGetAccountHandler creates a new GetAccountHandler.
func NewGetAccountHandler(store graph.Store) *GetAccountHandler {
	return &GetAccountHandler{store: store}
}

// Handle returns shared.ErrAccountNotFound for an unknown id.
func (h *GetAccountHandler) Handle(ctx context.Context, id string) (account *graph.Account, err error) {
	ctx, span := startSpan(ctx, "GetAccount", attribute.String("graph.account_id", id))
	defer func() { finishSpan(span, err) }()

	if err := requireID("GetAccount", "id", id); err != nil {
		return nil, err
	}
	account, err = h.store.Repositories().Accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get_account: %w", err)
	}
	return account, nil
}

// GetProfileHandler loads one profile by id.
type GetProfileHandler struct {
	store graph.Store
}

// NewGetProfileHandler creates a new GetProfileHandler.
func NewGetProfileHandler(store graph.Store) *GetProfileHandler {
	return &GetProfileHandler{store: store}
}

// Handle returns shared.ErrProfileNotFound for an unknown id.
func (h *GetProfileHandler) Handle(ctx context.Context, id string) (profile *graph.Profile, err error) {
	ctx, span := startSpan(ctx, "GetProfile", attribute.String("graph.profile_id", id))
	defer func() { finishSpan(span, err) }()

	if err := requireID("GetProfile", "id", id); err != nil {
		return nil, err
	}
	profile, err = h.store.Repositories().Profiles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get_profile: %w", err)
	}
	return profile, nil
}
