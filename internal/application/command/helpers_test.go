package command

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
	"github.com/alem-hub/socialgraph/internal/infrastructure/persistence/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// recordingCache records invalidations as "relation:source:target".
type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
	err         error
}

func (c *recordingCache) Get(context.Context, graph.Relation, string, string) (graph.RelationLookup, error) {
	return graph.RelationLookup{}, nil
}

func (c *recordingCache) Fill(context.Context, graph.Relation, string, string, bool, string) error {
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, rel graph.Relation, sourceID, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.invalidated = append(c.invalidated, string(rel)+":"+sourceID+":"+targetID)
	return nil
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	pub   *recordingPublisher
	seq   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStore(),
		pub:   &recordingPublisher{},
	}
}

func (f *fixture) account() *graph.Account {
	return f.accountWithID(uuid.NewString())
}

func (f *fixture) accountWithID(id string) *graph.Account {
	f.t.Helper()
	f.seq++
	acc, err := graph.NewAccount(graph.NewAccountParams{
		ID:           id,
		Username:     fmt.Sprintf("user_%d", f.seq),
		PasswordHash: "hash",
		DisplayName:  fmt.Sprintf("User %d", f.seq),
	})
	require.NoError(f.t, err)
	require.NoError(f.t, f.store.Repositories().Accounts.Create(f.ctx, acc))
	return acc
}

func (f *fixture) profile(entityType graph.ProfileType) *graph.Profile {
	return f.profileWithID(uuid.NewString(), entityType)
}

func (f *fixture) profileWithID(id string, entityType graph.ProfileType) *graph.Profile {
	f.t.Helper()
	f.seq++
	p, err := graph.NewProfile(graph.NewProfileParams{
		ID:         id,
		Slug:       fmt.Sprintf("profile-%d", f.seq),
		EntityType: entityType,
		Name:       fmt.Sprintf("Profile %d", f.seq),
	})
	require.NoError(f.t, err)
	require.NoError(f.t, f.store.Repositories().Profiles.Create(f.ctx, p))
	return p
}

func (f *fixture) reloadAccount(id string) *graph.Account {
	f.t.Helper()
	acc, err := f.store.Repositories().Accounts.GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return acc
}

func (f *fixture) reloadProfile(id string) *graph.Profile {
	f.t.Helper()
	p, err := f.store.Repositories().Profiles.GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) follow(followerID, targetID string, targetType graph.TargetType) *FollowResult {
	f.t.Helper()
	res, err := NewFollowHandler(f.store, f.pub).Handle(f.ctx, FollowCommand{
		FollowerID: followerID,
		TargetID:   targetID,
		TargetType: targetType,
	})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) unfollow(followerID, targetID string) bool {
	f.t.Helper()
	res, err := NewUnfollowHandler(f.store, f.pub).Handle(f.ctx, UnfollowCommand{
		FollowerID: followerID,
		TargetID:   targetID,
	})
	require.NoError(f.t, err)
	return res.Removed
}

func (f *fixture) review(userID, targetID string, rating int) *CreateReviewResult {
	f.t.Helper()
	res, err := NewCreateReviewHandler(f.store, f.pub).Handle(f.ctx, CreateReviewCommand{
		UserID:   userID,
		TargetID: targetID,
		Rating:   rating,
	})
	require.NoError(f.t, err)
	return res
}
