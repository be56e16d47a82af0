package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/socialgraph/internal/application/command"
	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
	"github.com/alem-hub/socialgraph/internal/infrastructure/persistence/memory"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type graphFixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	n     int
}

func (g *graphFixture) account() *graph.Account {
	g.t.Helper()
	g.n++
	acc, err := graph.NewAccount(graph.NewAccountParams{
		ID:           uuid.NewString(),
		Username:     fmt.Sprintf("member_%d", g.n),
		PasswordHash: "hash",
	})
	require.NoError(g.t, err)
	require.NoError(g.t, g.store.Repositories().Accounts.Create(g.ctx, acc))
	return acc
}

func (g *graphFixture) profile() *graph.Profile {
	g.t.Helper()
	g.n++
	p, err := graph.NewProfile(graph.NewProfileParams{
		ID:         uuid.NewString(),
		Slug:       fmt.Sprintf("venue-%d", g.n),
		EntityType: graph.ProfileType(graph.TargetVenue),
		Name:       "Venue",
	})
	require.NoError(g.t, err)
	require.NoError(g.t, g.store.Repositories().Profiles.Create(g.ctx, p))
	return p
}

// seed builds a small consistent graph: u1 follows u2 and p, u2 likes p,
// u1 reviews p twice.
func seed(t *testing.T) (*graphFixture, *graph.Account, *graph.Account, *graph.Profile) {
	t.Helper()
	g := &graphFixture{t: t, ctx: context.Background(), store: memory.NewStore()}
	u1, u2, p := g.account(), g.account(), g.profile()

	follow := command.NewFollowHandler(g.store, nil)
	_, err := follow.Handle(g.ctx, command.FollowCommand{FollowerID: u1.ID, TargetID: u2.ID, TargetType: graph.TargetUser})
	require.NoError(t, err)
	_, err = follow.Handle(g.ctx, command.FollowCommand{FollowerID: u1.ID, TargetID: p.ID, TargetType: graph.TargetVenue})
	require.NoError(t, err)

	_, err = command.NewLikeHandler(g.store, nil).Handle(g.ctx,
		command.LikeCommand{UserID: u2.ID, TargetID: p.ID, TargetType: graph.TargetVenue})
	require.NoError(t, err)

	review := command.NewCreateReviewHandler(g.store, nil)
	for _, r := range []int{5, 2} {
		_, err = review.Handle(g.ctx, command.CreateReviewCommand{UserID: u1.ID, TargetID: p.ID, Rating: r})
		require.NoError(t, err)
	}
	return g, u1, u2, p
}

func TestReconcile_ConsistentGraphHasNoCorrections(t *testing.T) {
	g, _, _, _ := seed(t)
	pub := &capturePublisher{}
	job := NewReconcileCountersJob(g.store, pub, nil, ReconcileCountersConfig{})

	stats, err := job.Reconcile(g.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.AccountsChecked)
	assert.Equal(t, 1, stats.ProfilesChecked)
	assert.Empty(t, stats.Corrections)

	require.Len(t, pub.events, 1)
	ev, ok := pub.events[0].(shared.CountersReconciledEvent)
	require.True(t, ok)
	assert.Equal(t, 3, ev.Checked)
	assert.Zero(t, ev.Corrections)
}

func TestReconcile_RepairsDrift(t *testing.T) {
	g, u1, u2, p := seed(t)
	repos := g.store.Repositories()

	require.NoError(t, repos.Accounts.SetCounter(g.ctx, u1.ID, graph.CounterFollowing, 7))
	require.NoError(t, repos.Accounts.SetCounter(g.ctx, u2.ID, graph.CounterFollowers, 0))
	require.NoError(t, repos.Profiles.SetCounter(g.ctx, p.ID, graph.CounterMembers, 9))
	require.NoError(t, repos.Profiles.SetReviewAggregate(g.ctx, p.ID, 1, 5))

	job := NewReconcileCountersJob(g.store, nil, nil, ReconcileCountersConfig{})
	stats, err := job.Reconcile(g.ctx)
	require.NoError(t, err)
	assert.Len(t, stats.Corrections, 5)
	assert.Same(t, stats, job.LastStats())

	a1, err := repos.Accounts.GetByID(g.ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, a1.FollowingCount)

	a2, err := repos.Accounts.GetByID(g.ctx, u2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a2.FollowersCount)

	prof, err := repos.Profiles.GetByID(g.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, prof.FollowersCount)
	assert.Equal(t, 1, prof.MembersCount)
	assert.Equal(t, 1, prof.LikesCount)
	assert.Equal(t, 2, prof.ReviewsCount)
	assert.InDelta(t, 3.5, prof.Rating, 1e-9)

	again, err := job.Reconcile(g.ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Corrections)
}

func TestReconcile_DryRunLeavesCounters(t *testing.T) {
	g, u1, _, _ := seed(t)
	repos := g.store.Repositories()
	require.NoError(t, repos.Accounts.SetCounter(g.ctx, u1.ID, graph.CounterFollowing, 0))

	job := NewReconcileCountersJob(g.store, nil, nil, ReconcileCountersConfig{DryRun: true})
	stats, err := job.Reconcile(g.ctx)
	require.NoError(t, err)
	assert.False(t, stats.Applied)
	require.Len(t, stats.Corrections, 1)
	assert.Equal(t, Correction{
		Family:  "account",
		ID:      u1.ID,
		Counter: string(graph.CounterFollowing),
		Stored:  0,
		Actual:  2,
	}, stats.Corrections[0])

	a1, err := repos.Accounts.GetByID(g.ctx, u1.ID)
	require.NoError(t, err)
	assert.Zero(t, a1.FollowingCount)
}

func TestReconcile_StopsOnCancelledContext(t *testing.T) {
	g, _, _, _ := seed(t)
	ctx, cancel := context.WithCancel(g.ctx)
	cancel()

	job := NewReconcileCountersJob(g.store, nil, nil, ReconcileCountersConfig{})
	assert.Error(t, job.Run(ctx))
}

func TestReconcile_JobIdentity(t *testing.T) {
	job := NewReconcileCountersJob(memory.NewStore(), nil, nil, ReconcileCountersConfig{})
	assert.Equal(t, "reconcile_counters", job.Name())
	assert.NotEmpty(t, job.Description())
	assert.Nil(t, job.LastStats())
}
