package command

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

func TestFollow_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	u1 := f.account()
	u2 := f.account()

	first := f.follow(u1.ID, u2.ID, graph.TargetUser)
	second := f.follow(u1.ID, u2.ID, graph.TargetUser)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Follow.ID, second.Follow.ID)

	assert.Equal(t, 1, f.reloadAccount(u2.ID).FollowersCount)
	assert.Equal(t, 1, f.reloadAccount(u1.ID).FollowingCount)

	n, err := f.store.Repositories().Follows.CountByTarget(f.ctx, u2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []shared.EventType{shared.EventFollowCreated}, f.pub.types())
}

func TestFollowThenUnfollow_RestoresCounters(t *testing.T) {
	f := newFixture(t)
	u1 := f.account()
	p1 := f.profile("community")

	f.follow(u1.ID, p1.ID, graph.TargetCommunity)
	assert.True(t, f.unfollow(u1.ID, p1.ID))

	p := f.reloadProfile(p1.ID)
	assert.Zero(t, p.FollowersCount)
	assert.Zero(t, p.MembersCount)
	assert.Zero(t, f.reloadAccount(u1.ID).FollowingCount)

	assert.Equal(t, []shared.EventType{shared.EventFollowCreated, shared.EventFollowRemoved}, f.pub.types())
}

func TestFollow_RoutesCountersByTargetType(t *testing.T) {
	f := newFixture(t)
	follower := f.account()

	// An account and a profile sharing one id: only the tagged table moves.
	sharedID := uuid.NewString()
	acc := f.accountWithID(sharedID)
	prof := f.profileWithID(sharedID, "venue")

	f.follow(follower.ID, sharedID, graph.TargetVenue)
	assert.Equal(t, 1, f.reloadProfile(prof.ID).FollowersCount)
	assert.Equal(t, 1, f.reloadProfile(prof.ID).MembersCount)
	assert.Zero(t, f.reloadAccount(acc.ID).FollowersCount)

	other := f.account()
	f.follow(other.ID, sharedID, graph.TargetUser)
	assert.Equal(t, 1, f.reloadAccount(acc.ID).FollowersCount)
	assert.Equal(t, 1, f.reloadProfile(prof.ID).FollowersCount)
}

func TestUnfollow_UsesStoredTargetType(t *testing.T) {
	f := newFixture(t)
	u1 := f.account()
	p1 := f.profile("business")

	f.follow(u1.ID, p1.ID, graph.TargetBusiness)
	assert.True(t, f.unfollow(u1.ID, p1.ID))
	assert.Zero(t, f.reloadProfile(p1.ID).FollowersCount)
}

func TestUnfollow_NonexistentIsNoop(t *testing.T) {
	f := newFixture(t)
	u1 := f.account()
	u2 := f.account()
	f.follow(u2.ID, u1.ID, graph.TargetUser)

	assert.False(t, f.unfollow(u1.ID, u2.ID))

	assert.Equal(t, 1, f.reloadAccount(u1.ID).FollowersCount)
	assert.Zero(t, f.reloadAccount(u1.ID).FollowingCount)
	assert.Zero(t, f.reloadAccount(u2.ID).FollowersCount)
	assert.Equal(t, 1, f.reloadAccount(u2.ID).FollowingCount)
	assert.Equal(t, []shared.EventType{shared.EventFollowCreated}, f.pub.types())
}

func TestUnfollow_ClampsAtZero(t *testing.T) {
	f := newFixture(t)
	u1 := f.account()
	p1 := f.profile("venue")
	f.follow(u1.ID, p1.ID, graph.TargetVenue)

	// Simulate a counter that drifted down behind the service's back.
	repos := f.store.Repositories()
	require.NoError(t, repos.Profiles.SetCounter(f.ctx, p1.ID, graph.CounterFollowers, 0))
	require.NoError(t, repos.Accounts.SetCounter(f.ctx, u1.ID, graph.CounterFollowing, 0))

	assert.True(t, f.unfollow(u1.ID, p1.ID))
	assert.Zero(t, f.reloadProfile(p1.ID).FollowersCount)
	assert.Zero(t, f.reloadAccount(u1.ID).FollowingCount)
	assert.False(t, f.unfollow(u1.ID, p1.ID))
	assert.Zero(t, f.reloadProfile(p1.ID).FollowersCount)
}

func TestFollow_Rejections(t *testing.T) {
	f := newFixture(t)
	u1 := f.account()
	h := NewFollowHandler(f.store, f.pub)

	_, err := h.Handle(f.ctx, FollowCommand{FollowerID: u1.ID, TargetID: u1.ID, TargetType: graph.TargetUser})
	assert.ErrorIs(t, err, shared.ErrSelfFollow)
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(f.ctx, FollowCommand{FollowerID: u1.ID, TargetID: uuid.NewString(), TargetType: "planet"})
	assert.ErrorIs(t, err, shared.ErrInvalidTargetType)

	_, err = h.Handle(f.ctx, FollowCommand{FollowerID: "", TargetID: uuid.NewString(), TargetType: graph.TargetUser})
	assert.True(t, shared.IsValidation(err))

	assert.Empty(t, f.pub.types())
}

func TestFollow_MissingTargetRollsBack(t *testing.T) {
	f := newFixture(t)
	u1 := f.account()
	ghost := uuid.NewString()

	_, err := NewFollowHandler(f.store, f.pub).Handle(f.ctx, FollowCommand{
		FollowerID: u1.ID,
		TargetID:   ghost,
		TargetType: graph.TargetVenue,
	})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))

	exists, err := f.store.Repositories().Follows.Exists(f.ctx, u1.ID, ghost)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, f.reloadAccount(u1.ID).FollowingCount)
}

func TestFollow_MissingFollowerRollsBack(t *testing.T) {
	f := newFixture(t)
	p1 := f.profile("venue")
	ghost := uuid.NewString()

	_, err := NewFollowHandler(f.store, f.pub).Handle(f.ctx, FollowCommand{
		FollowerID: ghost,
		TargetID:   p1.ID,
		TargetType: graph.TargetVenue,
	})
	assert.True(t, shared.IsNotFound(err))
	assert.Zero(t, f.reloadProfile(p1.ID).FollowersCount)
}

// Random follow/unfollow sequences over a small id set must keep every
// counter equal to the live edge count.
func TestFollowCounters_MatchLiveEdges(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(42))

	accounts := []*graph.Account{f.account(), f.account(), f.account(), f.account()}
	profiles := []*graph.Profile{f.profile("venue"), f.profile("artist")}

	type target struct {
		id string
		tt graph.TargetType
	}
	var targets []target
	for _, a := range accounts {
		targets = append(targets, target{a.ID, graph.TargetUser})
	}
	targets = append(targets, target{profiles[0].ID, graph.TargetVenue}, target{profiles[1].ID, graph.TargetArtist})

	follow := NewFollowHandler(f.store, nil)
	unfollow := NewUnfollowHandler(f.store, nil)
	repos := f.store.Repositories()

	for step := 0; step < 400; step++ {
		src := accounts[rng.Intn(len(accounts))]
		dst := targets[rng.Intn(len(targets))]
		if src.ID == dst.id {
			continue
		}
		if rng.Intn(2) == 0 {
			_, err := follow.Handle(f.ctx, FollowCommand{FollowerID: src.ID, TargetID: dst.id, TargetType: dst.tt})
			require.NoError(t, err)
		} else {
			_, err := unfollow.Handle(f.ctx, UnfollowCommand{FollowerID: src.ID, TargetID: dst.id})
			require.NoError(t, err)
		}

		for _, a := range accounts {
			followers, err := repos.Follows.CountByTarget(f.ctx, a.ID)
			require.NoError(t, err)
			following, err := repos.Follows.CountBySource(f.ctx, a.ID)
			require.NoError(t, err)
			got := f.reloadAccount(a.ID)
			require.Equal(t, followers, got.FollowersCount, "step %d", step)
			require.Equal(t, following, got.FollowingCount, "step %d", step)
		}
		for _, p := range profiles {
			followers, err := repos.Follows.CountByTarget(f.ctx, p.ID)
			require.NoError(t, err)
			got := f.reloadProfile(p.ID)
			require.Equal(t, followers, got.FollowersCount, "step %d", step)
			require.Equal(t, followers, got.MembersCount, "step %d", step)
		}
	}
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	u1 := f.account()
	u2 := f.account()
	p1 := f.profile("venue")

	f.follow(u1.ID, p1.ID, graph.TargetVenue)
	assert.Equal(t, 1, f.reloadProfile(p1.ID).FollowersCount)
	assert.Equal(t, 1, f.reloadAccount(u1.ID).FollowingCount)

	f.follow(u1.ID, p1.ID, graph.TargetVenue)
	assert.Equal(t, 1, f.reloadProfile(p1.ID).FollowersCount)
	assert.Equal(t, 1, f.reloadAccount(u1.ID).FollowingCount)

	f.review(u2.ID, p1.ID, 5)
	p := f.reloadProfile(p1.ID)
	assert.Equal(t, 1, p.ReviewsCount)
	assert.Equal(t, 5.0, p.Rating)

	f.review(u2.ID, p1.ID, 3)
	p = f.reloadProfile(p1.ID)
	assert.Equal(t, 2, p.ReviewsCount)
	assert.Equal(t, 4.0, p.Rating)

	assert.True(t, f.unfollow(u1.ID, p1.ID))
	assert.Zero(t, f.reloadProfile(p1.ID).FollowersCount)
	assert.Zero(t, f.reloadAccount(u1.ID).FollowingCount)
}

func TestFollowUnfollow_InvalidateRelationCache(t *testing.T) {
	f := newFixture(t)
	u1, u2 := f.account(), f.account()
	cache := &recordingCache{}
	follow := NewFollowHandler(f.store, f.pub).WithRelationCache(cache)
	unfollow := NewUnfollowHandler(f.store, f.pub).WithRelationCache(cache)

	_, err := follow.Handle(f.ctx, FollowCommand{FollowerID: u1.ID, TargetID: u2.ID, TargetType: graph.TargetUser})
	require.NoError(t, err)
	_, err = follow.Handle(f.ctx, FollowCommand{FollowerID: u1.ID, TargetID: u2.ID, TargetType: graph.TargetUser})
	require.NoError(t, err)
	_, err = unfollow.Handle(f.ctx, UnfollowCommand{FollowerID: u1.ID, TargetID: u2.ID})
	require.NoError(t, err)

	want := "follow:" + u1.ID + ":" + u2.ID
	assert.Equal(t, []string{want, want}, cache.invalidated)

	// A failed transaction leaves the cache alone.
	_, err = follow.Handle(f.ctx, FollowCommand{FollowerID: u1.ID, TargetID: uuid.NewString(), TargetType: graph.TargetUser})
	require.Error(t, err)
	assert.Len(t, cache.invalidated, 2)
}

func TestFollow_CacheFailureDoesNotFailCommand(t *testing.T) {
	f := newFixture(t)
	u1, u2 := f.account(), f.account()
	cache := &recordingCache{err: errors.New("redis down")}

	res, err := NewFollowHandler(f.store, f.pub).WithRelationCache(cache).Handle(f.ctx, FollowCommand{
		FollowerID: u1.ID, TargetID: u2.ID, TargetType: graph.TargetUser,
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, f.reloadAccount(u2.ID).FollowersCount)
}
