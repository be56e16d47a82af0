package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

func newAccount(t *testing.T, username string) *graph.Account {
	t.Helper()
	acc, err := graph.NewAccount(graph.NewAccountParams{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return acc
}

func newProfile(t *testing.T, slug string) *graph.Profile {
	t.Helper()
	p, err := graph.NewProfile(graph.NewProfileParams{
		ID:         uuid.NewString(),
		Slug:       slug,
		EntityType: graph.ProfileType(graph.TargetCommunity),
		Name:       "Community",
	})
	require.NoError(t, err)
	return p
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	acc := newAccount(t, "alice")
	require.NoError(t, s.Repositories().Accounts.Create(ctx, acc))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(repos graph.Repositories) error {
		require.NoError(t, repos.Accounts.AdjustCounter(ctx, acc.ID, graph.CounterFollowers, 5))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Repositories().Accounts.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FollowersCount)
}

func TestStore_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	acc := newAccount(t, "alice")
	require.NoError(t, s.Repositories().Accounts.Create(ctx, acc))

	err := s.WithinTx(ctx, func(repos graph.Repositories) error {
		return repos.Accounts.AdjustCounter(ctx, acc.ID, graph.CounterLikes, 2)
	})
	require.NoError(t, err)

	got, err := s.Repositories().Accounts.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.LikesCount)
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStore()
	err := s.WithinTx(ctx, func(graph.Repositories) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Repositories().Accounts.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAccounts_UniqueUsernameAndClamp(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()

	acc := newAccount(t, "bob")
	require.NoError(t, repos.Accounts.Create(ctx, acc))
	assert.ErrorIs(t, repos.Accounts.Create(ctx, newAccount(t, "bob")), shared.ErrUsernameTaken)

	require.NoError(t, repos.Accounts.AdjustCounter(ctx, acc.ID, graph.CounterFollowing, -3))
	got, err := repos.Accounts.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FollowingCount)

	err = repos.Accounts.AdjustCounter(ctx, acc.ID, graph.CounterReviews, 1)
	assert.ErrorIs(t, err, shared.ErrCounterNotSupported)

	err = repos.Accounts.AdjustCounter(ctx, uuid.NewString(), graph.CounterFollowers, 1)
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)

	found, err := repos.Accounts.GetByIDs(ctx, []string{acc.ID, uuid.NewString()})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, acc.ID)
}

func TestProfiles_SlugAndAggregate(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()

	p := newProfile(t, "river-club")
	require.NoError(t, repos.Profiles.Create(ctx, p))
	assert.ErrorIs(t, repos.Profiles.Create(ctx, newProfile(t, "river-club")), shared.ErrSlugTaken)

	require.NoError(t, repos.Profiles.SetReviewAggregate(ctx, p.ID, 3, 4.0))
	got, err := repos.Profiles.GetForUpdate(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ReviewsCount)
	assert.InDelta(t, 4.0, got.Rating, 1e-9)

	require.NoError(t, repos.Profiles.SetCounter(ctx, p.ID, graph.CounterMembers, 7))
	got, err = repos.Profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.MembersCount)

	assert.ErrorIs(t, repos.Profiles.SetCounter(ctx, p.ID, graph.CounterFollowing, 1), shared.ErrCounterNotSupported)
}

func TestFollows_InsertIsUniquePerPair(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()
	src, dst := uuid.NewString(), uuid.NewString()

	edge := &graph.Follow{ID: uuid.NewString(), FollowerID: src, TargetID: dst, TargetType: graph.TargetUser, CreatedAt: time.Now()}
	created, err := repos.Follows.Insert(ctx, edge)
	require.NoError(t, err)
	assert.True(t, created)

	dup := *edge
	dup.ID = uuid.NewString()
	created, err = repos.Follows.Insert(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := repos.Follows.Get(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, edge.ID, got.ID)

	n, err := repos.Follows.CountByTarget(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, ok, err := repos.Follows.Delete(ctx, src, dst)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, edge.ID, removed.ID)

	_, ok, err = repos.Follows.Delete(ctx, src, dst)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLikes_ListOrderingTiesBrokenByInsertion(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()
	target := uuid.NewString()
	at := time.Now()

	var ids []string
	for i := 0; i < 4; i++ {
		l := &graph.Like{ID: uuid.NewString(), UserID: uuid.NewString(), TargetID: target, TargetType: graph.TargetArtist, CreatedAt: at}
		_, err := repos.Likes.Insert(ctx, l)
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}

	likes, err := repos.Likes.ListByTarget(ctx, target, graph.ListOptions{})
	require.NoError(t, err)
	require.Len(t, likes, 4)
	assert.Equal(t, ids[3], likes[0].ID)
	assert.Equal(t, ids[0], likes[3].ID)

	page, err := repos.Likes.ListByTarget(ctx, target, graph.ListOptions{Limit: 2, Offset: 3})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
}

func TestReviews_RatingsAndDelete(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()
	target := uuid.NewString()

	r1 := &graph.Review{ID: uuid.NewString(), UserID: uuid.NewString(), TargetID: target, Rating: 5, CreatedAt: time.Now()}
	r2 := &graph.Review{ID: uuid.NewString(), UserID: r1.UserID, TargetID: target, Rating: 2, CreatedAt: time.Now()}
	require.NoError(t, repos.Reviews.Create(ctx, r1))
	require.NoError(t, repos.Reviews.Create(ctx, r2))

	ratings, err := repos.Reviews.RatingsByTarget(ctx, target)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{5, 2}, ratings)

	_, ok, err := repos.Reviews.Delete(ctx, r1.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repos.Reviews.GetByID(ctx, r1.ID)
	assert.ErrorIs(t, err, shared.ErrReviewNotFound)
}
