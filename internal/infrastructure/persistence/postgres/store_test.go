package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/alem-hub/socialgraph/internal/application/command"
	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
	"github.com/alem-hub/socialgraph/internal/infrastructure/persistence/postgres"
)

// StoreSuite runs against a real database named by TEST_DATABASE_URL.
type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	conn  *postgres.Connection
	store *postgres.Store
}

func TestStoreSuite(t *testing.T) {
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.ctx = context.Background()

	cfg := postgres.DefaultConfig()
	cfg.URL = os.Getenv("TEST_DATABASE_URL")

	conn, err := postgres.NewConnection(s.ctx, cfg)
	s.Require().NoError(err)
	s.conn = conn

	_, err = postgres.NewMigrator(conn).Migrate(s.ctx)
	s.Require().NoError(err)

	s.store = postgres.NewStore(conn)
}

func (s *StoreSuite) TearDownSuite() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *StoreSuite) SetupTest() {
	_, err := s.conn.Exec(s.ctx, `TRUNCATE reviews, likes, follows, profiles, accounts`)
	s.Require().NoError(err)
}

func (s *StoreSuite) account(username string) *graph.Account {
	acc, err := graph.NewAccount(graph.NewAccountParams{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: "x",
	})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Repositories().Accounts.Create(s.ctx, acc))
	return acc
}

func (s *StoreSuite) profile(slug string) *graph.Profile {
	p, err := graph.NewProfile(graph.NewProfileParams{
		ID:         uuid.NewString(),
		Slug:       slug,
		EntityType: graph.ProfileType(graph.TargetVenue),
		Name:       slug,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Repositories().Profiles.Create(s.ctx, p))
	return p
}

func (s *StoreSuite) TestMigratorStatus() {
	status, err := postgres.NewMigrator(s.conn).Status(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(status, len(postgres.GetMigrations()))
	for _, m := range status {
		s.True(m.IsApplied, "migration %d", m.Version)
	}
}

func (s *StoreSuite) TestAccountUniquenessAndCounters() {
	a := s.account("alice")

	dup, err := graph.NewAccount(graph.NewAccountParams{ID: uuid.NewString(), Username: "alice", PasswordHash: "x"})
	s.Require().NoError(err)
	s.ErrorIs(s.store.Repositories().Accounts.Create(s.ctx, dup), shared.ErrUsernameTaken)

	repo := s.store.Repositories().Accounts
	s.Require().NoError(repo.AdjustCounter(s.ctx, a.ID, graph.CounterFollowers, -3))
	got, err := repo.GetByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(0, got.FollowersCount)

	s.ErrorIs(repo.AdjustCounter(s.ctx, uuid.NewString(), graph.CounterFollowers, 1), shared.ErrAccountNotFound)
	s.ErrorIs(repo.AdjustCounter(s.ctx, a.ID, graph.CounterMembers, 1), shared.ErrCounterNotSupported)

	_, err = repo.GetByID(s.ctx, uuid.NewString())
	s.ErrorIs(err, shared.ErrAccountNotFound)
}

func (s *StoreSuite) TestFollowFlow() {
	alice := s.account("alice")
	bob := s.account("bob")
	venue := s.profile("blue-room")

	follow := command.NewFollowHandler(s.store, nil)
	unfollow := command.NewUnfollowHandler(s.store, nil)

	res, err := follow.Handle(s.ctx, command.FollowCommand{FollowerID: alice.ID, TargetID: bob.ID, TargetType: graph.TargetUser})
	s.Require().NoError(err)
	s.True(res.Created)

	again, err := follow.Handle(s.ctx, command.FollowCommand{FollowerID: alice.ID, TargetID: bob.ID, TargetType: graph.TargetUser})
	s.Require().NoError(err)
	s.False(again.Created)
	s.Equal(res.Follow.ID, again.Follow.ID)

	_, err = follow.Handle(s.ctx, command.FollowCommand{FollowerID: alice.ID, TargetID: venue.ID, TargetType: graph.TargetVenue})
	s.Require().NoError(err)

	repos := s.store.Repositories()
	a, _ := repos.Accounts.GetByID(s.ctx, alice.ID)
	b, _ := repos.Accounts.GetByID(s.ctx, bob.ID)
	v, _ := repos.Profiles.GetByID(s.ctx, venue.ID)
	s.Equal(2, a.FollowingCount)
	s.Equal(1, b.FollowersCount)
	s.Equal(1, v.FollowersCount)
	s.Equal(1, v.MembersCount)

	out, err := unfollow.Handle(s.ctx, command.UnfollowCommand{FollowerID: alice.ID, TargetID: venue.ID})
	s.Require().NoError(err)
	s.True(out.Removed)

	v, _ = repos.Profiles.GetByID(s.ctx, venue.ID)
	s.Equal(0, v.FollowersCount)
	s.Equal(0, v.MembersCount)

	out, err = unfollow.Handle(s.ctx, command.UnfollowCommand{FollowerID: alice.ID, TargetID: venue.ID})
	s.Require().NoError(err)
	s.False(out.Removed)
}

func (s *StoreSuite) TestFollowUnknownTargetRollsBack() {
	alice := s.account("alice")

	_, err := command.NewFollowHandler(s.store, nil).Handle(s.ctx, command.FollowCommand{
		FollowerID: alice.ID, TargetID: uuid.NewString(), TargetType: graph.TargetUser,
	})
	s.Require().ErrorIs(err, shared.ErrAccountNotFound)

	n, err := s.store.Repositories().Follows.CountBySource(s.ctx, alice.ID)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *StoreSuite) TestConcurrentFollowsCreateOneEdge() {
	alice := s.account("alice")
	bob := s.account("bob")
	follow := command.NewFollowHandler(s.store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = follow.Handle(s.ctx, command.FollowCommand{FollowerID: alice.ID, TargetID: bob.ID, TargetType: graph.TargetUser})
		}()
	}
	wg.Wait()

	b, err := s.store.Repositories().Accounts.GetByID(s.ctx, bob.ID)
	s.Require().NoError(err)
	s.Equal(1, b.FollowersCount)
}

func (s *StoreSuite) TestListOrderingAndPaging() {
	target := s.account("target")
	likes := s.store.Repositories().Likes

	base := time.Now().UTC().Truncate(time.Millisecond)
	var ids []string
	for i, name := range []string{"u1", "u2", "u3"} {
		u := s.account(name)
		like, err := graph.NewLike(graph.NewEdgeParams{
			ID: uuid.NewString(), SourceID: u.ID, TargetID: target.ID, TargetType: graph.TargetUser,
		})
		s.Require().NoError(err)
		like.CreatedAt = base.Add(time.Duration(i) * time.Second)
		created, err := likes.Insert(s.ctx, like)
		s.Require().NoError(err)
		s.True(created)
		ids = append(ids, like.ID)
	}

	all, err := likes.ListByTarget(s.ctx, target.ID, graph.ListOptions{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(ids[2], all[0].ID)
	s.Equal(ids[0], all[2].ID)

	page, err := likes.ListByTarget(s.ctx, target.ID, graph.ListOptions{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(ids[1], page[0].ID)

	empty, err := likes.ListByTarget(s.ctx, uuid.NewString(), graph.ListOptions{})
	s.Require().NoError(err)
	s.NotNil(empty)
	s.Empty(empty)
}

func (s *StoreSuite) TestReviewAggregate() {
	alice := s.account("alice")
	venue := s.profile("blue-room")

	create := command.NewCreateReviewHandler(s.store, nil)
	for _, rating := range []int{5, 4, 4} {
		_, err := create.Handle(s.ctx, command.CreateReviewCommand{UserID: alice.ID, TargetID: venue.ID, Rating: rating})
		s.Require().NoError(err)
	}

	p, err := s.store.Repositories().Profiles.GetByID(s.ctx, venue.ID)
	s.Require().NoError(err)
	s.Equal(3, p.ReviewsCount)
	s.InDelta(4.3, p.Rating, 0.001)

	_, err = create.Handle(s.ctx, command.CreateReviewCommand{UserID: alice.ID, TargetID: uuid.NewString(), Rating: 3})
	s.ErrorIs(err, shared.ErrProfileNotFound)

	_, err = create.Handle(s.ctx, command.CreateReviewCommand{UserID: alice.ID, TargetID: alice.ID, Rating: 3})
	s.ErrorIs(err, shared.ErrReviewTargetNotAProfile)
}

func (s *StoreSuite) TestWithinTxRollsBack() {
	alice := s.account("alice")

	err := s.store.WithinTx(s.ctx, func(repos graph.Repositories) error {
		if err := repos.Accounts.AdjustCounter(s.ctx, alice.ID, graph.CounterLikes, 5); err != nil {
			return err
		}
		return shared.ErrConcurrentModification
	})
	s.Require().ErrorIs(err, shared.ErrConcurrentModification)

	a, err := s.store.Repositories().Accounts.GetByID(s.ctx, alice.ID)
	s.Require().NoError(err)
	s.Zero(a.LikesCount)
}

func (s *StoreSuite) TestMalformedIDFailsTheTransaction() {
	alice := s.account("alice")
	bob := s.account("bob")

	err := s.store.WithinTx(s.ctx, func(repos graph.Repositories) error {
		if _, err := repos.Follows.Exists(s.ctx, "not-a-uuid", bob.ID); err != nil {
			return err
		}
		return repos.Accounts.AdjustCounter(s.ctx, bob.ID, graph.CounterFollowers, 1)
	})
	s.Require().Error(err)
	s.False(shared.IsNotFound(err), "a malformed id is not a missing row")

	got, err := s.store.Repositories().Accounts.GetByID(s.ctx, bob.ID)
	s.Require().NoError(err)
	s.Zero(got.FollowersCount)

	exists, err := s.store.Repositories().Follows.Exists(s.ctx, alice.ID, bob.ID)
	s.Require().NoError(err)
	s.False(exists)
}
