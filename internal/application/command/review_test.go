package command

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

func TestCreateReview_RecomputesAggregate(t *testing.T) {
	f := newFixture(t)
	p1 := f.profile("venue")
	author := f.account()

	for _, rating := range []int{5, 4, 3} {
		f.review(author.ID, p1.ID, rating)
	}
	p := f.reloadProfile(p1.ID)
	assert.Equal(t, 3, p.ReviewsCount)
	assert.Equal(t, 4.0, p.Rating)

	res := f.review(author.ID, p1.ID, 2)
	assert.Equal(t, 4, res.ReviewsCount)
	assert.Equal(t, 3.5, res.Rating)

	p = f.reloadProfile(p1.ID)
	assert.Equal(t, 4, p.ReviewsCount)
	assert.Equal(t, 3.5, p.Rating)
}

func TestCreateReview_FillsAuthorFields(t *testing.T) {
	f := newFixture(t)
	p1 := f.profile("community")
	author := f.account()

	res, err := NewCreateReviewHandler(f.store, f.pub).Handle(f.ctx, CreateReviewCommand{
		UserID:   author.ID,
		TargetID: p1.ID,
		Rating:   4,
		Comment:  "lovely people",
	})
	require.NoError(t, err)
	assert.Equal(t, author.DisplayName, res.Review.AuthorName)
	assert.Equal(t, "lovely people", res.Review.Comment)
	assert.Equal(t, []shared.EventType{shared.EventReviewCreated}, f.pub.types())
}

func TestCreateReview_Validation(t *testing.T) {
	f := newFixture(t)
	p1 := f.profile("venue")
	author := f.account()
	h := NewCreateReviewHandler(f.store, f.pub)

	cases := []struct {
		name string
		cmd  CreateReviewCommand
		kind error
	}{
		{"rating too low", CreateReviewCommand{UserID: author.ID, TargetID: p1.ID, Rating: 0}, shared.ErrInvalidRating},
		{"rating too high", CreateReviewCommand{UserID: author.ID, TargetID: p1.ID, Rating: 6}, shared.ErrInvalidRating},
		{"missing user", CreateReviewCommand{TargetID: p1.ID, Rating: 3}, shared.ErrValidation},
		{"user target type", CreateReviewCommand{UserID: author.ID, TargetID: p1.ID, TargetType: graph.TargetUser, Rating: 3}, shared.ErrReviewTargetNotAProfile},
		{"comment too long", CreateReviewCommand{UserID: author.ID, TargetID: p1.ID, Rating: 3, Comment: strings.Repeat("x", graph.MaxCommentLength+1)}, shared.ErrCommentTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Handle(f.ctx, tc.cmd)
			assert.ErrorIs(t, err, tc.kind)
			assert.True(t, shared.IsValidation(err))
		})
	}

	assert.Zero(t, f.reloadProfile(p1.ID).ReviewsCount)
}

func TestCreateReview_TargetMustBeProfile(t *testing.T) {
	f := newFixture(t)
	author := f.account()
	other := f.account()
	h := NewCreateReviewHandler(f.store, f.pub)

	_, err := h.Handle(f.ctx, CreateReviewCommand{UserID: author.ID, TargetID: other.ID, Rating: 4})
	assert.ErrorIs(t, err, shared.ErrReviewTargetNotAProfile)
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(f.ctx, CreateReviewCommand{UserID: author.ID, TargetID: uuid.NewString(), Rating: 4})
	assert.True(t, shared.IsNotFound(err))
}

func TestCreateReview_UnknownAuthorRollsBack(t *testing.T) {
	f := newFixture(t)
	p1 := f.profile("venue")

	_, err := NewCreateReviewHandler(f.store, f.pub).Handle(f.ctx, CreateReviewCommand{
		UserID:   uuid.NewString(),
		TargetID: p1.ID,
		Rating:   5,
	})
	assert.True(t, shared.IsNotFound(err))

	reviews, err := f.store.Repositories().Reviews.ListByTarget(f.ctx, p1.ID, graph.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestCreateReview_AllowsRepeatReviews(t *testing.T) {
	f := newFixture(t)
	p1 := f.profile("business")
	author := f.account()

	f.review(author.ID, p1.ID, 1)
	f.review(author.ID, p1.ID, 5)

	p := f.reloadProfile(p1.ID)
	assert.Equal(t, 2, p.ReviewsCount)
	assert.Equal(t, 3.0, p.Rating)
}

func TestDeleteReview_RecomputesAggregate(t *testing.T) {
	f := newFixture(t)
	p1 := f.profile("venue")
	author := f.account()

	f.review(author.ID, p1.ID, 5)
	doomed := f.review(author.ID, p1.ID, 2)

	del := NewDeleteReviewHandler(f.store, f.pub)
	res, err := del.Handle(f.ctx, DeleteReviewCommand{ReviewID: doomed.Review.ID})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Equal(t, 1, res.ReviewsCount)
	assert.Equal(t, 5.0, res.Rating)

	p := f.reloadProfile(p1.ID)
	assert.Equal(t, 1, p.ReviewsCount)
	assert.Equal(t, 5.0, p.Rating)

	res, err = del.Handle(f.ctx, DeleteReviewCommand{ReviewID: doomed.Review.ID})
	require.NoError(t, err)
	assert.False(t, res.Deleted)

	assert.Equal(t, []shared.EventType{
		shared.EventReviewCreated,
		shared.EventReviewCreated,
		shared.EventReviewDeleted,
	}, f.pub.types())
}

func TestDeleteReview_LastReviewResetsRating(t *testing.T) {
	f := newFixture(t)
	p1 := f.profile("venue")
	author := f.account()
	only := f.review(author.ID, p1.ID, 4)

	res, err := NewDeleteReviewHandler(f.store, nil).Handle(f.ctx, DeleteReviewCommand{ReviewID: only.Review.ID})
	require.NoError(t, err)
	assert.True(t, res.Deleted)

	p := f.reloadProfile(p1.ID)
	assert.Zero(t, p.ReviewsCount)
	assert.Zero(t, p.Rating)
}
