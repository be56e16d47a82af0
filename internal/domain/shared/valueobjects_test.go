package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverageRating(t *testing.T) {
	assert.Equal(t, 0.0, AverageRating(nil))
	assert.Equal(t, 4.0, AverageRating([]int{5, 4, 3}))
	assert.Equal(t, 3.5, AverageRating([]int{5, 4, 3, 2}))
	assert.Equal(t, 3.7, AverageRating([]int{5, 5, 1}))
}

func TestNewRating(t *testing.T) {
	r, err := NewRating(5)
	assert.NoError(t, err)
	assert.Equal(t, 5, r.Int())

	_, err = NewRating(0)
	assert.ErrorIs(t, err, ErrInvalidRating)
	assert.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestListOptions_Window(t *testing.T) {
	cases := []struct {
		name       string
		opts       ListOptions
		n          int
		start, end int
	}{
		{"no limit", ListOptions{}, 5, 0, 5},
		{"limit", ListOptions{Limit: 2}, 5, 0, 2},
		{"offset and limit", ListOptions{Limit: 2, Offset: 2}, 5, 2, 4},
		{"tail", ListOptions{Limit: 10, Offset: 3}, 5, 3, 5},
		{"past end", ListOptions{Offset: 9}, 5, 5, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := tc.opts.Window(tc.n)
			assert.Equal(t, tc.start, start)
			assert.Equal(t, tc.end, end)
		})
	}
}

func TestListOptions_Validate(t *testing.T) {
	assert.NoError(t, ListOptions{Limit: 1}.Validate())
	assert.ErrorIs(t, ListOptions{Limit: -1}.Validate(), ErrValueOutOfRange)
	assert.Equal(t, MaxPageSize, NewListOptions(MaxPageSize+1, 0).Limit)
}

func TestDomainError(t *testing.T) {
	err := WrapError("graph", "Follow", ErrNotFound, "account not found", ErrTimeout)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "graph.Follow: account not found: operation timeout", err.Error())
	assert.False(t, IsValidation(err))
	assert.True(t, IsRetryable(err))
}
