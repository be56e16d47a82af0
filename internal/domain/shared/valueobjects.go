package shared

import (
	"math"
)

// ═══════════════════════════════════════════════════════════════════════════
// Rating Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rating represents a review rating value (1-5 stars).
type Rating int

const (
	MinRating Rating = 1
	MaxRating Rating = 5
)

// IsValid checks if the rating is within valid range.
func (r Rating) IsValid() bool {
	return r >= MinRating && r <= MaxRating
}

// Int returns the underlying int value.
func (r Rating) Int() int {
	return int(r)
}

// NewRating creates a new Rating with validation.
func NewRating(value int) (Rating, error) {
	if value < int(MinRating) || value > int(MaxRating) {
		return 0, ErrInvalidRating
	}
	return Rating(value), nil
}

// AverageRating returns the arithmetic mean of the ratings rounded to one
// decimal place. An empty set averages to zero.
func AverageRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	mean := float64(sum) / float64(len(ratings))
	return math.Round(mean*10) / 10
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ListOptions bounds a list read. Limit == 0 means no limit.
type ListOptions struct {
	Limit  int
	Offset int
}

// Validate rejects negative bounds.
func (o ListOptions) Validate() error {
	if o.Limit < 0 || o.Offset < 0 {
		return ErrInvalidPagination
	}
	return nil
}

// Window returns the [start, end) indices of this page over n items.
func (o ListOptions) Window(n int) (int, int) {
	start := o.Offset
	if start > n {
		start = n
	}
	end := n
	if o.Limit > 0 && start+o.Limit < n {
		end = start + o.Limit
	}
	return start, end
}

// NewListOptions builds ListOptions from request values, capping the limit.
func NewListOptions(limit, offset int) ListOptions {
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return ListOptions{Limit: limit, Offset: offset}
}
