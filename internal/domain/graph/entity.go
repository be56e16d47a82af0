package graph

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// MaxCommentLength is the maximum length of a review comment, in runes.
const MaxCommentLength = 2000

var (
	idPattern       = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,32}$`)
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// ValidID reports whether id is a canonical UUID string.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func requireID(op, field, id string) error {
	if !ValidID(id) {
		return shared.NewDomainError("graph", op, shared.ErrInvalidID, field+" must be a UUID")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT
// ══════════════════════════════════════════════════════════════════════════════

// Account is an individual end user. Accounts follow and like; they can also
// be followed and liked.
type Account struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	DisplayName    string    `json:"displayName"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	AvatarURL      string    `json:"avatarUrl,omitempty"`
	FollowersCount int       `json:"followersCount"`
	FollowingCount int       `json:"followingCount"`
	LikesCount     int       `json:"likesCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Counter returns the current value of a counter column.
func (a *Account) Counter(kind CounterKind) int {
	switch kind {
	case CounterFollowers:
		return a.FollowersCount
	case CounterFollowing:
		return a.FollowingCount
	case CounterLikes:
		return a.LikesCount
	default:
		return 0
	}
}

// SetCounter overwrites a counter column. Unknown kinds are ignored.
func (a *Account) SetCounter(kind CounterKind, value int) {
	switch kind {
	case CounterFollowers:
		a.FollowersCount = value
	case CounterFollowing:
		a.FollowingCount = value
	case CounterLikes:
		a.LikesCount = value
	}
}

// NewAccountParams holds the input for NewAccount.
type NewAccountParams struct {
	ID           string
	Username     string
	PasswordHash string
	DisplayName  string
	Email        string
	Phone        string
	AvatarURL    string
}

// NewAccount creates an account with all counters at zero.
func NewAccount(params NewAccountParams) (*Account, error) {
	if err := requireID("NewAccount", "id", params.ID); err != nil {
		return nil, err
	}
	if !usernamePattern.MatchString(params.Username) {
		return nil, shared.NewDomainError("graph", "NewAccount", shared.ErrInvalidFormat,
			"username must be 3-32 letters, digits, dots or underscores")
	}
	if params.PasswordHash == "" {
		return nil, shared.NewDomainError("graph", "NewAccount", shared.ErrEmptyValue, "credential hash is required")
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		displayName = params.Username
	}

	now := time.Now().UTC()
	return &Account{
		ID:           params.ID,
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
		DisplayName:  displayName,
		Email:        strings.TrimSpace(params.Email),
		Phone:        strings.TrimSpace(params.Phone),
		AvatarURL:    strings.TrimSpace(params.AvatarURL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile is a non-individual entity: a community, venue, business and so on.
// Profiles are only ever targets.
type Profile struct {
	ID             string      `json:"id"`
	Slug           string      `json:"slug"`
	EntityType     ProfileType `json:"entityType"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Location       string      `json:"location,omitempty"`
	ImageURL       string      `json:"imageUrl,omitempty"`
	FollowersCount int         `json:"followersCount"`
	LikesCount     int         `json:"likesCount"`
	MembersCount   int         `json:"membersCount"`
	ReviewsCount   int         `json:"reviewsCount"`
	Rating         float64     `json:"rating"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Counter returns the current value of a counter column.
func (p *Profile) Counter(kind CounterKind) int {
	switch kind {
	case CounterFollowers:
		return p.FollowersCount
	case CounterLikes:
		return p.LikesCount
	case CounterMembers:
		return p.MembersCount
	case CounterReviews:
		return p.ReviewsCount
	default:
		return 0
	}
}

// SetCounter overwrites a counter column. Unknown kinds are ignored.
func (p *Profile) SetCounter(kind CounterKind, value int) {
	switch kind {
	case CounterFollowers:
		p.FollowersCount = value
	case CounterLikes:
		p.LikesCount = value
	case CounterMembers:
		p.MembersCount = value
	case CounterReviews:
		p.ReviewsCount = value
	}
}

// NewProfileParams holds the input for NewProfile.
type NewProfileParams struct {
	ID          string
	Slug        string
	EntityType  ProfileType
	Name        string
	Description string
	Location    string
	ImageURL    string
}

// NewProfile creates a profile with all counters and the rating at zero.
func NewProfile(params NewProfileParams) (*Profile, error) {
	if err := requireID("NewProfile", "id", params.ID); err != nil {
		return nil, err
	}
	if !slugPattern.MatchString(params.Slug) || len(params.Slug) > 64 {
		return nil, shared.NewDomainError("graph", "NewProfile", shared.ErrInvalidFormat,
			"slug must be lowercase words joined by hyphens")
	}
	if !params.EntityType.IsValid() {
		return nil, shared.ErrInvalidProfileType
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, shared.NewDomainError("graph", "NewProfile", shared.ErrEmptyValue, "name is required")
	}

	now := time.Now().UTC()
	return &Profile{
		ID:          params.ID,
		Slug:        params.Slug,
		EntityType:  params.EntityType,
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		Location:    strings.TrimSpace(params.Location),
		ImageURL:    strings.TrimSpace(params.ImageURL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EDGES
// ══════════════════════════════════════════════════════════════════════════════

// Follow is a directed edge from an account to any target. At most one
// follow exists per (FollowerID, TargetID) pair.
type Follow struct {
	ID         string     `json:"id"`
	FollowerID string     `json:"followerId"`
	TargetID   string     `json:"targetId"`
	TargetType TargetType `json:"targetType"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Like is a directed edge from an account to any target, independent of
// follows. At most one like exists per (UserID, TargetID) pair.
type Like struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	TargetID   string     `json:"targetId"`
	TargetType TargetType `json:"targetType"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NewEdgeParams holds the input for NewFollow and NewLike.
type NewEdgeParams struct {
	ID         string
	SourceID   string
	TargetID   string
	TargetType TargetType
}

func validateEdge(op string, params NewEdgeParams) error {
	if err := requireID(op, "id", params.ID); err != nil {
		return err
	}
	if err := requireID(op, "source id", params.SourceID); err != nil {
		return err
	}
	if err := requireID(op, "target id", params.TargetID); err != nil {
		return err
	}
	if !params.TargetType.IsValid() {
		return shared.ErrInvalidTargetType
	}
	return nil
}

// NewFollow creates a follow edge. Following oneself is rejected.
func NewFollow(params NewEdgeParams) (*Follow, error) {
	if err := validateEdge("NewFollow", params); err != nil {
		return nil, err
	}
	if params.SourceID == params.TargetID {
		return nil, shared.ErrSelfFollow
	}
	return &Follow{
		ID:         params.ID,
		FollowerID: params.SourceID,
		TargetID:   params.TargetID,
		TargetType: params.TargetType,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// NewLike creates a like edge. Liking oneself is rejected.
func NewLike(params NewEdgeParams) (*Like, error) {
	if err := validateEdge("NewLike", params); err != nil {
		return nil, err
	}
	if params.SourceID == params.TargetID {
		return nil, shared.ErrSelfLike
	}
	return &Like{
		ID:         params.ID,
		UserID:     params.SourceID,
		TargetID:   params.TargetID,
		TargetType: params.TargetType,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW
// ══════════════════════════════════════════════════════════════════════════════

// Review is a rated, optionally commented submission by an account against a
// profile. A user may review the same profile more than once.
type Review struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	TargetID     string    `json:"targetId"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment,omitempty"`
	AuthorName   string    `json:"authorName,omitempty"`
	AuthorAvatar string    `json:"authorAvatar,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewReviewParams holds the input for NewReview.
type NewReviewParams struct {
	ID           string
	UserID       string
	TargetID     string
	Rating       int
	Comment      string
	AuthorName   string
	AuthorAvatar string
}

// NewReview creates a review after checking the rating range and comment length.
func NewReview(params NewReviewParams) (*Review, error) {
	if err := requireID("NewReview", "id", params.ID); err != nil {
		return nil, err
	}
	if err := requireID("NewReview", "userId", params.UserID); err != nil {
		return nil, err
	}
	if err := requireID("NewReview", "targetId", params.TargetID); err != nil {
		return nil, err
	}
	rating, err := shared.NewRating(params.Rating)
	if err != nil {
		return nil, err
	}
	comment := strings.TrimSpace(params.Comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return nil, shared.ErrCommentTooLong
	}

	return &Review{
		ID:           params.ID,
		UserID:       params.UserID,
		TargetID:     params.TargetID,
		Rating:       rating.Int(),
		Comment:      comment,
		AuthorName:   strings.TrimSpace(params.AuthorName),
		AuthorAvatar: strings.TrimSpace(params.AuthorAvatar),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// AggregateRating computes the review count and the mean rating rounded to
// one decimal place. No reviews yields (0, 0).
func AggregateRating(ratings []int) (int, float64) {
	return len(ratings), shared.AverageRating(ratings)
}
