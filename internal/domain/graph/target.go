// Package graph holds the domain model of the social graph: accounts and
// profiles, the follow and like edges between them, reviews, and the
// repository contracts the application layer depends on.
package graph

import (
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TARGET TYPES
// ══════════════════════════════════════════════════════════════════════════════

// TargetType is the discriminant stored on edges and reviews. It names the
// kind of entity the edge points at.
type TargetType string

const (
	TargetUser         TargetType = "user"
	TargetCommunity    TargetType = "community"
	TargetOrganisation TargetType = "organisation"
	TargetVenue        TargetType = "venue"
	TargetBusiness     TargetType = "business"
	TargetCouncil      TargetType = "council"
	TargetGovernment   TargetType = "government"
	TargetArtist       TargetType = "artist"
)

// AllTargetTypes lists every accepted target type.
var AllTargetTypes = []TargetType{
	TargetUser,
	TargetCommunity,
	TargetOrganisation,
	TargetVenue,
	TargetBusiness,
	TargetCouncil,
	TargetGovernment,
	TargetArtist,
}

// Family groups target types by the table that carries their counters.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyAccount
	FamilyProfile
)

// String returns the table family name.
func (f Family) String() string {
	switch f {
	case FamilyAccount:
		return "account"
	case FamilyProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// Family resolves the entity family of a target type. This is the only
// place that maps a tag to a counter table.
func (t TargetType) Family() Family {
	switch t {
	case TargetUser:
		return FamilyAccount
	case TargetCommunity, TargetOrganisation, TargetVenue, TargetBusiness,
		TargetCouncil, TargetGovernment, TargetArtist:
		return FamilyProfile
	default:
		return FamilyUnknown
	}
}

// IsValid reports whether t is a known target type.
func (t TargetType) IsValid() bool {
	return t.Family() != FamilyUnknown
}

// String returns the string representation.
func (t TargetType) String() string {
	return string(t)
}

// ParseTargetType validates a raw tag.
func ParseTargetType(s string) (TargetType, error) {
	t := TargetType(s)
	if !t.IsValid() {
		return "", shared.ErrInvalidTargetType
	}
	return t, nil
}

// ProfileType is the entityType discriminant of a Profile. Every target type
// except "user" is a profile type.
type ProfileType string

// IsValid reports whether p names a profile entity type.
func (p ProfileType) IsValid() bool {
	return TargetType(p).Family() == FamilyProfile
}

// TargetType returns the edge tag used when following or liking a profile
// of this type.
func (p ProfileType) TargetType() TargetType {
	return TargetType(p)
}

// ══════════════════════════════════════════════════════════════════════════════
// COUNTERS
// ══════════════════════════════════════════════════════════════════════════════

// CounterKind names a denormalized counter column.
type CounterKind string

const (
	CounterFollowers CounterKind = "followers_count"
	CounterFollowing CounterKind = "following_count"
	CounterLikes     CounterKind = "likes_count"
	CounterMembers   CounterKind = "members_count"
	CounterReviews   CounterKind = "reviews_count"
)

// Counters returns the counter columns a family carries.
func (f Family) Counters() []CounterKind {
	switch f {
	case FamilyAccount:
		return []CounterKind{CounterFollowers, CounterFollowing, CounterLikes}
	case FamilyProfile:
		return []CounterKind{CounterFollowers, CounterLikes, CounterMembers, CounterReviews}
	default:
		return nil
	}
}

// Carries reports whether the family has the given counter column.
func (f Family) Carries(kind CounterKind) bool {
	for _, k := range f.Counters() {
		if k == kind {
			return true
		}
	}
	return false
}

// FollowCounters returns the target counters moved by a follow edge.
// Members of a profile are its followers, so both move together.
func (f Family) FollowCounters() []CounterKind {
	switch f {
	case FamilyAccount:
		return []CounterKind{CounterFollowers}
	case FamilyProfile:
		return []CounterKind{CounterFollowers, CounterMembers}
	default:
		return nil
	}
}

// LikeCounters returns the target counters moved by a like edge.
func (f Family) LikeCounters() []CounterKind {
	if f == FamilyUnknown {
		return nil
	}
	return []CounterKind{CounterLikes}
}
