package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each one is published after the transaction that
// produced it has committed.
const (
	// Relationship events
	EventFollowCreated EventType = "follow.created"
	EventFollowRemoved EventType = "follow.removed"
	EventLikeCreated   EventType = "like.created"
	EventLikeRemoved   EventType = "like.removed"

	// Review events
	EventReviewCreated EventType = "review.created"
	EventReviewDeleted EventType = "review.deleted"

	// Entity events
	EventAccountCreated EventType = "account.created"
	EventProfileCreated EventType = "profile.created"

	// System events
	EventCountersReconciled EventType = "system.counters_reconciled"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Relationship Events
// ═══════════════════════════════════════════════════════════════════════════

// RelationEvent is emitted when a follow or like edge appears or disappears.
// The aggregate is the edge's source account.
type RelationEvent struct {
	BaseEvent
	EdgeID     string `json:"edge_id"`
	SourceID   string `json:"source_id"`
	TargetID   string `json:"target_id"`
	TargetType string `json:"target_type"`
}

// Payload implements Event interface.
func (e RelationEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"edge_id":     e.EdgeID,
		"source_id":   e.SourceID,
		"target_id":   e.TargetID,
		"target_type": e.TargetType,
	}
}

// Active reports whether the edge exists after the event.
func (e RelationEvent) Active() bool {
	return e.Type == EventFollowCreated || e.Type == EventLikeCreated
}

// NewRelationEvent creates a new RelationEvent of the given type.
func NewRelationEvent(eventType EventType, edgeID, sourceID, targetID, targetType string) RelationEvent {
	return RelationEvent{
		BaseEvent:  NewBaseEvent(eventType, sourceID),
		EdgeID:     edgeID,
		SourceID:   sourceID,
		TargetID:   targetID,
		TargetType: targetType,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Review Events
// ═══════════════════════════════════════════════════════════════════════════

// ReviewEvent is emitted after a review is created or deleted and the target
// aggregate has been recomputed. The aggregate is the reviewed profile.
type ReviewEvent struct {
	BaseEvent
	ReviewID     string  `json:"review_id"`
	AuthorID     string  `json:"author_id"`
	TargetID     string  `json:"target_id"`
	Rating       int     `json:"rating"`
	ReviewsCount int     `json:"reviews_count"`
	NewRating    float64 `json:"new_rating"`
}

// Payload implements Event interface.
func (e ReviewEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"review_id":     e.ReviewID,
		"author_id":     e.AuthorID,
		"target_id":     e.TargetID,
		"rating":        e.Rating,
		"reviews_count": e.ReviewsCount,
		"new_rating":    e.NewRating,
	}
}

// NewReviewEvent creates a new ReviewEvent of the given type.
func NewReviewEvent(eventType EventType, reviewID, authorID, targetID string, rating, reviewsCount int, newRating float64) ReviewEvent {
	return ReviewEvent{
		BaseEvent:    NewBaseEvent(eventType, targetID),
		ReviewID:     reviewID,
		AuthorID:     authorID,
		TargetID:     targetID,
		Rating:       rating,
		ReviewsCount: reviewsCount,
		NewRating:    newRating,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Entity Events
// ═══════════════════════════════════════════════════════════════════════════

// EntityCreatedEvent is emitted when an account or profile is created.
type EntityCreatedEvent struct {
	BaseEvent
	Handle     string `json:"handle"` // username or slug
	EntityType string `json:"entity_type"`
}

// Payload implements Event interface.
func (e EntityCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"handle":      e.Handle,
		"entity_type": e.EntityType,
	}
}

// NewAccountCreatedEvent creates a new EntityCreatedEvent for an account.
func NewAccountCreatedEvent(accountID, username string) EntityCreatedEvent {
	return EntityCreatedEvent{
		BaseEvent:  NewBaseEvent(EventAccountCreated, accountID),
		Handle:     username,
		EntityType: "user",
	}
}

// NewProfileCreatedEvent creates a new EntityCreatedEvent for a profile.
func NewProfileCreatedEvent(profileID, slug, entityType string) EntityCreatedEvent {
	return EntityCreatedEvent{
		BaseEvent:  NewBaseEvent(EventProfileCreated, profileID),
		Handle:     slug,
		EntityType: entityType,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// CountersReconciledEvent is emitted after a reconciliation run.
type CountersReconciledEvent struct {
	BaseEvent
	Checked     int `json:"checked"`
	Corrections int `json:"corrections"`
}

// Payload implements Event interface.
func (e CountersReconciledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"checked":     e.Checked,
		"corrections": e.Corrections,
	}
}

// NewCountersReconciledEvent creates a new CountersReconciledEvent.
func NewCountersReconciledEvent(runID string, checked, corrections int) CountersReconciledEvent {
	return CountersReconciledEvent{
		BaseEvent:   NewBaseEvent(EventCountersReconciled, runID),
		Checked:     checked,
		Corrections: corrections,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Envelope marshals an event into an EventEnvelope.
func Envelope(event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Payload:     payload,
	}
	if c, ok := event.(interface{ Correlation() string }); ok {
		env.CorrelationID = c.Correlation()
	}
	return env, nil
}

// Correlation returns the correlation ID, if any.
func (e BaseEvent) Correlation() string {
	return e.CorrelationID
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
