package eventhandler

import (
	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// METRICS RECORDER
// Turns domain events into business metrics.
// ═══════════════════════════════════════════════════════════════════════════

// GraphMetrics receives business metrics. observability.Metrics implements it.
type GraphMetrics interface {
	RelationChanged(relation, family string, active bool)
	ReviewChanged(created bool, rating int, newRating float64)
	EntityCreated(kind string)
	CountersReconciled(checked, corrections int)
}

// MetricsRecorder records every graph event it receives.
type MetricsRecorder struct {
	metrics GraphMetrics
}

// NewMetricsRecorder creates a new MetricsRecorder.
func NewMetricsRecorder(metrics GraphMetrics) *MetricsRecorder {
	return &MetricsRecorder{metrics: metrics}
}

// Handle implements shared.EventHandler. Events relayed from other processes
// are counted only for reconciliation, which never originates in the API.
func (r *MetricsRecorder) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.RelationEvent:
		relation := string(graph.RelationFollow)
		if e.EventType() == shared.EventLikeCreated || e.EventType() == shared.EventLikeRemoved {
			relation = string(graph.RelationLike)
		}
		r.metrics.RelationChanged(relation, graph.TargetType(e.TargetType).Family().String(), e.Active())
	case shared.ReviewEvent:
		r.metrics.ReviewChanged(e.EventType() == shared.EventReviewCreated, e.Rating, e.NewRating)
	case shared.EntityCreatedEvent:
		r.metrics.EntityCreated(e.EntityType)
	case shared.CountersReconciledEvent:
		r.metrics.CountersReconciled(e.Checked, e.Corrections)
	default:
		if event.EventType() == shared.EventCountersReconciled {
			p := event.Payload()
			r.metrics.CountersReconciled(intValue(p["checked"]), intValue(p["corrections"]))
		}
	}
	return nil
}

// Register subscribes the recorder to all events.
func (r *MetricsRecorder) Register(bus Subscriber) error {
	return bus.SubscribeAll(r.Handle)
}

// intValue reads a JSON number decoded into interface{}.
func intValue(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
