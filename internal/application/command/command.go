// Package command contains write operations (CQRS - Commands) of the social
// graph: follow and like toggles, reviews, and entity creation. Every
// multi-step mutation runs inside one graph.Store transaction, and events are
// published only after it commits.
package command

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

var tracer = otel.Tracer("github.com/alem-hub/socialgraph/internal/application/command")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "command."+name, trace.WithAttributes(attrs...))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// invalid builds a validation error for a command field.
func invalid(op, message string) error {
	return shared.NewDomainError("graph", op, shared.ErrValidation, message)
}

func requireID(op, field, value string) error {
	if value == "" {
		return invalid(op, field+" is required")
	}
	if !graph.ValidID(value) {
		return invalid(op, field+" must be a UUID")
	}
	return nil
}

func publish(publisher shared.EventPublisher, events []shared.Event) {
	if publisher == nil {
		return
	}
	for _, event := range events {
		_ = publisher.Publish(event)
	}
}

// invalidateRelation drops the cached answer for a pair once an edge change
// has committed. It ignores the caller's cancellation so a disconnecting client
// cannot leave the cache behind the store; the relation cache invalidator retries
// anything that still fails.
func invalidateRelation(ctx context.Context, cache graph.RelationCache, rel graph.Relation, sourceID, targetID string) {
	if cache == nil {
		return
	}
	_ = cache.Invalidate(context.WithoutCancel(ctx), rel, sourceID, targetID)
}

// adjustTargetCounters moves every counter in kinds on the target by delta.
func adjustTargetCounters(ctx context.Context, repos graph.Repositories, targetID string, targetType graph.TargetType, kinds []graph.CounterKind, delta int) error {
	counters, err := graph.CounterTarget(repos, targetType)
	if err != nil {
		return err
	}
	for _, kind := range kinds {
		if err := counters.AdjustCounter(ctx, targetID, kind, delta); err != nil {
			return err
		}
	}
	return nil
}
