// Package query contains read operations (CQRS - Queries) of the social
// graph. Queries never write to the store; the only side effect is filling
// the relation cache on a miss.
package query

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

var tracer = otel.Tracer("github.com/alem-hub/socialgraph/internal/application/query")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "query."+name, trace.WithAttributes(attrs...))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func requireID(op, field, value string) error {
	if value == "" {
		return shared.NewDomainError("query", op, shared.ErrValidation, field+" is required")
	}
	if !graph.ValidID(value) {
		return shared.NewDomainError("query", op, shared.ErrValidation, field+" must be a UUID")
	}
	return nil
}

// Page carries pagination for list queries.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) options() (graph.ListOptions, error) {
	opts := shared.NewListOptions(p.Limit, p.Offset)
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}
