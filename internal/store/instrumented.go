package store

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"catalog-loader/internal/catalog"
	apperrors "catalog-loader/internal/errors"
)

// Recorder receives the outcome of every store data call.
type Recorder interface {
	ObserveStoreCall(op string, d time.Duration, err error)
}

// InstrumentedGateway records latency and outcome of data calls and wraps
// each one in a span.
type InstrumentedGateway struct {
	Gateway
	recorder Recorder
	tracer   trace.Tracer
}

// NewInstrumentedGateway wraps next. A nil recorder or tracer disables that
// half of the instrumentation.
func NewInstrumentedGateway(next Gateway, recorder Recorder, tracer trace.Tracer) *InstrumentedGateway {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &InstrumentedGateway{Gateway: next, recorder: recorder, tracer: tracer}
}

func (g *InstrumentedGateway) observe(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context) (int, error)) error {
	ctx, span := g.tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	rows, err := fn(ctx)
	if g.recorder != nil {
		g.recorder.ObserveStoreCall(op, time.Since(start), err)
	}

	span.SetAttributes(attribute.Int("store.rows", rows))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.TypeOf(err)))
	}
	return err
}

func (g *InstrumentedGateway) PutItem(ctx context.Context, row catalog.ItemRow) error {
	return g.observe(ctx, OpPutItem, []attribute.KeyValue{
		attribute.String("catalog.asin", row.ASIN),
	}, func(ctx context.Context) (int, error) {
		return 1, g.Gateway.PutItem(ctx, row)
	})
}

func (g *InstrumentedGateway) PutReviewByUser(ctx context.Context, row catalog.ReviewRow) error {
	return g.observe(ctx, OpPutReviewByUser, []attribute.KeyValue{
		attribute.String("catalog.reviewer_id", row.ReviewerID),
	}, func(ctx context.Context) (int, error) {
		return 1, g.Gateway.PutReviewByUser(ctx, row)
	})
}

func (g *InstrumentedGateway) PutReviewByItem(ctx context.Context, row catalog.ReviewRow) error {
	return g.observe(ctx, OpPutReviewByItem, []attribute.KeyValue{
		attribute.String("catalog.asin", row.ASIN),
	}, func(ctx context.Context) (int, error) {
		return 1, g.Gateway.PutReviewByItem(ctx, row)
	})
}

func (g *InstrumentedGateway) QueryItem(ctx context.Context, asin string) ([]catalog.ItemRow, error) {
	var rows []catalog.ItemRow
	err := g.observe(ctx, OpQueryItem, []attribute.KeyValue{
		attribute.String("catalog.asin", asin),
	}, func(ctx context.Context) (int, error) {
		var err error
		rows, err = g.Gateway.QueryItem(ctx, asin)
		return len(rows), err
	})
	return rows, err
}

func (g *InstrumentedGateway) QueryReviewsByUser(ctx context.Context, reviewerID string) ([]catalog.ReviewRow, error) {
	var rows []catalog.ReviewRow
	err := g.observe(ctx, OpQueryReviewsByUser, []attribute.KeyValue{
		attribute.String("catalog.reviewer_id", reviewerID),
	}, func(ctx context.Context) (int, error) {
		var err error
		rows, err = g.Gateway.QueryReviewsByUser(ctx, reviewerID)
		return len(rows), err
	})
	return rows, err
}

func (g *InstrumentedGateway) QueryReviewsByItem(ctx context.Context, asin string) ([]catalog.ReviewRow, error) {
	var rows []catalog.ReviewRow
	err := g.observe(ctx, OpQueryReviewsByItem, []attribute.KeyValue{
		attribute.String("catalog.asin", asin),
	}, func(ctx context.Context) (int, error) {
		var err error
		rows, err = g.Gateway.QueryReviewsByItem(ctx, asin)
		return len(rows), err
	})
	return rows, err
}
