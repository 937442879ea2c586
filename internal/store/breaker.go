package store

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"catalog-loader/internal/catalog"
	apperrors "catalog-loader/internal/errors"
)

// BreakerConfig configures the circuit breaker around store data calls.
type BreakerConfig struct {
	Name             string
	FailureRatio     float64 // failure ratio that opens the circuit
	MinRequests      uint32  // requests needed before the ratio is evaluated
	Interval         time.Duration
	OpenDuration     time.Duration
	HalfOpenRequests uint32
}

// BreakerGateway stops calling the store once it keeps failing. An open
// circuit fails calls immediately with a retryable CIRCUIT_OPEN store error,
// which the ingestion pipeline counts like any other write failure.
type BreakerGateway struct {
	Gateway
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreakerGateway wraps next. Lifecycle calls pass straight through.
func NewBreakerGateway(next Gateway, cfg BreakerConfig, logger *zap.Logger) *BreakerGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &BreakerGateway{Gateway: next, logger: logger.Named("store-breaker")}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: countsAsSuccess,
	})
	return b
}

// countsAsSuccess keeps caller mistakes (wrong lifecycle state, missing
// tables) from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeConflict, apperrors.ErrorTypeNotFound:
		return true
	}
	return false
}

// State exposes the breaker state.
func (b *BreakerGateway) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *BreakerGateway, op string, build func(code, message string) *apperrors.ErrorBuilder, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		var zero T
		return zero, build("CIRCUIT_OPEN", "store circuit breaker is open").
			WithOperation(op).
			WithRetryable(true).
			WithCause(err).
			Build()
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (b *BreakerGateway) write(op string, fn func() error) error {
	_, err := execute(b, op, apperrors.StoreWrite, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *BreakerGateway) PutItem(ctx context.Context, row catalog.ItemRow) error {
	return b.write(OpPutItem, func() error { return b.Gateway.PutItem(ctx, row) })
}

func (b *BreakerGateway) PutReviewByUser(ctx context.Context, row catalog.ReviewRow) error {
	return b.write(OpPutReviewByUser, func() error { return b.Gateway.PutReviewByUser(ctx, row) })
}

func (b *BreakerGateway) PutReviewByItem(ctx context.Context, row catalog.ReviewRow) error {
	return b.write(OpPutReviewByItem, func() error { return b.Gateway.PutReviewByItem(ctx, row) })
}

func (b *BreakerGateway) QueryItem(ctx context.Context, asin string) ([]catalog.ItemRow, error) {
	return execute(b, OpQueryItem, apperrors.StoreRead, func() ([]catalog.ItemRow, error) {
		return b.Gateway.QueryItem(ctx, asin)
	})
}

func (b *BreakerGateway) QueryReviewsByUser(ctx context.Context, reviewerID string) ([]catalog.ReviewRow, error) {
	return execute(b, OpQueryReviewsByUser, apperrors.StoreRead, func() ([]catalog.ReviewRow, error) {
		return b.Gateway.QueryReviewsByUser(ctx, reviewerID)
	})
}

func (b *BreakerGateway) QueryReviewsByItem(ctx context.Context, asin string) ([]catalog.ReviewRow, error) {
	return execute(b, OpQueryReviewsByItem, apperrors.StoreRead, func() ([]catalog.ReviewRow, error) {
		return b.Gateway.QueryReviewsByItem(ctx, asin)
	})
}
