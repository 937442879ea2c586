package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"catalog-loader/internal/catalog"
	apperrors "catalog-loader/internal/errors"
	"catalog-loader/internal/store"
	"catalog-loader/internal/store/memory"
)

func TestSchemaCQL(t *testing.T) {
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS items (
    asin text,
    category_name text,
    title text static,
    description text static,
    imUrl text static,
    PRIMARY KEY (asin, category_name)
) WITH CLUSTERING ORDER BY (category_name ASC);`, store.ItemsTable.CQL())

	assert.Equal(t, `CREATE TABLE IF NOT EXISTS reviews_by_user (
    asin text,
    time timestamp,
    reviewerID text,
    reviewerName text,
    rating int,
    summary text,
    reviewText text,
    PRIMARY KEY (reviewerID, time, asin)
) WITH CLUSTERING ORDER BY (time DESC, asin ASC);`, store.ReviewsByUserTable.CQL())

	assert.Contains(t, store.ReviewsByItemTable.CQL(), "PRIMARY KEY ((asin), time, reviewerID)")
	assert.Contains(t, store.ReviewsByItemTable.CQL(), "CLUSTERING ORDER BY (time DESC, reviewerID ASC);")

	all := store.CQL()
	assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS items")
	assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS reviews_by_item")
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "shop_items", store.TableName("shop", store.TableItems))
	assert.Equal(t, "items", store.TableName("", store.TableItems))
}

func preparedMemory(t *testing.T) *memory.Gateway {
	t.Helper()
	ctx := context.Background()
	g := memory.NewGateway(nil)
	require.NoError(t, g.Connect(ctx, store.Bundle{}, store.Credentials{}, "ks"))
	require.NoError(t, g.CreateSchema(ctx))
	require.NoError(t, g.Prepare(ctx))
	return g
}

func TestBreakerGateway_OpensOnFailures(t *testing.T) {
	ctx := context.Background()
	inner := preparedMemory(t)
	b := store.NewBreakerGateway(inner, store.BreakerConfig{
		Name:             "test",
		FailureRatio:     0.5,
		MinRequests:      4,
		Interval:         time.Minute,
		OpenDuration:     time.Minute,
		HalfOpenRequests: 1,
	}, nil)

	boom := apperrors.StoreWrite("ThrottlingException", "store call failed").Build()
	inner.SetError(store.OpPutItem, boom)

	for i := 0; i < 4; i++ {
		err := b.PutItem(ctx, catalog.ItemRow{ASIN: "A", CategoryName: "c"})
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	inner.ClearErrors()
	err := b.PutItem(ctx, catalog.ItemRow{ASIN: "A", CategoryName: "c"})
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreWrite(err))
	assert.True(t, apperrors.IsRetryable(err))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	_, err = b.QueryItem(ctx, "A")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStoreRead))
}

func TestBreakerGateway_IgnoresLifecycleErrors(t *testing.T) {
	ctx := context.Background()
	b := store.NewBreakerGateway(memory.NewGateway(nil), store.BreakerConfig{
		Name: "test", FailureRatio: 0.1, MinRequests: 1, HalfOpenRequests: 1,
	}, nil)

	for i := 0; i < 5; i++ {
		assert.True(t, store.IsNotConnected(b.PutItem(ctx, catalog.ItemRow{ASIN: "A"})))
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerGateway_PassesResults(t *testing.T) {
	ctx := context.Background()
	inner := preparedMemory(t)
	b := store.NewBreakerGateway(inner, store.BreakerConfig{Name: "test", FailureRatio: 0.5, MinRequests: 10}, nil)

	require.NoError(t, b.PutReviewByItem(ctx, catalog.ReviewRow{ASIN: "A", ReviewerID: "U"}))
	rows, err := b.QueryReviewsByItem(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	none, err := b.QueryReviewsByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

type recordedCall struct {
	op  string
	err error
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *fakeRecorder) ObserveStoreCall(op string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{op: op, err: err})
}

func TestInstrumentedGateway(t *testing.T) {
	ctx := context.Background()
	inner := preparedMemory(t)
	recorder := &fakeRecorder{}
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	g := store.NewInstrumentedGateway(inner, recorder, tp.Tracer("test"))

	require.NoError(t, g.PutItem(ctx, catalog.ItemRow{ASIN: "A", CategoryName: "c"}))
	rows, err := g.QueryItem(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	boom := errors.New("boom")
	inner.SetError(store.OpPutReviewByUser, boom)
	assert.ErrorIs(t, g.PutReviewByUser(ctx, catalog.ReviewRow{ASIN: "A", ReviewerID: "U"}), boom)

	require.Len(t, recorder.calls, 3)
	assert.Equal(t, store.OpPutItem, recorder.calls[0].op)
	assert.Equal(t, store.OpQueryItem, recorder.calls[1].op)
	assert.ErrorIs(t, recorder.calls[2].err, boom)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "store.PutItem", spans[0].Name)
	assert.Equal(t, "store.QueryItem", spans[1].Name)
	assert.Len(t, spans[2].Events, 1, "the error is recorded on the span")
}

func TestInstrumentedGateway_NilCollaborators(t *testing.T) {
	g := store.NewInstrumentedGateway(preparedMemory(t), nil, nil)
	assert.NoError(t, g.PutItem(context.Background(), catalog.ItemRow{ASIN: "A", CategoryName: "c"}))
}
