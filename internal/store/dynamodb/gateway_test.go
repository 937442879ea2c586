package dynamodb

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"catalog-loader/internal/catalog"
	apperrors "catalog-loader/internal/errors"
	"catalog-loader/internal/store"
)

func fakeFactory(client *fakeClient) ClientFactory {
	return func(context.Context, store.Bundle, store.Credentials) (API, error) {
		return client, nil
	}
}

func newPreparedGateway(t *testing.T, client *fakeClient) *Gateway {
	t.Helper()
	ctx := context.Background()
	g := NewGateway(fakeFactory(client), Options{}, nil)
	require.NoError(t, g.Connect(ctx, store.Bundle{Region: "us-east-1"}, store.Credentials{}, "test"))
	require.NoError(t, g.CreateSchema(ctx))
	require.NoError(t, g.Prepare(ctx))
	return g
}

func TestTimeDescKey_Ordering(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	times := []time.Time{time.Unix(0, 0), time.Unix(-86400, 0), time.UnixMilli(1)}
	for i := 0; i < 200; i++ {
		times = append(times, time.UnixMilli(rng.Int63n(4_000_000_000_000)-1_000_000_000_000))
	}

	keys := make([]string, len(times))
	for i, ts := range times {
		keys[i] = timeDescKey(ts)
		assert.Len(t, keys[i], 16)

		back, err := parseTimeDescKey(keys[i])
		require.NoError(t, err)
		assert.Equal(t, ts.UnixMilli(), back.UnixMilli())
	}

	sort.Strings(keys)
	for i := 1; i < len(keys); i++ {
		prev, _ := parseTimeDescKey(keys[i-1])
		cur, _ := parseTimeDescKey(keys[i])
		assert.False(t, cur.After(prev), "ascending keys must be descending times")
	}
}

func TestReviewSortKey_TieBreak(t *testing.T) {
	ts := time.Unix(1000, 0)
	assert.Less(t, reviewSortKey(ts, "A"), reviewSortKey(ts, "B"))
	assert.Less(t, reviewSortKey(ts.Add(time.Second), "Z"), reviewSortKey(ts, "A"))
}

func TestGateway_Lifecycle(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	factoryCalls := 0
	client := newFakeClient(10)
	g := NewGateway(func(context.Context, store.Bundle, store.Credentials) (API, error) {
		factoryCalls++
		return client, nil
	}, Options{}, zap.New(core))

	assert.True(t, store.IsNotConnected(g.CreateSchema(ctx)))
	assert.True(t, store.IsNotConnected(g.PutItem(ctx, catalog.ItemRow{ASIN: "A", CategoryName: "c"})))

	require.NoError(t, g.Connect(ctx, store.Bundle{}, store.Credentials{}, "ks"))
	require.NoError(t, g.Connect(ctx, store.Bundle{}, store.Credentials{}, "ks"))
	assert.Equal(t, 1, factoryCalls)

	assert.True(t, store.IsNotPrepared(g.PutItem(ctx, catalog.ItemRow{ASIN: "A", CategoryName: "c"})))

	require.NoError(t, g.Close(ctx))
	require.NoError(t, g.Close(ctx))
	assert.Equal(t, 1, logs.FilterMessage("already connected").Len())
	assert.Equal(t, 1, logs.FilterMessage("already closed").Len())
}

func TestGateway_ConnectFailure(t *testing.T) {
	g := NewGateway(func(context.Context, store.Bundle, store.Credentials) (API, error) {
		return nil, errors.New("no credentials")
	}, Options{}, nil)

	err := g.Connect(context.Background(), store.Bundle{Region: "eu-west-1"}, store.Credentials{}, "ks")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConnection))
}

func TestGateway_CreateSchema(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient(10)
	g := NewGateway(fakeFactory(client), Options{ReadCapacity: 5, WriteCapacity: 5}, nil)
	require.NoError(t, g.Connect(ctx, store.Bundle{}, store.Credentials{}, "shop"))

	require.NoError(t, g.CreateSchema(ctx))
	require.NoError(t, g.CreateSchema(ctx), "existing tables are tolerated")
	assert.Equal(t, 6, client.Calls("CreateTable"))

	items := client.tables["shop_items"]
	require.NotNil(t, items)
	assert.Equal(t, "asin", items.hash)
	assert.Equal(t, "category_name", items.rng)
	assert.Equal(t, types.BillingModeProvisioned, items.input.BillingMode)

	byUser := client.tables["shop_reviews_by_user"]
	require.NotNil(t, byUser)
	assert.Equal(t, "reviewerID", byUser.hash)
	assert.Equal(t, "sk", byUser.rng)

	byItem := client.tables["shop_reviews_by_item"]
	require.NotNil(t, byItem)
	assert.Equal(t, "asin", byItem.hash)
}

func TestGateway_PrepareNeedsTables(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(fakeFactory(newFakeClient(10)), Options{}, nil)
	require.NoError(t, g.Connect(ctx, store.Bundle{}, store.Credentials{}, "ks"))

	err := g.Prepare(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGateway_ItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient(2)
	g := newPreparedGateway(t, client)

	for _, c := range []string{"Toys", "Outdoor", "Games", "Toys"} {
		require.NoError(t, g.PutItem(ctx, catalog.ItemRow{
			ASIN: "B1", CategoryName: c, Title: "Ball", Description: "", ImageURL: "img",
		}))
	}

	rows, err := g.QueryItem(ctx, "B1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Games", rows[0].CategoryName)
	assert.Equal(t, "Outdoor", rows[1].CategoryName)
	assert.Equal(t, "Toys", rows[2].CategoryName)
	assert.Equal(t, "Ball", rows[0].Title)
	assert.Equal(t, "img", rows[2].ImageURL)
	assert.Equal(t, 2, client.Calls("Query"), "three rows over pages of two")

	q := client.lastQuery
	require.NotNil(t, q)
	assert.Equal(t, "test_items", aws.ToString(q.TableName))
	assert.True(t, aws.ToBool(q.ScanIndexForward))
	assert.NotEmpty(t, aws.ToString(q.ProjectionExpression))

	none, err := g.QueryItem(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGateway_ReviewOrdering(t *testing.T) {
	ctx := context.Background()
	g := newPreparedGateway(t, newFakeClient(3))

	t1 := time.Unix(1000, 0).UTC()
	t2 := time.Unix(2000, 0).UTC()
	reviews := []catalog.ReviewRow{
		{ASIN: "B", ReviewerID: "U1", Time: t1, Rating: 4, ReviewerName: "Ann", Summary: "s", ReviewText: "r"},
		{ASIN: "C", ReviewerID: "U1", Time: t2},
		{ASIN: "A", ReviewerID: "U1", Time: t2},
		{ASIN: "A", ReviewerID: "U1", Time: t1},
		{ASIN: "A", ReviewerID: "U3", Time: t1},
		{ASIN: "A", ReviewerID: "U2", Time: t1},
	}
	for _, r := range reviews {
		require.NoError(t, g.PutReviewByUser(ctx, r))
		require.NoError(t, g.PutReviewByItem(ctx, r))
	}

	byUser, err := g.QueryReviewsByUser(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, byUser, 4)
	assert.Equal(t, []string{"A", "C", "A", "B"}, []string{byUser[0].ASIN, byUser[1].ASIN, byUser[2].ASIN, byUser[3].ASIN})
	assert.Equal(t, t2, byUser[0].Time)
	assert.Equal(t, t1, byUser[3].Time)
	assert.Equal(t, "Ann", byUser[3].ReviewerName)
	assert.Equal(t, 4, byUser[3].Rating)

	byItem, err := g.QueryReviewsByItem(ctx, "A")
	require.NoError(t, err)
	require.Len(t, byItem, 4)
	assert.Equal(t, []string{"U1", "U1", "U2", "U3"}, []string{byItem[0].ReviewerID, byItem[1].ReviewerID, byItem[2].ReviewerID, byItem[3].ReviewerID})
	assert.Equal(t, t2, byItem[0].Time)
}

func TestGateway_ErrorClassification(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		err       error
		check     func(error) bool
		retryable bool
	}{
		{
			name:      "throttling is a retryable write error",
			err:       &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException", Message: "slow down"},
			check:     apperrors.IsStoreWrite,
			retryable: true,
		},
		{
			name:  "validation is a permanent write error",
			err:   &smithy.GenericAPIError{Code: "ValidationException", Message: "bad item"},
			check: apperrors.IsStoreWrite,
		},
		{
			name:      "deadline is a timeout",
			err:       context.DeadlineExceeded,
			check:     apperrors.IsTimeout,
			retryable: true,
		},
		{
			name:  "missing table is not found",
			err:   &types.ResourceNotFoundException{Message: aws.String("gone")},
			check: apperrors.IsNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient(10)
			g := newPreparedGateway(t, client)
			client.SetError("PutItem", tt.err)

			err := g.PutItem(ctx, catalog.ItemRow{ASIN: "A", CategoryName: "c"})
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("query failures are read errors", func(t *testing.T) {
		client := newFakeClient(10)
		g := newPreparedGateway(t, client)
		client.SetError("Query", &smithy.GenericAPIError{Code: "InternalServerError"})

		_, err := g.QueryReviewsByItem(ctx, "A")
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStoreRead))
		assert.True(t, apperrors.IsRetryable(err))
	})
}
