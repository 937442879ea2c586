// Package dynamodb stores the catalog tables in AWS DynamoDB.
//
// Each catalog table becomes one DynamoDB table named <keyspace>_<table>.
// The partition column is the hash key. Clustering columns are folded into a
// single string range key whose byte order is the clustering order, so a
// forward Query returns a partition exactly as the wide-column layout orders
// it:
//
//	items            asin        / category_name
//	reviews_by_user  reviewerID  / hex(^time) "#" asin
//	reviews_by_item  asin        / hex(^time) "#" reviewerID
//
// DynamoDB has no static columns; items carry title, description and imUrl
// on every row, all written from the same record.
package dynamodb

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"catalog-loader/internal/catalog"
	apperrors "catalog-loader/internal/errors"
	"catalog-loader/internal/initialization"
	"catalog-loader/internal/store"
)

// API is the part of the DynamoDB client the gateway uses.
type API interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ClientFactory opens a client for a bundle and credentials.
type ClientFactory func(ctx context.Context, bundle store.Bundle, creds store.Credentials) (API, error)

// NewClientFactory returns the factory backed by the AWS SDK.
func NewClientFactory(retryMaxAttempts, maxConnsPerHost int, httpTimeout time.Duration) ClientFactory {
	return func(ctx context.Context, bundle store.Bundle, creds store.Credentials) (API, error) {
		opts := initialization.AWSOptions{
			Region:           bundle.Region,
			Endpoint:         bundle.Endpoint,
			Profile:          creds.Profile,
			AccessKeyID:      creds.AccessKeyID,
			SecretAccessKey:  creds.SecretAccessKey,
			SessionToken:     creds.SessionToken,
			RetryMaxAttempts: retryMaxAttempts,
			MaxConnsPerHost:  maxConnsPerHost,
			HTTPTimeout:      httpTimeout,
		}
		cfg, err := initialization.LoadAWSConfig(ctx, opts)
		if err != nil {
			return nil, err
		}
		return initialization.NewDynamoDBClient(cfg, opts), nil
	}
}

// Options tunes the gateway.
type Options struct {
	// ReadCapacity and WriteCapacity switch new tables to provisioned
	// billing when both are positive.
	ReadCapacity     int64
	WriteCapacity    int64
	TableWaitTimeout time.Duration
	// CallTimeout bounds each PutItem and each Query page; zero means none.
	CallTimeout    time.Duration
	ConsistentRead bool
}

// Gateway implements store.Gateway on DynamoDB.
type Gateway struct {
	factory ClientFactory
	opts    Options
	logger  *zap.Logger

	// mu serializes lifecycle operations
	mu     sync.Mutex
	handle atomic.Pointer[handle]
}

// handle is the connection plus, after Prepare, the prepared operations.
// It is replaced, never mutated.
type handle struct {
	client   API
	keyspace string
	bundle   store.Bundle
	stmts    *statements
}

var _ store.Gateway = (*Gateway)(nil)

// NewGateway creates a disconnected gateway.
func NewGateway(factory ClientFactory, opts Options, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TableWaitTimeout <= 0 {
		opts.TableWaitTimeout = 5 * time.Minute
	}
	return &Gateway{
		factory: factory,
		opts:    opts,
		logger:  logger.Named("dynamodb-store"),
	}
}

// Connect opens a client. A second Connect logs a warning and is a no-op.
func (g *Gateway) Connect(ctx context.Context, bundle store.Bundle, creds store.Credentials, keyspace string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.handle.Load() != nil {
		g.logger.Warn("already connected", zap.String("keyspace", keyspace))
		return nil
	}

	client, err := g.factory(ctx, bundle, creds)
	if err != nil {
		return apperrors.Connection("CONNECT_FAILED", "cannot create store client").
			WithOperation(store.OpConnect).
			WithResource(bundle.Region).
			WithCause(err).
			Build()
	}

	g.handle.Store(&handle{client: client, keyspace: keyspace, bundle: bundle})
	g.logger.Info("connected",
		zap.String("region", bundle.Region),
		zap.String("endpoint", bundle.Endpoint),
		zap.String("keyspace", keyspace),
		zap.Bool("static_credentials", !creds.IsZero()))
	return nil
}

// Close drops the client. Closing twice logs a warning and is a no-op.
func (g *Gateway) Close(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := g.handle.Load()
	if h == nil {
		g.logger.Warn("already closed")
		return nil
	}
	g.handle.Store(nil)
	g.logger.Info("closed", zap.String("keyspace", h.keyspace))
	return nil
}

// CreateSchema creates the three catalog tables if missing and waits until
// they are ACTIVE.
func (g *Gateway) CreateSchema(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := g.handle.Load()
	if h == nil {
		return store.NotConnected(store.OpCreateSchema)
	}

	for _, t := range store.Schema() {
		name := store.TableName(h.keyspace, t.Name)
		_, err := h.client.CreateTable(ctx, createTableInput(name, t, g.opts))
		switch {
		case err == nil:
			g.logger.Info("creating table", zap.String("table", name))
		case isResourceInUse(err):
			g.logger.Debug("table already exists", zap.String("table", name))
		default:
			return classify(err, apperrors.StoreWrite, store.OpCreateSchema, name)
		}

		waiter := dynamodb.NewTableExistsWaiter(h.client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, g.opts.TableWaitTimeout); err != nil {
			return apperrors.Timeout("TABLE_NOT_ACTIVE", "table did not become active").
				WithOperation(store.OpCreateSchema).
				WithResource(name).
				WithCause(err).
				Build()
		}
	}
	return nil
}

// Prepare checks that the tables exist and compiles the write and read
// templates shared by all callers.
func (g *Gateway) Prepare(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := g.handle.Load()
	if h == nil {
		return store.NotConnected(store.OpPrepare)
	}

	for _, t := range store.Schema() {
		name := store.TableName(h.keyspace, t.Name)
		out, err := h.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
		if err != nil {
			return classify(err, apperrors.StoreRead, store.OpPrepare, name)
		}
		if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
			return apperrors.Conflict("TABLE_NOT_ACTIVE", "table is not active").
				WithOperation(store.OpPrepare).
				WithResource(name).
				Build()
		}
	}

	stmts, err := prepareStatements(h.keyspace, g.opts.ConsistentRead)
	if err != nil {
		return apperrors.Internal("PREPARE_FAILED", "cannot build store expressions").
			WithOperation(store.OpPrepare).
			WithCause(err).
			Build()
	}

	next := *h
	next.stmts = stmts
	g.handle.Store(&next)
	g.logger.Debug("operations prepared", zap.String("keyspace", h.keyspace))
	return nil
}

func (g *Gateway) prepared(op string) (*handle, error) {
	h := g.handle.Load()
	if h == nil {
		return nil, store.NotConnected(op)
	}
	if h.stmts == nil {
		return nil, store.NotPrepared(op)
	}
	return h, nil
}

func (g *Gateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, g.opts.CallTimeout)
	}
	return ctx, func() {}
}

// ============================================================================
// WRITES
// ============================================================================

func (g *Gateway) PutItem(ctx context.Context, row catalog.ItemRow) error {
	h, err := g.prepared(store.OpPutItem)
	if err != nil {
		return err
	}
	return g.put(ctx, h.client, h.stmts.putItem, row, store.OpPutItem)
}

func (g *Gateway) PutReviewByUser(ctx context.Context, row catalog.ReviewRow) error {
	h, err := g.prepared(store.OpPutReviewByUser)
	if err != nil {
		return err
	}
	return g.put(ctx, h.client, h.stmts.putReviewByUser, newReviewItem(row, row.ASIN), store.OpPutReviewByUser)
}

func (g *Gateway) PutReviewByItem(ctx context.Context, row catalog.ReviewRow) error {
	h, err := g.prepared(store.OpPutReviewByItem)
	if err != nil {
		return err
	}
	return g.put(ctx, h.client, h.stmts.putReviewByItem, newReviewItem(row, row.ReviewerID), store.OpPutReviewByItem)
}

func (g *Gateway) put(ctx context.Context, client API, tmpl dynamodb.PutItemInput, value any, op string) error {
	item, err := attributevalue.MarshalMap(value)
	if err != nil {
		return apperrors.StoreWrite("MARSHAL_FAILED", "cannot encode row").
			WithOperation(op).
			WithResource(aws.ToString(tmpl.TableName)).
			WithCause(err).
			Build()
	}

	ctx, cancel := g.callContext(ctx)
	defer cancel()

	in := tmpl
	in.Item = item
	if _, err := client.PutItem(ctx, &in); err != nil {
		return classify(err, apperrors.StoreWrite, op, aws.ToString(tmpl.TableName))
	}
	return nil
}

// ============================================================================
// READS
// ============================================================================

func (g *Gateway) QueryItem(ctx context.Context, asin string) ([]catalog.ItemRow, error) {
	h, err := g.prepared(store.OpQueryItem)
	if err != nil {
		return nil, err
	}
	return query[catalog.ItemRow](ctx, g, h.client, h.stmts.queryItem.bind(asin), store.OpQueryItem)
}

func (g *Gateway) QueryReviewsByUser(ctx context.Context, reviewerID string) ([]catalog.ReviewRow, error) {
	h, err := g.prepared(store.OpQueryReviewsByUser)
	if err != nil {
		return nil, err
	}
	items, err := query[reviewItem](ctx, g, h.client, h.stmts.queryReviewsByUser.bind(reviewerID), store.OpQueryReviewsByUser)
	return reviewRows(items), err
}

func (g *Gateway) QueryReviewsByItem(ctx context.Context, asin string) ([]catalog.ReviewRow, error) {
	h, err := g.prepared(store.OpQueryReviewsByItem)
	if err != nil {
		return nil, err
	}
	items, err := query[reviewItem](ctx, g, h.client, h.stmts.queryReviewsByItem.bind(asin), store.OpQueryReviewsByItem)
	return reviewRows(items), err
}

// query pages through a partition in range-key order.
func query[T any](ctx context.Context, g *Gateway, client API, in *dynamodb.QueryInput, op string) ([]T, error) {
	table := aws.ToString(in.TableName)
	paginator := dynamodb.NewQueryPaginator(client, in)

	var out []T
	for paginator.HasMorePages() {
		pageCtx, cancel := g.callContext(ctx)
		page, err := paginator.NextPage(pageCtx)
		cancel()
		if err != nil {
			return nil, classify(err, apperrors.StoreRead, op, table)
		}

		var batch []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, apperrors.StoreRead("UNMARSHAL_FAILED", "cannot decode rows").
				WithOperation(op).
				WithResource(table).
				WithCause(err).
				Build()
		}
		out = append(out, batch...)
	}
	return out, nil
}

func reviewRows(items []reviewItem) []catalog.ReviewRow {
	if items == nil {
		return nil
	}
	rows := make([]catalog.ReviewRow, len(items))
	for i, it := range items {
		rows[i] = it.row()
	}
	return rows
}
