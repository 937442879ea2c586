package app

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"catalog-loader/internal/catalog"
	"catalog-loader/internal/config"
	"catalog-loader/internal/ingest"
	"catalog-loader/internal/logging"
	"catalog-loader/internal/reader"
	"catalog-loader/internal/store"
)

// Catalog is the operations surface of the loader: connection lifecycle,
// schema, the two bulk loads and the three reads.
type Catalog struct {
	container *Container
	gateway   store.Gateway
	reader    *reader.Reader
	logger    *zap.Logger
}

// NewCatalog creates the facade over a wired container.
func NewCatalog(c *Container) *Catalog {
	return &Catalog{
		container: c,
		gateway:   c.Gateway,
		reader:    reader.New(c.Gateway, c.Logger),
		logger:    c.Logger.Named("catalog"),
	}
}

// Connect opens the store session. A second Connect logs a warning and does
// nothing.
func (c *Catalog) Connect(ctx context.Context, bundle store.Bundle, creds store.Credentials, keyspace string) error {
	return c.gateway.Connect(ctx, bundle, creds, keyspace)
}

// ConnectFromConfig connects with the bundle, credentials and keyspace of the
// container's configuration.
func (c *Catalog) ConnectFromConfig(ctx context.Context) error {
	return c.Connect(ctx, c.container.Bundle(), c.container.Credentials(), c.container.Config.Store.Keyspace)
}

// Close releases the store session. Closing twice logs a warning.
func (c *Catalog) Close(ctx context.Context) error {
	return c.gateway.Close(ctx)
}

// CreateTables creates the three tables if they do not exist.
func (c *Catalog) CreateTables(ctx context.Context) error {
	return c.gateway.CreateSchema(ctx)
}

// Initialize prepares the store operations. Loads and reads need it.
func (c *Catalog) Initialize(ctx context.Context) error {
	return c.gateway.Prepare(ctx)
}

// LoadItems bulk-loads an items file, one row per category membership.
func (c *Catalog) LoadItems(ctx context.Context, path string) (*ingest.Report, error) {
	produce := func(line []byte) ([]catalog.ItemRow, error) {
		rec, err := catalog.DecodeLine(line)
		if err != nil {
			return nil, err
		}
		return catalog.ItemToRows(rec)
	}
	return load(ctx, c, ingest.KindItems, c.container.Config.Ingest.Items, path, produce, c.gateway.PutItem)
}

type reviewWrite struct {
	row    catalog.ReviewRow
	byItem bool
}

// LoadReviews bulk-loads a reviews file. Every review is written twice, to
// the by-user table first and then to the by-item table; the two writes are
// independent.
func (c *Catalog) LoadReviews(ctx context.Context, path string) (*ingest.Report, error) {
	produce := func(line []byte) ([]reviewWrite, error) {
		rec, err := catalog.DecodeLine(line)
		if err != nil {
			return nil, err
		}
		byUser, byItem, err := catalog.ReviewToRows(rec)
		if err != nil {
			return nil, err
		}
		return []reviewWrite{{row: byUser}, {row: byItem, byItem: true}}, nil
	}
	write := func(ctx context.Context, w reviewWrite) error {
		if w.byItem {
			return c.gateway.PutReviewByItem(ctx, w.row)
		}
		return c.gateway.PutReviewByUser(ctx, w.row)
	}
	return load(ctx, c, ingest.KindReviews, c.container.Config.Ingest.Reviews, path, produce, write)
}

func load[R any](ctx context.Context, c *Catalog, kind ingest.Kind, p config.Pipeline, path string,
	produce ingest.Produce[R], write ingest.Write[R]) (*ingest.Report, error) {
	cfg := c.container.Config

	ctx, span := c.container.Tracing.Tracer().Start(ctx, "catalog.Load", trace.WithAttributes(
		attribute.String("ingest.kind", string(kind)),
		attribute.String("ingest.path", path),
	))
	defer span.End()

	opts := ingest.Options{
		Kind:           kind,
		Concurrency:    p.Concurrency,
		AdmissionLimit: p.AdmissionLimit,
		QueueSize:      p.QueueSize,
		DrainTimeout:   p.DrainTimeout,
		MaxLineBytes:   cfg.Ingest.MaxLineBytes,
		FailureSamples: cfg.Ingest.FailureSamples,
		Logger:         c.logger,
	}
	if c.container.Metrics != nil {
		opts.Observer = c.container.Metrics
	}

	report, err := ingest.Run(ctx, path, produce, write, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		c.logger.Error("load failed", append(logging.ErrorFields(err), zap.String("path", path))...)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("ingest.run_id", report.RunID),
		attribute.Int64("ingest.lines_read", report.LinesRead),
		attribute.Int64("ingest.succeeded", report.Succeeded),
		attribute.Int64("ingest.skipped", report.TotalSkipped()),
		attribute.Bool("ingest.drain_timed_out", report.DrainTimedOut),
	)
	if c.container.Metrics != nil {
		c.container.Metrics.ObserveRun(report)
	}
	if err := c.container.Runs.PublishRun(ctx, report); err != nil {
		c.logger.Warn("run metrics not sent",
			append(logging.ErrorFields(err), zap.String("run_id", report.RunID))...)
	}
	if err := c.container.Events.PublishLoadCompleted(ctx, report); err != nil {
		c.logger.Warn("load-completed event not published",
			append(logging.ErrorFields(err), zap.String("run_id", report.RunID))...)
	}
	return report, nil
}

// Item renders the item with asin, or "not exists".
func (c *Catalog) Item(ctx context.Context, asin string) (string, error) {
	view, found, err := c.reader.GetItem(ctx, asin)
	if err != nil {
		return "", err
	}
	if !found {
		return catalog.NotExists, nil
	}
	return catalog.RenderItem(view), nil
}

// UserReviews renders the reviews written by reviewerID, newest first.
func (c *Catalog) UserReviews(ctx context.Context, reviewerID string) ([]string, error) {
	return c.reader.ListByUser(ctx, reviewerID)
}

// ItemReviews renders the reviews of asin, newest first.
func (c *Catalog) ItemReviews(ctx context.Context, asin string) ([]string, error) {
	return c.reader.ListByItem(ctx, asin)
}
