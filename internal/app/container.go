// Package app wires the catalog loader from configuration and exposes its
// operations as a single facade.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"catalog-loader/internal/config"
	"catalog-loader/internal/events"
	"catalog-loader/internal/initialization"
	"catalog-loader/internal/observability"
	"catalog-loader/internal/store"
	"catalog-loader/internal/store/dynamodb"
	"catalog-loader/internal/store/memory"
)

// Container holds the wired dependencies.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Collector // nil when metrics are disabled
	Runs    *observability.RunReporter // nil when cloudwatch is disabled
	Tracing *observability.TracerProvider
	Gateway store.Gateway
	Events  events.Publisher

	shutdownFunctions []func(context.Context) error
}

// Option customizes NewContainer.
type Option func(*containerOptions)

type containerOptions struct {
	gateway   store.Gateway
	publisher events.Publisher
	collector *observability.Collector
	runs      *observability.RunReporter
}

// WithGateway replaces the backend chosen by configuration. Decorators are
// still applied.
func WithGateway(g store.Gateway) Option {
	return func(o *containerOptions) { o.gateway = g }
}

// WithPublisher replaces the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *containerOptions) { o.publisher = p }
}

// WithCollector uses c for metrics, whether or not metrics are enabled.
func WithCollector(c *observability.Collector) Option {
	return func(o *containerOptions) { o.collector = c }
}

// WithRunReporter replaces the CloudWatch run reporter.
func WithRunReporter(r *observability.RunReporter) Option {
	return func(o *containerOptions) { o.runs = r }
}

// NewContainer creates and initializes a new dependency container.
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	var o containerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{Config: cfg, Logger: logger}

	// 1. Observability
	c.Metrics = o.collector
	if c.Metrics == nil && cfg.Metrics.Enabled {
		c.Metrics = observability.NewCollector(cfg.Metrics.Namespace)
	}
	tp, err := observability.InitTracing(ctx, cfg.Environment, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	c.Tracing = tp
	c.shutdownFunctions = append(c.shutdownFunctions, tp.Shutdown)

	// 2. Store
	base := o.gateway
	if base == nil {
		base, err = newBackend(cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	c.Gateway = decorate(base, cfg, c.Metrics, tp.Tracer(), logger)

	// 3. Events and CloudWatch, sharing one AWS configuration
	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg == nil {
			loaded, err := initialization.LoadAWSConfig(ctx, initialization.AWSOptions{
				Region:          cfg.Store.Region,
				Profile:         cfg.Store.Profile,
				AccessKeyID:     cfg.Store.AccessKeyID,
				SecretAccessKey: cfg.Store.SecretAccessKey,
				SessionToken:    cfg.Store.SessionToken,
			})
			if err != nil {
				return aws.Config{}, err
			}
			awsCfg = &loaded
		}
		return *awsCfg, nil
	}

	c.Events = o.publisher
	if c.Events == nil {
		c.Events, err = newPublisher(cfg, loadAWS, logger)
		if err != nil {
			return nil, err
		}
	}

	c.Runs = o.runs
	if c.Runs == nil && cfg.Metrics.CloudWatch.Enabled {
		awsConf, err := loadAWS()
		if err != nil {
			return nil, err
		}
		c.Runs = observability.NewRunReporter(initialization.NewCloudWatchClient(awsConf),
			cfg.Metrics.CloudWatch.Namespace, cfg.Store.Keyspace, logger)
	}

	logger.Info("container initialized",
		zap.String("backend", cfg.Store.Backend),
		zap.String("keyspace", cfg.Store.Keyspace),
		zap.Bool("circuit_breaker", cfg.CircuitBreaker.Enabled),
		zap.Bool("metrics", c.Metrics != nil),
		zap.Bool("cloudwatch", c.Runs != nil),
		zap.Bool("tracing", cfg.Tracing.Enabled),
		zap.Bool("events", cfg.Events.Enabled))
	return c, nil
}

func newBackend(cfg *config.Config, logger *zap.Logger) (store.Gateway, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.NewGateway(logger), nil
	case config.BackendDynamoDB:
		// one connection per worker that may hold an admission permit
		conns := max(cfg.Ingest.Items.AdmissionLimit, cfg.Ingest.Reviews.AdmissionLimit)
		factory := dynamodb.NewClientFactory(cfg.Store.RetryMaxAttempts, conns, cfg.Store.Timeout)
		return dynamodb.NewGateway(factory, dynamodb.Options{
			ReadCapacity:     cfg.Store.ReadCapacity,
			WriteCapacity:    cfg.Store.WriteCapacity,
			TableWaitTimeout: cfg.Store.TableWaitTimeout,
			CallTimeout:      cfg.Store.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// decorate wraps base with the breaker and then instrumentation, so calls
// rejected by an open circuit are still measured.
func decorate(base store.Gateway, cfg *config.Config, metrics *observability.Collector, tracer trace.Tracer, logger *zap.Logger) store.Gateway {
	g := base
	if cfg.CircuitBreaker.Enabled {
		g = store.NewBreakerGateway(g, store.BreakerConfig{
			Name:             "store",
			FailureRatio:     cfg.CircuitBreaker.FailureRatio,
			MinRequests:      cfg.CircuitBreaker.MinimumRequests,
			Interval:         cfg.CircuitBreaker.Interval,
			OpenDuration:     cfg.CircuitBreaker.OpenDuration,
			HalfOpenRequests: cfg.CircuitBreaker.HalfOpenRequests,
		}, logger)
	}

	var recorder store.Recorder
	if metrics != nil {
		recorder = metrics
	}
	return store.NewInstrumentedGateway(g, recorder, tracer)
}

func newPublisher(cfg *config.Config, loadAWS func() (aws.Config, error), logger *zap.Logger) (events.Publisher, error) {
	if !cfg.Events.Enabled {
		return events.NopPublisher{}, nil
	}
	awsCfg, err := loadAWS()
	if err != nil {
		return nil, err
	}
	return events.NewEventBridgePublisher(
		initialization.NewEventBridgeClient(awsCfg),
		cfg.Events.EventBusName,
		cfg.Events.Source,
		cfg.Store.Keyspace,
		logger,
	), nil
}

// Bundle returns the store location from configuration.
func (c *Container) Bundle() store.Bundle {
	return store.Bundle{Region: c.Config.Store.Region, Endpoint: c.Config.Store.Endpoint}
}

// Credentials returns the store credentials from configuration.
func (c *Container) Credentials() store.Credentials {
	return store.Credentials{
		Profile:         c.Config.Store.Profile,
		AccessKeyID:     c.Config.Store.AccessKeyID,
		SecretAccessKey: c.Config.Store.SecretAccessKey,
		SessionToken:    c.Config.Store.SessionToken,
	}
}

// Shutdown releases everything the container started, last first.
func (c *Container) Shutdown(ctx context.Context) error {
	var firstErr error
	for i := len(c.shutdownFunctions) - 1; i >= 0; i-- {
		if err := c.shutdownFunctions[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.shutdownFunctions = nil
	return firstErr
}
