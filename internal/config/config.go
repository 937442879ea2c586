// Package config holds the typed configuration of the catalog loader and the
// layered loader that builds it (see loader.go).
package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "catalog-loader/internal/errors"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Store backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config is the complete application configuration.
type Config struct {
	Environment    Environment    `yaml:"environment" json:"environment" validate:"required,oneof=development staging production"`
	Store          Store          `yaml:"store" json:"store"`
	Ingest         Ingest         `yaml:"ingest" json:"ingest"`
	CircuitBreaker CircuitBreaker `yaml:"circuit_breaker" json:"circuit_breaker"`
	Logging        Logging        `yaml:"logging" json:"logging"`
	Metrics        Metrics        `yaml:"metrics" json:"metrics"`
	Tracing        Tracing        `yaml:"tracing" json:"tracing"`
	Events         Events         `yaml:"events" json:"events"`

	// Metadata, set by the loader
	LoadedFrom []string `yaml:"-" json:"-"`
}

// Store configures the wide-column store connection.
type Store struct {
	Backend  string `yaml:"backend" json:"backend" validate:"required,oneof=dynamodb memory"`
	Keyspace string `yaml:"keyspace" json:"keyspace" validate:"required,max=200"`

	// Bundle: where the store lives.
	Region   string `yaml:"region" json:"region"`
	Endpoint string `yaml:"endpoint" json:"endpoint" validate:"omitempty,url"`

	// Credentials. Empty values fall back to the AWS default chain.
	Profile         string `yaml:"profile" json:"profile"`
	AccessKeyID     string `yaml:"access_key_id" json:"-"`
	SecretAccessKey string `yaml:"secret_access_key" json:"-"`
	SessionToken    string `yaml:"session_token" json:"-"`

	RetryMaxAttempts int           `yaml:"retry_max_attempts" json:"retry_max_attempts" validate:"min=1,max=10"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`
	ReadCapacity     int64         `yaml:"read_capacity" json:"read_capacity" validate:"min=0"`
	WriteCapacity    int64         `yaml:"write_capacity" json:"write_capacity" validate:"min=0"`
	TableWaitTimeout time.Duration `yaml:"table_wait_timeout" json:"table_wait_timeout" validate:"min=0"`
}

// Ingest configures both bulk-load pipelines.
type Ingest struct {
	Items          Pipeline `yaml:"items" json:"items"`
	Reviews        Pipeline `yaml:"reviews" json:"reviews"`
	MaxLineBytes   int      `yaml:"max_line_bytes" json:"max_line_bytes" validate:"min=1024"`
	FailureSamples int      `yaml:"failure_samples" json:"failure_samples" validate:"min=0"`
}

// Pipeline sizes one ingestion run.
type Pipeline struct {
	Concurrency    int           `yaml:"concurrency" json:"concurrency" validate:"min=1,max=10000"`
	AdmissionLimit int           `yaml:"admission_limit" json:"admission_limit" validate:"min=1"`
	QueueSize      int           `yaml:"queue_size" json:"queue_size" validate:"min=0"`
	DrainTimeout   time.Duration `yaml:"drain_timeout" json:"drain_timeout" validate:"min=0"`
}

// CircuitBreaker configures the breaker wrapped around store calls.
type CircuitBreaker struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureRatio     float64       `yaml:"failure_ratio" json:"failure_ratio" validate:"gt=0,lte=1"`
	MinimumRequests  uint32        `yaml:"minimum_requests" json:"minimum_requests" validate:"min=1"`
	Interval         time.Duration `yaml:"interval" json:"interval" validate:"min=0"`
	OpenDuration     time.Duration `yaml:"open_duration" json:"open_duration" validate:"min=0"`
	HalfOpenRequests uint32        `yaml:"half_open_requests" json:"half_open_requests" validate:"min=1"`
}

// Logging configures the zap logger.
type Logging struct {
	Level      string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" json:"format" validate:"oneof=json console"`
	Output     string `yaml:"output" json:"output" validate:"oneof=stdout stderr file"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size" validate:"min=0"` // MB
	MaxAge     int    `yaml:"max_age" json:"max_age" validate:"min=0"`   // days
	MaxBackups int    `yaml:"max_backups" json:"max_backups" validate:"min=0"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Metrics configures the prometheus collector and its HTTP endpoint.
type Metrics struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace" validate:"required"`
	Addr      string `yaml:"addr" json:"addr"`
	Path      string `yaml:"path" json:"path" validate:"startswith=/"`

	CloudWatch CloudWatch `yaml:"cloudwatch" json:"cloudwatch"`
}

// CloudWatch configures per-run metrics pushed to Amazon CloudWatch.
type CloudWatch struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// Tracing configures the OTLP exporter.
type Tracing struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name" validate:"required"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	Insecure    bool    `yaml:"insecure" json:"insecure"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate" validate:"gte=0,lte=1"`
}

// Events configures load-completed notifications.
type Events struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	EventBusName string `yaml:"event_bus_name" json:"event_bus_name"`
	Source       string `yaml:"source" json:"source"`
}

// DefaultConfig returns the built-in configuration for env. The pipeline
// sizes are the historical production values: 250 workers, 32 in-flight item
// writes, 100 in-flight review writes, one hour to drain. Queue sizes are left
// to applyEnvironmentDefaults, which runs once every layer is applied.
func DefaultConfig(env Environment) *Config {
	return &Config{
		Environment: env,
		Store: Store{
			Backend:          BackendDynamoDB,
			Keyspace:         "catalog",
			Region:           "us-east-1",
			RetryMaxAttempts: 1,
			Timeout:          10 * time.Second,
			TableWaitTimeout: 5 * time.Minute,
		},
		Ingest: Ingest{
			Items: Pipeline{
				Concurrency:    250,
				AdmissionLimit: 32,
				DrainTimeout:   time.Hour,
			},
			Reviews: Pipeline{
				Concurrency:    250,
				AdmissionLimit: 100,
				DrainTimeout:   time.Hour,
			},
			MaxLineBytes:   16 * 1024 * 1024,
			FailureSamples: 20,
		},
		CircuitBreaker: CircuitBreaker{
			Enabled:          true,
			FailureRatio:     0.6,
			MinimumRequests:  20,
			Interval:         10 * time.Second,
			OpenDuration:     30 * time.Second,
			HalfOpenRequests: 3,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "json",
			Output:     "stderr",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		},
		Metrics: Metrics{
			Namespace: "catalog",
			Addr:      ":9090",
			Path:      "/metrics",
			CloudWatch: CloudWatch{
				Namespace: "CatalogLoader/" + string(env),
			},
		},
		Tracing: Tracing{
			ServiceName: "catalog-loader",
			SampleRate:  0.1,
		},
		Events: Events{
			Source: "catalog.loader",
		},
	}
}

// Keyspaces become table-name prefixes.
var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Validate runs the struct-tag rules and the cross-field checks.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.Struct(c); err != nil {
		return apperrors.Validation("INVALID_CONFIG", "configuration validation failed").
			WithDetails(formatValidationError(err)).
			WithCause(err).
			Build()
	}

	var problems []string
	if !keyspacePattern.MatchString(c.Store.Keyspace) {
		problems = append(problems, fmt.Sprintf("store.keyspace %q may only contain letters, digits, '_', '-' and '.'", c.Store.Keyspace))
	}
	if c.Store.Backend == BackendDynamoDB && c.Store.Region == "" {
		problems = append(problems, "store.region is required for the dynamodb backend")
	}
	if (c.Store.AccessKeyID == "") != (c.Store.SecretAccessKey == "") {
		problems = append(problems, "store.access_key_id and store.secret_access_key must be set together")
	}
	if c.Logging.Output == "file" && c.Logging.File == "" {
		problems = append(problems, "logging.file is required when logging.output is file")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		problems = append(problems, "tracing.endpoint is required when tracing is enabled")
	}
	if c.Metrics.CloudWatch.Enabled && c.Metrics.CloudWatch.Namespace == "" {
		problems = append(problems, "metrics.cloudwatch.namespace is required when cloudwatch is enabled")
	}
	if c.Events.Enabled && c.Events.EventBusName == "" {
		problems = append(problems, "events.event_bus_name is required when events are enabled")
	}
	if c.IsProduction() && c.Store.Backend == BackendMemory {
		problems = append(problems, "the memory backend is not allowed in production")
	}
	if len(problems) > 0 {
		return apperrors.Validation("INVALID_CONFIG", "configuration validation failed").
			WithDetails(strings.Join(problems, "; ")).
			Build()
	}
	return nil
}

func formatValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return strings.Join(msgs, "; ")
}

// applyEnvironmentDefaults fills in values that depend on the environment.
func (c *Config) applyEnvironmentDefaults() {
	if c.IsProduction() {
		if c.Logging.Level == "debug" {
			c.Logging.Level = "info"
		}
		c.Logging.Format = "json"
	}

	for _, p := range []*Pipeline{&c.Ingest.Items, &c.Ingest.Reviews} {
		if p.QueueSize == 0 {
			p.QueueSize = 4 * p.Concurrency
		}
	}
}

// IsProduction reports whether c targets production.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

func getEnvironment() Environment {
	env := strings.ToLower(os.Getenv("CATALOG_ENVIRONMENT"))
	if env == "" {
		env = strings.ToLower(os.Getenv("ENVIRONMENT"))
	}
	switch Environment(env) {
	case Staging:
		return Staging
	case Production:
		return Production
	default:
		return Development
	}
}
