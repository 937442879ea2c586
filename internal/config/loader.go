package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// decodeFunc fills target from one configuration document.
type decodeFunc func(r io.Reader, target any) error

var decoders = map[string]decodeFunc{
	"yaml": func(r io.Reader, target any) error { return yaml.NewDecoder(r).Decode(target) },
	"json": func(r io.Reader, target any) error { return json.NewDecoder(r).Decode(target) },
}

// Loader layers configuration sources for one environment, lowest priority
// first: built-in defaults, <basePath>/base, <basePath>/<environment>,
// <basePath>/local (development only), an explicit file, then environment
// variables.
type Loader struct {
	basePath     string
	environment  Environment
	explicitFile string
	sources      []string
	getenv       func(string) string
}

func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	return &Loader{basePath: basePath, environment: env, getenv: os.Getenv}
}

// WithFile adds an explicit configuration file (the --config flag).
func (l *Loader) WithFile(path string) *Loader {
	l.explicitFile = path
	return l
}

// Load builds and validates the configuration. Missing directory layers are
// skipped; a missing explicit file is an error.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig(l.environment)
	l.sources = append(l.sources[:0], "defaults")

	layers := []string{"base", strings.ToLower(string(l.environment))}
	for _, name := range layers {
		if err := l.loadLayer(name, cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", name, err)
		}
	}
	if l.environment == Development {
		if err := l.loadLayer("local", cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load local config: %v\n", err)
		}
	}
	if l.explicitFile != "" {
		if err := l.loadPath(l.explicitFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", l.explicitFile, err)
		}
	}

	for _, b := range envBindings {
		if val := l.getenv(b.name); val != "" {
			b.apply(cfg, val)
		}
	}
	l.sources = append(l.sources, "environment")

	cfg.LoadedFrom = l.sources
	cfg.applyEnvironmentDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadLayer loads the first of <name>.yaml, <name>.yml, <name>.json found in
// basePath. None existing is not an error.
func (l *Loader) loadLayer(name string, cfg *Config) error {
	for _, ext := range []string{"yaml", "yml", "json"} {
		err := l.loadPath(filepath.Join(l.basePath, name+"."+ext), cfg)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return err
	}
	return nil
}

func (l *Loader) loadPath(path string, cfg *Config) error {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "yml" {
		ext = "yaml"
	}
	decode, ok := decoders[ext]
	if !ok {
		return fmt.Errorf("unsupported configuration format %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := decode(f, cfg); err != nil && err != io.EOF {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	l.sources = append(l.sources, path)
	return nil
}

type envBinding struct {
	name  string
	apply func(cfg *Config, val string)
}

// envBindings are applied in order after every file layer.
var envBindings = []envBinding{
	{"CATALOG_BACKEND", func(c *Config, v string) { c.Store.Backend = v }},
	{"CATALOG_KEYSPACE", func(c *Config, v string) { c.Store.Keyspace = v }},
	{"AWS_REGION", func(c *Config, v string) { c.Store.Region = v }},
	{"DYNAMODB_ENDPOINT", func(c *Config, v string) { c.Store.Endpoint = v }},
	{"AWS_PROFILE", func(c *Config, v string) { c.Store.Profile = v }},
	{"AWS_ACCESS_KEY_ID", func(c *Config, v string) { c.Store.AccessKeyID = v }},
	{"AWS_SECRET_ACCESS_KEY", func(c *Config, v string) { c.Store.SecretAccessKey = v }},
	{"AWS_SESSION_TOKEN", func(c *Config, v string) { c.Store.SessionToken = v }},

	{"ITEMS_CONCURRENCY", positive(func(c *Config, n int) { c.Ingest.Items.Concurrency = n })},
	{"ITEMS_ADMISSION_LIMIT", positive(func(c *Config, n int) { c.Ingest.Items.AdmissionLimit = n })},
	{"REVIEWS_CONCURRENCY", positive(func(c *Config, n int) { c.Ingest.Reviews.Concurrency = n })},
	{"REVIEWS_ADMISSION_LIMIT", positive(func(c *Config, n int) { c.Ingest.Reviews.AdmissionLimit = n })},
	{"DRAIN_TIMEOUT", func(c *Config, v string) {
		if d, err := time.ParseDuration(v); err == nil {
			c.Ingest.Items.DrainTimeout = d
			c.Ingest.Reviews.DrainTimeout = d
		}
	}},

	{"LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = strings.ToLower(v) }},
	{"ENABLE_METRICS", func(c *Config, v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Metrics.Enabled = b
		}
	}},
	{"CLOUDWATCH_NAMESPACE", func(c *Config, v string) {
		c.Metrics.CloudWatch.Namespace = v
		c.Metrics.CloudWatch.Enabled = true
	}},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config, v string) {
		c.Tracing.Endpoint = v
		c.Tracing.Enabled = true
	}},
	{"EVENT_BUS_NAME", func(c *Config, v string) {
		c.Events.EventBusName = v
		c.Events.Enabled = true
	}},
}

// positive ignores values that are not positive integers.
func positive(set func(*Config, int)) func(*Config, string) {
	return func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			set(c, n)
		}
	}
}

// Load builds the configuration for the current environment from basePath
// and an optional explicit file.
func Load(basePath, file string) (*Config, error) {
	return NewLoader(basePath, getEnvironment()).WithFile(file).Load()
}
