// Command catalog loads product items and reviews into the wide-column store
// and reads them back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"catalog-loader/internal/app"
	"catalog-loader/internal/config"
	"catalog-loader/internal/logging"
	"catalog-loader/internal/observability"
)

var (
	configDir   string
	configFile  string
	keyspace    string
	backend     string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Bulk-load product items and reviews and read them back",
	Long: `catalog loads line-delimited JSON product items and reviews into a
partitioned wide-column store and serves formatted reads.

Configuration is layered: built-in defaults, <config-dir>/base.yaml,
<config-dir>/<environment>.yaml, <config-dir>/local.yaml (development only),
the --config file, then environment variables. Flags override all of them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory holding layered config files")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "explicit config file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&keyspace, "keyspace", "", "keyspace (table name prefix) to use")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "store backend: dynamodb or memory")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig applies the global flags on top of the layered configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir, configFile)
	if err != nil {
		return nil, err
	}
	if keyspace != "" {
		cfg.Store.Keyspace = keyspace
	}
	if backend != "" {
		cfg.Store.Backend = backend
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is a connected catalog plus everything that has to be released
// when the command ends.
type session struct {
	catalog  *app.Catalog
	logger   *zap.Logger
	closeFns []func(context.Context) error
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(s.closeFns) - 1; i >= 0; i-- {
		if err := s.closeFns[i](ctx); err != nil {
			s.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
}

// openSession wires the catalog from configuration and connects it. With
// prepare set it also prepares the store operations.
func openSession(ctx context.Context, prepare bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closeLogger, err := logging.New(cfg.Environment, cfg.Logging)
	if err != nil {
		return nil, err
	}
	s := &session{logger: logger}
	s.closeFns = append(s.closeFns, func(context.Context) error { return closeLogger() })

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.closeFns = append(s.closeFns, container.Shutdown)

	if cfg.Metrics.Addr != "" && container.Metrics != nil {
		srv := observability.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, container.Metrics, logger)
		if err := srv.Start(); err != nil {
			s.close()
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		s.closeFns = append(s.closeFns, srv.Shutdown)
	}

	s.catalog = app.NewCatalog(container)
	if err := s.catalog.ConnectFromConfig(ctx); err != nil {
		s.close()
		return nil, err
	}
	s.closeFns = append(s.closeFns, s.catalog.Close)

	if prepare {
		// the memory backend starts empty in every process
		if cfg.Store.Backend == config.BackendMemory {
			if err := s.catalog.CreateTables(ctx); err != nil {
				s.close()
				return nil, err
			}
		}
		if err := s.catalog.Initialize(ctx); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}
