package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cognicore/ifice/internal/httpapi"
	"github.com/cognicore/ifice/internal/logging"
	"github.com/cognicore/ifice/internal/metrics"
	"github.com/cognicore/ifice/internal/storeopen"
	"github.com/cognicore/ifice/pkg/ifice"
	"github.com/cognicore/ifice/pkg/ifice/config"
)

func main() {
	cfg := config.ServerFromEnv()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "Store backend: memory, sqlite, postgres or redis")
	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "SQLite path or PostgreSQL DSN")
	flag.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis URL (redis store)")
	flag.StringVar(&cfg.TaxonomyPath, "taxonomy", cfg.TaxonomyPath, "Taxonomy file (default: built-in)")
	flag.StringVar(&cfg.EnginePath, "config", cfg.EnginePath, "Engine config file (default: built-in)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or console")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "Per-request deadline")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "ifice-server")
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Server, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := buildEngine(ctx, cfg, logger, metrics.New(reg))
	if err != nil {
		return err
	}
	defer engine.Close()

	handler := httpapi.New(engine, httpapi.Options{
		Logger:   logger,
		Gatherer: reg,
		Timeout:  cfg.RequestTimeout,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Addr),
			zap.String("store", cfg.Store),
			zap.String("taxonomy_version", engine.Taxonomy().Version))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildEngine(ctx context.Context, cfg config.Server, logger *zap.Logger, m *metrics.Metrics) (*ifice.Engine, error) {
	loader := config.Loader{
		TaxonomyPath: cfg.TaxonomyPath,
		EnginePath:   cfg.EnginePath,
	}
	components, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, err := storeopen.Open(ctx, storeopen.Params{
		Kind:     cfg.Store,
		DSN:      cfg.DSN,
		RedisURL: cfg.RedisURL,
		Sequence: components.Engine.Sequence,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engine, err := ifice.NewFromComponents(components, ifice.Options{
		Store:   st,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return engine, nil
}
