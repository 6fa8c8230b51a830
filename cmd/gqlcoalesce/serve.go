package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	config "github.com/hanpama/gqlcoalesce/internal/config"
	doccache "github.com/hanpama/gqlcoalesce/internal/doccache"
	eventbus "github.com/hanpama/gqlcoalesce/internal/eventbus"
	httptp "github.com/hanpama/gqlcoalesce/internal/httptp"
	language "github.com/hanpama/gqlcoalesce/internal/language"
	logging "github.com/hanpama/gqlcoalesce/internal/logging"
	metrics "github.com/hanpama/gqlcoalesce/internal/metrics"
	otel "github.com/hanpama/gqlcoalesce/internal/otel"
	remote "github.com/hanpama/gqlcoalesce/internal/remote"
	server "github.com/hanpama/gqlcoalesce/internal/server"
)

// serveFlags are command line overrides. Only flags the user set are applied.
type serveFlags struct {
	configFile   string
	addr         string
	remotes      []string
	schemaFile   string
	window       time.Duration
	maxBatchSize int
	logLevel     string
	logFormat    string
	otelEndpoint string
	pretty       bool
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coalescing GraphQL endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "YAML config file")
	fl.StringVar(&f.addr, "addr", "", "HTTP listen address")
	fl.StringArrayVar(&f.remotes, "remote", nil, "Remote GraphQL endpoint URL. Repeatable")
	fl.StringVar(&f.schemaFile, "schema", "", "Remote SDL file used to validate incoming queries")
	fl.DurationVar(&f.window, "window", 0, "Coalescing window measured from the first request")
	fl.IntVar(&f.maxBatchSize, "max-batch-size", 0, "Flush a window early once it holds this many requests")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fl.StringVar(&f.logFormat, "log-format", "", "Log format (console, json)")
	fl.StringVar(&f.otelEndpoint, "otel-endpoint", "", "OTLP gRPC collector endpoint")
	fl.BoolVar(&f.pretty, "pretty", false, "Pretty-print JSON responses")
	return cmd
}

func loadServeConfig(cmd *cobra.Command, f serveFlags) (config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		var err error
		if cfg, err = config.Load(f.configFile); err != nil {
			return config.Config{}, err
		}
	}
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Server.Addr = f.addr
	}
	if changed("remote") {
		cfg.Remote.Endpoints = f.remotes
	}
	if changed("schema") {
		cfg.Remote.SchemaFile = f.schemaFile
	}
	if changed("window") {
		cfg.Coalesce.Window = f.window
	}
	if changed("max-batch-size") {
		cfg.Coalesce.MaxBatchSize = f.maxBatchSize
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("otel-endpoint") {
		cfg.OTel.Endpoint = f.otelEndpoint
	}
	if changed("pretty") {
		cfg.Server.Pretty = f.pretty
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)

	shutdown, err := otel.Setup(cfg.OTel.Endpoint, cfg.OTel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := metrics.Register(reg, bus)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer m.Close()
		gatherer = reg
	}

	docs, err := newDocumentCache(cfg)
	if err != nil {
		return err
	}

	transport := httptp.New(
		httptp.WithEndpoint(cfg.Remote.Endpoints...),
		httptp.WithRequestTimeout(cfg.Remote.Timeout),
		httptp.WithHeaders(cfg.Remote.Headers),
		httptp.WithLogger(logger),
	)
	coalescer, err := remote.New(
		remote.NewDelayScheduler(cfg.Coalesce.Window),
		transport,
		remote.WithLogger(logger),
		remote.WithFlushTimeout(cfg.Coalesce.FlushTimeout),
		remote.WithMaxBatchSize(cfg.Coalesce.MaxBatchSize),
		remote.WithOwnedDownstream(),
	)
	if err != nil {
		return err
	}
	defer coalescer.Close()

	sopts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithMaxBatch(cfg.Server.MaxBatch),
		server.WithDocuments(docs),
		server.WithLogger(logger),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	h, err := server.New(coalescer, sopts...)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(h, server.RouterOptions{
		MetricsPath: cfg.Metrics.Path,
		Gatherer:    gatherer,
		Logger:      logger,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Strs("remote", cfg.Remote.Endpoints).
			Dur("window", cfg.Coalesce.Window).
			Msg("GraphQL server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func newDocumentCache(cfg config.Config) (*doccache.Cache, error) {
	var sch *language.Schema
	if cfg.Remote.SchemaFile != "" {
		sdl, err := os.ReadFile(cfg.Remote.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		if sch, err = language.LoadSchema(cfg.Remote.SchemaFile, string(sdl)); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
	}
	return doccache.New(cfg.Cache.Documents, sch)
}
