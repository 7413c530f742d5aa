// Package main runs the query server:
// - HTTP API: window summaries, snapshot history, series keys, status
// - WebSocket push of updated summaries after each ledger
// - Ingestion (optional): Kafka consumer applying ledgers in process
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ledger-aggregates/internal/aggregation"
	"ledger-aggregates/internal/config"
	"ledger-aggregates/internal/httpapi"
	"ledger-aggregates/internal/ingestion"
	"ledger-aggregates/internal/logger"
	"ledger-aggregates/internal/observability"
	"ledger-aggregates/internal/query"
	"ledger-aggregates/internal/realtime"
	"ledger-aggregates/internal/storage"
	"ledger-aggregates/internal/storage/backend"
)

const shutdownTimeout = 30 * time.Second

// Server holds all components of the service.
type Server struct {
	cfg    *config.Config
	stores storage.Stores
	log    *zap.Logger

	queries     *query.Service
	broadcaster *realtime.Broadcaster
}

func main() {
	envFile := flag.String("env-file", ".env", "Optional env file")
	httpAddr := flag.String("http-addr", "", "HTTP API address (overrides HTTP_ADDR)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage regardless of STORE_BACKEND")
	noIngest := flag.Bool("no-ingest", false, "Serve queries only, even when KAFKA_BROKERS is set")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *useMemory {
		cfg.StoreBackend = config.BackendMemory
	}
	if *noIngest {
		cfg.KafkaBrokers = nil
	}

	// Setup logger
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Handle shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer cleanup()

	server, err := newServer(ctx, cfg, stores, log)
	if err != nil {
		log.Fatal("failed to create server", zap.Error(err))
	}

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.String("kind", aggregation.Kind(err)), zap.Error(err))
		log.Sync()
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func newServer(ctx context.Context, cfg *config.Config, stores storage.Stores, log *zap.Logger) (*Server, error) {
	var cache query.Cache
	if cfg.RedisAddr != "" {
		client, err := query.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		cache = query.NewRedisCache(client)
		log.Info("summary cache enabled", zap.String("redis", cfg.RedisAddr), zap.Duration("ttl", cfg.SummaryCacheTTL))
	}

	queries := query.NewService(query.Options{
		Snapshots: stores.Snapshots,
		Cache:     cache,
		CacheTTL:  cfg.SummaryCacheTTL,
		Logger:    log.Named("query"),
	})

	return &Server{
		cfg:         cfg,
		stores:      stores,
		log:         log,
		queries:     queries,
		broadcaster: realtime.NewBroadcaster(queries, log.Named("realtime")),
	}, nil
}

// Run serves until ctx is cancelled or a component fails.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("starting server")

	g, ctx := errgroup.WithContext(ctx)

	api := httpapi.New(httpapi.Options{
		Queries:   s.queries,
		Cursor:    s.stores.Cursor,
		Metrics:   observability.Handler(),
		Websocket: s.broadcaster.Handler(),
		Logger:    s.log.Named("http"),
	})
	g.Go(func() error { return s.serve(ctx, "api", s.cfg.HTTPAddr, api) })

	if s.cfg.MetricsAddr != "" && s.cfg.MetricsAddr != s.cfg.HTTPAddr {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		g.Go(func() error { return s.serve(ctx, "metrics", s.cfg.MetricsAddr, mux) })
	}

	if s.cfg.KafkaEnabled() {
		g.Go(func() error { return s.runIngestion(ctx) })
	} else {
		s.log.Info("ingestion disabled, serving queries only")
	}

	g.Go(func() error {
		<-ctx.Done()
		s.broadcaster.Close()
		return nil
	})

	return g.Wait()
}

// serve runs an HTTP server until ctx is done, then shuts it down gracefully.
func (s *Server) serve(ctx context.Context, name, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", zap.String("server", name), zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s server shutdown: %w", name, err)
	}
	return ctx.Err()
}

// runIngestion applies ledgers from Kafka; listeners invalidate the cache and
// push summaries, in that order.
func (s *Server) runIngestion(ctx context.Context) error {
	log := s.log.Named("ingestion")

	source := ingestion.NewKafkaSource(ingestion.KafkaConfig{
		Brokers:       s.cfg.KafkaBrokers,
		Topic:         s.cfg.KafkaTopic,
		ConsumerGroup: s.cfg.KafkaGroup,
	}, log)
	defer source.Close()

	engine := aggregation.New(aggregation.Options{
		Sequencer: s.stores.Sequencer,
		Snapshots: s.stores.Snapshots,
		Logger:    log,
	})

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:    source,
		Engine:    engine,
		Cursor:    s.stores.Cursor,
		Listeners: []ingestion.LedgerListener{s.queries, s.broadcaster},
		Logger:    log,
	})

	log.Info("ingestion started", zap.String("topic", s.cfg.KafkaTopic))
	stats, err := runner.Run(ctx)
	log.Info("ingestion stopped",
		zap.Int("ledgers", stats.Ledgers),
		zap.Uint32("last_ledger", stats.LastLedger))
	if err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}
	return nil
}
