// Package main runs ledger-close ingestion.
//
// Modes:
//   - file: replay a JSON Lines file of raw events through the engine
//   - kafka: consume raw events from Kafka, applying each ledger as it closes
//   - publish: write a JSON Lines file to Kafka, one close marker per ledger
//   - verify: check stored series, and compare them with a replay of -input if given
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ledger-aggregates/internal/aggregation"
	"ledger-aggregates/internal/config"
	"ledger-aggregates/internal/ingestion"
	"ledger-aggregates/internal/logger"
	"ledger-aggregates/internal/observability"
	"ledger-aggregates/internal/storage/backend"
	"ledger-aggregates/internal/storage/memory"
	"ledger-aggregates/internal/verification"
)

func main() {
	// Parse flags
	mode := flag.String("mode", "file", "Ingestion mode: file, kafka, publish, or verify")
	input := flag.String("input", "", "JSON Lines events file (file, publish and verify modes)")
	envFile := flag.String("env-file", ".env", "Optional env file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage regardless of STORE_BACKEND")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides METRICS_ADDR, \"-\" disables)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *useMemory {
		cfg.StoreBackend = config.BackendMemory
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	// Setup logger
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.With(zap.String("mode", *mode))

	// Start metrics server if enabled
	if cfg.MetricsAddr != "-" && (*mode == "file" || *mode == "kafka") {
		go serveMetrics(log, cfg.MetricsAddr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		log.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			log.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Run based on mode
	switch *mode {
	case "file":
		err = runFile(ctx, log, cfg, *input)
	case "kafka":
		err = runKafka(ctx, log, cfg)
	case "publish":
		err = runPublish(ctx, log, cfg, *input)
	case "verify":
		err = runVerify(ctx, log, cfg, *input)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ingestion failed",
			zap.String("kind", aggregation.Kind(err)),
			zap.Error(err))
		log.Sync()
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func serveMetrics(log *zap.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	log.Info("starting metrics server", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server error", zap.Error(err))
	}
}

// runFile replays a file. Ledgers at or below the stored cursor are skipped.
func runFile(ctx context.Context, log *zap.Logger, cfg *config.Config, input string) error {
	if input == "" {
		return errors.New("-input is required in file mode")
	}
	return run(ctx, log, cfg, ingestion.NewFileSource(input, log))
}

// runKafka consumes until cancelled. Offsets are committed per applied ledger.
func runKafka(ctx context.Context, log *zap.Logger, cfg *config.Config) error {
	if !cfg.KafkaEnabled() {
		return errors.New("KAFKA_BROKERS is required in kafka mode")
	}
	source := ingestion.NewKafkaSource(kafkaConfig(cfg), log)
	defer source.Close()

	return run(ctx, log, cfg, source)
}

func run(ctx context.Context, log *zap.Logger, cfg *config.Config, source ingestion.LedgerSource) error {
	stores, cleanup, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := aggregation.New(aggregation.Options{
		Sequencer: stores.Sequencer,
		Snapshots: stores.Snapshots,
		Logger:    log,
	})

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source: source,
		Engine: engine,
		Cursor: stores.Cursor,
		Logger: log,
	})

	start := time.Now()
	stats, err := runner.Run(ctx)
	log.Info("ingestion finished",
		zap.Int("ledgers", stats.Ledgers),
		zap.Int("ledgers_skipped", stats.LedgersSkipped),
		zap.Int("events_applied", stats.EventsApplied),
		zap.Int("events_skipped", stats.EventsSkipped),
		zap.Int("events_replayed", stats.EventsReplayed),
		zap.Int("snapshots", stats.Snapshots),
		zap.Uint32("last_ledger", stats.LastLedger),
		zap.Duration("elapsed", time.Since(start)))
	return err
}

// runPublish writes every ledger of input to Kafka.
func runPublish(ctx context.Context, log *zap.Logger, cfg *config.Config, input string) error {
	if input == "" {
		return errors.New("-input is required in publish mode")
	}
	if !cfg.KafkaEnabled() {
		return errors.New("KAFKA_BROKERS is required in publish mode")
	}

	source := ingestion.NewFileSource(input, log)
	publisher := ingestion.NewKafkaPublisher(kafkaConfig(cfg))
	defer publisher.Close()

	ledgers, events := 0, 0
	for {
		batch, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := publisher.PublishLedger(ctx, batch); err != nil {
			return err
		}
		ledgers++
		events += len(batch.Events)
	}

	log.Info("published events",
		zap.String("topic", cfg.KafkaTopic),
		zap.Int("ledgers", ledgers),
		zap.Int("events", events))
	return nil
}

func kafkaConfig(cfg *config.Config) ingestion.KafkaConfig {
	return ingestion.KafkaConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaTopic,
		ConsumerGroup: cfg.KafkaGroup,
	}
}

// runVerify checks the stored series. With input, the file is also replayed
// into memory and every series is compared snapshot by snapshot.
func runVerify(ctx context.Context, log *zap.Logger, cfg *config.Config, input string) error {
	stores, cleanup, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := verification.NewVerifier(stores.Sequencer, stores.Snapshots).VerifyAll(ctx, "")
	if err != nil {
		return err
	}
	logReport(log, "invariants", report)
	divergent := report.DivergentSeries

	if input != "" {
		reference := memory.NewStores()
		runner := ingestion.NewRunner(ingestion.RunnerOptions{
			Source: ingestion.NewFileSource(input, log),
			Engine: aggregation.New(aggregation.Options{
				Sequencer: reference.Sequencer,
				Snapshots: reference.Snapshots,
			}),
			Cursor: reference.Cursor,
			Logger: log,
		})
		if _, err := runner.Run(ctx); err != nil {
			return fmt.Errorf("replay %s: %w", input, err)
		}

		report, err := verification.NewReplayVerifier(stores.Snapshots, reference.Snapshots).VerifyAll(ctx, "")
		if err != nil {
			return err
		}
		logReport(log, "replay", report)
		divergent += report.DivergentSeries
	}

	if divergent > 0 {
		return fmt.Errorf("%d divergent series", divergent)
	}
	return nil
}

func logReport(log *zap.Logger, check string, report *verification.VerificationReport) {
	for _, res := range report.Results {
		for _, d := range res.Divergences {
			log.Warn("divergence",
				zap.String("check", check),
				zap.String("entity_key", res.Key.EntityKey),
				zap.String("metric_kind", string(res.Key.MetricKind)),
				zap.Uint32("version", d.Version),
				zap.String("field", d.Field),
				zap.String("expected", d.Expected),
				zap.String("actual", d.Actual))
		}
	}
	log.Info("verification finished",
		zap.String("check", check),
		zap.Int("series", report.TotalSeries),
		zap.Int("matched", report.MatchedSeries),
		zap.Int("divergent", report.DivergentSeries))
}
