package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"ledger-aggregates/internal/aggregation"
	"ledger-aggregates/internal/config"
	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/ingestion"
	"ledger-aggregates/internal/logger"
	"ledger-aggregates/internal/query"
	"ledger-aggregates/internal/reporting"
	"ledger-aggregates/internal/storage"
	"ledger-aggregates/internal/storage/backend"
)

func main() {
	// Parse flags
	outputDir := flag.String("output-dir", "docs", "Output directory for generated files")
	envFile := flag.String("env-file", ".env", "Optional env file")
	kind := flag.String("kind", "", "Metric kind to report (empty for all)")
	at := flag.Uint64("at", 0, "Reference time, Unix seconds (0 for now)")
	decimals := flag.Int("decimals", -1, "Display decimals (overrides DISPLAY_DECIMALS)")
	input := flag.String("input", "", "Replay this JSON Lines events file before reporting (implies -use-memory)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage regardless of STORE_BACKEND")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *useMemory || *input != "" {
		cfg.StoreBackend = config.BackendMemory
	}
	if *decimals >= 0 {
		cfg.DisplayDecimals = int32(*decimals)
	}

	var metricKind domain.MetricKind
	if *kind != "" {
		if metricKind, err = domain.ParseMetricKind(*kind); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	stores, cleanup, err := backend.Open(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if *input != "" {
		if err := replay(ctx, stores, *input); err != nil {
			fmt.Fprintf(os.Stderr, "Error replaying %s: %v\n", *input, err)
			os.Exit(1)
		}
	}

	svc := query.NewService(query.Options{Snapshots: stores.Snapshots, Logger: log})
	report, err := reporting.NewGenerator(svc, cfg.DisplayDecimals).Generate(ctx, metricKind, *at)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	mdPath := filepath.Join(*outputDir, "summary.md")
	csvPath := filepath.Join(*outputDir, "summary.csv")
	if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(report)), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", mdPath, err)
		os.Exit(1)
	}
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(report)), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", csvPath, err)
		os.Exit(1)
	}

	fmt.Println("Report generated successfully:")
	fmt.Printf("  - %s\n", mdPath)
	fmt.Printf("  - %s\n", csvPath)
	fmt.Printf("  series: %d, actions: %d\n", len(report.Summaries), len(report.Actions))
}

// replay applies an events file to stores.
func replay(ctx context.Context, stores storage.Stores, path string) error {
	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source: ingestion.NewFileSource(path, nil),
		Engine: aggregation.New(aggregation.Options{
			Sequencer: stores.Sequencer,
			Snapshots: stores.Snapshots,
		}),
		Cursor: stores.Cursor,
	})
	_, err := runner.Run(ctx)
	return err
}
