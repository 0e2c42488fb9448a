// Command marketfill backfills historical session metrics for the
// (symbol, trade_date) pairs in a request file and persists them to SQLite.
//
// Usage:
//
//	marketfill -pairs pairs.csv
//	marketfill -create-sample pairs.csv
//	marketfill -export backfill.parquet
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketfill/internal/backfill"
	"marketfill/internal/config"
	"marketfill/internal/pairs"
	"marketfill/internal/provider"
	"marketfill/internal/store"
	"marketfill/internal/util"
)

func main() {
	pairsPath := flag.String("pairs", "", "path to CSV file with symbol,trade_date pairs")
	dbPath := flag.String("db", "", "path to SQLite database file (overrides config)")
	concurrency := flag.Int("concurrency", 0, "max concurrent requests (overrides config)")
	batchSize := flag.Int("batch-size", 0, "database batch size (overrides config)")
	createSample := flag.String("create-sample", "", "write a sample pairs CSV to this path and exit")
	exportPath := flag.String("export", "", "export the backfill table to a Parquet file and exit")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfgPath := "config/marketfill.yaml"
	if p := os.Getenv("MARKETFILL_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.Storage.SQLitePath = *dbPath
	}
	if *concurrency > 0 {
		cfg.Backfill.Concurrency = *concurrency
	}
	if *batchSize > 0 {
		cfg.Backfill.BatchSize = *batchSize
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *createSample != "" {
		symbols := []string{"AAPL", "MSFT", "GOOGL", "TSLA", "NVDA"}
		if err := pairs.WriteSample(*createSample, symbols, time.Now()); err != nil {
			log.Fatalf("failed to write sample: %v", err)
		}
		logger.Info("sample pairs file written", "path", *createSample, "symbols", len(symbols))
		return
	}

	if *exportPath != "" {
		st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open store: %v", err)
		}
		defer st.Close()

		n, err := st.ExportParquet(context.Background(), *exportPath)
		if err != nil {
			log.Fatalf("export failed: %v", err)
		}
		logger.Info("export complete", "path", *exportPath, "rows", n)
		return
	}

	if *pairsPath == "" {
		fmt.Fprintln(os.Stderr, "marketfill: -pairs is required (or use -create-sample / -export)")
		flag.Usage()
		os.Exit(2)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	requests, err := pairs.ParseFile(*pairsPath, logger)
	if err != nil {
		log.Fatalf("failed to read pairs file: %v", err)
	}
	if len(requests) == 0 {
		log.Fatalf("no valid requests in %s", *pairsPath)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	client := provider.NewClient(provider.Options{
		APIKey:            cfg.Polygon.APIKey,
		BaseURL:           cfg.Polygon.BaseURL,
		IntervalMinutes:   cfg.Polygon.BarIntervalMinutes,
		Timeout:           cfg.Backfill.RequestTimeout(),
		RequestsPerMinute: cfg.Polygon.RequestsPerMinute,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orch := backfill.New(client, st, cfg.Backfill.Concurrency, cfg.Backfill.BatchSize)
	summary, err := orch.Run(ctx, requests)
	if err != nil {
		log.Fatalf("backfill error: %v", err)
	}

	logger.Info("run summary",
		"run", summary.RunID,
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"rowsWritten", summary.RowsWritten,
		"batchFailures", len(summary.BatchFailures),
		"elapsed", summary.Elapsed.Round(time.Millisecond),
	)
	for _, f := range summary.Failures {
		logger.Warn("failed request", "request", f.Request.Key(), "reason", f.Reason)
	}
	for _, bf := range summary.BatchFailures {
		logger.Error("failed batch", "rows", bf.Rows, "reason", bf.Reason)
	}

	if summary.Failed > 0 || len(summary.BatchFailures) > 0 {
		os.Exit(1)
	}
}
