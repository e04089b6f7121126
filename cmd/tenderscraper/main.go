package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhalloran/go-scrape-tenders/collector"
	"github.com/zhalloran/go-scrape-tenders/config"
	"github.com/zhalloran/go-scrape-tenders/cursor"
	"github.com/zhalloran/go-scrape-tenders/enricher"
	"github.com/zhalloran/go-scrape-tenders/filter"
	"github.com/zhalloran/go-scrape-tenders/llm"
	"github.com/zhalloran/go-scrape-tenders/metrics"
	"github.com/zhalloran/go-scrape-tenders/models"
	"github.com/zhalloran/go-scrape-tenders/pipeline"
)

func main() {
	_ = godotenv.Load()

	workersDefault := 0
	if value, ok, err := config.EnvInt("TENDER_ENRICH_WORKERS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid TENDER_ENRICH_WORKERS: %v\n", err)
		os.Exit(1)
	} else if ok {
		workersDefault = value
	}

	configPath := flag.String("config", "", "Optional YAML config file")
	outputFile := flag.String("output", "", "Final sink file path (overrides config)")
	outputFormat := flag.String("format", "", "Output format: csv, json, or dual")
	workers := flag.Int("workers", workersDefault, "Description-fetch worker pool size")
	delayMs := flag.Int("delay", -1, "Base delay between page loads (milliseconds)")
	randomDelayMs := flag.Int("random-delay", -1, "Random jitter added to delay (milliseconds)")
	chatEndpoint := flag.String("chat-endpoint", "", "Relevance classification endpoint")
	chatModel := flag.String("chat-model", "", "Relevance classification model name")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading configuration", slog.Any("error", err))
		os.Exit(1)
	}
	applyFlagOverrides(cfg, *outputFile, *outputFormat, *workers, *delayMs, *randomDelayMs, *chatEndpoint, *chatModel, *metricsAddr, *verbose)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting tender scrape",
		slog.String("search_url", cfg.SearchURL),
		slog.String("keywords_file", cfg.KeywordsFile),
		slog.Int("enrich_workers", cfg.EnrichWorkers),
	)

	m := metrics.New()

	listingCollector, err := collector.New(cfg, m)
	if err != nil {
		slog.Error("initialising collector", slog.Any("error", err))
		os.Exit(1)
	}

	chatClient := llm.NewClient(cfg.Chat, nil)
	orch := pipeline.New(cfg, pipeline.Deps{
		Collector: listingCollector,
		Enricher:  enricher.New(cfg, m, slog.Default()),
		Filter:    filter.New(chatClient, cfg.Chat, m, slog.Default()),
		Cursor:    cursor.NewFileCursor(cfg.CursorFile),
		NewSink:   func() (pipeline.OutputWriter, error) { return createSink(cfg) },
		Metrics:   m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	var progress sync.WaitGroup
	progress.Add(1)
	go func() {
		defer progress.Done()
		for event := range orch.Events() {
			slog.Info("progress",
				slog.String("stage", string(event.Stage)),
				slog.String("message", event.Message),
			)
		}
	}()

	report := orch.Run(ctx)
	progress.Wait()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(report)
	if !report.Success {
		os.Exit(1)
	}
}

func applyFlagOverrides(cfg *config.Config, outputFile, outputFormat string, workers, delayMs, randomDelayMs int, chatEndpoint, chatModel, metricsAddr string, verbose bool) {
	if outputFile != "" {
		cfg.OutputFile = outputFile
	}
	if outputFormat != "" {
		cfg.OutputFormat = strings.ToLower(outputFormat)
	}
	if workers > 0 {
		cfg.EnrichWorkers = workers
	}
	if delayMs >= 0 {
		cfg.Delay = config.Duration(time.Duration(delayMs) * time.Millisecond)
	}
	if randomDelayMs >= 0 {
		cfg.RandomDelay = config.Duration(time.Duration(randomDelayMs) * time.Millisecond)
	}
	if chatEndpoint != "" {
		cfg.Chat.Endpoint = chatEndpoint
	}
	if chatModel != "" {
		cfg.Chat.Model = chatModel
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if verbose {
		cfg.Verbose = true
	}
}

func createSink(cfg *config.Config) (pipeline.OutputWriter, error) {
	var file pipeline.OutputWriter
	var err error

	switch cfg.OutputFormat {
	case "json":
		file, err = pipeline.NewJSONWriter(cfg.OutputFile)
	case "csv":
		file, err = pipeline.NewCSVWriter(cfg.OutputFile, pipeline.LayoutSink)
	case "dual":
		jsonFilename := strings.TrimSuffix(cfg.OutputFile, ".csv") + ".json"
		file, err = pipeline.NewDualWriter(cfg.OutputFile, jsonFilename, pipeline.LayoutSink)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseDSN == "" {
		return file, nil
	}

	db, err := pipeline.NewPostgresWriter(cfg.DatabaseDSN)
	if err != nil {
		file.Close()
		return nil, err
	}
	return pipeline.NewMultiWriter(file, db), nil
}

func printSummary(report *models.RunReport) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if report.Success {
		fmt.Println("Scrape complete")
	} else {
		fmt.Printf("Scrape failed at %s stage: %v\n", report.StageReached, report.Err)
	}

	fmt.Printf("  Keyword:        %s\n", report.Keyword)
	fmt.Printf("  Collected:      %d (excluded %d)\n", report.Collected, report.Excluded)
	fmt.Printf("  Enriched:       %d\n", report.Enriched)
	fmt.Printf("  Relevant:       %d\n", report.Relevant)
	if report.FilterFallback {
		fmt.Println("  Filter:         BYPASSED (endpoint unavailable, all tenders kept)")
	}
	fmt.Printf("  Last id:        %d\n", report.LastID)
	if report.RawArtifact != "" {
		fmt.Printf("  Raw artifact:   %s\n", report.RawArtifact)
	}
	if report.EnrichedArtifact != "" {
		fmt.Printf("  Enriched file:  %s\n", report.EnrichedArtifact)
	}
	if report.OutputFile != "" {
		fmt.Printf("  Output file:    %s\n", report.OutputFile)
	}
	fmt.Printf("  Duration:       %v\n", report.Duration())
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
