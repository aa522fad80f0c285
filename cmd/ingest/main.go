package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	grantsrepo "github.com/openjordi/openjordi-backend/internal/data/repos/grants"
	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/ingest/align"
	"github.com/openjordi/openjordi-backend/internal/ingest/commit"
	"github.com/openjordi/openjordi-backend/internal/ingest/normalize"
	"github.com/openjordi/openjordi-backend/internal/ingest/pipeline"
	"github.com/openjordi/openjordi-backend/internal/ingest/resolve"
	"github.com/openjordi/openjordi-backend/internal/ingest/source"
	"github.com/openjordi/openjordi-backend/internal/platform/db"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
	"github.com/openjordi/openjordi-backend/internal/platform/envutil"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

func main() {
	os.Exit(run())
}

// run carries the real main body so deferred cleanup (log flush, signal
// teardown) happens before the process exits with a status code.
func run() int {
	var (
		only   = flag.String("source", "", "ingest a single source id instead of all registered sources")
		force  = flag.Bool("force", false, "ignore freshness and re-fetch every source")
		report = flag.Bool("report", false, "print the per-source status report and exit")
		dryRun = flag.Bool("dry-run", false, "fetch and normalize but commit nothing")
	)
	flag.Parse()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	// Env
	sourcesFile := envutil.Get("SOURCES_FILE", "sources.yaml", log)
	maxAge := envutil.GetDuration("SOURCE_MAX_AGE", 24*time.Hour, log)
	workers := envutil.GetInt("INGEST_WORKERS", 4, log)
	fetchTimeout := envutil.GetDuration("FETCH_TIMEOUT", 60*time.Second, log)
	fetchRetries := envutil.GetInt("FETCH_RETRIES", 3, log)
	confidenceFloor := 0.7

	// Database
	dbService, err := db.New(log)
	if err != nil {
		log.Fatal("Database init failed", "error", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Fatal("Database migration failed", "error", err)
	}
	pool := dbService.DB()

	// Repos
	orgRepo := grantsrepo.NewOrganizationRepo(pool, log)
	invRepo := grantsrepo.NewInvestigatorRepo(pool, log)
	grantRepo := grantsrepo.NewGrantProjectRepo(pool, log)
	linkRepo := grantsrepo.NewGrantInvestigatorRepo(pool, log)
	batchRepo := grantsrepo.NewSourceBatchRepo(pool, log)
	flagRepo := grantsrepo.NewReviewFlagRepo(pool, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *report {
		printReport(ctx, batchRepo, log)
		return 0
	}

	// Source registry
	registry, err := source.LoadRegistry(sourcesFile, log)
	if err != nil {
		log.Fatal("Load source registry failed", "file", sourcesFile, "error", err)
	}
	log.Info("Source registry loaded", "file", sourcesFile, "sources", registry.Len())

	// Field aligner (optional)
	var aligner align.Aligner
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		cacheDir := envutil.Get("MAPPING_CACHE_DIR", "mapping_cache", log)
		cache, err := align.NewFileCache(cacheDir)
		if err != nil {
			log.Fatal("Mapping cache init failed", "dir", cacheDir, "error", err)
		}
		aligner, err = align.NewLLMAligner(align.LLMConfig{
			APIKey:      apiKey,
			BaseURL:     envutil.Get("LLM_BASE_URL", "https://api.openai.com/v1", log),
			Model:       envutil.Get("LLM_MODEL", "gpt-4o-mini", log),
			Temperature: 0,
			MaxRetries:  envutil.GetInt("LLM_MAX_RETRIES", 3, log),
			Timeout:     envutil.GetDuration("LLM_TIMEOUT", 90*time.Second, log),
		}, cache, log)
		if err != nil {
			log.Fatal("Aligner init failed", "error", err)
		}
	} else {
		log.Info("LLM_API_KEY not set, relying on declared source mappings only")
	}

	// Pipeline
	normalizer := normalize.New(confidenceFloor, log)
	resolver := resolve.New(orgRepo, invRepo, resolve.DefaultFuzzyThreshold, log)
	coordinator := commit.New(pool, resolver, orgRepo, invRepo, grantRepo, linkRepo, log)
	pipe := pipeline.New(normalizer, aligner, coordinator, batchRepo, flagRepo, workers, log)
	fetcher := source.NewHTTPFetcher(log, fetchTimeout, fetchRetries)

	var configs []*source.Config
	if *only != "" {
		cfg, ok := registry.Get(*only)
		if !ok {
			log.Fatal("Unknown source id", "source_id", *only)
		}
		configs = []*source.Config{cfg}
	} else {
		configs = registry.All()
	}

	exitCode := 0
	for _, cfg := range configs {
		if ctx.Err() != nil {
			log.Warn("Shutdown requested, stopping before next source")
			break
		}
		if !*force && fresh(ctx, batchRepo, cfg.ID, maxAge) {
			log.Info("Source is fresh, skipping", "source_id", cfg.ID, "max_age", maxAge)
			continue
		}

		records, err := fetcher.Fetch(ctx, cfg)
		if err != nil {
			log.Error("Fetch failed", "source_id", cfg.ID, "error", err)
			exitCode = 1
			continue
		}
		fetchedAt := time.Now().UTC()
		log.Info("Fetched source", "source_id", cfg.ID, "records", len(records))

		if *dryRun {
			dryNormalize(cfg, records, normalizer, log)
			continue
		}

		batchReport, err := pipe.IngestBatch(ctx, cfg, records, fetchedAt)
		if err != nil {
			log.Error("Batch failed", "source_id", cfg.ID, "error", err)
			exitCode = 1
			continue
		}
		if batchReport.Rejected > 0 || batchReport.Flagged > 0 {
			exitCode = 1
		}
	}

	printReport(context.WithoutCancel(ctx), batchRepo, log)
	return exitCode
}

// fresh reports whether the source finished a batch within maxAge.
func fresh(ctx context.Context, batches grantsrepo.SourceBatchRepo, sourceID string, maxAge time.Duration) bool {
	latest, err := batches.LatestBySourceID(dbctx.Context{Ctx: ctx}, sourceID)
	if err != nil || latest == nil || latest.FinishedAt == nil {
		return false
	}
	if latest.Status != types.BatchStatusDone {
		return false
	}
	return time.Since(*latest.FinishedAt) < maxAge
}

func dryNormalize(cfg *source.Config, records []source.RawRecord, normalizer *normalize.Normalizer, log *logger.Logger) {
	ok, bad := 0, 0
	for _, rec := range records {
		if _, err := normalizer.Normalize(cfg, rec, nil); err != nil {
			bad++
			log.Debug("Record would be rejected", "source_id", cfg.ID, "error", err)
			continue
		}
		ok++
	}
	log.Info("Dry run complete", "source_id", cfg.ID, "valid", ok, "rejected", bad)
}

func printReport(ctx context.Context, batches grantsrepo.SourceBatchRepo, log *logger.Logger) {
	summaries, err := batches.Summaries(dbctx.Context{Ctx: ctx})
	if err != nil {
		log.Error("Status report failed", "error", err)
		return
	}
	if len(summaries) == 0 {
		fmt.Println("no batches recorded yet")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %8s %10s %9s %9s %8s %9s %9s %8s\n",
		"SOURCE", "BATCHES", "STATUS", "RECORDS", "INSERTED", "MERGED", "UPDATED", "REJECTED", "FLAGGED")
	for _, s := range summaries {
		fmt.Fprintf(&b, "%-20s %8d %10s %9d %9d %8d %9d %9d %8d\n",
			s.SourceID, s.Batches, s.LastStatus, s.RecordCount,
			s.Inserted, s.Merged, s.Updated, s.Rejected, s.Flagged)
	}
	fmt.Print(b.String())
}
