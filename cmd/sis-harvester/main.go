// Command sis-harvester scrapes a Banner 9 Student Information System's
// course catalog and rewrites the result using the accumulated code
// dictionaries. Grounded on the teacher's main.go for its flag parsing,
// signal handling, and final-stats-on-exit idiom.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Project-CARPI/sis-scraper/internal/codify"
	"github.com/Project-CARPI/sis-scraper/internal/config"
	"github.com/Project-CARPI/sis-scraper/internal/dictionary"
	"github.com/Project-CARPI/sis-scraper/internal/metrics"
	"github.com/Project-CARPI/sis-scraper/internal/model"
	"github.com/Project-CARPI/sis-scraper/internal/scraper"
	"github.com/Project-CARPI/sis-scraper/internal/searchindex"
	"github.com/Project-CARPI/sis-scraper/internal/statusserver"
	"github.com/Project-CARPI/sis-scraper/pkg/logger"
	"github.com/Project-CARPI/sis-scraper/pkg/rediscache"
)

func main() {
	os.Exit(run())
}

func run() int {
	scrapeOnly := flag.Bool("scrape-only", false, "run only the scrape stage (raw output)")
	postprocessOnly := flag.Bool("postprocess-only", false, "run only the codification stage (reads raw output)")
	flag.Parse()

	// The mode flags may appear before or after the positional arguments.
	var args []string
	for rest := flag.Args(); len(rest) > 0; rest = flag.Args() {
		args = append(args, rest[0])
		if err := flag.CommandLine.Parse(rest[1:]); err != nil {
			return 1
		}
	}

	if *scrapeOnly && *postprocessOnly {
		fmt.Fprintln(os.Stderr, "--scrape-only and --postprocess-only are mutually exclusive")
		return 1
	}

	if len(args) > 0 && args[0] == "scrape" {
		args = args[1:]
	}
	startYear, endYear, err := parseYearRange(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage: sis-harvester scrape <start_year> <end_year> [--scrape-only|--postprocess-only]")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return 1
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "sis-harvester",
		Version: cfg.AppVersion,
		LogsDir: cfg.LogsDir,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		return 1
	}

	dict := dictionary.New(log.Logger)
	loadDictionaries(dict, cfg)

	plans := scraper.BuildPlans(startYear, endYear, nil)
	log.Info().Int("count", len(plans)).Msg("resolved term plans")

	progress := statusserver.NewProgress(len(plans))
	status := statusserver.New(cfg.MetricsAddr, progress, log.Logger)
	go func() {
		if err := status.ListenAndServe(); err != nil {
			log.Warn().Err(err).Msg("status server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn().Msg("received shutdown signal, cancelling in-flight work")
		cancel()
	}()

	startedAt := time.Now()

	driver := scraper.New(scraper.Config{
		BaseURL:            cfg.SISBaseURL,
		EmailDomain:        cfg.EmailDomain,
		Timeout:            cfg.FetchTimeout,
		PerHostConnections: cfg.PerHostConnCap,
		SessionCap:         cfg.SessionCap,
		OutputDir:          cfg.RawOutputDataDir,
	}, dict, log.Logger)

	var sinks []searchSink
	if cfg.ElasticsearchURL != "" {
		idx, err := searchindex.New(cfg.ElasticsearchURL, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("elasticsearch sink disabled: failed to connect")
		} else {
			sinks = append(sinks, idx)
		}
	}

	var termsProcessed int
	var runErr error

	switch {
	case *postprocessOnly:
		termsProcessed, runErr = runPostprocessOnly(ctx, plans, cfg, dict, progress, log.Logger)
	case *scrapeOnly:
		termsProcessed, runErr = runScrapeOnly(ctx, driver, plans, progress)
	default:
		termsProcessed, runErr = runBoth(ctx, driver, plans, cfg, dict, sinks, progress, log.Logger)
	}

	if !*scrapeOnly {
		if err := dict.SaveAll(
			filepath.Join(cfg.CodeMapsDir, cfg.SubjectMapFilename),
			filepath.Join(cfg.CodeMapsDir, cfg.AttributeMapFilename),
			filepath.Join(cfg.CodeMapsDir, cfg.RestrictionMapFilename),
			filepath.Join(cfg.CodeMapsDir, cfg.InstructorMapFilename),
			filepath.Join(cfg.CodeMapsDir, "generated_"+cfg.InstructorMapFilename),
		); err != nil {
			log.Error().Err(err).Msg("failed to persist code dictionaries")
		}
		mirrorDictionaries(cfg, dict, log.Logger)
	}

	elapsed := time.Since(startedAt)
	if runErr != nil {
		log.Error().Err(runErr).Int("terms_processed", termsProcessed).
			Dur("elapsed", elapsed).Msg("harvest failed")
		return 1
	}
	log.Info().Int("terms_processed", termsProcessed).
		Float64("elapsed_seconds", elapsed.Seconds()).Msg("harvest completed")
	return 0
}

func parseYearRange(args []string) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("expected <start_year> <end_year>, got %d arguments", len(args))
	}
	var startYear, endYear int
	if _, err := fmt.Sscanf(args[0], "%d", &startYear); err != nil {
		return 0, 0, fmt.Errorf("invalid start_year %q", args[0])
	}
	if _, err := fmt.Sscanf(args[1], "%d", &endYear); err != nil {
		return 0, 0, fmt.Errorf("invalid end_year %q", args[1])
	}
	if endYear < startYear {
		return 0, 0, fmt.Errorf("end_year %d is before start_year %d", endYear, startYear)
	}
	return startYear, endYear, nil
}

// loadDictionaries seeds the accumulator from any dictionaries persisted by
// a previous run, matching spec.md §3's "dictionaries are loaded if
// present" lifecycle rule.
func loadDictionaries(dict *dictionary.CodeDictionaries, cfg *config.Config) {
	_ = dict.LoadSubjects(filepath.Join(cfg.CodeMapsDir, cfg.SubjectMapFilename))
	_ = dict.LoadAttributes(filepath.Join(cfg.CodeMapsDir, cfg.AttributeMapFilename))
	_ = dict.LoadRestrictions(filepath.Join(cfg.CodeMapsDir, cfg.RestrictionMapFilename))
	_ = dict.LoadInstructors(filepath.Join(cfg.CodeMapsDir, cfg.InstructorMapFilename))
}

// searchSink is the subset of internal/searchindex.Indexer's interface this
// command depends on.
type searchSink interface {
	IndexSnapshot(ctx context.Context, term string, snapshot model.TermSnapshot)
}

// runScrapeOnly runs §4.5 only, writing raw term snapshots and nothing else.
func runScrapeOnly(ctx context.Context, driver *scraper.TermDriver, plans []scraper.Plan, progress *statusserver.Progress) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(plans))
	var completedMu sync.Mutex
	var completed int
	var wg sync.WaitGroup
	for _, plan := range plans {
		plan := plan
		wg.Add(1)
		go func() {
			defer wg.Done()
			progress.StartTerm(plan.Term)

			snapshot, err := driver.ScrapeTerm(ctx, plan.Term)
			if err == nil {
				err = driver.WriteSnapshot(plan.Term, snapshot)
			}
			if err != nil {
				progress.FinishTerm(plan.Term, false)
				metrics.TermsScrapedTotal.WithLabelValues("failure").Inc()
				cancel()
				errs <- fmt.Errorf("term %s: %w", plan.Term, err)
				return
			}

			progress.FinishTerm(plan.Term, true)
			metrics.TermsScrapedTotal.WithLabelValues("success").Inc()
			completedMu.Lock()
			completed++
			completedMu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	return completed, firstSorted(errs)
}

// runPostprocessOnly runs §4.7 only, reading raw snapshots already written
// by a prior scrape and rewriting them into the processed output directory.
func runPostprocessOnly(ctx context.Context, plans []scraper.Plan, cfg *config.Config, dict *dictionary.CodeDictionaries, progress *statusserver.Progress, log zerolog.Logger) (int, error) {
	var completed int
	for _, plan := range plans {
		select {
		case <-ctx.Done():
			return completed, ctx.Err()
		default:
		}
		progress.StartTerm(plan.Term)

		raw, err := readRawSnapshot(cfg.RawOutputDataDir, plan.Term)
		if err == nil {
			c := codify.New(dict, log)
			processed := c.CodifySnapshot(plan.Term, raw)
			err = writeSnapshot(cfg.ProcessedOutputDir, plan.Term, processed)
		}
		if err != nil {
			progress.FinishTerm(plan.Term, false)
			metrics.TermsScrapedTotal.WithLabelValues("failure").Inc()
			return completed, fmt.Errorf("term %s: %w", plan.Term, err)
		}

		progress.FinishTerm(plan.Term, true)
		metrics.TermsScrapedTotal.WithLabelValues("success").Inc()
		completed++
	}
	return completed, nil
}

// runBoth runs the full §4.5 -> §4.7 pipeline per term, one goroutine per
// term, cancelling siblings on the first fatal error (spec.md §5).
func runBoth(ctx context.Context, driver *scraper.TermDriver, plans []scraper.Plan, cfg *config.Config, dict *dictionary.CodeDictionaries, sinks []searchSink, progress *statusserver.Progress, log zerolog.Logger) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(plans))
	var completedMu sync.Mutex
	var completed int
	var wg sync.WaitGroup
	for _, plan := range plans {
		plan := plan
		wg.Add(1)
		go func() {
			defer wg.Done()
			progress.StartTerm(plan.Term)

			snapshot, err := driver.ScrapeTerm(ctx, plan.Term)
			if err == nil {
				err = driver.WriteSnapshot(plan.Term, snapshot)
			}
			if err != nil {
				progress.FinishTerm(plan.Term, false)
				metrics.TermsScrapedTotal.WithLabelValues("failure").Inc()
				cancel()
				errs <- fmt.Errorf("term %s: %w", plan.Term, err)
				return
			}

			c := codify.New(dict, log)
			processed := c.CodifySnapshot(plan.Term, snapshot)
			if err := writeSnapshot(cfg.ProcessedOutputDir, plan.Term, processed); err != nil {
				progress.FinishTerm(plan.Term, false)
				metrics.TermsScrapedTotal.WithLabelValues("failure").Inc()
				cancel()
				errs <- fmt.Errorf("term %s: %w", plan.Term, err)
				return
			}
			for _, s := range sinks {
				s.IndexSnapshot(ctx, plan.Term, processed)
			}

			progress.FinishTerm(plan.Term, true)
			metrics.TermsScrapedTotal.WithLabelValues("success").Inc()
			completedMu.Lock()
			completed++
			completedMu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	return completed, firstSorted(errs)
}

// firstSorted drains errs and returns the lexicographically-smallest error,
// giving runScrapeOnly's and runBoth's cancel-siblings behavior a
// deterministic return value across goroutines that may finish in any order.
func firstSorted(errs chan error) error {
	var collected []error
	for e := range errs {
		collected = append(collected, e)
	}
	if len(collected) == 0 {
		return nil
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].Error() < collected[j].Error() })
	return collected[0]
}

func readRawSnapshot(dir, term string) (model.TermSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, term+".json"))
	if err != nil {
		return nil, err
	}
	var snapshot model.TermSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func writeSnapshot(dir, term string, snapshot model.TermSnapshot) error {
	if len(snapshot) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, term+".json"), data, 0o644)
}

// mirrorDictionaries best-effort pushes every dictionary to Redis, a no-op
// if REDIS_ADDR is unset (spec.md §9 "optional sinks never gate
// correctness").
func mirrorDictionaries(cfg *config.Config, dict *dictionary.CodeDictionaries, log zerolog.Logger) {
	if cfg.RedisAddr == "" {
		return
	}
	rc := rediscache.New(cfg.RedisAddr)
	defer rc.Close()

	mirrors := map[string]any{
		"dictionaries:subjects":     dict.Subjects(),
		"dictionaries:attributes":   dict.Attributes(),
		"dictionaries:restrictions": dict.Restrictions(),
		"dictionaries:instructors":  dict.Instructors(),
		"dictionaries:generated":    dict.Generated(),
	}
	for key, value := range mirrors {
		if err := rc.MirrorDictionary(key, value); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to mirror dictionary to redis")
		}
	}
}
