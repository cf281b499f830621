// Package worker implements the subject worker: the unit of concurrency
// that owns exactly one SIS session and produces one subject's full course
// map, grounded on original_source/sis_scraper/sis_scraper.py's
// get_course_data.
package worker

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Project-CARPI/sis-scraper/internal/aggregator"
	"github.com/Project-CARPI/sis-scraper/internal/dictionary"
	"github.com/Project-CARPI/sis-scraper/internal/metrics"
	"github.com/Project-CARPI/sis-scraper/internal/model"
	"github.com/Project-CARPI/sis-scraper/internal/sis"
)

// Config bounds one subject worker's resource usage. BaseURL and the
// institutional email domain are fixed for a whole harvester run; Timeout
// and PerHostConnections are per-session knobs (spec.md §4.4).
type Config struct {
	BaseURL            string
	EmailDomain        string
	Timeout            time.Duration
	PerHostConnections int
}

// Worker processes one (term, subject) pair end to end: fresh session,
// reset_search, class_search, then one class-detail aggregator per entry.
type Worker struct {
	cfg  Config
	dict *dictionary.CodeDictionaries
	log  zerolog.Logger
}

// New builds a subject worker sharing dict across every subject it processes.
func New(cfg Config, dict *dictionary.CodeDictionaries, log zerolog.Logger) *Worker {
	return &Worker{cfg: cfg, dict: dict, log: log}
}

// ProcessSubject acquires one slot from sessionSemaphore, opens a fresh
// session scoped to this subject, and returns its courses keyed by course
// number with each course's sections sorted ascending by section number.
// Any error opening the session, resetting search state, listing classes,
// or aggregating one entry's class detail fails the whole subject: per
// sis_scraper.py's get_course_data, which wraps its entire TaskGroup of
// process_class_details calls in one try/except, a single failing section
// empties the subject's whole contribution rather than just that section.
// The remaining in-flight detail fetches are cancelled as soon as one
// fails, so a failing subject doesn't wait on its siblings to finish.
func (w *Worker) ProcessSubject(ctx context.Context, sessionSemaphore chan struct{}, term, subjectCode string) map[string][]model.ClassRecord {
	select {
	case sessionSemaphore <- struct{}{}:
	case <-ctx.Done():
		return map[string][]model.ClassRecord{}
	}
	defer func() { <-sessionSemaphore }()

	metrics.SubjectsInFlight.Inc()
	defer metrics.SubjectsInFlight.Dec()

	subjectLog := w.log.With().Str("term", term).Str("subject", subjectCode).Logger()

	fetcher, err := sis.NewFetcher(w.cfg.BaseURL, w.cfg.Timeout, w.cfg.PerHostConnections, subjectCode, subjectLog)
	if err != nil {
		subjectLog.Error().Err(err).Msg("failed to open session")
		metrics.SubjectsScrapedTotal.WithLabelValues(term, "failure").Inc()
		return map[string][]model.ClassRecord{}
	}
	session := sis.NewSession(fetcher, subjectLog)

	if err := session.ResetSearch(ctx, term); err != nil {
		subjectLog.Error().Err(err).Msg("reset_search failed")
		metrics.SubjectsScrapedTotal.WithLabelValues(term, "failure").Inc()
		return map[string][]model.ClassRecord{}
	}
	entries, err := session.ClassSearch(ctx, term, subjectCode)
	if err != nil {
		subjectLog.Error().Err(err).Msg("class_search failed")
		metrics.SubjectsScrapedTotal.WithLabelValues(term, "failure").Inc()
		return map[string][]model.ClassRecord{}
	}

	agg := aggregator.New(session, w.dict, w.cfg.EmailDomain, subjectLog)

	entriesCtx, cancelEntries := context.WithCancel(ctx)
	defer cancelEntries()

	var mu sync.Mutex
	var failed bool
	courses := make(map[string][]model.ClassRecord)
	var wg sync.WaitGroup
	for _, entry := range entries {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, record, err := agg.Process(entriesCtx, term, entry)
			if err != nil {
				subjectLog.Error().Err(err).Str("crn", entry.CourseReferenceNumber).
					Msg("class detail aggregation failed, failing subject")
				mu.Lock()
				failed = true
				mu.Unlock()
				cancelEntries()
				return
			}
			mu.Lock()
			courses[entry.CourseNumber] = append(courses[entry.CourseNumber], record)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if failed {
		metrics.SubjectsScrapedTotal.WithLabelValues(term, "failure").Inc()
		return map[string][]model.ClassRecord{}
	}

	for courseCode := range courses {
		sortSections(courses[courseCode])
	}
	metrics.SubjectsScrapedTotal.WithLabelValues(term, "success").Inc()
	return courses
}

// sortSections orders a course's sections ascending by section number,
// comparing numerically where possible and falling back to lexical order
// for non-numeric section identifiers.
func sortSections(records []model.ClassRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, aErr := strconv.Atoi(records[i].SectionNumber)
		b, bErr := strconv.Atoi(records[j].SectionNumber)
		if aErr == nil && bErr == nil {
			return a < b
		}
		return records[i].SectionNumber < records[j].SectionNumber
	})
}
