// Package scraper implements the term driver and multi-term orchestration:
// the top of the call graph that lists a term's subjects, fans out subject
// workers under the session cap, assembles the sorted TermSnapshot, and
// writes it to disk. Grounded on
// original_source/sis_scraper/sis_scraper.py's get_term_course_data and main.
package scraper

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Project-CARPI/sis-scraper/internal/dictionary"
	"github.com/Project-CARPI/sis-scraper/internal/metrics"
	"github.com/Project-CARPI/sis-scraper/internal/model"
	"github.com/Project-CARPI/sis-scraper/internal/sis"
	"github.com/Project-CARPI/sis-scraper/internal/worker"
	harvesterrors "github.com/Project-CARPI/sis-scraper/pkg/errors"
)

// Config bounds one term driver run.
type Config struct {
	BaseURL            string
	EmailDomain        string
	Timeout            time.Duration
	PerHostConnections int
	SessionCap         int
	OutputDir          string
}

// TermDriver lists a term's subjects and harvests each one's full course map.
type TermDriver struct {
	cfg  Config
	dict *dictionary.CodeDictionaries
	log  zerolog.Logger
}

// New builds a term driver sharing dict across every term it processes.
func New(cfg Config, dict *dictionary.CodeDictionaries, log zerolog.Logger) *TermDriver {
	if cfg.SessionCap <= 0 {
		cfg.SessionCap = 10
	}
	return &TermDriver{cfg: cfg, dict: dict, log: log}
}

// ScrapeTerm lists every subject offered in term, upserts the subject
// dictionary, fans out one subject worker per subject under the session
// cap, and returns the assembled TermSnapshot. The listing session is
// short-lived and distinct from every subject worker's own session. Per
// spec.md §4.5 step 6, the term only counts as a success if at least one
// subject came back with non-empty Courses; a term where every subject
// worker failed (spec.md §4.4's empty-map failure path) is reported as an
// error instead of being written and counted as a success.
func (d *TermDriver) ScrapeTerm(ctx context.Context, term string) (model.TermSnapshot, error) {
	termLog := d.log.With().Str("term", term).Logger()

	listFetcher, err := sis.NewFetcher(d.cfg.BaseURL, d.cfg.Timeout, d.cfg.PerHostConnections, "__listing", termLog)
	if err != nil {
		return nil, err
	}
	listSession := sis.NewSession(listFetcher, termLog)
	subjects, err := listSession.ListSubjects(ctx, term)
	if err != nil {
		return nil, err
	}

	for _, subj := range subjects {
		d.dict.UpsertSubject(subj.Code, subj.Description)
	}
	termLog.Info().Int("count", len(subjects)).Msg("processing subjects for term")

	w := worker.New(worker.Config{
		BaseURL:            d.cfg.BaseURL,
		EmailDomain:        d.cfg.EmailDomain,
		Timeout:            d.cfg.Timeout,
		PerHostConnections: d.cfg.PerHostConnections,
	}, d.dict, termLog)

	sessionSemaphore := make(chan struct{}, d.cfg.SessionCap)
	snapshot := make(model.TermSnapshot, len(subjects))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, subj := range subjects {
		subj := subj
		wg.Add(1)
		go func() {
			defer wg.Done()
			courses := w.ProcessSubject(ctx, sessionSemaphore, term, subj.Code)
			mu.Lock()
			snapshot[subj.Code] = model.SubjectSnapshot{
				SubjectName: subj.Description,
				Courses:     courses,
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(subjects) > 0 && !snapshotHasCourses(snapshot) {
		return nil, harvesterrors.New(harvesterrors.ErrorTypeSubject, "every subject failed, no courses collected").
			WithContext("term", term)
	}

	return snapshot, nil
}

// snapshotHasCourses reports whether at least one subject in snapshot
// collected at least one course.
func snapshotHasCourses(snapshot model.TermSnapshot) bool {
	for _, subj := range snapshot {
		if len(subj.Courses) > 0 {
			return true
		}
	}
	return false
}

// WriteSnapshot writes snapshot to <outputDir>/<term>.json as indented JSON,
// creating outputDir if necessary. A snapshot with no subjects is not
// written, matching get_term_course_data's "if len(term_course_data) == 0:
// return" guard.
func (d *TermDriver) WriteSnapshot(term string, snapshot model.TermSnapshot) error {
	if len(snapshot) == 0 {
		return nil
	}
	if err := os.MkdirAll(d.cfg.OutputDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d.cfg.OutputDir, term+".json")
	data, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		return err
	}
	d.log.Info().Str("path", path).Msg("writing term snapshot")
	return os.WriteFile(path, data, 0o644)
}

// Plan is one (year, season) term to scrape, pre-resolved to its term code.
type Plan struct {
	Year   int
	Season string
	Term   string
}

// BuildPlans expands a year range and season list into term plans, skipping
// any (year, season) combination that does not resolve to a valid term
// code, mirroring main's `if term == "": continue` guard.
func BuildPlans(startYear, endYear int, seasons []string) []Plan {
	if len(seasons) == 0 {
		seasons = []string{"spring", "summer", "fall"}
	}
	var plans []Plan
	for year := startYear; year <= endYear; year++ {
		for _, season := range seasons {
			term := model.TermCode(year, season)
			if term == "" {
				continue
			}
			plans = append(plans, Plan{Year: year, Season: season, Term: term})
		}
	}
	return plans
}

// RunAll scrapes every plan concurrently, one goroutine per term, and
// writes each term's snapshot as it completes. The first fatal error
// encountered cancels every term still in flight and is returned once all
// goroutines have unwound; terms that already finished keep their written
// output (spec.md §5 "first fatal error cancels siblings").
func (d *TermDriver) RunAll(ctx context.Context, plans []Plan) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(plans))
	var wg sync.WaitGroup
	for _, plan := range plans {
		plan := plan
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot, err := d.ScrapeTerm(ctx, plan.Term)
			if err != nil {
				d.log.Error().Err(err).Str("term", plan.Term).Msg("term scrape failed")
				metrics.TermsScrapedTotal.WithLabelValues("failure").Inc()
				cancel()
				errs <- err
				return
			}
			if err := d.WriteSnapshot(plan.Term, snapshot); err != nil {
				d.log.Error().Err(err).Str("term", plan.Term).Msg("failed to write term snapshot")
				metrics.TermsScrapedTotal.WithLabelValues("failure").Inc()
				cancel()
				errs <- err
				return
			}
			metrics.TermsScrapedTotal.WithLabelValues("success").Inc()
		}()
	}
	wg.Wait()
	close(errs)

	var sorted []error
	for e := range errs {
		sorted = append(sorted, e)
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Error() < sorted[j].Error() })
	return sorted[0]
}
