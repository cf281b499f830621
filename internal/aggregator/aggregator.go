// Package aggregator turns one class_search entry into a fully detailed
// ClassRecord, fanning out the description/attributes/restrictions/
// prerequisites/corequisites/crosslists calls concurrently and folding the
// results into the shared code dictionaries.
//
// Grounded on original_source/sis_scraper/sis_scraper.py's
// process_class_details, translated from its asyncio.TaskGroup fan-out into
// goroutines over a fixed-size sync.WaitGroup, following the worker-pool
// idiom N0tT1m-code-lupe-v2's downloader.downloadAll uses elsewhere in this
// codebase.
package aggregator

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Project-CARPI/sis-scraper/internal/dictionary"
	"github.com/Project-CARPI/sis-scraper/internal/metrics"
	"github.com/Project-CARPI/sis-scraper/internal/model"
	"github.com/Project-CARPI/sis-scraper/internal/sis"
)

// Aggregator fetches and assembles one section's full detail record.
//
// Unlike process_class_details, which fetches a course's detail fields once
// and reuses them across every section of that course, this aggregator
// fetches independently per class_search entry: spec.md §4.3 defines the
// aggregator's contract as one entry in, one ClassRecord out, with no
// course-level cache. What a failed entry means for its sibling sections is
// decided by the caller (internal/worker fails the whole subject).
type Aggregator struct {
	session     *sis.Session
	dict        *dictionary.CodeDictionaries
	emailDomain string
	log         zerolog.Logger
}

// restrictionCodeName matches the "<Name> (<Code>)" wire form emitted by the
// restrictions parser, ported verbatim from sis_scraper.py's
// `re.match(r"(.*)\((.*)\)", restriction)`.
var restrictionCodeName = regexp.MustCompile(`^(.*)\((.*)\)$`)

// New builds an aggregator against session, folding discovered codes into
// dict. emailDomain is the institutional email suffix used to derive
// instructor identifiers (e.g. "rpi.edu").
func New(session *sis.Session, dict *dictionary.CodeDictionaries, emailDomain string, log zerolog.Logger) *Aggregator {
	return &Aggregator{session: session, dict: dict, emailDomain: emailDomain, log: log}
}

// detailResult carries one of the six fanned-out calls' outcome.
type detailResult struct {
	description   string
	attributes    []string
	restrictions  map[string][]string
	prerequisites map[string]any
	corequisites  []string
	crosslists    []string
	err           error
}

// Process fetches every detail field for entry and returns the fully
// populated ClassRecord along with the course code it belongs under
// ("<Subject> <CourseNumber>"). A failure in any one of the six detail
// calls cancels this entry's remaining in-flight calls and is returned to
// the caller.
func (a *Aggregator) Process(ctx context.Context, term string, entry sis.ClassEntry) (courseCode string, record model.ClassRecord, err error) {
	courseCode = entry.Subject + " " + entry.CourseNumber
	crn := entry.CourseReferenceNumber

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan func(*detailResult), 6)
	var wg sync.WaitGroup

	fetch := func(fn func() (any, error), assign func(*detailResult, any)) {
		defer wg.Done()
		val, callErr := fn()
		if callErr != nil {
			cancel()
			results <- func(r *detailResult) { r.err = callErr }
			return
		}
		results <- func(r *detailResult) { assign(r, val) }
	}

	wg.Add(6)
	go fetch(func() (any, error) { return a.session.GetDescription(childCtx, term, crn) },
		func(r *detailResult, v any) { r.description = v.(string) })
	go fetch(func() (any, error) { return a.session.GetAttributes(childCtx, term, crn) },
		func(r *detailResult, v any) { r.attributes = v.([]string) })
	go fetch(func() (any, error) { return a.session.GetRestrictions(childCtx, term, crn) },
		func(r *detailResult, v any) { r.restrictions = v.(map[string][]string) })
	go fetch(func() (any, error) { return a.session.GetPrerequisites(childCtx, term, crn) },
		func(r *detailResult, v any) { r.prerequisites = v.(map[string]any) })
	go fetch(func() (any, error) { return a.session.GetCorequisites(childCtx, term, crn) },
		func(r *detailResult, v any) { r.corequisites = v.([]string) })
	go fetch(func() (any, error) { return a.session.GetCrosslists(childCtx, term, crn) },
		func(r *detailResult, v any) { r.crosslists = v.([]string) })

	go func() {
		wg.Wait()
		close(results)
	}()

	detail := &detailResult{}
	for apply := range results {
		apply(detail)
	}
	if detail.err != nil {
		return courseCode, model.ClassRecord{}, detail.err
	}

	a.recordAttributeCodes(term, crn, detail.attributes)
	a.recordRestrictionCodes(term, crn, detail.restrictions)
	faculty := a.buildFaculty(term, crn, entry.Faculty)

	record = model.ClassRecord{
		CRN:                crn,
		SectionNumber:      entry.SequenceNumber,
		Title:              entry.CourseTitle,
		Description:        detail.description,
		Attributes:         detail.attributes,
		Restrictions:       detail.restrictions,
		Prerequisites:      detail.prerequisites,
		Corequisites:       detail.corequisites,
		Crosslists:         detail.crosslists,
		CreditMin:          floatOrZero(entry.CreditHourLow),
		CreditMax:          creditMax(entry.CreditHourLow, entry.CreditHourHigh),
		SeatsCapacity:      entry.MaximumEnrollment,
		SeatsRegistered:    entry.Enrollment,
		SeatsAvailable:     entry.SeatsAvailable,
		WaitlistCapacity:   entry.WaitCapacity,
		WaitlistRegistered: entry.WaitCount,
		WaitlistAvailable:  entry.WaitAvailable,
		Faculty:            faculty,
		Meetings:           sis.BuildMeetings(entry.MeetingsFaculty),
	}
	return courseCode, record, nil
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func creditMax(low, high *float64) float64 {
	if high != nil {
		return *high
	}
	return floatOrZero(low)
}

// recordAttributeCodes splits each "<Name>  <CODE>" wire string on
// whitespace, taking the final token as the code and the rest as the name,
// mirroring sis_scraper.py's `attribute.split()` / `attribute_split[-1]`.
func (a *Aggregator) recordAttributeCodes(term, crn string, attributes []string) {
	for _, attribute := range attributes {
		fields := strings.Fields(attribute)
		if len(fields) < 2 {
			a.log.Warn().Str("term", term).Str("crn", crn).Str("attribute", attribute).
				Msg("unexpected attribute format")
			metrics.ParseErrorsTotal.WithLabelValues("attribute").Inc()
			continue
		}
		code := fields[len(fields)-1]
		name := strings.Join(fields[:len(fields)-1], " ")
		a.dict.UpsertAttribute(code, name)
	}
}

// recordRestrictionCodes splits each "<Name> (<Code>)" wire string into its
// dictionary entry, mirroring sis_scraper.py's restriction_pattern match
// with the not_ polarity prefix stripped before lookup.
func (a *Aggregator) recordRestrictionCodes(term, crn string, restrictions map[string][]string) {
	for key, items := range restrictions {
		rtype := model.RestrictionType(strings.TrimPrefix(key, "not_"))
		for _, item := range items {
			m := restrictionCodeName.FindStringSubmatch(item)
			if m == nil {
				a.log.Warn().Str("term", term).Str("crn", crn).Str("restriction", item).
					Msg("unexpected restriction format")
				metrics.ParseErrorsTotal.WithLabelValues("restriction").Inc()
				continue
			}
			name := strings.TrimSpace(m[1])
			code := strings.TrimSpace(m[2])
			a.dict.UpsertRestriction(rtype, code, name)
		}
	}
}

// buildFaculty derives each instructor's identifier from their institutional
// email address, falling back to model.UnknownRCSID when absent or
// off-domain, mirroring sis_scraper.py's RCSID derivation.
func (a *Aggregator) buildFaculty(term, crn string, entries []sis.FacultyEntry) []model.Instructor {
	faculty := make([]model.Instructor, 0, len(entries))
	for _, f := range entries {
		identifier := model.UnknownRCSID
		if f.Email == "" {
			a.log.Warn().Str("term", term).Str("crn", crn).Str("instructor", f.DisplayName).
				Msg("missing instructor email address")
		} else if strings.HasSuffix(strings.ToLower(f.Email), "@"+strings.ToLower(a.emailDomain)) {
			identifier = strings.ToLower(strings.SplitN(f.Email, "@", 2)[0])
			a.dict.UpsertInstructor(identifier, f.DisplayName)
		}
		faculty = append(faculty, model.Instructor{
			Identifier:  identifier,
			DisplayName: f.DisplayName,
			Email:       f.Email,
			Primary:     f.Primary,
			BannerID:    f.BannerID,
		})
	}
	return faculty
}
