package sis

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/Project-CARPI/sis-scraper/internal/model"
	harvesterrors "github.com/Project-CARPI/sis-scraper/pkg/errors"
)

// Banner SSB paths, grounded verbatim on
// original_source/sis_scraper/sis_api.py's endpoint URLs (the path
// components after the institution's StudentRegistrationSsb/ssb prefix,
// which Session.BaseURL supplies).
const (
	pathGetSubject        = "/classSearch/get_subject"
	pathGetInstructor     = "/classSearch/get_instructor"
	pathGetAttribute      = "/classSearch/get_attribute"
	pathGetCollege        = "/classSearch/get_college"
	pathGetCampus         = "/classSearch/get_campus"
	pathTermSearch        = "/term/search"
	pathSearchResults     = "/searchResults/searchResults"
	pathCourseDescription = "/searchResults/getCourseDescription"
	pathSectionAttributes = "/searchResults/getSectionAttributes"
	pathRestrictions      = "/searchResults/getRestrictions"
	pathPrerequisites     = "/searchResults/getSectionPrerequisites"
	pathCorequisites      = "/searchResults/getCorequisites"
	pathCrosslists        = "/searchResults/getXlstSections"
)

const maxPageSize = 2147483647

// Session is one subject worker's stateful handle to the SIS: a dedicated
// Fetcher (and therefore a dedicated cookie jar) plus the logger context.
// Per spec.md §4.4/§5, exactly one Session exists per subject worker and is
// never shared across concurrent workers.
type Session struct {
	fetcher *Fetcher
	log     zerolog.Logger
}

// NewSession wraps fetcher as a fresh session; the fetcher's base URL and
// cookie jar are the session's.
func NewSession(fetcher *Fetcher, log zerolog.Logger) *Session {
	return &Session{fetcher: fetcher, log: log}
}

// ListSubjects fetches every subject known for term.
func (s *Session) ListSubjects(ctx context.Context, term string) ([]SubjectEntry, error) {
	params := url.Values{"term": {term}, "offset": {"1"}, "max": {strconv.Itoa(maxPageSize)}}
	var entries []SubjectEntry
	if err := s.fetcher.GetJSON(ctx, pathGetSubject, params, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListInstructors fetches every instructor known for term.
func (s *Session) ListInstructors(ctx context.Context, term string) ([]SubjectEntry, error) {
	params := url.Values{"term": {term}, "offset": {"1"}, "max": {strconv.Itoa(maxPageSize)}}
	var entries []SubjectEntry
	if err := s.fetcher.GetJSON(ctx, pathGetInstructor, params, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetAllAttributes fetches the master attribute list (supplemented feature,
// SPEC_FULL.md §9; not mandatory to scrape_term).
func (s *Session) GetAllAttributes(ctx context.Context, searchTerm string) ([]SubjectEntry, error) {
	params := url.Values{"searchTerm": {searchTerm}, "offset": {"1"}, "max": {strconv.Itoa(maxPageSize)}}
	var entries []SubjectEntry
	if err := s.fetcher.GetJSON(ctx, pathGetAttribute, params, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetAllColleges fetches the master college/school list (supplemented feature).
func (s *Session) GetAllColleges(ctx context.Context, searchTerm string) ([]SubjectEntry, error) {
	params := url.Values{"searchTerm": {searchTerm}, "offset": {"1"}, "max": {strconv.Itoa(maxPageSize)}}
	var entries []SubjectEntry
	if err := s.fetcher.GetJSON(ctx, pathGetCollege, params, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetAllCampuses fetches the master campus list (supplemented feature).
func (s *Session) GetAllCampuses(ctx context.Context, searchTerm string) ([]SubjectEntry, error) {
	params := url.Values{"searchTerm": {searchTerm}}
	var entries []SubjectEntry
	if err := s.fetcher.GetJSON(ctx, pathGetCampus, params, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ResetSearch resets term/subject search state on the server. Must be the
// most recent call on this session before ClassSearch (spec.md §4.2
// contract).
func (s *Session) ResetSearch(ctx context.Context, term string) error {
	params := url.Values{"mode": {"search"}, "term": {term}}
	_, err := s.fetcher.Get(ctx, pathTermSearch, params)
	return err
}

// ClassSearch lists every class entry for (term, subject). ResetSearch must
// have been the immediately preceding call on this session.
func (s *Session) ClassSearch(ctx context.Context, term, subject string) ([]ClassEntry, error) {
	params := url.Values{
		"txt_subject":   {subject},
		"txt_term":      {term},
		"pageOffset":    {"0"},
		"pageMaxSize":   {strconv.Itoa(maxPageSize)},
		"sortColumn":    {"subjectDescription"},
		"sortDirection": {"asc"},
	}
	var result SearchResult
	if err := s.fetcher.GetJSON(ctx, pathSearchResults, params, &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return []ClassEntry{}, nil
	}
	return result.Data, nil
}

// GetDescription returns the first non-empty text line of the description
// section, or "" if no description section is present.
func (s *Session) GetDescription(ctx context.Context, term, crn string) (string, error) {
	params := url.Values{"term": {term}, "courseReferenceNumber": {crn}}
	raw, err := s.fetcher.GetHTML(ctx, pathCourseDescription, params)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", harvesterrors.Wrap(err, harvesterrors.ErrorTypeParse, "invalid description HTML")
	}
	section := doc.Find(`section[aria-labelledby="courseDescription"]`)
	if section.Length() == 0 {
		s.log.Warn().Str("term", term).Str("crn", crn).Msg("no description found")
		return "", nil
	}
	for _, line := range strings.Split(section.Text(), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed, nil
		}
	}
	return "", nil
}

// GetAttributes returns the raw "<name>  <code>" wire-form attribute
// strings, codified later by the postprocess step.
func (s *Session) GetAttributes(ctx context.Context, term, crn string) ([]string, error) {
	params := url.Values{"term": {term}, "courseReferenceNumber": {crn}}
	raw, err := s.fetcher.GetHTML(ctx, pathSectionAttributes, params)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, harvesterrors.Wrap(err, harvesterrors.ErrorTypeParse, "invalid attributes HTML")
	}
	var attributes []string
	doc.Find(`span.attribute-text`).Each(func(_ int, sel *goquery.Selection) {
		attributes = append(attributes, strings.TrimSpace(sel.Text()))
	})
	return attributes, nil
}

// GetRestrictions returns the type -> items restriction map (spec.md §4.6).
func (s *Session) GetRestrictions(ctx context.Context, term, crn string) (map[string][]string, error) {
	params := url.Values{"term": {term}, "courseReferenceNumber": {crn}}
	raw, err := s.fetcher.GetHTML(ctx, pathRestrictions, params)
	if err != nil {
		return nil, err
	}
	return ParseRestrictions(s.log, term, crn, raw), nil
}

// GetPrerequisites always returns the empty structure; the prerequisite
// parser is inoperative by design (spec.md §1, §9).
func (s *Session) GetPrerequisites(ctx context.Context, term, crn string) (map[string]any, error) {
	return model.NewPrerequisites(), nil
}

// GetCorequisites parses the three-column corequisites table, returning
// "<Full Subject Name> <4-digit number>" strings per course (the form the
// codifier rewrites in §4.7).
func (s *Session) GetCorequisites(ctx context.Context, term, crn string) ([]string, error) {
	params := url.Values{"term": {term}, "courseReferenceNumber": {crn}}
	raw, err := s.fetcher.GetHTML(ctx, pathCorequisites, params)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, harvesterrors.Wrap(err, harvesterrors.ErrorTypeParse, "invalid corequisites HTML")
	}
	section := doc.Find(`section[aria-labelledby="coReqs"]`)
	table := section.Find(`table.basePreqTable`)
	if table.Length() == 0 {
		return []string{}, nil
	}
	headCols := table.Find("thead th")
	if headCols.Length() != 3 {
		s.log.Warn().Str("term", term).Str("crn", crn).Msg("unexpected number of corequisite columns")
		return []string{}, nil
	}
	var coreqs []string
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() != 3 {
			s.log.Warn().Str("term", term).Str("crn", crn).Msg("skipping corequisite row with mismatched columns")
			return
		}
		subject := strings.TrimSpace(cols.Eq(0).Text())
		number := strings.TrimSpace(cols.Eq(1).Text())
		coreqs = append(coreqs, subject+" "+number)
	})
	if coreqs == nil {
		coreqs = []string{}
	}
	return coreqs, nil
}

// GetCrosslists parses the five-column crosslists table, returning
// "<Full Subject Name> <4-digit number>" strings per crosslisted section.
func (s *Session) GetCrosslists(ctx context.Context, term, crn string) ([]string, error) {
	params := url.Values{"term": {term}, "courseReferenceNumber": {crn}}
	raw, err := s.fetcher.GetHTML(ctx, pathCrosslists, params)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, harvesterrors.Wrap(err, harvesterrors.ErrorTypeParse, "invalid crosslists HTML")
	}
	section := doc.Find(`section[aria-labelledby="xlstSections"]`)
	table := section.Find("table").First()
	if table.Length() == 0 {
		return []string{}, nil
	}
	headCols := table.Find("thead th")
	if headCols.Length() != 5 {
		s.log.Warn().Str("term", term).Str("crn", crn).Msg("unexpected number of crosslist columns")
		return []string{}, nil
	}
	var crosslists []string
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() != 5 {
			s.log.Warn().Str("term", term).Str("crn", crn).Msg("skipping crosslist row with mismatched columns")
			return
		}
		subject := strings.TrimSpace(cols.Eq(1).Text())
		number := strings.TrimSpace(cols.Eq(2).Text())
		crosslists = append(crosslists, subject+" "+number)
	})
	if crosslists == nil {
		crosslists = []string{}
	}
	return crosslists, nil
}

// BuildMeetings converts a class entry's embedded meetingsFaculty field into
// the module's Meeting shape. Unlike the other class-detail fields, meeting
// data is taken directly from the search entry rather than fetched through
// a separate call (spec.md §4.3 "Fields taken directly from the search
// entry:... meetings").
func BuildMeetings(raw []MeetingFacultyEntry) []model.Meeting {
	meetings := make([]model.Meeting, 0, len(raw))
	for _, entry := range raw {
		mt := entry.MeetingTime
		meetings = append(meetings, model.Meeting{
			BeginTime:    mt.BeginTime,
			EndTime:      mt.EndTime,
			CreditHours:  mt.CreditHourSession,
			CampusCode:   mt.Campus,
			CampusDesc:   mt.CampusDescription,
			BuildingCode: mt.Building,
			BuildingDesc: mt.BuildingDescription,
			Category:     mt.MeetingType,
			Room:         mt.Room,
			StartDate:    mt.StartDate,
			EndDate:      mt.EndDate,
			Days: model.DeriveDays(
				mt.Sunday, mt.Monday, mt.Tuesday, mt.Wednesday,
				mt.Thursday, mt.Friday, mt.Saturday,
			),
		})
	}
	return meetings
}
