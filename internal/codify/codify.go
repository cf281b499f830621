// Package codify implements the post-process codifier: it rewrites a
// harvested TermSnapshot in place using the accumulated code dictionaries,
// collapsing wire-form "name (code)" strings down to bare codes and
// synthesizing instructor identifiers where the raw harvest recorded
// model.UnknownRCSID. Grounded on
// original_source/sis_scraper/postprocess.py's CodeMapper/process_term,
// adapted to this module's typed ClassRecord/Instructor model in place of
// the original's untyped dict rewriting.
package codify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Project-CARPI/sis-scraper/internal/dictionary"
	"github.com/Project-CARPI/sis-scraper/internal/model"
)

// Codifier rewrites ClassRecords using a snapshot of the code dictionaries
// taken at construction time. Synthesized instructor identifiers are
// recorded back into dict's generated map as they're produced.
type Codifier struct {
	dict              *dictionary.CodeDictionaries
	subjectNameToCode map[string]string
	instructors       map[string]string
	log               zerolog.Logger
}

var (
	restrictionCodeName = regexp.MustCompile(`^(.*)\((.*)\)$`)
	courseCodeNumber    = regexp.MustCompile(`^(.*) (\d{4})$`)
	lastFirstName       = regexp.MustCompile(`^(.+), (.+)$`)
)

// New builds a codifier over dict's current snapshot.
func New(dict *dictionary.CodeDictionaries, log zerolog.Logger) *Codifier {
	subjects := dict.Subjects()
	nameToCode := make(map[string]string, len(subjects))
	for code, name := range subjects {
		nameToCode[name] = code
	}
	return &Codifier{
		dict:              dict,
		subjectNameToCode: nameToCode,
		instructors:       dict.Instructors(),
		log:               log,
	}
}

// CodifySnapshot rewrites every ClassRecord in snapshot in place and
// returns it for chaining.
func (c *Codifier) CodifySnapshot(term string, snapshot model.TermSnapshot) model.TermSnapshot {
	for subjectCode, subject := range snapshot {
		for courseNumber, records := range subject.Courses {
			for i := range records {
				c.codifyRecord(term, &records[i])
			}
			subject.Courses[courseNumber] = records
		}
		snapshot[subjectCode] = subject
	}
	return snapshot
}

func (c *Codifier) codifyRecord(term string, record *model.ClassRecord) {
	record.Attributes = c.codifyAttributes(term, record.CRN, record.Attributes)
	record.Restrictions = c.codifyRestrictions(record.Restrictions)
	record.Corequisites = c.codifyCourseCodes(term, record.CRN, record.Corequisites)
	record.Crosslists = c.codifyCourseCodes(term, record.CRN, record.Crosslists)
	for i := range record.Faculty {
		c.codifyInstructor(&record.Faculty[i])
	}
}

// codifyAttributes rewrites each "<name>  <code>" entry down to "<code>".
func (c *Codifier) codifyAttributes(term, crn string, attributes []string) []string {
	out := make([]string, len(attributes))
	for i, attr := range attributes {
		fields := strings.Fields(attr)
		if len(fields) < 2 {
			c.log.Warn().Str("term", term).Str("crn", crn).Str("attribute", attr).
				Msg("unexpected attribute format during codification")
			out[i] = attr
			continue
		}
		out[i] = fields[len(fields)-1]
	}
	return out
}

// codifyRestrictions rewrites each "<name> (<code>)" entry down to "<code>"
// and drops the special_approval list entirely (spec.md §4.7).
func (c *Codifier) codifyRestrictions(restrictions map[string][]string) map[string][]string {
	out := make(map[string][]string, len(restrictions))
	for rtype, items := range restrictions {
		if rtype == string(model.RestrictionSpecialApproval) {
			continue
		}
		codes := make([]string, 0, len(items))
		for _, item := range items {
			m := restrictionCodeName.FindStringSubmatch(item)
			if m == nil {
				codes = append(codes, item)
				continue
			}
			codes = append(codes, strings.TrimSpace(m[2]))
		}
		out[rtype] = codes
	}
	return out
}

// codifyCourseCodes rewrites each "<Full Subject Name> <4-digit number>"
// entry down to "<subject_code> <number>", passing unknown subject names
// through unchanged (logged).
func (c *Codifier) codifyCourseCodes(term, crn string, entries []string) []string {
	out := make([]string, len(entries))
	for i, entry := range entries {
		m := courseCodeNumber.FindStringSubmatch(entry)
		if m == nil {
			out[i] = entry
			continue
		}
		name, number := m[1], m[2]
		code, ok := c.subjectNameToCode[name]
		if !ok {
			c.log.Warn().Str("term", term).Str("crn", crn).Str("name", name).
				Msg("unknown subject name during course code codification")
			out[i] = entry
			continue
		}
		out[i] = code + " " + number
	}
	return out
}

// codifyInstructor synthesizes a real identifier for any faculty entry the
// raw harvest marked model.UnknownRCSID, recording it in the generated
// dictionary.
func (c *Codifier) codifyInstructor(instructor *model.Instructor) {
	if instructor.Identifier != model.UnknownRCSID {
		return
	}
	identifier := c.generateRCSID(instructor.DisplayName)
	instructor.Identifier = identifier
	c.instructors[identifier] = instructor.DisplayName
	c.dict.RecordGenerated(identifier, instructor.DisplayName)
}

// generateRCSID synthesizes an identifier from a "<Last>, <First>" display
// name: up to the first 5 alphabetic characters of Last (lowercased)
// followed by the first alphabetic character of First (lowercased),
// disambiguated against known instructors by appending the smallest
// integer >= 1 that makes it unique. Ported from postprocess.py's
// CodeMapper._generate_rcsid.
func (c *Codifier) generateRCSID(displayName string) string {
	m := lastFirstName.FindStringSubmatch(displayName)
	if m == nil {
		c.log.Warn().Str("display_name", displayName).Msg("unexpected instructor name format")
		fallback := strings.ToLower(strings.Join(strings.Fields(displayName), ""))
		if len(fallback) > 8 {
			fallback = fallback[:8]
		}
		return fallback
	}
	last, first := m[1], m[2]

	lastComponent := alphabeticPrefix(last, 5)
	firstInitial := alphabeticPrefix(first, 1)
	base := lastComponent + firstInitial

	candidate := base
	for counter := 1; ; counter++ {
		if _, exists := c.instructors[candidate]; !exists {
			return candidate
		}
		candidate = base + strconv.Itoa(counter)
	}
}

func alphabeticPrefix(s string, n int) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() == n {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(toLowerRune(r))
		}
	}
	return b.String()
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
