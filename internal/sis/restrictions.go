package sis

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/Project-CARPI/sis-scraper/internal/model"
)

// pluralLabelToType is the SIS plural restriction-section label to
// RestrictionType mapping (spec.md §4.6), a direct port of
// original_source/sis_scraper/sis_api.py's RESTRICTION_TYPE_MAP.
var pluralLabelToType = map[string]model.RestrictionType{
	"Majors": model.RestrictionMajor,
	"Fields of Study (Major, Minor or Concentration)": model.RestrictionMajor,
	"Minors":         model.RestrictionMinor,
	"Levels":         model.RestrictionLevel,
	"Classes":        model.RestrictionClassification,
	"Degrees":        model.RestrictionDegree,
	"Programs":       model.RestrictionDegree,
	"Departments":    model.RestrictionDepartment,
	"Campuses":       model.RestrictionCampus,
	"Colleges":       model.RestrictionCollege,
}

var (
	headerRe           = regexp.MustCompile(`^(Must|Cannot) be enrolled in one of the following (` + labelAlternation() + `):$`)
	specialApprovalsRe = regexp.MustCompile(`^Special Approvals:$`)
	parenCloseRe       = regexp.MustCompile(`\(.*\)`)
)

func labelAlternation() string {
	labels := make([]string, 0, len(pluralLabelToType))
	for label := range pluralLabelToType {
		labels = append(labels, regexp.QuoteMeta(label))
	}
	return strings.Join(labels, "|")
}

// matchHeader checks whether text is a restriction section header, and if
// so returns the dictionary key it opens ("major", "not_major",
// "special_approval", ...).
func matchHeader(text string) (key string, ok bool) {
	if specialApprovalsRe.MatchString(text) {
		return string(model.RestrictionSpecialApproval), true
	}
	if m := headerRe.FindStringSubmatch(text); m != nil {
		base := pluralLabelToType[m[2]]
		key := string(base)
		if strings.EqualFold(m[1], "cannot") {
			key = "not_" + key
		}
		return key, true
	}
	return "", false
}

// initRestrictionsMap pre-populates every known type (and its not_ variant,
// except special_approval, which has no polarity) to an empty list.
func initRestrictionsMap() map[string][]string {
	m := make(map[string][]string)
	for _, t := range model.KnownRestrictionTypes {
		m[string(t)] = []string{}
		if t != model.RestrictionSpecialApproval {
			m["not_"+string(t)] = []string{}
		}
	}
	return m
}

// ParseRestrictions walks the getRestrictions HTML fragment's <span>
// children in document order, implementing the header/collect state machine
// of spec.md §4.6. Grounded on sis_api.py's get_class_restrictions, with one
// deviation spec.md makes explicit: special_approval items are emitted
// per-span without parenthesis-balancing, rather than requiring a trailing
// "(code)" the way every other restriction type does.
func ParseRestrictions(log zerolog.Logger, term, crn, fragment string) map[string][]string {
	result := initRestrictionsMap()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		log.Warn().Err(err).Str("term", term).Str("crn", crn).Msg("failed to parse restrictions fragment")
		return result
	}

	section := doc.Find(`section[aria-labelledby="restrictions"]`)
	if section.Length() == 0 {
		return result
	}

	var spans []*goquery.Selection
	section.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "span" {
			spans = append(spans, s)
		}
	})

	i := 0
	for i < len(spans) {
		text := strings.TrimSpace(spans[i].Text())
		if text == "" {
			log.Warn().Str("term", term).Str("crn", crn).Msg("skipping restriction span with no text")
			i++
			continue
		}
		key, ok := matchHeader(text)
		if !ok {
			i++
			continue
		}
		i++

		if key == string(model.RestrictionSpecialApproval) {
			i = collectSpecialApprovals(spans, i, result, log, term, crn)
			continue
		}
		i = collectParenthesized(spans, i, key, result, log, term, crn)
	}

	return result
}

// collectSpecialApprovals appends each subsequent span verbatim until a new
// header is seen, without requiring a closing parenthesis.
func collectSpecialApprovals(spans []*goquery.Selection, i int, result map[string][]string, log zerolog.Logger, term, crn string) int {
	key := string(model.RestrictionSpecialApproval)
	for i < len(spans) {
		text := strings.TrimSpace(spans[i].Text())
		if text == "" {
			log.Warn().Str("term", term).Str("crn", crn).Msg("skipping restriction span with no text")
			i++
			continue
		}
		if _, ok := matchHeader(text); ok {
			return i
		}
		result[key] = append(result[key], text)
		i++
	}
	return i
}

// collectParenthesized implements the comma-rejoin-until-closing-paren
// buffering rule for ordinary restriction types. If a span's own text is a
// new header before the buffer has closed, the buffer is abandoned and the
// span is left for the caller to re-process as a header (spec.md §4.6).
func collectParenthesized(spans []*goquery.Selection, i int, key string, result map[string][]string, log zerolog.Logger, term, crn string) int {
	buffer := ""
	for i < len(spans) {
		text := spans[i].Text()
		if strings.TrimSpace(text) == "" {
			log.Warn().Str("term", term).Str("crn", crn).Msg("skipping restriction span with no text")
			i++
			continue
		}
		if _, ok := matchHeader(strings.TrimSpace(text)); ok {
			return i
		}
		if buffer == "" {
			buffer = strings.TrimLeft(text, " \t\r\n")
		} else {
			buffer += "," + text
		}
		if parenCloseRe.MatchString(buffer) {
			result[key] = append(result[key], strings.TrimSpace(buffer))
			buffer = ""
		}
		i++
	}
	return i
}
