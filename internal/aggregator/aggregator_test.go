package aggregator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-CARPI/sis-scraper/internal/dictionary"
	"github.com/Project-CARPI/sis-scraper/internal/sis"
)

func newTestSession(t *testing.T, handler http.HandlerFunc) *sis.Session {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fetcher, err := sis.NewFetcher(server.URL, time.Second, 4, "TEST", zerolog.Nop())
	require.NoError(t, err)
	return sis.NewSession(fetcher, zerolog.Nop())
}

func fakeBannerHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.Contains(r.URL.Path, "getCourseDescription"):
		w.Write([]byte(`<section aria-labelledby="courseDescription">Intro to CS.</section>`))
	case strings.Contains(r.URL.Path, "getSectionAttributes"):
		w.Write([]byte(`<span class="attribute-text">Writing Intensive  WI</span>`))
	case strings.Contains(r.URL.Path, "getRestrictions"):
		w.Write([]byte(`<section aria-labelledby="restrictions"><span>Must be enrolled in one of the following Levels:</span><span>Graduate (GR)</span></section>`))
	case strings.Contains(r.URL.Path, "getCorequisites"):
		w.Write([]byte(`<section aria-labelledby="coReqs"></section>`))
	case strings.Contains(r.URL.Path, "getXlstSections"):
		w.Write([]byte(`<section aria-labelledby="xlstSections"></section>`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestProcess_AssemblesFullRecord(t *testing.T) {
	session := newTestSession(t, fakeBannerHandler)
	dict := dictionary.New(zerolog.Nop())
	agg := New(session, dict, "rpi.edu", zerolog.Nop())

	low := 4.0
	entry := sis.ClassEntry{
		CourseReferenceNumber: "10001",
		CourseNumber:          "1200",
		Subject:               "CSCI",
		SequenceNumber:        "01",
		CourseTitle:           "Intro to Computer Science",
		CreditHourLow:         &low,
		MaximumEnrollment:     30,
		Enrollment:            28,
		SeatsAvailable:        2,
		Faculty: []sis.FacultyEntry{
			{DisplayName: "Doe, Jane", Email: "doej@rpi.edu", Primary: true},
		},
	}

	courseCode, record, err := agg.Process(context.Background(), "202309", entry)
	require.NoError(t, err)

	assert.Equal(t, "CSCI 1200", courseCode)
	assert.Equal(t, "10001", record.CRN)
	assert.Equal(t, "Intro to CS.", record.Description)
	assert.Equal(t, []string{"Writing Intensive  WI"}, record.Attributes)
	assert.Equal(t, []string{"Graduate (GR)"}, record.Restrictions["level"])
	assert.Equal(t, 4.0, record.CreditMin)
	assert.Equal(t, 4.0, record.CreditMax)
	require.Len(t, record.Faculty, 1)
	assert.Equal(t, "doej", record.Faculty[0].Identifier)

	assert.Equal(t, "Writing Intensive", dict.Attributes()["WI"])
	assert.Equal(t, "Graduate", dict.Restrictions()["level"]["GR"])
	assert.Equal(t, "Doe, Jane", dict.Instructors()["doej"])
}

func TestProcess_OffDomainEmailYieldsUnknownRCSID(t *testing.T) {
	session := newTestSession(t, fakeBannerHandler)
	dict := dictionary.New(zerolog.Nop())
	agg := New(session, dict, "rpi.edu", zerolog.Nop())

	entry := sis.ClassEntry{
		CourseReferenceNumber: "10002",
		CourseNumber:          "1200",
		Subject:               "CSCI",
		Faculty: []sis.FacultyEntry{
			{DisplayName: "Visitor, Guest", Email: "guest@other.edu"},
		},
	}

	_, record, err := agg.Process(context.Background(), "202309", entry)
	require.NoError(t, err)

	require.Len(t, record.Faculty, 1)
	assert.Equal(t, "Unknown RCSID", record.Faculty[0].Identifier)
	assert.Empty(t, dict.Instructors())
}

func TestProcess_MissingEmailYieldsUnknownRCSID(t *testing.T) {
	session := newTestSession(t, fakeBannerHandler)
	dict := dictionary.New(zerolog.Nop())
	agg := New(session, dict, "rpi.edu", zerolog.Nop())

	entry := sis.ClassEntry{
		CourseReferenceNumber: "10003",
		CourseNumber:          "1200",
		Subject:               "CSCI",
		Faculty: []sis.FacultyEntry{
			{DisplayName: "Nobody, No Email"},
		},
	}

	_, record, err := agg.Process(context.Background(), "202309", entry)
	require.NoError(t, err)
	assert.Equal(t, "Unknown RCSID", record.Faculty[0].Identifier)
}

func TestProcess_DetailFetchFailureCancelsOnlyThisEntry(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "getCourseDescription") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fakeBannerHandler(w, r)
	})
	dict := dictionary.New(zerolog.Nop())
	agg := New(session, dict, "rpi.edu", zerolog.Nop())

	entry := sis.ClassEntry{CourseReferenceNumber: "10004", CourseNumber: "1200", Subject: "CSCI"}

	_, _, err := agg.Process(context.Background(), "202309", entry)
	assert.Error(t, err)
}

func TestProcess_CreditMaxUsesHighWhenPresent(t *testing.T) {
	session := newTestSession(t, fakeBannerHandler)
	dict := dictionary.New(zerolog.Nop())
	agg := New(session, dict, "rpi.edu", zerolog.Nop())

	low := 3.0
	high := 4.0
	entry := sis.ClassEntry{
		CourseReferenceNumber: "10005",
		CourseNumber:          "1200",
		Subject:               "CSCI",
		CreditHourLow:         &low,
		CreditHourHigh:        &high,
	}

	_, record, err := agg.Process(context.Background(), "202309", entry)
	require.NoError(t, err)
	assert.Equal(t, 3.0, record.CreditMin)
	assert.Equal(t, 4.0, record.CreditMax)
}
