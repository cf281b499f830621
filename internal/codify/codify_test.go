package codify

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/Project-CARPI/sis-scraper/internal/dictionary"
	"github.com/Project-CARPI/sis-scraper/internal/model"
)

func newDict() *dictionary.CodeDictionaries {
	d := dictionary.New(zerolog.Nop())
	d.UpsertSubject("CSCI", "Computer Science")
	d.UpsertSubject("MATH", "Mathematics")
	d.UpsertRestriction(model.RestrictionLevel, "GR", "Graduate")
	return d
}

func TestCodifyAttributes_RewritesToTrailingCode(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	out := c.codifyAttributes("202309", "12345", []string{"Writing Intensive  WI"})
	assert.Equal(t, []string{"WI"}, out)
}

func TestCodifyAttributes_UnexpectedFormatPassesThrough(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	out := c.codifyAttributes("202309", "12345", []string{"NoSpaces"})
	assert.Equal(t, []string{"NoSpaces"}, out)
}

func TestCodifyRestrictions_RewritesCodeAndDropsSpecialApproval(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	restrictions := map[string][]string{
		"level":            {"Graduate (GR)"},
		"special_approval": {"Special permission of instructor"},
	}

	out := c.codifyRestrictions(restrictions)

	assert.Equal(t, []string{"GR"}, out["level"])
	_, hasSpecialApproval := out["special_approval"]
	assert.False(t, hasSpecialApproval)
}

func TestCodifyRestrictions_NoParenPassesThrough(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	out := c.codifyRestrictions(map[string][]string{"major": {"UnparenthesizedName"}})
	assert.Equal(t, []string{"UnparenthesizedName"}, out["major"])
}

func TestCodifyCourseCodes_RewritesKnownSubjectName(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	out := c.codifyCourseCodes("202309", "12345", []string{"Computer Science 1200"})
	assert.Equal(t, []string{"CSCI 1200"}, out)
}

func TestCodifyCourseCodes_UnknownSubjectNamePassesThrough(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	out := c.codifyCourseCodes("202309", "12345", []string{"Underwater Basket Weaving 1000"})
	assert.Equal(t, []string{"Underwater Basket Weaving 1000"}, out)
}

func TestCodifyCourseCodes_NoTrailingNumberPassesThrough(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	out := c.codifyCourseCodes("202309", "12345", []string{"not a course code"})
	assert.Equal(t, []string{"not a course code"}, out)
}

func TestGenerateRCSID_BasicCase(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	id := c.generateRCSID("Smith, John")
	assert.Equal(t, "smithj", id)
}

func TestGenerateRCSID_DisambiguatesOnCollision(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	c.instructors["smithj"] = "Smith, John"

	id := c.generateRCSID("Smith, Jane")
	assert.Equal(t, "smithj1", id)
}

func TestGenerateRCSID_ShortLastName(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	id := c.generateRCSID("Wu, Li")
	assert.Equal(t, "wul", id)
}

func TestGenerateRCSID_StripsNonAlphabeticCharacters(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	id := c.generateRCSID("O'Brien-Smith, Ann-Marie")
	assert.Equal(t, "obriea", id)
}

func TestGenerateRCSID_UnexpectedFormatFallsBack(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	id := c.generateRCSID("NoComma")
	assert.Equal(t, "nocomma", id)
}

func TestCodifyInstructor_SynthesizesUnknownRCSID(t *testing.T) {
	dict := newDict()
	c := New(dict, zerolog.Nop())

	instructor := model.Instructor{Identifier: model.UnknownRCSID, DisplayName: "Doe, Jane"}
	c.codifyInstructor(&instructor)

	assert.Equal(t, "doej", instructor.Identifier)
	assert.Equal(t, "Doe, Jane", dict.Generated()["doej"])
}

func TestCodifyInstructor_LeavesKnownIdentifierAlone(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	instructor := model.Instructor{Identifier: "doej", DisplayName: "Doe, Jane"}
	c.codifyInstructor(&instructor)
	assert.Equal(t, "doej", instructor.Identifier)
}

func TestCodifySnapshot_RewritesNestedRecordInPlace(t *testing.T) {
	c := New(newDict(), zerolog.Nop())
	snapshot := model.TermSnapshot{
		"CSCI": model.SubjectSnapshot{
			SubjectName: "Computer Science",
			Courses: map[string][]model.ClassRecord{
				"1200": {
					{
						CRN:          "10001",
						Attributes:   []string{"Writing Intensive  WI"},
						Restrictions: map[string][]string{"level": {"Graduate (GR)"}},
						Faculty:      []model.Instructor{{Identifier: model.UnknownRCSID, DisplayName: "Doe, Jane"}},
					},
				},
			},
		},
	}

	out := c.CodifySnapshot("202309", snapshot)

	record := out["CSCI"].Courses["1200"][0]
	assert.Equal(t, []string{"WI"}, record.Attributes)
	assert.Equal(t, []string{"GR"}, record.Restrictions["level"])
	assert.Equal(t, "doej", record.Faculty[0].Identifier)
}
