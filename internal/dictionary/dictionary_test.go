package dictionary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-CARPI/sis-scraper/internal/model"
)

func TestUpsertSubject_LastWriteWins(t *testing.T) {
	d := New(zerolog.Nop())
	d.UpsertSubject("CSCI", "Computer Science")
	d.UpsertSubject("CSCI", "Comp. Sci.")

	assert.Equal(t, "Comp. Sci.", d.Subjects()["CSCI"])
}

func TestUpsertRestriction_GroupedByType(t *testing.T) {
	d := New(zerolog.Nop())
	d.UpsertRestriction(model.RestrictionLevel, "GR", "Graduate")
	d.UpsertRestriction(model.RestrictionLevel, "UG", "Undergraduate")
	d.UpsertRestriction(model.RestrictionMajor, "CSCI", "Computer Science")

	restrictions := d.Restrictions()
	assert.Equal(t, map[string]string{"GR": "Graduate", "UG": "Undergraduate"},
		restrictions[model.RestrictionLevel])
	assert.Equal(t, map[string]string{"CSCI": "Computer Science"},
		restrictions[model.RestrictionMajor])
}

func TestRecordGenerated_SeparateFromInstructors(t *testing.T) {
	d := New(zerolog.Nop())
	d.UpsertInstructor("jdoe", "Doe, Jane")
	d.RecordGenerated("smith1", "Smith, John")

	assert.Equal(t, map[string]string{"jdoe": "Doe, Jane"}, d.Instructors())
	assert.Equal(t, map[string]string{"smith1": "Smith, John"}, d.Generated())
}

func TestSnapshotsAreIndependentCopies(t *testing.T) {
	d := New(zerolog.Nop())
	d.UpsertSubject("CSCI", "Computer Science")

	snapshot := d.Subjects()
	snapshot["CSCI"] = "mutated"

	assert.Equal(t, "Computer Science", d.Subjects()["CSCI"])
}

func TestSaveAllAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	subjectPath := filepath.Join(dir, "subjects.json")
	attributePath := filepath.Join(dir, "attributes.json")
	restrictionPath := filepath.Join(dir, "restrictions.json")
	instructorPath := filepath.Join(dir, "instructors.json")
	generatedPath := filepath.Join(dir, "generated.json")

	d := New(zerolog.Nop())
	d.UpsertSubject("CSCI", "Computer Science")
	d.UpsertAttribute("WI", "Writing Intensive")
	d.UpsertRestriction(model.RestrictionLevel, "GR", "Graduate")
	d.UpsertInstructor("jdoe", "Doe, Jane")

	require.NoError(t, d.SaveAll(subjectPath, attributePath, restrictionPath, instructorPath, generatedPath))

	reloaded := New(zerolog.Nop())
	require.NoError(t, reloaded.LoadSubjects(subjectPath))
	require.NoError(t, reloaded.LoadAttributes(attributePath))
	require.NoError(t, reloaded.LoadRestrictions(restrictionPath))
	require.NoError(t, reloaded.LoadInstructors(instructorPath))

	assert.Equal(t, "Computer Science", reloaded.Subjects()["CSCI"])
	assert.Equal(t, "Writing Intensive", reloaded.Attributes()["WI"])
	assert.Equal(t, "Graduate", reloaded.Restrictions()[model.RestrictionLevel]["GR"])
	assert.Equal(t, "Doe, Jane", reloaded.Instructors()["jdoe"])
}

func TestLoadSubjects_MissingFileIsNotAnError(t *testing.T) {
	d := New(zerolog.Nop())
	err := d.LoadSubjects(filepath.Join(t.TempDir(), "does_not_exist.json"))
	require.NoError(t, err)
	assert.Empty(t, d.Subjects())
}

func TestSaveAll_WritesSortedKeys(t *testing.T) {
	dir := t.TempDir()
	subjectPath := filepath.Join(dir, "subjects.json")

	d := New(zerolog.Nop())
	d.UpsertSubject("MATH", "Mathematics")
	d.UpsertSubject("CSCI", "Computer Science")

	require.NoError(t, d.SaveAll(subjectPath,
		filepath.Join(dir, "a.json"), filepath.Join(dir, "r.json"),
		filepath.Join(dir, "i.json"), filepath.Join(dir, "g.json")))

	raw, err := os.ReadFile(subjectPath)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, map[string]string{"CSCI": "Computer Science", "MATH": "Mathematics"}, decoded)
}
