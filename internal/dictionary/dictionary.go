// Package dictionary implements the process-wide code-dictionary
// accumulator: four maps (subjects, attributes, restrictions, instructors)
// merged with last-write-wins semantics and conflict logging, as spec.md §9
// recommends ("funnel all updates through a single accumulator object").
package dictionary

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Project-CARPI/sis-scraper/internal/metrics"
	"github.com/Project-CARPI/sis-scraper/internal/model"
)

// CodeDictionaries is the process-wide shared accumulator. Each of its four
// maps is guarded by its own mutex: this module runs on goroutines, which
// are preemptively scheduled, so the single-threaded-event-loop assumption
// the original source relied on does not hold here (spec.md §5).
type CodeDictionaries struct {
	log zerolog.Logger

	subjectsMu sync.Mutex
	subjects   map[string]string

	attributesMu sync.Mutex
	attributes   map[string]string

	restrictionsMu sync.Mutex
	restrictions   map[model.RestrictionType]map[string]string

	instructorsMu sync.Mutex
	instructors   map[string]string

	generatedMu sync.Mutex
	generated   map[string]string
}

// New creates an empty accumulator.
func New(log zerolog.Logger) *CodeDictionaries {
	return &CodeDictionaries{
		log:          log,
		subjects:     make(map[string]string),
		attributes:   make(map[string]string),
		restrictions: make(map[model.RestrictionType]map[string]string),
		instructors:  make(map[string]string),
		generated:    make(map[string]string),
	}
}

// UpsertSubject records subject_code -> description, logging a warning if an
// existing entry's value differs from the incoming one.
func (d *CodeDictionaries) UpsertSubject(code, description string) {
	d.subjectsMu.Lock()
	defer d.subjectsMu.Unlock()
	if existing, ok := d.subjects[code]; ok && existing != description {
		d.log.Warn().Str("code", code).Str("existing", existing).Str("incoming", description).
			Msg("subject dictionary conflict, last write wins")
		metrics.DictionaryConflictsTotal.WithLabelValues("subject").Inc()
	}
	d.subjects[code] = description
}

// UpsertAttribute records attribute code -> name.
func (d *CodeDictionaries) UpsertAttribute(code, name string) {
	d.attributesMu.Lock()
	defer d.attributesMu.Unlock()
	if existing, ok := d.attributes[code]; ok && existing != name {
		d.log.Warn().Str("code", code).Str("existing", existing).Str("incoming", name).
			Msg("attribute dictionary conflict, last write wins")
		metrics.DictionaryConflictsTotal.WithLabelValues("attribute").Inc()
	}
	d.attributes[code] = name
}

// UpsertRestriction records (type, code) -> name.
func (d *CodeDictionaries) UpsertRestriction(rtype model.RestrictionType, code, name string) {
	d.restrictionsMu.Lock()
	defer d.restrictionsMu.Unlock()
	byCode, ok := d.restrictions[rtype]
	if !ok {
		byCode = make(map[string]string)
		d.restrictions[rtype] = byCode
	}
	if existing, ok := byCode[code]; ok && existing != name {
		d.log.Warn().Str("type", string(rtype)).Str("code", code).Str("existing", existing).
			Str("incoming", name).Msg("restriction dictionary conflict, last write wins")
		metrics.DictionaryConflictsTotal.WithLabelValues("restriction").Inc()
	}
	byCode[code] = name
}

// UpsertInstructor records identifier -> display name.
func (d *CodeDictionaries) UpsertInstructor(identifier, displayName string) {
	d.instructorsMu.Lock()
	defer d.instructorsMu.Unlock()
	if existing, ok := d.instructors[identifier]; ok && existing != displayName {
		d.log.Warn().Str("identifier", identifier).Str("existing", existing).
			Str("incoming", displayName).Msg("instructor dictionary conflict, last write wins")
		metrics.DictionaryConflictsTotal.WithLabelValues("instructor").Inc()
	}
	d.instructors[identifier] = displayName
}

// RecordGenerated records a synthesized RCSID produced by the codifier, kept
// in a separate dictionary per spec.md §4.7.
func (d *CodeDictionaries) RecordGenerated(identifier, displayName string) {
	d.generatedMu.Lock()
	defer d.generatedMu.Unlock()
	d.generated[identifier] = displayName
}

// Subjects returns a snapshot copy of the subject dictionary.
func (d *CodeDictionaries) Subjects() map[string]string {
	d.subjectsMu.Lock()
	defer d.subjectsMu.Unlock()
	return cloneStringMap(d.subjects)
}

// Attributes returns a snapshot copy of the attribute dictionary.
func (d *CodeDictionaries) Attributes() map[string]string {
	d.attributesMu.Lock()
	defer d.attributesMu.Unlock()
	return cloneStringMap(d.attributes)
}

// Restrictions returns a snapshot copy of the restriction dictionary.
func (d *CodeDictionaries) Restrictions() map[model.RestrictionType]map[string]string {
	d.restrictionsMu.Lock()
	defer d.restrictionsMu.Unlock()
	out := make(map[model.RestrictionType]map[string]string, len(d.restrictions))
	for t, byCode := range d.restrictions {
		out[t] = cloneStringMap(byCode)
	}
	return out
}

// Instructors returns a snapshot copy of the instructor dictionary.
func (d *CodeDictionaries) Instructors() map[string]string {
	d.instructorsMu.Lock()
	defer d.instructorsMu.Unlock()
	return cloneStringMap(d.instructors)
}

// Generated returns a snapshot copy of the synthesized-identifier dictionary.
func (d *CodeDictionaries) Generated() map[string]string {
	d.generatedMu.Lock()
	defer d.generatedMu.Unlock()
	return cloneStringMap(d.generated)
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LoadSubjects reads a previously-persisted subject dictionary file, if it
// exists. A missing file is not an error: the accumulator simply starts
// empty, matching the original's "dictionaries are loaded if present" rule
// (spec.md §3 Lifecycle).
func (d *CodeDictionaries) LoadSubjects(path string) error {
	return loadInto(path, &d.subjectsMu, &d.subjects)
}

// LoadAttributes reads a previously-persisted attribute dictionary file.
func (d *CodeDictionaries) LoadAttributes(path string) error {
	return loadInto(path, &d.attributesMu, &d.attributes)
}

// LoadInstructors reads a previously-persisted instructor dictionary file.
func (d *CodeDictionaries) LoadInstructors(path string) error {
	return loadInto(path, &d.instructorsMu, &d.instructors)
}

// LoadRestrictions reads a previously-persisted restriction dictionary file.
func (d *CodeDictionaries) LoadRestrictions(path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var decoded map[model.RestrictionType]map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	d.restrictionsMu.Lock()
	defer d.restrictionsMu.Unlock()
	for t, byCode := range decoded {
		if d.restrictions[t] == nil {
			d.restrictions[t] = make(map[string]string)
		}
		for code, name := range byCode {
			d.restrictions[t][code] = name
		}
	}
	return nil
}

func loadInto(path string, mu *sync.Mutex, target *map[string]string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var decoded map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	for k, v := range decoded {
		(*target)[k] = v
	}
	return nil
}

// SaveAll writes every dictionary (including the generated-identifier map)
// to its given file path as sorted-key, indented JSON (spec.md §6 Persisted
// layout).
func (d *CodeDictionaries) SaveAll(subjectPath, attributePath, restrictionPath, instructorPath, generatedPath string) error {
	if err := writeSorted(subjectPath, d.Subjects()); err != nil {
		return err
	}
	if err := writeSorted(attributePath, d.Attributes()); err != nil {
		return err
	}
	if err := writeJSON(restrictionPath, d.Restrictions()); err != nil {
		return err
	}
	if err := writeSorted(instructorPath, d.Instructors()); err != nil {
		return err
	}
	return writeSorted(generatedPath, d.Generated())
}

func writeSorted(path string, m map[string]string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]string, len(m))
	for _, k := range keys {
		ordered[k] = m[k]
	}
	return writeJSON(path, ordered)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
