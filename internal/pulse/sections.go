package pulse

import "fmt"

// Section names a group of pulse fields scored together.
type Section string

const (
	SectionCategorize  Section = "Categorize"
	SectionInvestigate Section = "Investigate"
	SectionResolution  Section = "Resolution"
)

// sectionFields lists the fields of each section in display order.
var sectionFields = map[Section][]string{
	SectionCategorize:  {FieldSymptom, FieldEnvironment, FieldStepsToReproduce, FieldBusinessImpact, FieldCustomerContacts},
	SectionInvestigate: {FieldDataCollected, FieldResearch, FieldResearchInternal},
	SectionResolution:  {FieldCause, FieldSolution, FieldSeeAlso, FieldInternalMemoHTML},
}

// Level is the display state of a section score.
type Level string

const (
	LevelComplete Level = "complete"
	LevelPartial  Level = "partial"
	LevelEmpty    Level = "empty"
)

// SectionResult is the outcome of scoring one section.
type SectionResult struct {
	Section  Section `json:"section"`
	Count    int     `json:"count"`
	Max      int     `json:"max"`
	Complete bool    `json:"complete"`

	// Degraded is true when a field was missing and the section scored 0.
	Degraded bool `json:"degraded,omitempty"`

	Err error `json:"-"`
}

// Level maps the count to its display state.
func (r SectionResult) Level() Level {
	switch {
	case r.Max > 0 && r.Count == r.Max:
		return LevelComplete
	case r.Count > 0:
		return LevelPartial
	default:
		return LevelEmpty
	}
}

// countMeaningful counts meaningful fields. Any absent field fails the
// whole section, matching how the overlay has always scored records.
func countMeaningful(r *Record, fields []string) (int, error) {
	if r == nil {
		return 0, ErrFieldAbsent
	}
	count := 0
	for _, name := range fields {
		ok, err := Meaningful(r.Field(name))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func scoreSection(r *Record, s Section) (SectionResult, int) {
	fields := sectionFields[s]
	result := SectionResult{Section: s, Max: len(fields)}
	count, err := countMeaningful(r, fields)
	if err != nil {
		result.Err = err
		result.Degraded = true
		return result, 0
	}
	result.Count = count
	return result, count
}

// ScoreCategorize scores symptom, environment, steps to reproduce, business
// impact and customer contacts. Symptom alone decides completeness.
func ScoreCategorize(r *Record) SectionResult {
	result, _ := scoreSection(r, SectionCategorize)
	if result.Err != nil {
		return result
	}
	symptom, _ := Meaningful(r.Symptom)
	result.Complete = symptom
	return result
}

// ScoreInvestigate scores data collected, research and internal research.
// Any one meaningful field completes the section.
func ScoreInvestigate(r *Record) SectionResult {
	result, count := scoreSection(r, SectionInvestigate)
	result.Complete = result.Err == nil && count > 0
	return result
}

// ScoreResolution scores cause, solution, see also and the internal memo.
// The section is informational; Complete only reports a full score.
func ScoreResolution(r *Record) SectionResult {
	result, count := scoreSection(r, SectionResolution)
	result.Complete = result.Err == nil && count == result.Max
	return result
}
