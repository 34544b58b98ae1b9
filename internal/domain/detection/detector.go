// Package detection suggests canonical field paths for raw column and
// property names found in uploaded files, so callers can prefill the
// mapping step instead of hand-assigning every column.
package detection

import (
	"strings"

	"github.com/fhirconv/fhirconv/internal/platform/parser"
)

// DetectedField is one suggested mapping for a raw column name.
type DetectedField struct {
	ColumnName     string   `json:"columnName"`
	SuggestedField string   `json:"suggestedFhirField"`
	Confidence     float64  `json:"confidenceScore"`
	SampleValues   []string `json:"sampleValues"`
}

// fieldSynonyms lists known source-column spellings per canonical path.
// Order matters: paths are scanned in this order, so on a confidence tie
// the earlier path wins and results stay deterministic.
var fieldSynonyms = []struct {
	path     string
	synonyms []string
}{
	{parser.PathPatientIdentifier, []string{"patient_id", "patientid", "id", "patient_number", "mrn", "medical_record_number"}},
	{parser.PathPatientGivenName, []string{"first_name", "firstname", "given_name", "fname", "given"}},
	{parser.PathPatientFamilyName, []string{"last_name", "lastname", "family_name", "lname", "surname", "family"}},
	{parser.PathPatientBirthDate, []string{"dob", "date_of_birth", "dateofbirth", "birth_date", "birthdate"}},
	{parser.PathPatientGender, []string{"gender", "sex"}},
	{parser.PathObservationCode, []string{"test_name", "testname", "lab_test", "test_type", "observation_code", "code"}},
	{parser.PathObservationValue, []string{"result", "value", "test_result", "lab_value", "result_value", "numeric_value"}},
	{parser.PathObservationUnit, []string{"unit", "units", "measurement_unit", "uom"}},
	{parser.PathObservationEffective, []string{"test_date", "collection_date", "date", "observation_date", "effective_date"}},
}

// minConfidence is the acceptance threshold for a suggested mapping.
const minConfidence = 0.7

// Detector matches raw column names against the synonym table. It holds
// no state and is safe for concurrent use.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns a suggestion for every column that matches a canonical
// path with sufficient confidence. Unmatched columns are omitted.
func (d *Detector) Detect(columnNames []string) []DetectedField {
	detected := make([]DetectedField, 0, len(columnNames))
	for _, name := range columnNames {
		if f, ok := d.detectOne(name); ok {
			detected = append(detected, f)
		}
	}
	return detected
}

func (d *Detector) detectOne(columnName string) (DetectedField, bool) {
	normalized := strings.ToLower(strings.TrimSpace(columnName))
	if normalized == "" {
		return DetectedField{}, false
	}

	var (
		bestPath  string
		bestScore float64
	)
	for _, entry := range fieldSynonyms {
		for _, syn := range entry.synonyms {
			if score := similarity(normalized, syn); score > bestScore {
				bestPath = entry.path
				bestScore = score
			}
		}
	}

	if bestScore < minConfidence {
		return DetectedField{}, false
	}
	return DetectedField{
		ColumnName:     columnName,
		SuggestedField: bestPath,
		Confidence:     bestScore,
		SampleValues:   []string{},
	}, true
}

// AvailableFields lists every canonical path the detector knows about.
func (d *Detector) AvailableFields() []string {
	fields := make([]string, 0, len(fieldSynonyms))
	for _, entry := range fieldSynonyms {
		fields = append(fields, entry.path)
	}
	return fields
}

// RequiredFields lists the canonical paths a conversion cannot run
// without.
func (d *Detector) RequiredFields() []string {
	return []string{
		parser.PathPatientIdentifier,
		parser.PathPatientGivenName,
		parser.PathPatientFamilyName,
		parser.PathObservationCode,
		parser.PathObservationValue,
	}
}

// similarity scores how closely a normalized column name matches a
// synonym: 1.0 for an exact match, 0.8 for containment either way,
// otherwise normalized Levenshtein similarity.
func similarity(source, target string) float64 {
	if source == target {
		return 1.0
	}
	if strings.Contains(source, target) || strings.Contains(target, source) {
		return 0.8
	}
	maxLen := len(source)
	if len(target) > maxLen {
		maxLen = len(target)
	}
	if maxLen == 0 {
		return 0
	}
	return 1.0 - float64(levenshtein(source, target))/float64(maxLen)
}

// levenshtein computes edit distance with a rolling two-row matrix.
func levenshtein(source, target string) int {
	if source == "" {
		return len(target)
	}
	if target == "" {
		return len(source)
	}

	prev := make([]int, len(target)+1)
	curr := make([]int, len(target)+1)
	for j := 0; j <= len(target); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(source); i++ {
		curr[0] = i
		for j := 1; j <= len(target); j++ {
			cost := 1
			if source[i-1] == target[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(target)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
