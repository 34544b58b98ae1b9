// Package parser turns uploaded healthcare files (CSV, nested JSON,
// C-CDA XML) into the canonical patient/observation model consumed by the
// FHIR assembler. Parsers are best-effort: missing demographics or
// vocabulary degrade to defaults instead of failing the whole file.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Format is the closed set of supported input formats.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatCCDA Format = "ccda"
)

// FormatFromFilename derives the input format from a file extension.
// Unsupported extensions are a validation error, rejected before any
// conversion job is created.
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xml":
		return FormatCCDA, nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", filepath.Ext(name))
	}
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	switch f {
	case FormatCSV, FormatJSON, FormatCCDA:
		return true
	default:
		return false
	}
}

// Parser extracts one canonical patient and its observations from a file.
type Parser interface {
	Parse(ctx context.Context, filePath string, mappings []FieldMapping, jobID string) (*Patient, []*Observation, error)
}

// ForFormat returns the parser for the given format. The switch is
// exhaustive over the Format constants; an unknown value can only come
// from corrupted persisted state.
func ForFormat(f Format) (Parser, error) {
	switch f {
	case FormatCSV:
		return &CSVParser{}, nil
	case FormatJSON:
		return &JSONParser{}, nil
	case FormatCCDA:
		return &CCDAParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported input format: %q", f)
	}
}

// Canonical target paths for field mappings.
const (
	PathPatientIdentifier    = "patient.identifier"
	PathPatientGivenName     = "patient.name.given"
	PathPatientFamilyName    = "patient.name.family"
	PathPatientBirthDate     = "patient.birthDate"
	PathPatientGender        = "patient.gender"
	PathPatientPhone         = "patient.telecom.phone"
	PathPatientEmail         = "patient.telecom.email"
	PathObservationCode      = "observation.code"
	PathObservationDisplay   = "observation.display"
	PathObservationValue     = "observation.valueQuantity.value"
	PathObservationUnit      = "observation.valueQuantity.unit"
	PathObservationEffective = "observation.effectiveDateTime"
)

// FieldMapping associates a source column or property with a canonical
// target path. At most one mapping may target a given path per parse
// call; parsers use first-match lookup.
type FieldMapping struct {
	SourceColumn string `json:"sourceColumn"`
	TargetPath   string `json:"targetPath"`
	Required     bool   `json:"required"`
}

// sourceFor returns the source column mapped to the given canonical path.
func sourceFor(mappings []FieldMapping, path string) (string, bool) {
	for _, m := range mappings {
		if m.TargetPath == path {
			return m.SourceColumn, true
		}
	}
	return "", false
}

// recordValue looks up the value for a canonical path in a parsed record.
// Blank values are treated as absent.
func recordValue(record map[string]string, mappings []FieldMapping, path string) (string, bool) {
	col, ok := sourceFor(mappings, path)
	if !ok {
		return "", false
	}
	v, ok := record[col]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// dateLayouts are the formats accepted for dates in delimited and JSON
// sources, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006/01/02",
}

// parseDate parses a source date string, trying each accepted layout.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// prefixPatientID applies the `patient-<raw>` id convention at most once.
func prefixPatientID(raw string) string {
	if strings.HasPrefix(raw, "patient-") {
		return raw
	}
	return "patient-" + raw
}
