package parser

import (
	"context"
	"testing"
)

func labMappings() []FieldMapping {
	return []FieldMapping{
		{SourceColumn: "MRN", TargetPath: PathPatientIdentifier, Required: true},
		{SourceColumn: "First Name", TargetPath: PathPatientGivenName},
		{SourceColumn: "Last Name", TargetPath: PathPatientFamilyName},
		{SourceColumn: "DOB", TargetPath: PathPatientBirthDate},
		{SourceColumn: "Sex", TargetPath: PathPatientGender},
		{SourceColumn: "Test", TargetPath: PathObservationDisplay, Required: true},
		{SourceColumn: "Result", TargetPath: PathObservationValue},
		{SourceColumn: "Units", TargetPath: PathObservationUnit},
		{SourceColumn: "Collected", TargetPath: PathObservationEffective},
	}
}

func TestCSVParser_PatientFromFirstRow(t *testing.T) {
	content := "MRN,First Name,Last Name,DOB,Sex,Test,Result,Units,Collected\n" +
		"12345,Jane,Doe,1985-03-20,female,Hemoglobin,13.5,g/dL,2024-01-10\n" +
		"12345,Jane,Doe,1985-03-20,female,Glucose,ninety,mg/dL,2024-01-10\n"
	path := writeTempFile(t, "labs.csv", content)

	p := &CSVParser{}
	patient, observations, err := p.Parse(context.Background(), path, labMappings(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if patient.ID != "patient-12345" {
		t.Errorf("expected patient-12345, got %q", patient.ID)
	}
	if patient.GivenName != "Jane" || patient.FamilyName != "Doe" {
		t.Errorf("unexpected name: %q %q", patient.GivenName, patient.FamilyName)
	}
	if patient.Gender != "female" {
		t.Errorf("expected gender female, got %q", patient.Gender)
	}
	if patient.BirthDate == nil || patient.BirthDate.Year() != 1985 {
		t.Errorf("birth date not parsed: %v", patient.BirthDate)
	}

	if len(observations) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(observations))
	}
	hb := observations[0]
	if hb.Display != "Hemoglobin" {
		t.Errorf("expected Hemoglobin, got %q", hb.Display)
	}
	if hb.ValueQuantity == nil || *hb.ValueQuantity != 13.5 {
		t.Errorf("expected quantity 13.5, got %v", hb.ValueQuantity)
	}
	if hb.ValueUnit != "g/dL" {
		t.Errorf("expected unit g/dL, got %q", hb.ValueUnit)
	}
	if hb.PatientID != patient.ID {
		t.Errorf("observation not linked to patient: %q", hb.PatientID)
	}

	// Non-numeric result stays a string value.
	glucose := observations[1]
	if glucose.ValueQuantity != nil {
		t.Errorf("expected no quantity, got %v", *glucose.ValueQuantity)
	}
	if glucose.ValueString != "ninety" {
		t.Errorf("expected string value, got %q", glucose.ValueString)
	}
}

func TestCSVParser_HeaderOnly(t *testing.T) {
	path := writeTempFile(t, "empty.csv", "MRN,Test,Result\n")

	p := &CSVParser{}
	patient, observations, err := p.Parse(context.Background(), path, labMappings(), "job-2")
	if err != nil {
		t.Fatalf("header-only file should not error: %v", err)
	}
	if len(observations) != 0 {
		t.Errorf("expected 0 observations, got %d", len(observations))
	}
	if patient.ID != "patient-job-2" {
		t.Errorf("expected fallback patient id, got %q", patient.ID)
	}
}

func TestCSVParser_SkipsRowsWithoutMeasurement(t *testing.T) {
	content := "MRN,Test,Result\n" +
		"12345,Hemoglobin,13.5\n" +
		"12345,,\n" +
		"\n"
	path := writeTempFile(t, "gaps.csv", content)

	mappings := []FieldMapping{
		{SourceColumn: "MRN", TargetPath: PathPatientIdentifier},
		{SourceColumn: "Test", TargetPath: PathObservationDisplay},
		{SourceColumn: "Result", TargetPath: PathObservationValue},
	}

	p := &CSVParser{}
	_, observations, err := p.Parse(context.Background(), path, mappings, "job-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(observations) != 1 {
		t.Errorf("expected 1 observation, got %d", len(observations))
	}
}

func TestCSVParser_MissingIdentifierFallsBackToJobID(t *testing.T) {
	content := "Test,Result\nHemoglobin,13.5\n"
	path := writeTempFile(t, "noid.csv", content)

	mappings := []FieldMapping{
		{SourceColumn: "Test", TargetPath: PathObservationDisplay},
		{SourceColumn: "Result", TargetPath: PathObservationValue},
	}

	p := &CSVParser{}
	patient, _, err := p.Parse(context.Background(), path, mappings, "abc-def")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patient.ID != "patient-abc-def" {
		t.Errorf("expected patient-abc-def, got %q", patient.ID)
	}
}
