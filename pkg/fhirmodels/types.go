package fhirmodels

// Common FHIR value set constants used across the application.

// Canonical terminology system URIs.
const (
	SystemLOINC            = "http://loinc.org"
	SystemUCUM             = "http://unitsofmeasure.org"
	SystemDataAbsentReason = "http://terminology.hl7.org/CodeSystem/data-absent-reason"
	SystemObsCategory      = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemHospitalMRN      = "http://hospital.org/patient-id"
)

// AdministrativeGender codes per FHIR R4.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// ObservationStatus values per FHIR R4.
const (
	ObsStatusRegistered  = "registered"
	ObsStatusPreliminary = "preliminary"
	ObsStatusFinal       = "final"
	ObsStatusAmended     = "amended"
	ObsStatusCancelled   = "cancelled"
)

// ObservationCategory codes.
const (
	ObsCategoryVitalSigns    = "vital-signs"
	ObsCategoryLaboratory    = "laboratory"
	ObsCategorySocialHistory = "social-history"
	ObsCategorySurvey        = "survey"
	ObsCategoryExam          = "exam"
)

// Bundle types used by the converter.
const (
	BundleTypeCollection = "collection"
)
