// Package conversion owns the conversion job lifecycle: a job is
// created against an uploaded file, processed by a detached background
// worker, and queried or reset by its owner. The produced FHIR bundle
// is regenerated from the stored file on download rather than persisted.
package conversion

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fhirconv/fhirconv/internal/platform/parser"
)

// Status is the closed set of job states.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Job maps to the conversion_job table. Created once per conversion
// attempt; mutated only by the background worker and an explicit
// user-initiated reset, never deleted.
type Job struct {
	ID                uuid.UUID     `db:"id" json:"jobId"`
	UserID            uuid.UUID     `db:"user_id" json:"userId"`
	RequestID         *uuid.UUID    `db:"request_id" json:"requestId,omitempty"`
	InputFormat       parser.Format `db:"input_format" json:"inputFormat"`
	Status            Status        `db:"status" json:"status"`
	ErrorMessage      *string       `db:"error_message" json:"errorMessage,omitempty"`
	PatientsCount     int           `db:"patients_count" json:"patientsCount"`
	ObservationsCount int           `db:"observations_count" json:"observationsCount"`
	CompletedAt       *time.Time    `db:"completed_at" json:"completedAt,omitempty"`
	OriginalFileName  *string       `db:"original_file_name" json:"originalFileName,omitempty"`
	FileSizeBytes     *int64        `db:"file_size_bytes" json:"fileSizeBytes,omitempty"`
	ProcessingTimeMs  *int64        `db:"processing_time_ms" json:"processingTimeMs,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
}

// StoredFileName builds the `<fileID>_<name>` form persisted on the job
// so the upload can be located again for reprocessing.
func StoredFileName(fileID uuid.UUID, originalName string) string {
	return fileID.String() + "_" + originalName
}

// FileID extracts the upload id from the stored file name.
func (j *Job) FileID() (uuid.UUID, bool) {
	if j.OriginalFileName == nil {
		return uuid.Nil, false
	}
	idPart, _, found := strings.Cut(*j.OriginalFileName, "_")
	if !found {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// UploadName returns the original file name without the id prefix.
func (j *Job) UploadName() string {
	if j.OriginalFileName == nil {
		return ""
	}
	_, name, found := strings.Cut(*j.OriginalFileName, "_")
	if !found {
		return *j.OriginalFileName
	}
	return name
}

// Progress maps the job state to the coarse indicator exposed to
// callers.
func (j *Job) Progress() int {
	switch j.Status {
	case StatusCompleted:
		return 100
	case StatusProcessing:
		return 50
	default:
		return 0
	}
}

// StatusResponse is the job status payload returned by the API.
type StatusResponse struct {
	JobID                 uuid.UUID  `json:"jobId"`
	Status                Status     `json:"status"`
	Progress              int        `json:"progress"`
	ErrorMessage          *string    `json:"errorMessage,omitempty"`
	PatientsProcessed     int        `json:"patientsProcessed"`
	ObservationsProcessed int        `json:"observationsProcessed"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	ProcessingTimeMs      *int64     `json:"processingTimeMs,omitempty"`
}

// ToStatusResponse builds the API payload for the job.
func (j *Job) ToStatusResponse() StatusResponse {
	return StatusResponse{
		JobID:                 j.ID,
		Status:                j.Status,
		Progress:              j.Progress(),
		ErrorMessage:          j.ErrorMessage,
		PatientsProcessed:     j.PatientsCount,
		ObservationsProcessed: j.ObservationsCount,
		CompletedAt:           j.CompletedAt,
		ProcessingTimeMs:      j.ProcessingTimeMs,
	}
}

// BundlePreview is the lightweight summary of a completed conversion's
// output shown before download.
type BundlePreview struct {
	JobID            uuid.UUID `json:"jobId"`
	BundleID         string    `json:"bundleId"`
	PatientCount     int       `json:"patientCount"`
	ObservationCount int       `json:"observationCount"`
	PatientSample    []string  `json:"patientSample"`
	ObservationSample []string `json:"observationSample"`
}
