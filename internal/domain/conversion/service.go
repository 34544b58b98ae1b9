package conversion

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fhirconv/fhirconv/internal/domain/detection"
	"github.com/fhirconv/fhirconv/internal/platform/assemble"
	"github.com/fhirconv/fhirconv/internal/platform/fhir"
	"github.com/fhirconv/fhirconv/internal/platform/parser"
	"github.com/fhirconv/fhirconv/internal/platform/tempfile"
	"github.com/fhirconv/fhirconv/internal/platform/worker"
)

// RequestNotifier advances a linked data request as its conversion
// progresses. Implementations apply transitions conditionally, so
// calls on requests in other states are harmless.
type RequestNotifier interface {
	MarkDataReady(ctx context.Context, requestID uuid.UUID) error
	MarkCompleted(ctx context.Context, requestID uuid.UUID) error
}

// RequestLinker resolves the data request an upload was attached to, so
// conversions started without an explicit request id still advance the
// right request.
type RequestLinker interface {
	RequestIDForFile(fileID uuid.UUID) *uuid.UUID
}

// requiredMappings are the canonical paths every conversion must map.
var requiredMappings = []string{
	parser.PathPatientIdentifier,
	parser.PathPatientGivenName,
	parser.PathPatientFamilyName,
}

// Service coordinates conversion jobs: synchronous validation and job
// creation on the request path, parsing and assembly on a supervised
// background worker.
type Service struct {
	jobs      Repository
	files     *tempfile.Manager
	assembler *assemble.Assembler
	detector  *detection.Detector
	requests  RequestNotifier // nil when data requests are not wired
	links     RequestLinker   // nil when uploads are not linked to requests
	workers   *worker.Supervisor
	logger    zerolog.Logger

	// mappingMu guards the per-job field mapping cache. Entries live
	// from job creation until the bundle download evicts them.
	mappingMu sync.RWMutex
	mappings  map[uuid.UUID][]parser.FieldMapping
}

func NewService(jobs Repository, files *tempfile.Manager, assembler *assemble.Assembler,
	detector *detection.Detector, requests RequestNotifier, workers *worker.Supervisor,
	logger zerolog.Logger) *Service {
	return &Service{
		jobs:      jobs,
		files:     files,
		assembler: assembler,
		detector:  detector,
		requests:  requests,
		workers:   workers,
		logger:    logger.With().Str("component", "conversion").Logger(),
		mappings:  map[uuid.UUID][]parser.FieldMapping{},
	}
}

// UseRequestLinks wires the upload-to-request association source.
func (s *Service) UseRequestLinks(links RequestLinker) {
	s.links = links
}

// StartConversion validates the request, creates a processing job, and
// hands the heavy work to a background worker. The returned status
// reports progress 0: the caller polls for the rest.
func (s *Service) StartConversion(ctx context.Context, userID uuid.UUID, fileID uuid.UUID,
	requestID *uuid.UUID, mappings []parser.FieldMapping) (*StatusResponse, error) {
	if !s.files.Exists(fileID) {
		return nil, fmt.Errorf("file not found or expired")
	}

	if existing, err := s.jobs.GetProcessingByFile(ctx, userID, fileID); err == nil && existing != nil {
		return nil, fmt.Errorf("conversion is already in progress for this file")
	}

	if err := validateMappings(mappings); err != nil {
		return nil, err
	}

	info, ok := s.files.Info(fileID)
	if !ok {
		return nil, fmt.Errorf("file not found or expired")
	}
	format, err := parser.FormatFromFilename(info.FileName)
	if err != nil {
		return nil, err
	}

	if requestID == nil && s.links != nil {
		requestID = s.links.RequestIDForFile(fileID)
	}

	stored := StoredFileName(fileID, info.FileName)
	job := &Job{
		ID:               uuid.New(),
		UserID:           userID,
		RequestID:        requestID,
		InputFormat:      format,
		Status:           StatusProcessing,
		OriginalFileName: &stored,
		FileSizeBytes:    &info.Size,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create conversion job: %w", err)
	}

	s.mappingMu.Lock()
	s.mappings[job.ID] = mappings
	s.mappingMu.Unlock()

	if err := s.workers.Start(job.ID, func(workerCtx context.Context) {
		s.process(workerCtx, job.ID, mappings)
	}); err != nil {
		return nil, err
	}

	s.logger.Info().Str("job_id", job.ID.String()).Str("file_id", fileID.String()).
		Str("format", string(format)).Msg("conversion job started")

	resp := job.ToStatusResponse()
	resp.Progress = 0
	return &resp, nil
}

func validateMappings(mappings []parser.FieldMapping) error {
	mapped := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		mapped[m.TargetPath] = true
	}
	for _, required := range requiredMappings {
		if !mapped[required] {
			return fmt.Errorf("required field mapping missing: %s", required)
		}
	}
	return nil
}

// process runs on the background worker. Failures are recorded on the
// job, never surfaced to the original caller. The final write is
// conditional on the job still being in processing state, so a
// concurrent user reset is not overwritten by a slow worker.
func (s *Service) process(ctx context.Context, jobID uuid.UUID, mappings []parser.FieldMapping) {
	started := time.Now()

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("job vanished before processing")
		return
	}

	_, patientCount, obsCount, convErr := s.buildBundle(ctx, job, mappings)

	elapsed := time.Since(started).Milliseconds()
	now := time.Now().UTC()
	job.ProcessingTimeMs = &elapsed

	if convErr != nil {
		if ctx.Err() != nil {
			// Cancelled mid-flight: a reset already wrote the terminal
			// state, or shutdown is in progress. Leave the record alone.
			s.logger.Info().Str("job_id", jobID.String()).Msg("conversion cancelled")
			return
		}
		msg := convErr.Error()
		job.Status = StatusFailed
		job.ErrorMessage = &msg
		if _, err := s.jobs.FinishIfProcessing(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("failed to persist job failure")
		}
		s.logger.Error().Err(convErr).Str("job_id", jobID.String()).Msg("conversion failed")
		return
	}

	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.ErrorMessage = nil
	job.PatientsCount = patientCount
	job.ObservationsCount = obsCount

	applied, err := s.jobs.FinishIfProcessing(ctx, job)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("failed to persist job completion")
		return
	}
	if !applied {
		s.logger.Warn().Str("job_id", jobID.String()).
			Msg("job no longer processing, worker result discarded")
		return
	}

	if job.RequestID != nil && s.requests != nil {
		if err := s.requests.MarkDataReady(ctx, *job.RequestID); err != nil {
			s.logger.Error().Err(err).Str("request_id", job.RequestID.String()).
				Msg("failed to advance linked data request")
		}
	}

	s.logger.Info().Str("job_id", jobID.String()).Int("patients", patientCount).
		Int("observations", obsCount).Int64("elapsed_ms", elapsed).Msg("conversion completed")
}

// buildBundle re-runs the full parse and assembly pipeline for a job.
// Used both by the worker and by bundle regeneration on download.
func (s *Service) buildBundle(ctx context.Context, job *Job, mappings []parser.FieldMapping) (*fhir.Bundle, int, int, error) {
	fileID, ok := job.FileID()
	if !ok {
		return nil, 0, 0, fmt.Errorf("job has no usable file reference")
	}
	path, ok := s.files.Path(fileID)
	if !ok {
		return nil, 0, 0, fmt.Errorf("uploaded file is no longer available")
	}

	p, err := parser.ForFormat(job.InputFormat)
	if err != nil {
		return nil, 0, 0, err
	}
	patient, observations, err := p.Parse(ctx, path, mappings, job.ID.String())
	if err != nil {
		return nil, 0, 0, err
	}

	fhirPatient := s.assembler.ConvertPatient(patient)
	fhirObservations := make([]*fhir.Observation, 0, len(observations))
	for _, obs := range observations {
		fhirObservations = append(fhirObservations, s.assembler.ConvertObservation(ctx, obs))
	}

	bundle, err := s.assembler.CreateBundle(job.ID.String(), fhirPatient, fhirObservations)
	if err != nil {
		return nil, 0, 0, err
	}
	return bundle, 1, len(fhirObservations), nil
}

// GetStatus returns the caller-facing status payload for a job.
func (s *Service) GetStatus(ctx context.Context, jobID uuid.UUID) (*StatusResponse, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("conversion job not found")
	}
	resp := job.ToStatusResponse()
	return &resp, nil
}

// GetByRequestID returns the status of the conversion linked to a data
// request.
func (s *Service) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*StatusResponse, error) {
	job, err := s.jobs.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("no conversion found for this request")
	}
	resp := job.ToStatusResponse()
	return &resp, nil
}

// History lists the caller's conversion jobs, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]StatusResponse, error) {
	jobs, err := s.jobs.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]StatusResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ToStatusResponse())
	}
	return out, nil
}

// GetPreview summarizes a completed conversion's bundle without the
// state transitions a download performs.
func (s *Service) GetPreview(ctx context.Context, jobID uuid.UUID) (*BundlePreview, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("conversion job not found")
	}
	if job.Status != StatusCompleted {
		return nil, fmt.Errorf("conversion not completed yet")
	}

	preview := &BundlePreview{
		JobID:            job.ID,
		BundleID:         "bundle-" + job.ID.String(),
		PatientCount:     job.PatientsCount,
		ObservationCount: job.ObservationsCount,
	}

	bundle, _, _, err := s.buildBundle(ctx, job, s.mappingsFor(job))
	if err != nil {
		// The summary counts are still valid even if the upload has
		// since expired.
		return preview, nil
	}
	for i, entry := range bundle.Entry {
		if i == 0 {
			preview.PatientSample = append(preview.PatientSample, entry.FullURL)
			continue
		}
		if len(preview.ObservationSample) < 3 {
			preview.ObservationSample = append(preview.ObservationSample, entry.FullURL)
		}
	}
	return preview, nil
}

// DownloadBundle regenerates the bundle from the stored upload, evicts
// the job's cached field mappings, and closes the linked data request.
func (s *Service) DownloadBundle(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("conversion job not found")
	}
	if job.Status != StatusCompleted {
		return nil, fmt.Errorf("conversion not completed yet")
	}

	bundle, _, _, err := s.buildBundle(ctx, job, s.mappingsFor(job))
	if err != nil {
		return nil, fmt.Errorf("generate bundle: %w", err)
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("serialize bundle: %w", err)
	}

	s.mappingMu.Lock()
	delete(s.mappings, job.ID)
	s.mappingMu.Unlock()

	if job.RequestID != nil && s.requests != nil {
		if err := s.requests.MarkCompleted(ctx, *job.RequestID); err != nil {
			s.logger.Error().Err(err).Str("request_id", job.RequestID.String()).
				Msg("failed to complete linked data request")
		}
	}

	s.logger.Info().Str("job_id", jobID.String()).Int("bytes", len(data)).Msg("bundle downloaded")
	return data, nil
}

// Reset aborts a job on behalf of its owner: the background worker is
// cancelled and the job is marked failed. Only the owning user may
// reset a job.
func (s *Service) Reset(ctx context.Context, jobID uuid.UUID, userID uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("conversion job not found")
	}
	if job.UserID != userID {
		return fmt.Errorf("not authorized to reset this job")
	}

	s.workers.Cancel(jobID)

	msg := "Job reset by user"
	job.Status = StatusFailed
	job.ErrorMessage = &msg
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist job reset: %w", err)
	}
	s.logger.Info().Str("job_id", jobID.String()).Str("user_id", userID.String()).
		Msg("conversion job reset by user")
	return nil
}

// mappingsFor returns the cached field mappings for a job, falling back
// to re-detecting them from the stored file's headers when the cache
// entry is gone (e.g. after a server restart).
func (s *Service) mappingsFor(job *Job) []parser.FieldMapping {
	s.mappingMu.RLock()
	cached, ok := s.mappings[job.ID]
	s.mappingMu.RUnlock()
	if ok && len(cached) > 0 {
		return cached
	}
	if job.InputFormat != parser.FormatCSV {
		return nil
	}

	fileID, ok := job.FileID()
	if !ok {
		return nil
	}
	path, ok := s.files.Path(fileID)
	if !ok {
		return nil
	}
	headers, err := readCSVHeaders(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID.String()).
			Msg("failed to re-read headers for mapping recovery")
		return nil
	}

	var mappings []parser.FieldMapping
	for _, f := range s.detector.Detect(headers) {
		mappings = append(mappings, parser.FieldMapping{
			SourceColumn: f.ColumnName,
			TargetPath:   f.SuggestedField,
		})
	}
	return mappings
}

func readCSVHeaders(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	headers := make([]string, len(record))
	for i, h := range record {
		headers[i] = strings.TrimSpace(h)
	}
	return headers, nil
}
