package conversion

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fhirconv/fhirconv/internal/domain/detection"
	"github.com/fhirconv/fhirconv/internal/platform/assemble"
	"github.com/fhirconv/fhirconv/internal/platform/parser"
	"github.com/fhirconv/fhirconv/internal/platform/tempfile"
	"github.com/fhirconv/fhirconv/internal/platform/terminology"
	"github.com/fhirconv/fhirconv/internal/platform/worker"
)

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[uuid.UUID]*Job{}}
}

func (r *memJobRepo) Create(ctx context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.CreatedAt = time.Now().UTC()
	j.UpdatedAt = j.CreatedAt
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *memJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) GetProcessingByFile(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := fileID.String()
	for _, j := range r.jobs {
		if j.UserID == userID && j.Status == StatusProcessing &&
			j.OriginalFileName != nil && strings.HasPrefix(*j.OriginalFileName, prefix) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("job not found")
}

func (r *memJobRepo) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *Job
	for _, j := range r.jobs {
		if j.RequestID == nil || *j.RequestID != requestID {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("job not found")
	}
	cp := *latest
	return &cp, nil
}

func (r *memJobRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Job
	for _, j := range r.jobs {
		if j.UserID == userID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (r *memJobRepo) Update(ctx context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; !ok {
		return fmt.Errorf("job not found")
	}
	j.UpdatedAt = time.Now().UTC()
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *memJobRepo) FinishIfProcessing(ctx context.Context, j *Job) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[j.ID]
	if !ok || stored.Status != StatusProcessing {
		return false, nil
	}
	j.UpdatedAt = time.Now().UTC()
	cp := *j
	r.jobs[j.ID] = &cp
	return true, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	dataReady []uuid.UUID
	completed []uuid.UUID
}

func (n *recordingNotifier) MarkDataReady(ctx context.Context, requestID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dataReady = append(n.dataReady, requestID)
	return nil
}

func (n *recordingNotifier) MarkCompleted(ctx context.Context, requestID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, requestID)
	return nil
}

func (n *recordingNotifier) dataReadyCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.dataReady)
}

func (n *recordingNotifier) completedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.completed)
}

type testEnv struct {
	svc      *Service
	repo     *memJobRepo
	files    *tempfile.Manager
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	files, err := tempfile.NewManager(t.TempDir(), time.Hour, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	repo := newMemJobRepo()
	notifier := &recordingNotifier{}
	resolver := terminology.NewResolver(nil, zerolog.Nop())
	svc := NewService(repo, files, assemble.NewAssembler(resolver, zerolog.Nop()),
		detection.NewDetector(), notifier, worker.NewSupervisor(zerolog.Nop()), zerolog.Nop())
	return &testEnv{svc: svc, repo: repo, files: files, notifier: notifier}
}

func (e *testEnv) upload(t *testing.T, name, content string) uuid.UUID {
	t.Helper()
	fileID := uuid.New()
	path := e.files.Register(fileID, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return fileID
}

func (e *testEnv) waitForTerminal(t *testing.T, jobID uuid.UUID) *Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		j, err := e.repo.GetByID(context.Background(), jobID)
		if err == nil && j.Status != StatusProcessing {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

const sampleCSV = "patient_id,first_name,last_name,gender,test_name,result_value,unit\n" +
	"12345,Jane,Doe,F,Hemoglobin,14.1,g/dL\n" +
	"12345,Jane,Doe,F,Glucose,98,mg/dL\n"

func csvMappings() []parser.FieldMapping {
	return []parser.FieldMapping{
		{SourceColumn: "patient_id", TargetPath: parser.PathPatientIdentifier},
		{SourceColumn: "first_name", TargetPath: parser.PathPatientGivenName},
		{SourceColumn: "last_name", TargetPath: parser.PathPatientFamilyName},
		{SourceColumn: "gender", TargetPath: parser.PathPatientGender},
		{SourceColumn: "test_name", TargetPath: parser.PathObservationDisplay},
		{SourceColumn: "result_value", TargetPath: parser.PathObservationValue},
		{SourceColumn: "unit", TargetPath: parser.PathObservationUnit},
	}
}

func TestStartConversionRunsToCompletion(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	fileID := env.upload(t, "labs.csv", sampleCSV)

	resp, err := env.svc.StartConversion(context.Background(), userID, fileID, nil, csvMappings())
	if err != nil {
		t.Fatalf("StartConversion: %v", err)
	}
	if resp.Status != StatusProcessing {
		t.Fatalf("initial status = %s", resp.Status)
	}
	if resp.Progress != 0 {
		t.Fatalf("initial progress = %d, want 0", resp.Progress)
	}

	job := env.waitForTerminal(t, resp.JobID)
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s, error = %v", job.Status, job.ErrorMessage)
	}
	if job.PatientsCount != 1 || job.ObservationsCount != 2 {
		t.Fatalf("counts = %d/%d, want 1/2", job.PatientsCount, job.ObservationsCount)
	}
	if job.CompletedAt == nil || job.ProcessingTimeMs == nil {
		t.Fatal("completion metadata missing")
	}
	if env.notifier.dataReadyCount() != 0 {
		t.Fatal("unlinked job should not touch data requests")
	}
}

func TestStartConversionAdvancesLinkedRequest(t *testing.T) {
	env := newTestEnv(t)
	fileID := env.upload(t, "labs.csv", sampleCSV)
	requestID := uuid.New()

	resp, err := env.svc.StartConversion(context.Background(), uuid.New(), fileID, &requestID, csvMappings())
	if err != nil {
		t.Fatalf("StartConversion: %v", err)
	}
	env.waitForTerminal(t, resp.JobID)

	deadline := time.Now().Add(time.Second)
	for env.notifier.dataReadyCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if env.notifier.dataReadyCount() != 1 {
		t.Fatal("linked request was not marked data ready")
	}
}

func TestStartConversionRequiresMappings(t *testing.T) {
	env := newTestEnv(t)
	fileID := env.upload(t, "labs.csv", sampleCSV)

	partial := []parser.FieldMapping{
		{SourceColumn: "patient_id", TargetPath: parser.PathPatientIdentifier},
		{SourceColumn: "first_name", TargetPath: parser.PathPatientGivenName},
	}
	_, err := env.svc.StartConversion(context.Background(), uuid.New(), fileID, nil, partial)
	if err == nil || !strings.Contains(err.Error(), "required field mapping missing: "+parser.PathPatientFamilyName) {
		t.Fatalf("err = %v", err)
	}
}

func TestStartConversionRejectsUnknownFile(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.StartConversion(context.Background(), uuid.New(), uuid.New(), nil, csvMappings())
	if err == nil || !strings.Contains(err.Error(), "file not found or expired") {
		t.Fatalf("err = %v", err)
	}
}

func TestStartConversionBlocksDuplicate(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	fileID := env.upload(t, "labs.csv", sampleCSV)

	stored := StoredFileName(fileID, "labs.csv")
	existing := &Job{
		ID:               uuid.New(),
		UserID:           userID,
		InputFormat:      parser.FormatCSV,
		Status:           StatusProcessing,
		OriginalFileName: &stored,
	}
	if err := env.repo.Create(context.Background(), existing); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	_, err := env.svc.StartConversion(context.Background(), userID, fileID, nil, csvMappings())
	if err == nil || !strings.Contains(err.Error(), "already in progress") {
		t.Fatalf("err = %v", err)
	}
}

func TestProcessFailureRecordsError(t *testing.T) {
	env := newTestEnv(t)
	fileID := env.upload(t, "broken.json", "{not json")

	resp, err := env.svc.StartConversion(context.Background(), uuid.New(), fileID, nil, csvMappings())
	if err != nil {
		t.Fatalf("StartConversion: %v", err)
	}
	job := env.waitForTerminal(t, resp.JobID)
	if job.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage == "" {
		t.Fatal("failure should record an error message")
	}
}

func TestDownloadBundle(t *testing.T) {
	env := newTestEnv(t)
	fileID := env.upload(t, "labs.csv", sampleCSV)
	requestID := uuid.New()

	resp, err := env.svc.StartConversion(context.Background(), uuid.New(), fileID, &requestID, csvMappings())
	if err != nil {
		t.Fatalf("StartConversion: %v", err)
	}
	env.waitForTerminal(t, resp.JobID)

	data, err := env.svc.DownloadBundle(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("DownloadBundle: %v", err)
	}

	var bundle struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
		Entry        []struct {
			FullURL string `json:"fullUrl"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		t.Fatalf("bundle is not valid json: %v", err)
	}
	if bundle.ResourceType != "Bundle" {
		t.Fatalf("resourceType = %q", bundle.ResourceType)
	}
	if bundle.ID != "bundle-"+resp.JobID.String() {
		t.Fatalf("bundle id = %q", bundle.ID)
	}
	if len(bundle.Entry) != 3 {
		t.Fatalf("entries = %d, want patient + 2 observations", len(bundle.Entry))
	}

	env.svc.mappingMu.RLock()
	_, cached := env.svc.mappings[resp.JobID]
	env.svc.mappingMu.RUnlock()
	if cached {
		t.Fatal("download should evict the mapping cache entry")
	}
	if env.notifier.completedCount() != 1 {
		t.Fatal("linked request was not completed on download")
	}
}

func TestDownloadRegeneratesWithoutCachedMappings(t *testing.T) {
	env := newTestEnv(t)
	fileID := env.upload(t, "labs.csv", sampleCSV)

	resp, err := env.svc.StartConversion(context.Background(), uuid.New(), fileID, nil, csvMappings())
	if err != nil {
		t.Fatalf("StartConversion: %v", err)
	}
	env.waitForTerminal(t, resp.JobID)

	// First download evicts the cache. The second one has to rebuild
	// mappings from the file's own headers.
	if _, err := env.svc.DownloadBundle(context.Background(), resp.JobID); err != nil {
		t.Fatalf("first download: %v", err)
	}
	data, err := env.svc.DownloadBundle(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if !strings.Contains(string(data), `"resourceType":"Bundle"`) &&
		!strings.Contains(string(data), `"resourceType": "Bundle"`) {
		t.Fatal("regenerated payload is not a bundle")
	}
}

func TestDownloadRequiresCompletion(t *testing.T) {
	env := newTestEnv(t)
	job := &Job{ID: uuid.New(), UserID: uuid.New(), InputFormat: parser.FormatCSV, Status: StatusProcessing}
	if err := env.repo.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	_, err := env.svc.DownloadBundle(context.Background(), job.ID)
	if err == nil || !strings.Contains(err.Error(), "not completed") {
		t.Fatalf("err = %v", err)
	}
}

func TestGetPreview(t *testing.T) {
	env := newTestEnv(t)
	fileID := env.upload(t, "labs.csv", sampleCSV)

	resp, err := env.svc.StartConversion(context.Background(), uuid.New(), fileID, nil, csvMappings())
	if err != nil {
		t.Fatalf("StartConversion: %v", err)
	}
	env.waitForTerminal(t, resp.JobID)

	preview, err := env.svc.GetPreview(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("GetPreview: %v", err)
	}
	if preview.BundleID != "bundle-"+resp.JobID.String() {
		t.Fatalf("bundle id = %q", preview.BundleID)
	}
	if preview.PatientCount != 1 || preview.ObservationCount != 2 {
		t.Fatalf("counts = %d/%d", preview.PatientCount, preview.ObservationCount)
	}
	if len(preview.PatientSample) != 1 {
		t.Fatalf("patient sample = %v", preview.PatientSample)
	}
	if len(preview.ObservationSample) != 2 {
		t.Fatalf("observation sample = %v", preview.ObservationSample)
	}
}

func TestGetPreviewRequiresCompletion(t *testing.T) {
	env := newTestEnv(t)
	job := &Job{ID: uuid.New(), UserID: uuid.New(), InputFormat: parser.FormatCSV, Status: StatusFailed}
	if err := env.repo.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	_, err := env.svc.GetPreview(context.Background(), job.ID)
	if err == nil || !strings.Contains(err.Error(), "not completed") {
		t.Fatalf("err = %v", err)
	}
}

func TestResetIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	job := &Job{ID: uuid.New(), UserID: owner, InputFormat: parser.FormatCSV, Status: StatusProcessing}
	if err := env.repo.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	if err := env.svc.Reset(context.Background(), job.ID, uuid.New()); err == nil ||
		!strings.Contains(err.Error(), "not authorized") {
		t.Fatalf("stranger reset err = %v", err)
	}

	if err := env.svc.Reset(context.Background(), job.ID, owner); err != nil {
		t.Fatalf("owner reset: %v", err)
	}
	got, err := env.repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status after reset = %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "Job reset by user" {
		t.Fatalf("error message = %v", got.ErrorMessage)
	}
}

func TestResetWinsOverSlowWorker(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	fileID := env.upload(t, "labs.csv", sampleCSV)
	stored := StoredFileName(fileID, "labs.csv")
	job := &Job{
		ID:               uuid.New(),
		UserID:           owner,
		InputFormat:      parser.FormatCSV,
		Status:           StatusProcessing,
		OriginalFileName: &stored,
	}
	if err := env.repo.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	if err := env.svc.Reset(context.Background(), job.ID, owner); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	// The worker's late completion write must not overwrite the reset.
	env.svc.process(context.Background(), job.ID, csvMappings())

	got, err := env.repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, reset should win", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "Job reset by user" {
		t.Fatalf("error message = %v", got.ErrorMessage)
	}
}

func TestHistoryAndByRequest(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	requestID := uuid.New()

	first := &Job{ID: uuid.New(), UserID: userID, InputFormat: parser.FormatCSV, Status: StatusCompleted}
	linked := &Job{ID: uuid.New(), UserID: userID, RequestID: &requestID, InputFormat: parser.FormatJSON, Status: StatusFailed}
	for _, j := range []*Job{first, linked} {
		if err := env.repo.Create(context.Background(), j); err != nil {
			t.Fatalf("seed job: %v", err)
		}
	}

	history, err := env.svc.History(context.Background(), userID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history size = %d", len(history))
	}

	byReq, err := env.svc.GetByRequestID(context.Background(), requestID)
	if err != nil {
		t.Fatalf("GetByRequestID: %v", err)
	}
	if byReq.JobID != linked.ID {
		t.Fatalf("by-request job = %s, want %s", byReq.JobID, linked.ID)
	}

	if _, err := env.svc.GetByRequestID(context.Background(), uuid.New()); err == nil {
		t.Fatal("unknown request should not resolve to a job")
	}
}

func TestGetStatusUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.GetStatus(context.Background(), uuid.New()); err == nil {
		t.Fatal("unknown job should error")
	}
}
