// Package files handles uploads into temporary storage. Uploads are the
// entry point of the conversion pipeline: a caller stores a file, maps
// its fields, and then starts a conversion against the returned file id.
package files

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fhirconv/fhirconv/internal/platform/parser"
	"github.com/fhirconv/fhirconv/internal/platform/tempfile"
)

// previewRows caps how many data rows a preview returns.
const previewRows = 5

type UploadResponse struct {
	FileID           uuid.UUID     `json:"fileId"`
	OriginalFileName string        `json:"originalFileName"`
	FileSizeBytes    int64         `json:"fileSizeBytes"`
	DetectedFormat   parser.Format `json:"detectedFormat"`
	UploadedAt       time.Time     `json:"uploadedAt"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	RequestID        *uuid.UUID    `json:"requestId,omitempty"`
}

type PreviewResponse struct {
	FileID           uuid.UUID           `json:"fileId"`
	OriginalFileName string              `json:"originalFileName"`
	Format           parser.Format       `json:"format"`
	PreviewData      []map[string]string `json:"previewData"`
}

// Service stores uploads and remembers which data request, if any, an
// upload was attached to.
type Service struct {
	files     *tempfile.Manager
	retention time.Duration
	logger    zerolog.Logger

	mu           sync.Mutex
	requestLinks map[uuid.UUID]*uuid.UUID
}

func NewService(files *tempfile.Manager, retention time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		files:        files,
		retention:    retention,
		logger:       logger.With().Str("component", "files").Logger(),
		requestLinks: map[uuid.UUID]*uuid.UUID{},
	}
}

// Upload validates and stores an incoming file. The content reader is
// consumed fully; size must match the declared upload size.
func (s *Service) Upload(name string, size int64, content io.Reader, requestID *uuid.UUID) (*UploadResponse, error) {
	if err := tempfile.ValidateUpload(name, size); err != nil {
		return nil, err
	}
	format, err := parser.FormatFromFilename(name)
	if err != nil {
		return nil, err
	}

	fileID := uuid.New()
	path := s.files.Register(fileID, name)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	written, err := io.Copy(dst, io.LimitReader(content, tempfile.MaxFileSizeBytes+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.files.Delete(fileID)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if written > tempfile.MaxFileSizeBytes {
		s.files.Delete(fileID)
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", int64(tempfile.MaxFileSizeBytes))
	}

	if requestID != nil {
		s.mu.Lock()
		s.requestLinks[fileID] = requestID
		s.mu.Unlock()
	}

	now := time.Now().UTC()
	s.logger.Info().Str("file_id", fileID.String()).Str("file_name", name).
		Int64("bytes", written).Str("format", string(format)).Msg("file uploaded")

	return &UploadResponse{
		FileID:           fileID,
		OriginalFileName: name,
		FileSizeBytes:    written,
		DetectedFormat:   format,
		UploadedAt:       now,
		ExpiresAt:        now.Add(s.retention),
		RequestID:        requestID,
	}, nil
}

// RequestIDForFile implements conversion.RequestLinker.
func (s *Service) RequestIDForFile(fileID uuid.UUID) *uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestLinks[fileID]
}

// Delete removes a stored upload and its request link.
func (s *Service) Delete(fileID uuid.UUID) {
	s.files.Delete(fileID)
	s.mu.Lock()
	delete(s.requestLinks, fileID)
	s.mu.Unlock()
}

// Preview returns the upload's metadata plus, for CSV files, the first
// few data rows keyed by column name.
func (s *Service) Preview(fileID uuid.UUID) (*PreviewResponse, error) {
	info, ok := s.files.Info(fileID)
	if !ok {
		return nil, fmt.Errorf("file not found or expired")
	}
	format, err := parser.FormatFromFilename(info.FileName)
	if err != nil {
		return nil, err
	}

	resp := &PreviewResponse{
		FileID:           fileID,
		OriginalFileName: info.FileName,
		Format:           format,
		PreviewData:      []map[string]string{},
	}
	if format != parser.FormatCSV {
		return resp, nil
	}

	path, ok := s.files.Path(fileID)
	if !ok {
		return nil, fmt.Errorf("file not found or expired")
	}
	rows, err := previewCSV(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("file_id", fileID.String()).Msg("preview read failed")
		return resp, nil
	}
	resp.PreviewData = rows
	return resp, nil
}

func previewCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	rows := []map[string]string{}
	for len(rows) < previewRows {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
