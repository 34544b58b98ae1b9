package detection

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fhirconv/fhirconv/internal/platform/parser"
	"github.com/fhirconv/fhirconv/internal/platform/tempfile"
)

// Response is the detect-fields payload: suggested mappings for the
// uploaded file plus the canonical paths a client can map to.
type Response struct {
	FileID              uuid.UUID       `json:"fileId"`
	DetectedFields      []DetectedField `json:"detectedFields"`
	RequiredMappings    []string        `json:"requiredMappings"`
	AvailableFhirFields []string        `json:"availableFhirFields"`
}

// Service inspects uploaded files and suggests field mappings.
type Service struct {
	files    *tempfile.Manager
	detector *Detector
	logger   zerolog.Logger
}

func NewService(files *tempfile.Manager, detector *Detector, logger zerolog.Logger) *Service {
	return &Service{
		files:    files,
		detector: detector,
		logger:   logger.With().Str("component", "detection").Logger(),
	}
}

// DetectFields extracts the file's column names and scores them against
// the canonical paths.
func (s *Service) DetectFields(ctx context.Context, fileID uuid.UUID) (*Response, error) {
	if !s.files.Exists(fileID) {
		return nil, fmt.Errorf("file not found or expired")
	}
	info, ok := s.files.Info(fileID)
	if !ok {
		return nil, fmt.Errorf("file not found or expired")
	}
	format, err := parser.FormatFromFilename(info.FileName)
	if err != nil {
		return nil, err
	}
	path, _ := s.files.Path(fileID)

	headers, err := fileHeaders(path, format)
	if err != nil {
		return nil, fmt.Errorf("read file headers: %w", err)
	}

	detected := s.detector.Detect(headers)
	s.logger.Info().Str("file_id", fileID.String()).Int("headers", len(headers)).
		Int("detected", len(detected)).Msg("field detection complete")

	return &Response{
		FileID:              fileID,
		DetectedFields:      detected,
		RequiredMappings:    s.detector.RequiredFields(),
		AvailableFhirFields: s.detector.AvailableFields(),
	}, nil
}

// AvailableFields lists the canonical paths without touching a file.
func (s *Service) AvailableFields() []string {
	return s.detector.AvailableFields()
}

// fileHeaders extracts candidate column names by format. CSV uses the
// header row, JSON uses flattened dot paths, CCDA reports the fixed set
// of fields its parser knows how to populate.
func fileHeaders(path string, format parser.Format) ([]string, error) {
	switch format {
	case parser.FormatCSV:
		return csvHeaders(path)
	case parser.FormatJSON:
		return jsonHeaders(path)
	case parser.FormatCCDA:
		return ccdaHeaders(), nil
	default:
		return nil, fmt.Errorf("unsupported input format %q", format)
	}
}

func csvHeaders(path string) ([]string, error) {
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

func jsonHeaders(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var fields []string
	flattenJSON(doc, "", &fields)
	// The decoded document is a map, so the walk order is random.
	// Sort so repeated detect calls list the same columns in the
	// same order.
	sort.Strings(fields)
	return fields, nil
}

// flattenJSON walks the document collecting leaf paths. Arrays are
// represented by their first element, which is enough to learn the
// record structure.
func flattenJSON(v any, prefix string, fields *[]string) {
	switch val := v.(type) {
	case map[string]any:
		for name, child := range val {
			key := name
			if prefix != "" {
				key = prefix + "." + name
			}
			switch child.(type) {
			case map[string]any, []any:
				flattenJSON(child, key, fields)
			default:
				*fields = append(*fields, key)
			}
		}
	case []any:
		if len(val) == 0 {
			return
		}
		if _, ok := val[0].(map[string]any); ok {
			flattenJSON(val[0], prefix, fields)
		} else if prefix != "" {
			*fields = append(*fields, prefix)
		}
	}
}

func ccdaHeaders() []string {
	return []string{
		"patient_id",
		"first_name",
		"last_name",
		"birth_date",
		"gender",
		"phone",
		"email",
		"address",
		"test_name",
		"test_result",
		"unit",
		"test_date",
	}
}
