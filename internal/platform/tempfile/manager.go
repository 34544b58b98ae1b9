// Package tempfile tracks uploaded files awaiting conversion. Files are
// written to a scratch directory under a `<fileID>_<name>` naming scheme
// and expire after a retention window; the registry is the source of
// truth for which uploads are still live.
package tempfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Upload size and type limits enforced before a file is accepted.
const (
	MaxFileSizeBytes = 50 * 1024 * 1024
	DefaultRetention = time.Hour
)

var allowedExtensions = map[string]bool{
	".csv":  true,
	".json": true,
	".xml":  true,
}

// ValidateUpload rejects files that are empty, oversized, or of an
// unsupported type before any disk write happens.
func ValidateUpload(fileName string, size int64) error {
	if size == 0 {
		return fmt.Errorf("file is empty")
	}
	if size > MaxFileSizeBytes {
		return fmt.Errorf("file exceeds the %dMB limit", MaxFileSizeBytes/(1024*1024))
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported file type: %s", ext)
	}
	return nil
}

type entry struct {
	path         string
	originalName string
	createdAt    time.Time
}

// FileInfo describes a registered upload.
type FileInfo struct {
	FileName string
	Size     int64
}

// Manager owns the scratch directory and the upload registry. Safe for
// concurrent use.
type Manager struct {
	dir       string
	retention time.Duration
	logger    zerolog.Logger

	mu       sync.RWMutex
	registry map[uuid.UUID]entry
}

// NewManager creates the scratch directory if needed. retention <= 0
// uses the default one-hour window.
func NewManager(dir string, retention time.Duration, logger zerolog.Logger) (*Manager, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	return &Manager{
		dir:       dir,
		retention: retention,
		logger:    logger.With().Str("component", "tempfile").Logger(),
		registry:  map[uuid.UUID]entry{},
	}, nil
}

// Register reserves a path for a new upload and records it in the
// registry. The caller writes the file content to the returned path.
func (m *Manager) Register(fileID uuid.UUID, originalName string) string {
	path := filepath.Join(m.dir, fmt.Sprintf("%s_%s", fileID, filepath.Base(originalName)))

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.registry[fileID]; ok {
		return existing.path
	}
	m.registry[fileID] = entry{path: path, originalName: originalName, createdAt: time.Now().UTC()}
	return path
}

// Path returns the on-disk location of a registered upload.
func (m *Manager) Path(fileID uuid.UUID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.registry[fileID]
	if !ok {
		return "", false
	}
	return e.path, true
}

// Exists reports whether the upload is registered and still on disk.
func (m *Manager) Exists(fileID uuid.UUID) bool {
	path, ok := m.Path(fileID)
	if !ok {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Info returns the original file name and current size of an upload.
func (m *Manager) Info(fileID uuid.UUID) (FileInfo, bool) {
	m.mu.RLock()
	e, ok := m.registry[fileID]
	m.mu.RUnlock()
	if !ok {
		return FileInfo{}, false
	}
	stat, err := os.Stat(e.path)
	if err != nil {
		return FileInfo{}, false
	}
	return FileInfo{FileName: e.originalName, Size: stat.Size()}, true
}

// Delete removes the upload from the registry and best-effort deletes
// the file from disk.
func (m *Manager) Delete(fileID uuid.UUID) {
	m.mu.Lock()
	e, ok := m.registry[fileID]
	delete(m.registry, fileID)
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn().Err(err).Str("path", e.path).Msg("failed to delete temp file")
	}
}

// CleanupExpired deletes every upload older than the retention window
// and returns how many were removed.
func (m *Manager) CleanupExpired() int {
	cutoff := time.Now().UTC().Add(-m.retention)

	m.mu.RLock()
	var expired []uuid.UUID
	for id, e := range m.registry {
		if e.createdAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.Delete(id)
	}
	if len(expired) > 0 {
		m.logger.Info().Int("count", len(expired)).Msg("expired temp files removed")
	}
	return len(expired)
}

// StartSweeper runs CleanupExpired on an interval until the context is
// cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupExpired()
			}
		}
	}()
}
