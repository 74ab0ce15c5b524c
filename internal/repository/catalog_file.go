package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"shopbot-api/internal/model"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// FileCatalogStore implements CatalogStore as a JSON file. A sibling .lock
// file serialises access between the API process and catalogctl.
type FileCatalogStore struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// NewFileCatalogStore creates a JSON file store at path.
func NewFileCatalogStore(path string, logger *slog.Logger) *FileCatalogStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileCatalogStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger.With("component", "catalog_file_store"),
	}
}

// Load reads the document. Missing or corrupt files are reported as absent.
func (s *FileCatalogStore) Load(ctx context.Context) (*model.CacheDocument, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	if _, err := s.lock.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return nil, fmt.Errorf("lock catalog file: %w", err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("catalog file unreadable, starting empty", "path", s.path, "error", err)
		}
		return nil, nil
	}
	if len(data) == 0 {
		return nil, nil
	}

	var doc model.CacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("catalog file corrupt, starting empty", "path", s.path, "error", err)
		return nil, nil
	}

	s.logger.Debug("loaded catalog file",
		"path", s.path,
		"catalog_version", doc.CatalogVersion,
		"items", len(doc.Items))
	return &doc, nil
}

// Save writes the document atomically via a temp file.
func (s *FileCatalogStore) Save(ctx context.Context, doc *model.CacheDocument) error {
	if doc == nil {
		return errors.New("nil catalog document")
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}
	if _, err := s.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("lock catalog file: %w", err)
	}
	defer s.lock.Unlock()

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Close releases the lock handle.
func (s *FileCatalogStore) Close() error {
	return s.lock.Close()
}

// Ensure FileCatalogStore implements CatalogStore
var _ CatalogStore = (*FileCatalogStore)(nil)
