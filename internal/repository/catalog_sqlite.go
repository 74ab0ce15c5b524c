package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shopbot-api/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteCatalogStore implements CatalogStore as a single-row SQLite table.
type SQLiteCatalogStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSQLiteCatalogStore opens (and creates if needed) the catalog database.
func NewSQLiteCatalogStore(dbPath string, logger *slog.Logger) (*SQLiteCatalogStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createCatalogTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger = logger.With("component", "catalog_sqlite_store")
	logger.Info("catalog store initialized", "path", dbPath)
	return &SQLiteCatalogStore{db: db, logger: logger}, nil
}

func createCatalogTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS catalog_document (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		format_version INTEGER NOT NULL,
		catalog_version TEXT NOT NULL,
		document TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);`
	_, err := db.Exec(query)
	return err
}

// Load reads the stored document. A missing row or undecodable document is
// reported as absent.
func (s *SQLiteCatalogStore) Load(ctx context.Context) (*model.CacheDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM catalog_document WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		s.logger.Warn("catalog row unreadable, starting empty", "error", err)
		return nil, nil
	}

	var doc model.CacheDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		s.logger.Warn("catalog row corrupt, starting empty", "error", err)
		return nil, nil
	}
	return &doc, nil
}

// Save replaces the stored document.
func (s *SQLiteCatalogStore) Save(ctx context.Context, doc *model.CacheDocument) error {
	if doc == nil {
		return errors.New("nil catalog document")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO catalog_document (id, format_version, catalog_version, document, saved_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			format_version = excluded.format_version,
			catalog_version = excluded.catalog_version,
			document = excluded.document,
			saved_at = excluded.saved_at`

	_, err = s.db.ExecContext(ctx, query, doc.FormatVersion, doc.CatalogVersion, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save catalog: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteCatalogStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteCatalogStore implements CatalogStore
var _ CatalogStore = (*SQLiteCatalogStore)(nil)
