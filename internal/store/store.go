// Package store provides the SQLite storage layer for statline.
//
// All pipeline data lives in a single SQLite database file:
// - Statute documents as JSON bodies with indexed header columns
// - Lineage group records, upserted whole by group ID
// - Pipeline metadata (schema flags, run bookkeeping)
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.statline/statline.db"

// DefaultPageSize is the default page size for list operations.
const DefaultPageSize = 500

// Record is one stored statute document: the raw JSON body plus the
// header columns extracted for indexing.
type Record struct {
	ID             string
	Name           string
	Jurisdiction   string
	InstrumentType string
	EnactmentDate  string
	Body           map[string]any
	UpdatedAt      time.Time
}

// Partition identifies one grouping partition and its document count.
type Partition struct {
	Jurisdiction   string
	InstrumentType string
	Count          int64
}

// ListOpts controls pagination and filtering for document listing.
type ListOpts struct {
	Limit          int
	Offset         int
	Jurisdiction   string
	InstrumentType string
}

// Stats holds observability counters for the store.
type Stats struct {
	DocumentCount int64
	GroupCount    int64
	Jurisdictions int64
	DBSizeBytes   int64
}

// Config holds configuration for NewStore.
type Config struct {
	DBPath   string
	PageSize int
}

// Store defines the storage interface the pipeline and serving layers
// consume.
type Store interface {
	// Documents
	UpsertDocument(ctx context.Context, id string, body map[string]any) error
	GetDocument(ctx context.Context, id string) (*Record, error)
	ListDocuments(ctx context.Context, opts ListOpts) ([]*Record, error)
	CountDocuments(ctx context.Context) (int64, error)
	DeleteDocuments(ctx context.Context, ids []string) (int64, error)

	// Partitions
	DistinctPartitions(ctx context.Context) ([]Partition, error)
	DocumentsByPartition(ctx context.Context, jurisdiction, instrumentType string) ([]*Record, error)

	// Groups
	UpsertGroup(ctx context.Context, groupID string, body map[string]any) error
	GetGroup(ctx context.Context, groupID string) (map[string]any, error)
	ListGroups(ctx context.Context, limit, offset int) ([]map[string]any, error)
	SearchGroups(ctx context.Context, nameSubstring string, limit int) ([]map[string]any, error)

	// Observability
	Stats(ctx context.Context) (*Stats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db       *sql.DB
	dbPath   string
	pageSize int
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:       db,
		dbPath:   cfg.DBPath,
		pageSize: cfg.PageSize,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only — never auto-vacuum.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Stats returns observability counters.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.DocumentCount); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM statute_groups").Scan(&stats.GroupCount); err != nil {
		return nil, fmt.Errorf("counting groups: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT jurisdiction) FROM documents").Scan(&stats.Jurisdictions); err != nil {
		return nil, fmt.Errorf("counting jurisdictions: %w", err)
	}

	if s.dbPath != ":memory:" {
		if info, err := os.Stat(s.dbPath); err == nil {
			stats.DBSizeBytes = info.Size()
		}
	}
	return stats, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
