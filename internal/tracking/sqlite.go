package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/gdmt-audit-server/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite record store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets readers proceed while a record is being written
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resolution_records (
		id TEXT PRIMARY KEY,
		pathway_id TEXT NOT NULL,
		blocker TEXT NOT NULL,
		therapy_class TEXT NOT NULL,
		patient_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		record TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resolution_patient ON resolution_records(patient_id);
	CREATE INDEX IF NOT EXISTS idx_resolution_status ON resolution_records(status);
	CREATE INDEX IF NOT EXISTS idx_resolution_updated_at ON resolution_records(updated_at);
	`

	_, err := db.Exec(schema)
	return err
}

func sqlitePlaceholder(int) string { return "?" }

// Save inserts or replaces a record.
func (s *SQLiteStore) Save(ctx context.Context, record *domain.ResolutionRecord) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resolution_records (
			id, pathway_id, blocker, therapy_class, patient_id,
			status, record, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			record = excluded.record,
			updated_at = excluded.updated_at
	`,
		record.ID,
		record.PathwayID,
		string(record.Blocker),
		string(record.TherapyClass),
		record.PatientID,
		string(record.Status),
		string(data),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.ResolutionRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT record FROM resolution_records WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return decodeRecord([]byte(data))
}

// List returns records matching the filter, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, filter domain.ResolutionFilter) ([]*domain.ResolutionRecord, error) {
	where, args := whereClause(filter, sqlitePlaceholder)
	limit, offset := paging(filter)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx,
		"SELECT record FROM resolution_records"+where+" ORDER BY updated_at DESC, id LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*domain.ResolutionRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r, err := decodeRecord([]byte(data))
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Count returns the number of records matching the filter.
func (s *SQLiteStore) Count(ctx context.Context, filter domain.ResolutionFilter) (int64, error) {
	where, args := whereClause(filter, sqlitePlaceholder)
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM resolution_records"+where, args...).Scan(&count)
	return count, err
}

// Delete removes a record by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM resolution_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return nil
}

// ExportJSON exports all records to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, domain.ResolutionFilter{Limit: maxExportLimit})
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports records from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	export, err := readExport(reader)
	if err != nil {
		return 0, 0, err
	}
	return importRecords(ctx, s, export.Records)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func importRecords(ctx context.Context, store domain.ResolutionStore, records []*domain.ResolutionRecord) (imported int, skipped int, err error) {
	for _, r := range records {
		_, err := store.Get(ctx, r.ID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if err := store.Save(ctx, r); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}
	return imported, skipped, nil
}
