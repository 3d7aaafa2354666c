package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/gdmt-audit-server/internal/domain"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL record store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a connection pool and creates the store.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func pgPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// Save inserts or replaces a record.
func (s *PostgresStore) Save(ctx context.Context, record *domain.ResolutionRecord) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO resolution_records (
			id, pathway_id, blocker, therapy_class, patient_id,
			status, record, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.PathwayID,
		string(record.Blocker),
		string(record.TherapyClass),
		record.PatientID,
		string(record.Status),
		data,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.ResolutionRecord, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT record FROM resolution_records WHERE id = $1", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return decodeRecord(data)
}

// List returns records matching the filter, most recently updated first.
func (s *PostgresStore) List(ctx context.Context, filter domain.ResolutionFilter) ([]*domain.ResolutionRecord, error) {
	where, args := whereClause(filter, pgPlaceholder)
	limit, offset := paging(filter)
	query := fmt.Sprintf("SELECT record FROM resolution_records%s ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var result []*domain.ResolutionRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

// Count returns the number of records matching the filter.
func (s *PostgresStore) Count(ctx context.Context, filter domain.ResolutionFilter) (int64, error) {
	where, args := whereClause(filter, pgPlaceholder)
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM resolution_records"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Delete removes a record by ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM resolution_records WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return nil
}

// ExportJSON exports all records to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, domain.ResolutionFilter{Limit: maxExportLimit})
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports records from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	export, err := readExport(reader)
	if err != nil {
		return 0, 0, err
	}
	return importRecords(ctx, s, export.Records)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
