// Package tracking persists resolution records. Each record is stored whole as JSON next to the
// columns used for filtering.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gdmt-audit-server/internal/domain"
)

// Store is a resolution record store with export and import.
type Store interface {
	domain.ResolutionStore

	// Count returns the number of records matching the filter, ignoring its paging.
	Count(ctx context.Context, filter domain.ResolutionFilter) (int64, error)

	// ExportJSON writes every record to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads records from reader. Records whose ID already exists are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)
}

// RecordExport is the JSON export format.
type RecordExport struct {
	Version    string                     `json:"version"`
	ExportedAt time.Time                  `json:"exported_at"`
	Count      int                        `json:"count"`
	Records    []*domain.ResolutionRecord `json:"records"`
}

const (
	exportVersion  = "1.0"
	maxExportLimit = 1000000
	defaultLimit   = 100
)

func encodeRecord(r *domain.ResolutionRecord) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", r.ID, err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*domain.ResolutionRecord, error) {
	var r domain.ResolutionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &r, nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: resolution record %s", domain.ErrNotFound, id)
}

// whereClause renders the filter's predicates. placeholder returns the n-th bind marker.
func whereClause(filter domain.ResolutionFilter, placeholder func(n int) string) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		conds = append(conds, "patient_id = "+placeholder(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, "status = "+placeholder(len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func paging(filter domain.ResolutionFilter) (limit, offset int) {
	limit = filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset = filter.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func writeExport(writer io.Writer, all []*domain.ResolutionRecord) error {
	export := &RecordExport{
		Version:    exportVersion,
		ExportedAt: time.Now(),
		Count:      len(all),
		Records:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func readExport(reader io.Reader) (*RecordExport, error) {
	var export RecordExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return &export, nil
}
