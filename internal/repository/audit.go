package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/gdmt-audit-server/internal/domain"
)

// AuditRepository archives audit results in PostgreSQL. The full result is stored as JSONB;
// the score columns are kept for reporting queries.
type AuditRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *pgxpool.Pool, logger *logrus.Logger) *AuditRepository {
	return &AuditRepository{
		db:  db,
		log: logger,
	}
}

// SaveAudit inserts an audit result. A result without an ID is given one.
func (r *AuditRepository) SaveAudit(ctx context.Context, audit *domain.AuditResult) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	id, err := uuid.Parse(audit.ID)
	if err != nil {
		return fmt.Errorf("audit id %q is not a UUID: %w", audit.ID, err)
	}

	resultJSON, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("marshaling audit result: %w", err)
	}

	query := `
		INSERT INTO audit_results (
			id, patient_id, domain, category, ruleset_version, score,
			max_possible, normalized, is_incomplete, result, generated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	_, err = r.db.Exec(ctx, query,
		id,
		audit.PatientID,
		string(audit.Domain),
		audit.Category,
		audit.RulesetVersion,
		audit.Score.Score,
		audit.Score.MaxPossible,
		audit.Score.Normalized,
		audit.Score.IsIncomplete,
		resultJSON,
		audit.GeneratedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"audit_id":   audit.ID,
			"patient_id": audit.PatientID,
			"domain":     audit.Domain,
			"error":      err,
		}).Error("Failed to archive audit")
		return fmt.Errorf("creating audit: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"patient_id": audit.PatientID,
		"domain":     audit.Domain,
		"normalized": audit.Score.Normalized,
	}).Debug("Audit archived")

	return nil
}

// GetAudit retrieves an audit by its ID
func (r *AuditRepository) GetAudit(ctx context.Context, id string) (*domain.AuditResult, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("audit %s not found: %w", id, domain.ErrNotFound)
	}

	var resultJSON []byte
	err = r.db.QueryRow(ctx, `SELECT result FROM audit_results WHERE id = $1`, parsed).Scan(&resultJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("audit %s not found: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"audit_id": id,
			"error":    err,
		}).Error("Failed to get audit by ID")
		return nil, fmt.Errorf("getting audit by ID: %w", err)
	}

	var audit domain.AuditResult
	if err := json.Unmarshal(resultJSON, &audit); err != nil {
		return nil, fmt.Errorf("unmarshaling audit result: %w", err)
	}
	return &audit, nil
}

// ListAudits returns a patient's audits, newest first.
func (r *AuditRepository) ListAudits(ctx context.Context, patientID string, limit int) ([]*domain.AuditResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT result FROM audit_results
		WHERE patient_id = $1
		ORDER BY generated_at DESC, created_at DESC
		LIMIT $2`, patientID, limit)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to list audits")
		return nil, fmt.Errorf("listing audits: %w", err)
	}
	defer rows.Close()

	var audits []*domain.AuditResult
	for rows.Next() {
		var resultJSON []byte
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		var audit domain.AuditResult
		if err := json.Unmarshal(resultJSON, &audit); err != nil {
			return nil, fmt.Errorf("unmarshaling audit result: %w", err)
		}
		audits = append(audits, &audit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}

	return audits, nil
}

// ScoreSummary is the average normalized score per domain.
type ScoreSummary struct {
	Domain  domain.DomainID `json:"domain"`
	Audits  int64           `json:"audits"`
	Average float64         `json:"average_normalized"`
}

// SummarizeScores aggregates archived scores by domain.
func (r *AuditRepository) SummarizeScores(ctx context.Context) ([]ScoreSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT domain, COUNT(*), COALESCE(AVG(normalized), 0)
		FROM audit_results
		GROUP BY domain
		ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("summarizing scores: %w", err)
	}
	defer rows.Close()

	var out []ScoreSummary
	for rows.Next() {
		var s ScoreSummary
		var d string
		if err := rows.Scan(&d, &s.Audits, &s.Average); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		s.Domain = domain.DomainID(d)
		out = append(out, s)
	}
	return out, rows.Err()
}
