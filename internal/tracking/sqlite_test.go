package tracking

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdmt-audit-server/internal/domain"
)

var t0 = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	return store
}

func sampleRecord(id, patientID string, status domain.ResolutionStatus, updated time.Time) *domain.ResolutionRecord {
	return &domain.ResolutionRecord{
		ID:           id,
		PathwayID:    "prior_auth_denied:sglt2i:pa_appeal",
		PathwayKind:  domain.PathwayPAAppeal,
		Blocker:      domain.PRIOR_AUTH_DENIED,
		TherapyClass: domain.SGLT2I,
		PatientID:    patientID,
		Status:       status,
		Steps: []domain.StepProgress{
			{Order: 1, Title: "Gather clinical documentation", Automated: true, State: domain.StepCompleted, AutoCompleted: true},
			{Order: 2, Title: "Clinician review and signature", State: domain.StepInProgress},
		},
		CreatedAt: t0,
		UpdatedAt: updated,
	}
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "records.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	rec := sampleRecord("rec-1", "p1", domain.StatusClinicianReview, t0)
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, rec.PathwayID, got.PathwayID)
	assert.Equal(t, rec.Steps, got.Steps)
	assert.True(t, got.UpdatedAt.Equal(t0))

	rec.Status = domain.StatusSubmitted
	rec.UpdatedAt = t0.Add(time.Hour)
	require.NoError(t, store.Save(ctx, rec))

	got, err = store.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, got.Status)

	count, err := store.Count(ctx, domain.ResolutionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "saving an existing ID replaces it")
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, err := store.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSQLiteStore_ListFilters(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRecord("a", "p1", domain.StatusClinicianReview, t0)))
	require.NoError(t, store.Save(ctx, sampleRecord("b", "p1", domain.StatusCompleted, t0.Add(time.Hour))))
	require.NoError(t, store.Save(ctx, sampleRecord("c", "p2", domain.StatusClinicianReview, t0.Add(2*time.Hour))))

	ids := func(records []*domain.ResolutionRecord) []string {
		var out []string
		for _, r := range records {
			out = append(out, r.ID)
		}
		return out
	}

	tests := []struct {
		name     string
		filter   domain.ResolutionFilter
		expected []string
	}{
		{"All newest first", domain.ResolutionFilter{}, []string{"c", "b", "a"}},
		{"By patient", domain.ResolutionFilter{PatientID: "p1"}, []string{"b", "a"}},
		{"By status", domain.ResolutionFilter{Status: domain.StatusClinicianReview}, []string{"c", "a"}},
		{"By patient and status", domain.ResolutionFilter{PatientID: "p1", Status: domain.StatusCompleted}, []string{"b"}},
		{"Paged", domain.ResolutionFilter{Limit: 1, Offset: 1}, []string{"b"}},
		{"No match", domain.ResolutionFilter{PatientID: "p9"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(got))

			count, err := store.Count(ctx, tt.filter)
			require.NoError(t, err)
			if tt.filter.Limit == 0 {
				assert.Equal(t, int64(len(tt.expected)), count)
			}
		})
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRecord("a", "p1", domain.StatusAbandoned, t0)))
	require.NoError(t, store.Delete(ctx, "a"))

	_, err := store.Get(ctx, "a")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, errors.Is(store.Delete(ctx, "a"), domain.ErrNotFound))
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	source := createTestStore(t)
	defer source.Close()
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, sampleRecord("a", "p1", domain.StatusCompleted, t0)))
	require.NoError(t, source.Save(ctx, sampleRecord("b", "p2", domain.StatusClinicianReview, t0.Add(time.Hour))))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), `"version": "1.0"`)
	assert.Contains(t, buf.String(), `"count": 2`)

	target := createTestStore(t)
	defer target.Close()
	require.NoError(t, target.Save(ctx, sampleRecord("a", "p1", domain.StatusCompleted, t0)))

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)

	count, err := target.Count(ctx, domain.ResolutionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_ImportInvalidJSON(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, _, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte("{not json")))
	assert.Error(t, err)
}
