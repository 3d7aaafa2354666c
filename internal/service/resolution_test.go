package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdmt-audit-server/internal/documents"
	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
	"github.com/gdmt-audit-server/internal/tracking"
)

func newTestResolutionService(t *testing.T) (*ResolutionService, *Broadcaster) {
	t.Helper()
	store, err := tracking.NewSQLiteStore(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	docs, err := documents.NewRegistry()
	require.NoError(t, err)

	b := NewBroadcaster()
	svc := NewResolutionService(ruleset.MustDefault(), docs, store, b, quietLogger())
	svc.now = func() time.Time { return asOf }
	return svc, b
}

func paDeniedRequest() StartRequest {
	p := hfPatient(domain.Medication{
		Class:         domain.SGLT2I,
		Name:          "dapagliflozin",
		DoseTier:      domain.NOT_PRESCRIBED,
		AccessBarrier: domain.AccessPADenied,
	})
	return StartRequest{
		Blocker:      domain.PRIOR_AUTH_DENIED,
		TherapyClass: domain.SGLT2I,
		PathwayKind:  domain.PathwayPAAppeal,
		Snapshot:     p,
		Actor:        "dr-lee",
	}
}

func TestResolutionService_Pathways(t *testing.T) {
	svc, _ := newTestResolutionService(t)

	pathways := svc.Pathways(domain.PRIOR_AUTH_DENIED, domain.SGLT2I, nil)
	require.NotEmpty(t, pathways)
	assert.Empty(t, svc.Pathways(domain.HYPERKALEMIA, domain.MRA, nil))
}

func TestResolutionService_StartRunsAutomatedSteps(t *testing.T) {
	svc, _ := newTestResolutionService(t)

	rec, err := svc.Start(context.Background(), paDeniedRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusClinicianReview, rec.Status)
	assert.Equal(t, "hf-001", rec.PatientID)
	assert.Equal(t, 50, rec.Progress())
	require.Len(t, rec.Documents, 2)
	assert.Equal(t, domain.DocumentPAForm, rec.Documents[0].Kind)
	assert.Equal(t, domain.DocumentAppealLetter, rec.Documents[1].Kind)
	assert.Contains(t, rec.Documents[0].Content, "dapagliflozin")

	stored, err := svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Status, stored.Status)
	assert.Len(t, stored.Documents, 2)
}

func TestResolutionService_StartUnknownPathway(t *testing.T) {
	svc, _ := newTestResolutionService(t)

	req := paDeniedRequest()
	req.PathwayKind = domain.PathwayDischargeResumption
	_, err := svc.Start(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrUnknownPathway))
}

func TestResolutionService_AdvanceToCompletion(t *testing.T) {
	svc, _ := newTestResolutionService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, paDeniedRequest())
	require.NoError(t, err)

	steps := []struct {
		event    domain.ResolutionEventType
		expected domain.ResolutionStatus
	}{
		{domain.EventClinicianApprove, domain.StatusSubmitted},
		{domain.EventSubmit, domain.StatusInProgress},
		{domain.EventExternalApprove, domain.StatusApproved},
		{domain.EventComplete, domain.StatusCompleted},
	}
	for _, st := range steps {
		res, err := svc.Advance(ctx, rec.ID, domain.ResolutionEvent{Type: st.event, Actor: "dr-lee"})
		require.NoError(t, err)
		require.True(t, res.Accepted, "event %s rejected: %s", st.event, res.Reason)
		assert.Equal(t, st.expected, res.To)
	}

	final, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress())
	assert.Equal(t, asOf, final.UpdatedAt)
}

func TestResolutionService_AdvanceRendersDocumentsFromStoredSnapshot(t *testing.T) {
	svc, _ := newTestResolutionService(t)
	ctx := context.Background()

	docs := svc.documents
	svc.documents = nil
	rec, err := svc.Start(ctx, paDeniedRequest())
	require.NoError(t, err)
	require.Empty(t, rec.Documents)

	stored, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Snapshot)
	assert.Equal(t, "hf-001", stored.Snapshot.PatientID)

	svc.documents = docs
	res, err := svc.Advance(ctx, rec.ID, domain.ResolutionEvent{Type: domain.EventClinicianApprove, Actor: "dr-lee"})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)

	require.Len(t, res.Record.Documents, 2)
	form := res.Record.Documents[0].Content
	assert.Contains(t, form, "dapagliflozin")
	assert.Contains(t, form, "Ejection fraction: 30%")
	assert.NotContains(t, form, "Ejection fraction: not documented")
}

func TestResolutionService_RejectedEventLeavesRecord(t *testing.T) {
	svc, _ := newTestResolutionService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, paDeniedRequest())
	require.NoError(t, err)

	res, err := svc.Advance(ctx, rec.ID, domain.ResolutionEvent{Type: domain.EventExternalApprove})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.NotEmpty(t, res.Reason)

	stored, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClinicianReview, stored.Status)
	assert.Len(t, stored.History, len(rec.History))

	_, err = svc.Advance(ctx, rec.ID, domain.ResolutionEvent{Type: "teleport"})
	assert.True(t, errors.Is(err, domain.ErrInvalidEvent))

	_, err = svc.Advance(ctx, "missing", domain.ResolutionEvent{Type: domain.EventAbandon})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResolutionService_ConcurrentAdvanceIsSerialized(t *testing.T) {
	svc, _ := newTestResolutionService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, paDeniedRequest())
	require.NoError(t, err)

	var wg sync.WaitGroup
	accepted := make(chan bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Advance(ctx, rec.ID, domain.ResolutionEvent{Type: domain.EventClinicianApprove})
			if err == nil {
				accepted <- res.Accepted
			}
		}()
	}
	wg.Wait()
	close(accepted)

	count := 0
	for ok := range accepted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count, "only one approval applies to the same record")
}

func TestResolutionService_PublishesUpdates(t *testing.T) {
	svc, b := newTestResolutionService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, paDeniedRequest())
	require.NoError(t, err)

	updates, cancel := svc.Subscribe(rec.ID)
	defer cancel()
	assert.Equal(t, 1, b.Subscribers(rec.ID))

	_, err = svc.Advance(ctx, rec.ID, domain.ResolutionEvent{Type: domain.EventClinicianReject})
	require.NoError(t, err)

	select {
	case got := <-updates:
		assert.Equal(t, domain.StatusAbandoned, got.Status)
	case <-time.After(time.Second):
		t.Fatal("expected an update")
	}
}

func TestResolutionService_ListAndDelete(t *testing.T) {
	svc, _ := newTestResolutionService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, paDeniedRequest())
	require.NoError(t, err)

	records, err := svc.List(ctx, domain.ResolutionFilter{PatientID: "hf-001"})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	require.NoError(t, svc.Delete(ctx, rec.ID))
	records, err = svc.List(ctx, domain.ResolutionFilter{PatientID: "hf-001"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	first, cancelFirst := b.Subscribe("r1")
	_, cancelOther := b.Subscribe("r2")
	defer cancelOther()

	b.Publish(domain.ResolutionRecord{ID: "r1", Status: domain.StatusSubmitted})
	got := <-first
	assert.Equal(t, domain.StatusSubmitted, got.Status)

	cancelFirst()
	cancelFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers("r1"))

	for i := 0; i < subscriberBuffer*2; i++ {
		b.Publish(domain.ResolutionRecord{ID: "r2"})
	}
	assert.Equal(t, 1, b.Subscribers("r2"))
}
