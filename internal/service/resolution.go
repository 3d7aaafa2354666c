package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gdmt-audit-server/internal/documents"
	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/resolution"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// StartRequest selects the pathway a new record tracks.
type StartRequest struct {
	Blocker      domain.BlockerCode      `json:"blocker"`
	TherapyClass domain.TherapyClass     `json:"therapy_class"`
	PathwayKind  domain.PathwayKind      `json:"pathway_kind"`
	Snapshot     *domain.PatientSnapshot `json:"snapshot,omitempty"`
	Actor        string                  `json:"actor,omitempty"`
}

// ResolutionService runs the resolution workflow against a record store. Advances on the
// same record are serialized.
type ResolutionService struct {
	selector    *resolution.Selector
	documents   *documents.Registry
	rules       *ruleset.Ruleset
	store       domain.ResolutionStore
	broadcaster *Broadcaster
	locks       *keyedMutex
	logger      *logrus.Logger
	now         func() time.Time
}

// NewResolutionService creates a new resolution service. broadcaster may be nil.
func NewResolutionService(
	rs *ruleset.Ruleset,
	docs *documents.Registry,
	store domain.ResolutionStore,
	broadcaster *Broadcaster,
	logger *logrus.Logger,
) *ResolutionService {
	return &ResolutionService{
		selector:    resolution.NewSelector(rs),
		documents:   docs,
		rules:       rs,
		store:       store,
		broadcaster: broadcaster,
		locks:       newKeyedMutex(),
		logger:      logger,
		now:         time.Now,
	}
}

// Pathways returns the remediation pathways for a blocker on a therapy class.
func (s *ResolutionService) Pathways(blocker domain.BlockerCode, class domain.TherapyClass, p *domain.PatientSnapshot) []domain.ResolutionPathway {
	return s.selector.Select(blocker, class, p)
}

// Start creates a record for the requested pathway, starts it, runs its automated steps and
// attaches the documents those steps produce.
func (s *ResolutionService) Start(ctx context.Context, req StartRequest) (*domain.ResolutionRecord, error) {
	pw, err := s.selector.Find(req.Blocker, req.TherapyClass, req.PathwayKind, req.Snapshot)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	patientID := ""
	if req.Snapshot != nil {
		patientID = req.Snapshot.PatientID
	}

	rec := resolution.NewRecord(uuid.NewString(), pw, patientID, now)
	if req.Snapshot != nil {
		snap := *req.Snapshot
		rec.Snapshot = &snap
	}
	res := resolution.Advance(rec, domain.ResolutionEvent{Type: domain.EventStart, Actor: req.Actor, At: now})
	if !res.Accepted {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidEvent, res.Reason)
	}
	rec, _ = resolution.AutoDrive(res.Record, now)

	rec, err = s.attachDocuments(rec, rec.Snapshot, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, &rec); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"record_id":  rec.ID,
		"pathway_id": rec.PathwayID,
		"patient_id": rec.PatientID,
		"status":     rec.Status,
		"progress":   rec.Progress(),
		"documents":  len(rec.Documents),
	}).Info("Resolution started")

	s.publish(rec)
	return &rec, nil
}

// Advance applies an event to a stored record. Rejected events leave the stored record
// untouched and are reported through the result, not as errors.
func (s *ResolutionService) Advance(ctx context.Context, id string, ev domain.ResolutionEvent) (resolution.TransitionResult, error) {
	if !ev.Type.IsValid() {
		return resolution.TransitionResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidEvent, ev.Type)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	stored, err := s.store.Get(ctx, id)
	if err != nil {
		return resolution.TransitionResult{}, err
	}
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}

	res := resolution.Advance(*stored, ev)
	fields := logrus.Fields{
		"record_id": id,
		"event":     ev.Type,
		"from":      res.From,
		"to":        res.To,
		"actor":     ev.Actor,
	}
	if !res.Accepted {
		s.logger.WithFields(fields).WithField("reason", res.Reason).Info("Resolution event rejected")
		return res, nil
	}

	rec, _ := resolution.AutoDrive(res.Record, ev.At)
	rec, err = s.attachDocuments(rec, rec.Snapshot, ev.At)
	if err != nil {
		return resolution.TransitionResult{}, err
	}
	res.Record = rec
	res.To = rec.Status

	if err := s.store.Save(ctx, &rec); err != nil {
		return resolution.TransitionResult{}, fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.WithFields(fields).WithField("progress", rec.Progress()).Info("Resolution advanced")
	s.publish(rec)
	return res, nil
}

// Get returns a stored record.
func (s *ResolutionService) Get(ctx context.Context, id string) (*domain.ResolutionRecord, error) {
	return s.store.Get(ctx, id)
}

// List returns stored records matching the filter.
func (s *ResolutionService) List(ctx context.Context, filter domain.ResolutionFilter) ([]*domain.ResolutionRecord, error) {
	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.ResolutionRecord{}
	}
	return records, nil
}

// Delete removes a stored record.
func (s *ResolutionService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.store.Delete(ctx, id)
}

// Subscribe streams updates of a record. It returns nil when the service has no broadcaster.
func (s *ResolutionService) Subscribe(id string) (<-chan domain.ResolutionRecord, func()) {
	if s.broadcaster == nil {
		return nil, func() {}
	}
	return s.broadcaster.Subscribe(id)
}

// attachDocuments renders a document for every completed step that produces one and has none yet.
func (s *ResolutionService) attachDocuments(rec domain.ResolutionRecord, p *domain.PatientSnapshot, at time.Time) (domain.ResolutionRecord, error) {
	if s.documents == nil {
		return rec, nil
	}
	have := make(map[int]bool, len(rec.Documents))
	for _, d := range rec.Documents {
		have[d.StepOrder] = true
	}

	var data *documents.FormData
	for _, st := range rec.Steps {
		if st.Produces == domain.DocumentNone || st.State != domain.StepCompleted || have[st.Order] {
			continue
		}
		if data == nil {
			fd := documents.BuildFormData(rec, p, s.rules, at)
			data = &fd
		}
		doc, err := s.documents.Generate(st.Produces, *data, st.Order)
		if err != nil {
			return rec, fmt.Errorf("failed to generate %s: %w", st.Produces, err)
		}
		rec.Documents = append(rec.Documents, doc)
	}
	return rec, nil
}

func (s *ResolutionService) publish(rec domain.ResolutionRecord) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(rec)
	}
}

// keyedMutex hands out one mutex per key and drops it when no caller holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock locks key and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
