package service

import (
	"context"
	"testing"
	"time"

	"leaddesk_backend/internal/directory"
	"leaddesk_backend/internal/events"
	"leaddesk_backend/internal/queue/domain"
	"leaddesk_backend/internal/queue/repository"
	"leaddesk_backend/platform/apperr"
	"leaddesk_backend/platform/logger"

	"github.com/google/uuid"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

type fakeStore struct {
	entries map[uuid.UUID]repository.Entry

	insertCalls int
	// existing, when set, is returned by Insert with created=false.
	existing *repository.Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[uuid.UUID]repository.Entry)}
}

func (s *fakeStore) Insert(_ context.Context, leadID, companyID uuid.UUID, notes string) (repository.Entry, bool, error) {
	s.insertCalls++
	if s.existing != nil {
		return *s.existing, false, nil
	}
	entry := repository.Entry{
		ID:        uuid.New(),
		LeadID:    leadID,
		CompanyID: companyID,
		Status:    domain.StatusPending,
		Position:  len(s.entries) + 1,
		Notes:     notes,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.entries[entry.ID] = entry
	return entry, true, nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (repository.Entry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return repository.Entry{}, apperr.NotFound("queue entry not found")
	}
	return entry, nil
}

func (s *fakeStore) List(_ context.Context, params repository.ListParams) ([]repository.Entry, int, error) {
	items := make([]repository.Entry, 0)
	for _, e := range s.entries {
		if e.CompanyID == params.CompanyID {
			items = append(items, e)
		}
	}
	return items, len(items), nil
}

func (s *fakeStore) Assign(_ context.Context, params repository.AssignParams) (repository.Entry, error) {
	entry, ok := s.entries[params.EntryID]
	if !ok {
		return repository.Entry{}, apperr.NotFound("queue entry not found")
	}
	if entry.Status != domain.StatusPending {
		return repository.Entry{}, apperr.Conflict("entry is not PENDING")
	}
	handlerID := params.HandlerID
	kind := params.Kind
	entry.HandlerID = &handlerID
	entry.Status = domain.StatusAssigned
	entry.AssignmentKind = &kind
	entry.Fallback = params.Fallback
	entry.Score = params.Score
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *fakeStore) Decline(_ context.Context, id uuid.UUID, reason string) (repository.Entry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return repository.Entry{}, apperr.NotFound("queue entry not found")
	}
	if domain.IsTerminal(entry.Status) {
		return repository.Entry{}, apperr.Conflict("entry is terminal")
	}
	entry.Status = domain.StatusDeclined
	entry.DeclineReason = &reason
	s.entries[id] = entry
	return entry, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.Status) (repository.Entry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return repository.Entry{}, apperr.NotFound("queue entry not found")
	}
	if entry.Status != from {
		return repository.Entry{}, apperr.Conflict("entry left expected state")
	}
	entry.Status = to
	s.entries[id] = entry
	return entry, nil
}

type fakeDirectory struct {
	companies map[uuid.UUID]directory.Company
	handlers  map[uuid.UUID]directory.Handler
	leads     map[uuid.UUID]directory.Lead
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		companies: make(map[uuid.UUID]directory.Company),
		handlers:  make(map[uuid.UUID]directory.Handler),
		leads:     make(map[uuid.UUID]directory.Lead),
	}
}

func (d *fakeDirectory) GetCompany(_ context.Context, id uuid.UUID) (directory.Company, error) {
	c, ok := d.companies[id]
	if !ok {
		return directory.Company{}, apperr.NotFound("company not found")
	}
	return c, nil
}

func (d *fakeDirectory) GetLead(_ context.Context, id uuid.UUID) (directory.Lead, error) {
	l, ok := d.leads[id]
	if !ok {
		return directory.Lead{}, apperr.NotFound("lead not found")
	}
	return l, nil
}

func (d *fakeDirectory) GetHandler(_ context.Context, id uuid.UUID) (directory.Handler, error) {
	h, ok := d.handlers[id]
	if !ok {
		return directory.Handler{}, apperr.NotFound("handler not found")
	}
	return h, nil
}

func (d *fakeDirectory) GetHandlerByUser(_ context.Context, companyID, userID uuid.UUID) (directory.Handler, error) {
	for _, h := range d.handlers {
		if h.CompanyID == companyID && h.UserID == userID {
			return h, nil
		}
	}
	return directory.Handler{}, apperr.NotFound("handler not found")
}

func (d *fakeDirectory) ListAvailableHandlers(_ context.Context, companyID uuid.UUID) ([]directory.Handler, error) {
	out := make([]directory.Handler, 0)
	for _, h := range d.handlers {
		if h.CompanyID == companyID && h.IsAvailable {
			out = append(out, h)
		}
	}
	return out, nil
}

func (d *fakeDirectory) GetDirector(_ context.Context, companyID uuid.UUID) (directory.Handler, error) {
	for _, h := range d.handlers {
		if h.CompanyID == companyID && h.IsDirector {
			return h, nil
		}
	}
	return directory.Handler{}, apperr.NotFound("company has no director")
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	out := make([]string, 0, len(b.published))
	for _, e := range b.published {
		out = append(out, e.EventName())
	}
	return out
}

// ── Fixtures ──────────────────────────────────────────────────────────────────

type fixture struct {
	svc   *Service
	store *fakeStore
	dir   *fakeDirectory
	bus   *recordingBus

	company  directory.Company
	lead     directory.Lead
	category uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	dir := newFakeDirectory()
	bus := &recordingBus{}

	category := uuid.New()
	company := directory.Company{
		ID:                   uuid.New(),
		Name:                 "Dakwerken Jansen",
		OwnerUserID:          uuid.New(),
		InternalLeadsEnabled: true,
		CategoryIDs:          []uuid.UUID{category},
		RatingAvg:            4.5,
		RatingCount:          30,
	}
	lead := directory.Lead{
		ID:         uuid.New(),
		CategoryID: category,
		Locality:   "utrecht",
		Urgency:    "normal",
		CreatedAt:  time.Now(),
	}
	dir.companies[company.ID] = company
	dir.leads[lead.ID] = lead

	return &fixture{
		svc:      New(store, dir, bus, logger.New("development")),
		store:    store,
		dir:      dir,
		bus:      bus,
		company:  company,
		lead:     lead,
		category: category,
	}
}

func (f *fixture) addHandler(t *testing.T, director, available bool, categories []uuid.UUID, ratingAvg float64, responseMinutes *float64) directory.Handler {
	t.Helper()
	h := directory.Handler{
		ID:                 uuid.New(),
		CompanyID:          f.company.ID,
		UserID:             uuid.New(),
		DisplayName:        "Handler " + uuid.NewString()[:8],
		IsDirector:         director,
		IsAvailable:        available,
		CategoryIDs:        categories,
		RatingAvg:          ratingAvg,
		RatingCount:        25,
		AvgResponseMinutes: responseMinutes,
		ConversionRate:     50,
	}
	f.dir.handlers[h.ID] = h
	return h
}

func minutes(m float64) *float64 { return &m }

// ── Enqueue ───────────────────────────────────────────────────────────────────

func TestEnqueueAssignsBestHandler(t *testing.T) {
	f := newFixture(t)
	f.addHandler(t, true, true, nil, 3.0, nil) // director, no category match
	slow := f.addHandler(t, false, true, []uuid.UUID{f.category}, 3.0, minutes(300))
	fast := f.addHandler(t, false, true, []uuid.UUID{f.category}, 4.8, minutes(30))

	entry, err := f.svc.Enqueue(context.Background(), f.lead.ID, f.company.ID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if entry.Status != domain.StatusAssigned {
		t.Fatalf("status = %s, want ASSIGNED", entry.Status)
	}
	if entry.HandlerID == nil || *entry.HandlerID != fast.ID {
		t.Errorf("assigned handler = %v, want %s (not %s)", entry.HandlerID, fast.ID, slow.ID)
	}
	if entry.Fallback {
		t.Error("fallback = true for a scored assignment")
	}
	if entry.Score == nil || *entry.Score <= 0 {
		t.Errorf("score = %v, want > 0", entry.Score)
	}

	names := f.bus.names()
	if len(names) != 2 || names[0] != "queue.lead.queued" || names[1] != "queue.lead.assigned" {
		t.Errorf("published events = %v", names)
	}
}

func TestEnqueueFallsBackToDirector(t *testing.T) {
	f := newFixture(t)
	director := f.addHandler(t, true, true, nil, 5.0, nil)
	f.addHandler(t, false, true, []uuid.UUID{uuid.New()}, 5.0, minutes(10)) // wrong category

	entry, err := f.svc.Enqueue(context.Background(), f.lead.ID, f.company.ID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if entry.HandlerID == nil || *entry.HandlerID != director.ID {
		t.Fatalf("assigned handler = %v, want director %s", entry.HandlerID, director.ID)
	}
	if !entry.Fallback {
		t.Error("fallback = false, want true for no-match director assignment")
	}
	if entry.Score != nil {
		t.Errorf("score = %v, want nil on fallback", *entry.Score)
	}
}

func TestEnqueueIneligibleCompany(t *testing.T) {
	f := newFixture(t)
	f.company.InternalLeadsEnabled = false
	f.dir.companies[f.company.ID] = f.company

	_, err := f.svc.Enqueue(context.Background(), f.lead.ID, f.company.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if f.store.insertCalls != 0 {
		t.Error("insert called for ineligible company")
	}
}

func TestEnqueueIdempotentPerLeadAndCompany(t *testing.T) {
	f := newFixture(t)
	existing := repository.Entry{
		ID:        uuid.New(),
		LeadID:    f.lead.ID,
		CompanyID: f.company.ID,
		Status:    domain.StatusAssigned,
	}
	f.store.existing = &existing

	entry, err := f.svc.Enqueue(context.Background(), f.lead.ID, f.company.ID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if entry.ID != existing.ID {
		t.Errorf("entry ID = %s, want existing %s", entry.ID, existing.ID)
	}
	if len(f.bus.published) != 0 {
		t.Errorf("events published on duplicate enqueue: %v", f.bus.names())
	}
}

func TestEnqueueSurvivesAssignmentFailure(t *testing.T) {
	f := newFixture(t)
	// No handlers at all: fallback lookup fails, the entry must stay PENDING.
	entry, err := f.svc.Enqueue(context.Background(), f.lead.ID, f.company.ID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if entry.Status != domain.StatusPending {
		t.Fatalf("status = %s, want PENDING after failed auto-assign", entry.Status)
	}
}

// ── AutoAssign ────────────────────────────────────────────────────────────────

func TestAutoAssignRejectsNonPendingEntry(t *testing.T) {
	f := newFixture(t)
	director := f.addHandler(t, true, true, []uuid.UUID{f.category}, 4.0, minutes(30))

	entry, err := f.svc.Enqueue(context.Background(), f.lead.ID, f.company.ID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if entry.HandlerID == nil || *entry.HandlerID != director.ID {
		t.Fatalf("setup: expected director assignment")
	}

	_, err = f.svc.AutoAssign(context.Background(), entry.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict for non-PENDING entry", err)
	}
}

func TestAutoAssignPrefersHigherScore(t *testing.T) {
	f := newFixture(t)
	f.addHandler(t, true, true, nil, 3.0, nil)
	weak := f.addHandler(t, false, true, []uuid.UUID{f.category}, 1.0, nil)
	strong := f.addHandler(t, false, true, []uuid.UUID{f.category}, 5.0, minutes(15))

	entry, err := f.svc.Enqueue(context.Background(), f.lead.ID, f.company.ID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if entry.HandlerID == nil || *entry.HandlerID != strong.ID {
		t.Errorf("assigned = %v, want %s over %s", entry.HandlerID, strong.ID, weak.ID)
	}
	if entry.AssignmentKind == nil || *entry.AssignmentKind != domain.AssignmentAutomatic {
		t.Errorf("assignment kind = %v, want automatic", entry.AssignmentKind)
	}
}

// ── ManualAssign ──────────────────────────────────────────────────────────────

func TestManualAssignRequiresDirector(t *testing.T) {
	f := newFixture(t)
	worker := f.addHandler(t, false, true, []uuid.UUID{f.category}, 4.0, nil)

	entry, _, err := f.store.Insert(context.Background(), f.lead.ID, f.company.ID, "")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err = f.svc.ManualAssign(context.Background(), entry.ID, worker.ID, worker.UserID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("err = %v, want forbidden for non-director actor", err)
	}

	outsider := uuid.New()
	_, err = f.svc.ManualAssign(context.Background(), entry.ID, worker.ID, outsider)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("err = %v, want forbidden for outside actor", err)
	}
}

func TestManualAssignByDirector(t *testing.T) {
	f := newFixture(t)
	director := f.addHandler(t, true, true, nil, 4.0, nil)
	worker := f.addHandler(t, false, false, []uuid.UUID{f.category}, 4.0, nil) // unavailable is fine for manual

	entry, _, err := f.store.Insert(context.Background(), f.lead.ID, f.company.ID, "")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	updated, err := f.svc.ManualAssign(context.Background(), entry.ID, worker.ID, director.UserID)
	if err != nil {
		t.Fatalf("ManualAssign: %v", err)
	}
	if updated.HandlerID == nil || *updated.HandlerID != worker.ID {
		t.Errorf("assigned = %v, want %s", updated.HandlerID, worker.ID)
	}
	if updated.AssignmentKind == nil || *updated.AssignmentKind != domain.AssignmentManual {
		t.Errorf("assignment kind = %v, want manual", updated.AssignmentKind)
	}
}

func TestManualAssignRejectsForeignHandler(t *testing.T) {
	f := newFixture(t)
	director := f.addHandler(t, true, true, nil, 4.0, nil)

	foreign := directory.Handler{
		ID:        uuid.New(),
		CompanyID: uuid.New(),
		UserID:    uuid.New(),
	}
	f.dir.handlers[foreign.ID] = foreign

	entry, _, err := f.store.Insert(context.Background(), f.lead.ID, f.company.ID, "")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err = f.svc.ManualAssign(context.Background(), entry.ID, foreign.ID, director.UserID)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

// ── Decline and status progression ────────────────────────────────────────────

func TestDeclineRequiresReason(t *testing.T) {
	f := newFixture(t)
	entry, _, _ := f.store.Insert(context.Background(), f.lead.ID, f.company.ID, "")

	_, err := f.svc.Decline(context.Background(), entry.ID, "   ")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}

	updated, err := f.svc.Decline(context.Background(), entry.ID, "geen capaciteit")
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if updated.Status != domain.StatusDeclined {
		t.Errorf("status = %s, want DECLINED", updated.Status)
	}
	if updated.DeclineReason == nil || *updated.DeclineReason != "geen capaciteit" {
		t.Errorf("reason = %v", updated.DeclineReason)
	}
}

func TestUpdateStatusEnforcesTransitions(t *testing.T) {
	f := newFixture(t)
	director := f.addHandler(t, true, true, []uuid.UUID{f.category}, 4.0, minutes(30))
	_ = director

	entry, err := f.svc.Enqueue(context.Background(), f.lead.ID, f.company.ID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// ASSIGNED -> COMPLETED skips IN_PROGRESS and must be rejected.
	if _, err := f.svc.UpdateStatus(context.Background(), entry.ID, domain.StatusCompleted); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict for ASSIGNED -> COMPLETED", err)
	}

	inProgress, err := f.svc.UpdateStatus(context.Background(), entry.ID, domain.StatusInProgress)
	if err != nil {
		t.Fatalf("UpdateStatus to IN_PROGRESS: %v", err)
	}
	done, err := f.svc.UpdateStatus(context.Background(), inProgress.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("UpdateStatus to COMPLETED: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", done.Status)
	}

	// Terminal: nothing further.
	if _, err := f.svc.UpdateStatus(context.Background(), done.ID, domain.StatusInProgress); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict after terminal state", err)
	}
}
