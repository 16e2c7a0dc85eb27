package service

import (
	"context"
	"testing"
	"time"

	"leaddesk_backend/internal/billing/repository"
	"leaddesk_backend/internal/events"
	"leaddesk_backend/platform/apperr"
	"leaddesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

type periodKey struct {
	planID uuid.UUID
	start  time.Time
	end    time.Time
}

type fakeStore struct {
	plans       map[uuid.UUID]repository.Plan
	adjustments map[periodKey]repository.Adjustment
	delivered   map[uuid.UUID]int

	refundsApplied []repository.RefundParams
	refundErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		plans:       make(map[uuid.UUID]repository.Plan),
		adjustments: make(map[periodKey]repository.Adjustment),
		delivered:   make(map[uuid.UUID]int),
	}
}

func (s *fakeStore) CreatePlan(_ context.Context, plan repository.Plan) (repository.Plan, error) {
	plan.ID = uuid.New()
	plan.CreatedAt = time.Now()
	s.plans[plan.ID] = plan
	return plan, nil
}

func (s *fakeStore) GetPlan(_ context.Context, id uuid.UUID) (repository.Plan, error) {
	plan, ok := s.plans[id]
	if !ok {
		return repository.Plan{}, apperr.NotFound("billing plan not found")
	}
	return plan, nil
}

func (s *fakeStore) ListPlansByOwner(_ context.Context, owner uuid.UUID) ([]repository.Plan, error) {
	out := make([]repository.Plan, 0)
	for _, plan := range s.plans {
		if plan.OwnerUserID == owner {
			out = append(out, plan)
		}
	}
	return out, nil
}

func (s *fakeStore) ListAllPlans(_ context.Context) ([]repository.Plan, error) {
	out := make([]repository.Plan, 0)
	for _, plan := range s.plans {
		out = append(out, plan)
	}
	return out, nil
}

func (s *fakeStore) CountDelivered(_ context.Context, plan repository.Plan, _, _ time.Time) (int, error) {
	return s.delivered[plan.ID], nil
}

func (s *fakeStore) GetAdjustment(_ context.Context, planID uuid.UUID, start, end time.Time) (repository.Adjustment, error) {
	adj, ok := s.adjustments[periodKey{planID, start, end}]
	if !ok {
		return repository.Adjustment{}, apperr.NotFound("adjustment not found")
	}
	return adj, nil
}

func (s *fakeStore) Settle(_ context.Context, params repository.SettleParams) (repository.Adjustment, bool, error) {
	key := periodKey{params.PlanID, params.PeriodStart, params.PeriodEnd}
	existing, exists := s.adjustments[key]
	if exists && existing.Status == repository.StatusApplied {
		return existing, false, nil
	}

	adj := repository.Adjustment{
		ID:              uuid.New(),
		PlanID:          params.PlanID,
		PeriodStart:     params.PeriodStart,
		PeriodEnd:       params.PeriodEnd,
		Expected:        params.Expected,
		Delivered:       params.Delivered,
		RealValueFactor: params.RealValueFactor,
		Kind:            params.Kind,
		CreditAmount:    params.CreditAmount,
		Status:          repository.StatusPending,
		Note:            params.Note,
	}
	if exists {
		adj.ID = existing.ID
	}
	s.adjustments[key] = adj

	if params.WriteCarryover {
		plan := s.plans[params.PlanID]
		plan.CarryoverBalance = params.NextCarryover
		s.plans[params.PlanID] = plan
	}
	return adj, !exists, nil
}

func (s *fakeStore) ListAdjustments(_ context.Context, params repository.ListAdjustmentsParams) ([]repository.Adjustment, error) {
	out := make([]repository.Adjustment, 0)
	for _, adj := range s.adjustments {
		if params.PlanID != nil && adj.PlanID != *params.PlanID {
			continue
		}
		if params.Status != nil && adj.Status != *params.Status {
			continue
		}
		out = append(out, adj)
	}
	return out, nil
}

func (s *fakeStore) ListQuietMarketPending(_ context.Context) ([]repository.QuietMarketAdjustment, error) {
	out := make([]repository.QuietMarketAdjustment, 0)
	for _, adj := range s.adjustments {
		if adj.Status == repository.StatusPending && adj.Kind == repository.KindCredit && adj.Delivered == 0 {
			out = append(out, repository.QuietMarketAdjustment{
				Adjustment:  adj,
				OwnerUserID: s.plans[adj.PlanID].OwnerUserID,
			})
		}
	}
	return out, nil
}

func (s *fakeStore) ApplyRefund(_ context.Context, params repository.RefundParams) error {
	if s.refundErr != nil {
		return s.refundErr
	}
	for key, adj := range s.adjustments {
		if adj.ID == params.AdjustmentID {
			if adj.Status != repository.StatusPending {
				return apperr.Conflict("adjustment is not pending")
			}
			adj.Status = repository.StatusApplied
			s.adjustments[key] = adj
		}
	}
	s.refundsApplied = append(s.refundsApplied, params)
	return nil
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

func (b *recordingBus) count(name string) int {
	n := 0
	for _, e := range b.published {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

// ── Fixtures ──────────────────────────────────────────────────────────────────

var (
	periodStart = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc   *Service
	store *fakeStore
	bus   *recordingBus
	owner uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	bus := &recordingBus{}
	svc := New(store, bus, logger.New("development"))
	svc.SetClock(func() time.Time { return time.Date(2026, 6, 3, 4, 0, 0, 0, time.UTC) })
	return &fixture{svc: svc, store: store, bus: bus, owner: uuid.New()}
}

func (f *fixture) plan(t *testing.T, quota int, carryover, guarantee bool, guaranteedMin int) repository.Plan {
	t.Helper()
	plan, err := f.svc.CreatePlan(context.Background(), PlanParams{
		OwnerUserID:       f.owner,
		BaseQuota:         quota,
		CarryoverEnabled:  carryover,
		GuaranteeEnabled:  guarantee,
		GuaranteedMinimum: guaranteedMin,
	})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	return plan
}

func (f *fixture) settle(t *testing.T, planID uuid.UUID) *repository.Adjustment {
	t.Helper()
	adj, err := f.svc.Settle(context.Background(), planID, periodStart, periodEnd)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	return adj
}

// ── Settle scenarios ──────────────────────────────────────────────────────────

func TestSettleQuietMarketFullRefund(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, 20, false, false, 0)
	f.store.delivered[plan.ID] = 0

	adj := f.settle(t, plan.ID)
	if adj.Kind != repository.KindCredit {
		t.Fatalf("kind = %s, want credit", adj.Kind)
	}
	if !adj.CreditAmount.Equal(decimal.NewFromInt(20)) {
		t.Errorf("credit = %s, want 20", adj.CreditAmount)
	}
	if !adj.RealValueFactor.IsZero() {
		t.Errorf("factor = %s, want 0", adj.RealValueFactor)
	}
}

func TestSettleExactDeliveryNoAdjustment(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, 20, false, false, 0)
	f.store.delivered[plan.ID] = 20

	adj := f.settle(t, plan.ID)
	if adj.Kind != repository.KindNone {
		t.Fatalf("kind = %s, want none", adj.Kind)
	}
	if !adj.CreditAmount.IsZero() {
		t.Errorf("credit = %s, want 0", adj.CreditAmount)
	}
	if !adj.RealValueFactor.Equal(decimal.NewFromInt(1)) {
		t.Errorf("factor = %s, want 1", adj.RealValueFactor)
	}
}

func TestSettleGuaranteeCredit(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, 20, false, true, 15)
	f.store.delivered[plan.ID] = 10

	adj := f.settle(t, plan.ID)
	if adj.Kind != repository.KindCredit {
		t.Fatalf("kind = %s, want credit", adj.Kind)
	}
	// max(expected-delivered, guaranteedMin-delivered, 0) = max(10, 5, 0).
	if !adj.CreditAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("credit = %s, want 10", adj.CreditAmount)
	}
}

func TestSettleSurcharge(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, 10, false, false, 0)
	f.store.delivered[plan.ID] = 14

	adj := f.settle(t, plan.ID)
	if adj.Kind != repository.KindSurcharge {
		t.Fatalf("kind = %s, want surcharge", adj.Kind)
	}
	if !adj.CreditAmount.Equal(decimal.NewFromInt(4)) {
		t.Errorf("surcharge = %s, want 4", adj.CreditAmount)
	}
}

func TestSettleZeroExpectedSkips(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, 0, false, false, 0)
	f.store.delivered[plan.ID] = 5

	adj := f.settle(t, plan.ID)
	if adj != nil {
		t.Fatalf("adjustment = %+v, want skipped period", adj)
	}
	if len(f.store.adjustments) != 0 {
		t.Error("adjustment row written for skipped period")
	}
}

func TestSettleIdempotentAcrossCarryoverWriteback(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, 20, true, false, 0)
	f.store.delivered[plan.ID] = 12

	first := f.settle(t, plan.ID)
	if first.Expected != 20 || !first.CreditAmount.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("first run = expected %d credit %s", first.Expected, first.CreditAmount)
	}
	// The write-back already advanced the plan's carryover to 8.
	if got := f.store.plans[plan.ID].CarryoverBalance; got != 8 {
		t.Fatalf("carryover = %d, want 8", got)
	}

	second := f.settle(t, plan.ID)
	if second.Expected != first.Expected ||
		!second.CreditAmount.Equal(first.CreditAmount) ||
		!second.RealValueFactor.Equal(first.RealValueFactor) ||
		second.Kind != first.Kind ||
		second.Note != first.Note {
		t.Errorf("re-settle differs: first %+v, second %+v", first, second)
	}
	if f.bus.count("billing.adjustment.settled") != 1 {
		t.Error("settled event published again on re-settle")
	}
}

func TestSettleCarryoverRoundTrip(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, 20, true, false, 0)
	f.store.delivered[plan.ID] = 12

	f.settle(t, plan.ID)

	// Period N+1: expected = baseQuota + max(expected(N) - delivered(N), 0).
	f.store.delivered[plan.ID] = 28
	nextStart, nextEnd := periodEnd, periodEnd.AddDate(0, 1, 0)
	adj, err := f.svc.Settle(context.Background(), plan.ID, nextStart, nextEnd)
	if err != nil {
		t.Fatalf("Settle N+1: %v", err)
	}
	if adj.Expected != 28 {
		t.Fatalf("expected(N+1) = %d, want 20+8", adj.Expected)
	}
	if adj.Kind != repository.KindNone {
		t.Errorf("kind = %s, want none for exact delivery", adj.Kind)
	}
	if got := f.store.plans[plan.ID].CarryoverBalance; got != 0 {
		t.Errorf("carryover after full delivery = %d, want 0", got)
	}
}

func TestSettleAppliedIsTerminal(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, 20, false, false, 0)
	f.store.delivered[plan.ID] = 0

	first := f.settle(t, plan.ID)
	if err := f.svc.ApplyQuietMarketRefunds(context.Background()); err != nil {
		t.Fatalf("ApplyQuietMarketRefunds: %v", err)
	}

	// Deliveries change retroactively; the applied adjustment must not.
	f.store.delivered[plan.ID] = 99
	second := f.settle(t, plan.ID)
	if second.Status != repository.StatusApplied {
		t.Fatalf("status = %s, want applied", second.Status)
	}
	if second.Delivered != first.Delivered || !second.CreditAmount.Equal(first.CreditAmount) {
		t.Errorf("applied adjustment rewritten: %+v", second)
	}
}

// ── Quiet market refunds ──────────────────────────────────────────────────────

func TestApplyQuietMarketRefunds(t *testing.T) {
	f := newFixture(t)
	quiet := f.plan(t, 20, false, false, 0)
	busy := f.plan(t, 10, false, false, 0)
	f.store.delivered[quiet.ID] = 0
	f.store.delivered[busy.ID] = 5

	f.settle(t, quiet.ID)
	f.settle(t, busy.ID)

	if err := f.svc.ApplyQuietMarketRefunds(context.Background()); err != nil {
		t.Fatalf("ApplyQuietMarketRefunds: %v", err)
	}

	if len(f.store.refundsApplied) != 1 {
		t.Fatalf("refunds applied = %d, want only the quiet plan", len(f.store.refundsApplied))
	}
	refund := f.store.refundsApplied[0]
	if refund.PlanID != quiet.ID || !refund.Amount.Equal(decimal.NewFromInt(20)) {
		t.Errorf("refund = %+v", refund)
	}
	if f.bus.count("billing.refund.applied") != 1 {
		t.Error("expected one refund event")
	}

	// Re-running finds nothing pending.
	if err := f.svc.ApplyQuietMarketRefunds(context.Background()); err != nil {
		t.Fatalf("second ApplyQuietMarketRefunds: %v", err)
	}
	if len(f.store.refundsApplied) != 1 {
		t.Error("refund applied twice")
	}
}

// ── Monthly sweep ─────────────────────────────────────────────────────────────

func TestRunMonthlyReconciliationSettlesPreviousMonth(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, 20, false, false, 0)
	f.store.delivered[plan.ID] = 0

	if err := f.svc.RunMonthlyReconciliation(context.Background()); err != nil {
		t.Fatalf("RunMonthlyReconciliation: %v", err)
	}

	// Clock is 2026-06-03, so the settled period is May 2026.
	adj, err := f.store.GetAdjustment(context.Background(), plan.ID, periodStart, periodEnd)
	if err != nil {
		t.Fatalf("adjustment for May not found: %v", err)
	}
	if adj.Status != repository.StatusApplied {
		t.Errorf("quiet-market adjustment status = %s, want applied by the sweep", adj.Status)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestCreatePlanValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreatePlan(context.Background(), PlanParams{OwnerUserID: f.owner, BaseQuota: -1})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("negative quota err = %v, want validation", err)
	}

	_, err = f.svc.CreatePlan(context.Background(), PlanParams{OwnerUserID: f.owner, BaseQuota: 10, GuaranteeEnabled: true})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("guarantee without minimum err = %v, want validation", err)
	}
}

func TestSettleInvalidPeriod(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, 10, false, false, 0)

	if _, err := f.svc.Settle(context.Background(), plan.ID, periodEnd, periodStart); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation for inverted period", err)
	}
}
