package scheduler

import (
	"context"
	"testing"
	"time"

	billingrepo "leaddesk_backend/internal/billing/repository"
	"leaddesk_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type fakeAddonRunner struct {
	lifecycleCalls int
	renewalCalls   int
	upsellCalls    int
}

func (r *fakeAddonRunner) RunLifecycleCheck(context.Context) error {
	r.lifecycleCalls++
	return nil
}

func (r *fakeAddonRunner) RunAutoRenewals(context.Context) error {
	r.renewalCalls++
	return nil
}

func (r *fakeAddonRunner) RunUpsellReminders(context.Context) error {
	r.upsellCalls++
	return nil
}

type fakeBillingRunner struct {
	reconcileCalls int
	settled        []uuid.UUID
}

func (r *fakeBillingRunner) RunMonthlyReconciliation(context.Context) error {
	r.reconcileCalls++
	return nil
}

func (r *fakeBillingRunner) Settle(_ context.Context, planID uuid.UUID, _, _ time.Time) (*billingrepo.Adjustment, error) {
	r.settled = append(r.settled, planID)
	return &billingrepo.Adjustment{ID: uuid.New(), PlanID: planID}, nil
}

func newTestWorker() (*Worker, *fakeAddonRunner, *fakeBillingRunner) {
	addons := &fakeAddonRunner{}
	billing := &fakeBillingRunner{}
	w := &Worker{
		addons:  addons,
		billing: billing,
		log:     logger.New("development"),
	}
	return w, addons, billing
}

func TestWorkerDispatchesTicks(t *testing.T) {
	w, addons, billing := newTestWorker()
	ctx := context.Background()

	if err := w.handleLifecycleCheck(ctx, NewTickTask(TaskAddonLifecycleCheck)); err != nil {
		t.Fatalf("lifecycle: %v", err)
	}
	if err := w.handleRenewals(ctx, NewTickTask(TaskAddonRenewals)); err != nil {
		t.Fatalf("renewals: %v", err)
	}
	if err := w.handleUpsellReminders(ctx, NewTickTask(TaskAddonUpsellReminders)); err != nil {
		t.Fatalf("upsell: %v", err)
	}
	if err := w.handleReconciliation(ctx, NewTickTask(TaskBillingReconciliation)); err != nil {
		t.Fatalf("reconciliation: %v", err)
	}

	if addons.lifecycleCalls != 1 || addons.renewalCalls != 1 || addons.upsellCalls != 1 {
		t.Errorf("addon runner calls = %+v", addons)
	}
	if billing.reconcileCalls != 1 {
		t.Errorf("reconcile calls = %d", billing.reconcileCalls)
	}
}

func TestWorkerHandlesSettlePlan(t *testing.T) {
	w, _, billing := newTestWorker()
	planID := uuid.New()

	task, err := NewSettlePlanTask(SettlePlanPayload{
		PlanID:      planID.String(),
		PeriodStart: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewSettlePlanTask: %v", err)
	}

	if err := w.handleSettlePlan(context.Background(), task); err != nil {
		t.Fatalf("handleSettlePlan: %v", err)
	}
	if len(billing.settled) != 1 || billing.settled[0] != planID {
		t.Errorf("settled plans = %v", billing.settled)
	}
}

func TestWorkerRejectsMalformedSettlePayload(t *testing.T) {
	w, _, billing := newTestWorker()

	task := asynq.NewTask(TaskBillingSettlePlan, []byte("{not json"))
	if err := w.handleSettlePlan(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed payload")
	}

	task = asynq.NewTask(TaskBillingSettlePlan, []byte(`{"planId":"not-a-uuid"}`))
	if err := w.handleSettlePlan(context.Background(), task); err == nil {
		t.Fatal("expected error for invalid plan id")
	}
	if len(billing.settled) != 0 {
		t.Error("settle ran despite bad payload")
	}
}

type testSchedulerConfig struct {
	redisURL string
	queue    string
}

func (c testSchedulerConfig) GetRedisURL() string           { return c.redisURL }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool     { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string     { return c.queue }
func (c testSchedulerConfig) GetAsynqConcurrency() int      { return 1 }
func (c testSchedulerConfig) GetLifecycleCheckSpec() string { return "0 * * * *" }
func (c testSchedulerConfig) GetRenewalCheckSpec() string   { return "30 * * * *" }
func (c testSchedulerConfig) GetUpsellCheckSpec() string    { return "0 9 * * *" }
func (c testSchedulerConfig) GetReconciliationSpec() string { return "0 2 1 * *" }

func TestEnqueueSettlePlanAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(testSchedulerConfig{
		redisURL: "redis://" + mr.Addr(),
		queue:    "leaddesk",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	err = client.EnqueueSettlePlan(context.Background(), SettlePlanPayload{
		PlanID:      uuid.New().String(),
		PeriodStart: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()

	pending, err := inspector.ListPendingTasks("leaddesk")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending tasks = %d, want 1", len(pending))
	}

	parsed, err := ParseSettlePlanPayload(asynq.NewTask(pending[0].Type, pending[0].Payload))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if parsed.PeriodStart.Month() != time.May {
		t.Errorf("period start = %s", parsed.PeriodStart)
	}
}

func TestRedisClientOptParsesURL(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@localhost:6380/2", false)
	if err != nil {
		t.Fatalf("redisClientOpt: %v", err)
	}
	if opt.Addr != "localhost:6380" || opt.Password != "secret" || opt.DB != 2 {
		t.Errorf("opt = %+v", opt)
	}
	if opt.TLSConfig != nil {
		t.Error("unexpected TLS config for redis:// URL")
	}

	opt, err = redisClientOpt("rediss://localhost:6379", true)
	if err != nil {
		t.Fatalf("redisClientOpt tls: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Error("expected insecure TLS config")
	}

	if _, err := redisClientOpt("::bad::", false); err == nil {
		t.Error("expected error for malformed URL")
	}
}
