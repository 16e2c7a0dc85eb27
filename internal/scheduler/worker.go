package scheduler

import (
	"context"
	"fmt"
	"time"

	billingrepo "leaddesk_backend/internal/billing/repository"
	"leaddesk_backend/platform/config"
	"leaddesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// AddonRunner is the slice of the addons service the worker drives.
type AddonRunner interface {
	RunLifecycleCheck(ctx context.Context) error
	RunAutoRenewals(ctx context.Context) error
	RunUpsellReminders(ctx context.Context) error
}

// BillingRunner is the slice of the billing service the worker drives.
type BillingRunner interface {
	RunMonthlyReconciliation(ctx context.Context) error
	Settle(ctx context.Context, planID uuid.UUID, periodStart, periodEnd time.Time) (*billingrepo.Adjustment, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	addons  AddonRunner
	billing BillingRunner
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, addons AddonRunner, billing BillingRunner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		addons:  addons,
		billing: billing,
		log:     log,
	}

	mux.HandleFunc(TaskAddonLifecycleCheck, w.handleLifecycleCheck)
	mux.HandleFunc(TaskAddonRenewals, w.handleRenewals)
	mux.HandleFunc(TaskAddonUpsellReminders, w.handleUpsellReminders)
	mux.HandleFunc(TaskBillingReconciliation, w.handleReconciliation)
	mux.HandleFunc(TaskBillingSettlePlan, w.handleSettlePlan)

	return w, nil
}

func (w *Worker) handleLifecycleCheck(ctx context.Context, _ *asynq.Task) error {
	w.log.Info("running addon lifecycle check")
	return w.addons.RunLifecycleCheck(ctx)
}

func (w *Worker) handleRenewals(ctx context.Context, _ *asynq.Task) error {
	w.log.Info("running addon auto-renewals")
	return w.addons.RunAutoRenewals(ctx)
}

func (w *Worker) handleUpsellReminders(ctx context.Context, _ *asynq.Task) error {
	w.log.Info("running addon upsell reminders")
	return w.addons.RunUpsellReminders(ctx)
}

func (w *Worker) handleReconciliation(ctx context.Context, _ *asynq.Task) error {
	w.log.Info("running monthly billing reconciliation")
	return w.billing.RunMonthlyReconciliation(ctx)
}

func (w *Worker) handleSettlePlan(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSettlePlanPayload(task)
	if err != nil {
		return err
	}

	planID, err := uuid.Parse(payload.PlanID)
	if err != nil {
		return err
	}

	_, err = w.billing.Settle(ctx, planID, payload.PeriodStart, payload.PeriodEnd)
	return err
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
