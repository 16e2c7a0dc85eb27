package scheduler

import (
	"context"
	"fmt"

	"leaddesk_backend/platform/config"
	"leaddesk_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic registers the recurring ticks with asynq and keeps them
// enqueued on their cron cadence. The worker picks them up from the
// same queue.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
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

	sched := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})
	p := &Periodic{scheduler: sched, log: log}

	ticks := []struct {
		spec     string
		taskType string
	}{
		{cfg.GetLifecycleCheckSpec(), TaskAddonLifecycleCheck},
		{cfg.GetRenewalCheckSpec(), TaskAddonRenewals},
		{cfg.GetUpsellCheckSpec(), TaskAddonUpsellReminders},
		{cfg.GetReconciliationSpec(), TaskBillingReconciliation},
	}
	for _, tick := range ticks {
		entryID, err := sched.Register(tick.spec, NewTickTask(tick.taskType), asynq.Queue(queue))
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", tick.taskType, err)
		}
		log.Info("registered periodic task", "task", tick.taskType, "spec", tick.spec, "entryId", entryID)
	}

	return p, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
	}
}
