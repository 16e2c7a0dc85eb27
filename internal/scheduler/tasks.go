package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskAddonLifecycleCheck = "addons.lifecycle.check"

const TaskAddonRenewals = "addons.renewals.run"

const TaskAddonUpsellReminders = "addons.upsell.reminders"

const TaskBillingReconciliation = "billing.reconciliation.run"

const TaskBillingSettlePlan = "billing.plan.settle"

// SettlePlanPayload targets a single plan and period, used to replay a
// settlement that failed during the monthly sweep.
type SettlePlanPayload struct {
	PlanID      string    `json:"planId"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

func NewSettlePlanTask(payload SettlePlanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingSettlePlan, data), nil
}

func ParseSettlePlanPayload(task *asynq.Task) (SettlePlanPayload, error) {
	var payload SettlePlanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SettlePlanPayload{}, err
	}
	return payload, nil
}

// NewTickTask builds a payload-less periodic task.
func NewTickTask(taskType string) *asynq.Task {
	return asynq.NewTask(taskType, nil)
}
