package service

import (
	"testing"

	"leaddesk_backend/internal/billing/repository"
)

func TestComputeSettlement(t *testing.T) {
	tests := []struct {
		name       string
		plan       repository.Plan
		expected   int
		delivered  int
		wantKind   repository.AdjustmentKind
		wantAmount int64
		wantFactor string
	}{
		{
			name:       "quiet market refunds the full quota",
			plan:       repository.Plan{BaseQuota: 20},
			expected:   20,
			delivered:  0,
			wantKind:   repository.KindCredit,
			wantAmount: 20,
			wantFactor: "0",
		},
		{
			name:       "under-delivery credits the shortfall",
			plan:       repository.Plan{BaseQuota: 20},
			expected:   20,
			delivered:  12,
			wantKind:   repository.KindCredit,
			wantAmount: 8,
			wantFactor: "0.6",
		},
		{
			name:       "guarantee shortfall wins when larger",
			plan:       repository.Plan{BaseQuota: 20, GuaranteeEnabled: true, GuaranteedMinimum: 15},
			expected:   20,
			delivered:  10,
			wantKind:   repository.KindCredit,
			wantAmount: 10,
			wantFactor: "0.5",
		},
		{
			name:       "delivery above guarantee but below quota still credits the quota gap",
			plan:       repository.Plan{BaseQuota: 20, GuaranteeEnabled: true, GuaranteedMinimum: 15},
			expected:   20,
			delivered:  17,
			wantKind:   repository.KindCredit,
			wantAmount: 3,
			wantFactor: "0.85",
		},
		{
			name:       "exact delivery needs no adjustment",
			plan:       repository.Plan{BaseQuota: 20},
			expected:   20,
			delivered:  20,
			wantKind:   repository.KindNone,
			wantAmount: 0,
			wantFactor: "1",
		},
		{
			name:       "over-delivery surcharges the excess",
			plan:       repository.Plan{BaseQuota: 10},
			expected:   10,
			delivered:  14,
			wantKind:   repository.KindSurcharge,
			wantAmount: 4,
			wantFactor: "1.4",
		},
		{
			name:       "factor rounds to four places",
			plan:       repository.Plan{BaseQuota: 3},
			expected:   3,
			delivered:  1,
			wantKind:   repository.KindCredit,
			wantAmount: 2,
			wantFactor: "0.3333",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := computeSettlement(tc.plan, tc.expected, tc.delivered)
			if out.Skip {
				t.Fatal("unexpected skip")
			}
			if out.Kind != tc.wantKind {
				t.Errorf("kind = %s, want %s", out.Kind, tc.wantKind)
			}
			if out.CreditAmount.IntPart() != tc.wantAmount || !out.CreditAmount.IsInteger() {
				t.Errorf("amount = %s, want %d", out.CreditAmount, tc.wantAmount)
			}
			if got := out.RealValueFactor.String(); got != tc.wantFactor {
				t.Errorf("factor = %s, want %s", got, tc.wantFactor)
			}
		})
	}
}

func TestComputeSettlementSkipsZeroExpected(t *testing.T) {
	out := computeSettlement(repository.Plan{BaseQuota: 0}, 0, 5)
	if !out.Skip {
		t.Fatal("expected skip when nothing was expected")
	}
}

func TestComputeSettlementCarryover(t *testing.T) {
	plan := repository.Plan{BaseQuota: 20, CarryoverEnabled: true}

	if out := computeSettlement(plan, 20, 12); out.NextCarryover != 8 {
		t.Errorf("carryover on under-delivery = %d, want 8", out.NextCarryover)
	}
	if out := computeSettlement(plan, 20, 25); out.NextCarryover != 0 {
		t.Errorf("carryover on over-delivery = %d, want 0", out.NextCarryover)
	}

	plan.CarryoverEnabled = false
	if out := computeSettlement(plan, 20, 12); out.NextCarryover != 0 {
		t.Errorf("carryover without the feature = %d, want 0", out.NextCarryover)
	}
}
