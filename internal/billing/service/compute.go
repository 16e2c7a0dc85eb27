package service

import (
	"fmt"

	"leaddesk_backend/internal/billing/repository"

	"github.com/shopspring/decimal"
)

// factorPlaces matches the NUMERIC(10,4) column; re-running a settlement
// must reproduce the stored factor exactly.
const factorPlaces = 4

// Outcome is the pure result of reconciling one (plan, period).
type Outcome struct {
	// Skip is set when expected <= 0: the period produces no adjustment.
	Skip            bool
	Expected        int
	Delivered       int
	Kind            repository.AdjustmentKind
	CreditAmount    decimal.Decimal
	RealValueFactor decimal.Decimal
	Note            string
	// NextCarryover is the unused quota rolled into the following period.
	// Only meaningful when the plan has carryover enabled.
	NextCarryover int
}

// computeSettlement applies the reconciliation decision rules to one
// period's delivered count. The expected volume is passed in explicitly
// so a re-settle can reuse the value the first run recorded instead of
// the plan's already-advanced carryover.
func computeSettlement(plan repository.Plan, expected, delivered int) Outcome {
	if expected <= 0 {
		return Outcome{Skip: true, Expected: expected, Delivered: delivered}
	}

	guaranteedMin := plan.BaseQuota
	if plan.GuaranteeEnabled {
		guaranteedMin = plan.GuaranteedMinimum
	}

	out := Outcome{
		Expected:        expected,
		Delivered:       delivered,
		Kind:            repository.KindNone,
		CreditAmount:    decimal.Zero,
		RealValueFactor: decimal.NewFromInt(int64(delivered)).DivRound(decimal.NewFromInt(int64(expected)), factorPlaces),
	}

	switch {
	case delivered == 0:
		// Quiet market: the full quota comes back as credit.
		out.Kind = repository.KindCredit
		out.CreditAmount = decimal.NewFromInt(int64(expected))
		out.Note = fmt.Sprintf("quiet market: 0 of %d expected leads delivered", expected)
	case delivered < expected || (plan.GuaranteeEnabled && delivered < guaranteedMin):
		credit := max(expected-delivered, guaranteedMin-delivered, 0)
		if credit > 0 {
			out.Kind = repository.KindCredit
			out.CreditAmount = decimal.NewFromInt(int64(credit))
			out.Note = fmt.Sprintf("under-delivery: %d of %d expected leads delivered", delivered, expected)
		} else {
			out.Note = fmt.Sprintf("delivered %d against %d expected", delivered, expected)
		}
	case delivered == expected:
		out.Note = fmt.Sprintf("delivered matches expected volume of %d", expected)
	default:
		out.Kind = repository.KindSurcharge
		out.CreditAmount = decimal.NewFromInt(int64(delivered - expected))
		out.Note = fmt.Sprintf("over-delivery: %d of %d expected leads delivered", delivered, expected)
	}

	if plan.CarryoverEnabled {
		out.NextCarryover = max(expected-delivered, 0)
	}
	return out
}
