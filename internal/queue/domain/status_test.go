package domain

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusAssigned},
		{StatusPending, StatusDeclined},
		{StatusAssigned, StatusInProgress},
		{StatusAssigned, StatusDeclined},
		{StatusInProgress, StatusCompleted},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusPending, StatusInProgress},
		{StatusPending, StatusCompleted},
		{StatusAssigned, StatusCompleted},
		{StatusDeclined, StatusPending},
		{StatusDeclined, StatusAssigned},
		{StatusCompleted, StatusInProgress},
		{StatusCompleted, StatusDeclined},
		{StatusInProgress, StatusDeclined},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be forbidden", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range []Status{StatusDeclined, StatusCompleted} {
		if !IsTerminal(status) {
			t.Errorf("expected %s to be terminal", status)
		}
	}
	for _, status := range []Status{StatusPending, StatusAssigned, StatusInProgress} {
		if IsTerminal(status) {
			t.Errorf("expected %s to be non-terminal", status)
		}
	}
}
