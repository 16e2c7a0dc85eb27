// Package domain provides core business rules for the lead queue bounded context.
package domain

// Status is the routing state of one queue entry.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusDeclined   Status = "DECLINED"
)

// Assignment kinds recorded on an entry.
const (
	AssignmentManual    = "manual"
	AssignmentAutomatic = "automatic"
)

// transitions is the full transition table. Transitions past ASSIGNED are
// driven by the external fulfillment subsystem; we only validate them.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAssigned, StatusDeclined},
	StatusAssigned:   {StatusInProgress, StatusDeclined},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses with no outgoing transitions.
// Terminal entries are never physically deleted.
func IsTerminal(status Status) bool {
	return len(transitions[status]) == 0
}

// IsValid reports whether the value is a known status.
func IsValid(status Status) bool {
	switch status {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusDeclined:
		return true
	}
	return false
}
