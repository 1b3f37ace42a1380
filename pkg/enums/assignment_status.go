package enums

import "fmt"

// AssignmentStatus tracks the delivery sub-timeline of one assignment.
type AssignmentStatus string

const (
	AssignmentStatusAssigned       AssignmentStatus = "assigned"
	AssignmentStatusAccepted       AssignmentStatus = "accepted"
	AssignmentStatusRejected       AssignmentStatus = "rejected"
	AssignmentStatusPickedUp       AssignmentStatus = "picked_up"
	AssignmentStatusOutForDelivery AssignmentStatus = "out_for_delivery"
	AssignmentStatusDelivered      AssignmentStatus = "delivered"
	// AssignmentStatusCancelled marks an assignment retired because the
	// order itself was cancelled, not because the agent rejected it.
	AssignmentStatusCancelled AssignmentStatus = "cancelled"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusAssigned,
	AssignmentStatusAccepted,
	AssignmentStatusRejected,
	AssignmentStatusPickedUp,
	AssignmentStatusOutForDelivery,
	AssignmentStatusDelivered,
	AssignmentStatusCancelled,
}

// String implements fmt.Stringer.
func (s AssignmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AssignmentStatus.
func (s AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAssignmentStatus converts raw input into an AssignmentStatus.
func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}
