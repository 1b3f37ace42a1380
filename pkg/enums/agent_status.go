package enums

import "fmt"

// AgentStatus tracks a delivery agent's duty state.
type AgentStatus string

const (
	AgentStatusOffline   AgentStatus = "offline"
	AgentStatusAvailable AgentStatus = "available"
	AgentStatusBusy      AgentStatus = "busy"
)

var validAgentStatuses = []AgentStatus{
	AgentStatusOffline,
	AgentStatusAvailable,
	AgentStatusBusy,
}

// String implements fmt.Stringer.
func (s AgentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AgentStatus.
func (s AgentStatus) IsValid() bool {
	for _, candidate := range validAgentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAgentStatus converts raw input into an AgentStatus.
func ParseAgentStatus(value string) (AgentStatus, error) {
	for _, candidate := range validAgentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid agent status %q", value)
}
