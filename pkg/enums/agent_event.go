package enums

import "fmt"

// AgentEvent names the actions an agent can report against its active assignment.
type AgentEvent string

const (
	AgentEventAccept         AgentEvent = "accept"
	AgentEventReject         AgentEvent = "reject"
	AgentEventPickUp         AgentEvent = "pick_up"
	AgentEventOutForDelivery AgentEvent = "out_for_delivery"
	AgentEventDeliver        AgentEvent = "deliver"
)

var validAgentEvents = []AgentEvent{
	AgentEventAccept,
	AgentEventReject,
	AgentEventPickUp,
	AgentEventOutForDelivery,
	AgentEventDeliver,
}

// String implements fmt.Stringer.
func (e AgentEvent) String() string {
	return string(e)
}

// IsValid reports whether the value is a known AgentEvent.
func (e AgentEvent) IsValid() bool {
	for _, candidate := range validAgentEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseAgentEvent converts raw input into an AgentEvent.
func ParseAgentEvent(value string) (AgentEvent, error) {
	for _, candidate := range validAgentEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid agent event %q", value)
}
