package dispatch

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/talava/dispatch-backend/pkg/enums"
)

// AssignInput binds an agent to a ready order.
type AssignInput struct {
	OrderID   uuid.UUID
	AgentID   uuid.UUID
	TipAmount decimal.Decimal
}

// AgentEventInput records one step of the delivery sub-timeline.
type AgentEventInput struct {
	OrderID uuid.UUID
	AgentID uuid.UUID
	Event   enums.AgentEvent
	// Reason is required for reject events.
	Reason string
}
