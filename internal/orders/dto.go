package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/talava/dispatch-backend/pkg/enums"
)

// Actor identifies who triggered a lifecycle change, recorded in history rows.
type Actor struct {
	Kind enums.ActorKind
	ID   *uuid.UUID
}

// SystemActor is used for transitions the platform performs on its own.
var SystemActor = Actor{Kind: enums.ActorKindSystem}

// CreateOrderItemInput is one line of a new order.
type CreateOrderItemInput struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// CreateOrderInput captures a checkout handed to the fulfillment core.
type CreateOrderInput struct {
	CustomerID uuid.UUID
	VendorID   uuid.UUID
	Currency   enums.Currency
	PickupLat  *float64
	PickupLon  *float64
	DropoffLat *float64
	DropoffLon *float64
	Items      []CreateOrderItemInput
}

// TransitionInput moves an order to a new status.
type TransitionInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	Note    string
	Actor   Actor
}

// CancelOrderInput cancels a whole order.
type CancelOrderInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   Actor
}

// CancelItemInput cancels a single order item.
type CancelItemInput struct {
	OrderID uuid.UUID
	ItemID  uuid.UUID
	Reason  string
	Actor   Actor
}
