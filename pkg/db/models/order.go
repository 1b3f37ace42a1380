package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/enums"
)

// Order is the fulfillment aggregate. Status and history are mutated only
// through the order lifecycle service; orders are never deleted, only moved to
// a terminal status.
type Order struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID uuid.UUID         `gorm:"column:customer_id;type:uuid;not null"`
	VendorID   uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null"`
	Currency   enums.Currency    `gorm:"column:currency;type:text;not null;default:'TRY'"`
	Total      decimal.Decimal   `gorm:"column:total;type:numeric;not null"`
	Status     enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`

	// Pickup is the vendor location; dropoff is the delivery address.
	PickupLat  *float64 `gorm:"column:pickup_lat"`
	PickupLon  *float64 `gorm:"column:pickup_lon"`
	DropoffLat *float64 `gorm:"column:dropoff_lat"`
	DropoffLon *float64 `gorm:"column:dropoff_lon"`

	CancelReason *string    `gorm:"column:cancel_reason"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at"`

	// Version is the optimistic-concurrency token for this aggregate.
	Version int `gorm:"column:version;not null;default:0"`

	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Assignments   []Assignment         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// PickupPoint returns the vendor coordinates when both are set.
func (o *Order) PickupPoint() (lat, lon float64, ok bool) {
	if o.PickupLat == nil || o.PickupLon == nil {
		return 0, 0, false
	}
	return *o.PickupLat, *o.PickupLon, true
}

// DropoffPoint returns the delivery coordinates when both are set.
func (o *Order) DropoffPoint() (lat, lon float64, ok bool) {
	if o.DropoffLat == nil || o.DropoffLon == nil {
		return 0, 0, false
	}
	return *o.DropoffLat, *o.DropoffLon, true
}
