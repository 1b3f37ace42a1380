package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/enums"
)

// Assignment links an order to an agent for a single dispatch attempt. An
// order has at most one active assignment at a time; rejected attempts stay
// on file with IsActive=false.
type Assignment struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	AgentID uuid.UUID `gorm:"column:agent_id;type:uuid;not null;index"`

	Status   enums.AssignmentStatus `gorm:"column:status;type:text;not null;default:'assigned'"`
	IsActive bool                   `gorm:"column:is_active;not null;default:true"`

	DeliveryFee decimal.Decimal `gorm:"column:delivery_fee;type:numeric;not null;default:0"`
	TipAmount   decimal.Decimal `gorm:"column:tip_amount;type:numeric;not null;default:0"`
	DistanceKm  float64         `gorm:"column:distance_km;not null;default:0"`

	AssignedAt       time.Time  `gorm:"column:assigned_at;not null"`
	AcceptedAt       *time.Time `gorm:"column:accepted_at"`
	RejectedAt       *time.Time `gorm:"column:rejected_at"`
	RejectReason     string     `gorm:"column:reject_reason;type:text"`
	PickedUpAt       *time.Time `gorm:"column:picked_up_at"`
	OutForDeliveryAt *time.Time `gorm:"column:out_for_delivery_at"`
	DeliveredAt      *time.Time `gorm:"column:delivered_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Order *Order `gorm:"foreignKey:OrderID"`
	Agent *Agent `gorm:"foreignKey:AgentID"`
}

func (a *Assignment) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
