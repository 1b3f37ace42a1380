package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Earning is the settlement record for one delivered order. The unique index
// on OrderID is what makes settlement idempotent.
type Earning struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AgentID uuid.UUID `gorm:"column:agent_id;type:uuid;not null;index"`
	OrderID uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`

	BaseDeliveryFee decimal.Decimal `gorm:"column:base_delivery_fee;type:numeric;not null"`
	DistanceBonus   decimal.Decimal `gorm:"column:distance_bonus;type:numeric;not null"`
	TipAmount       decimal.Decimal `gorm:"column:tip_amount;type:numeric;not null"`
	TotalEarning    decimal.Decimal `gorm:"column:total_earning;type:numeric;not null"`

	IsPaid bool       `gorm:"column:is_paid;not null;default:false"`
	PaidAt *time.Time `gorm:"column:paid_at"`

	EarnedAt  time.Time `gorm:"column:earned_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (e *Earning) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
