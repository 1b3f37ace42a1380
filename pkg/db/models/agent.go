package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/enums"
)

// Agent is a delivery courier eligible for dispatch. CurrentActiveOrders is a
// denormalized counter maintained in the same transaction as the assignment
// rows it summarizes.
type Agent struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID         `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Name        string            `gorm:"column:name;type:text;not null"`
	Phone       string            `gorm:"column:phone;type:text"`
	VehicleType enums.VehicleType `gorm:"column:vehicle_type;type:text;not null;default:'motorcycle'"`

	IsActive bool              `gorm:"column:is_active;not null;default:true"`
	Status   enums.AgentStatus `gorm:"column:status;type:text;not null;default:'offline'"`

	CurrentLat        *float64   `gorm:"column:current_lat"`
	CurrentLon        *float64   `gorm:"column:current_lon"`
	PositionUpdatedAt *time.Time `gorm:"column:position_updated_at"`

	CurrentActiveOrders int `gorm:"column:current_active_orders;not null;default:0"`
	MaxActiveOrders     int `gorm:"column:max_active_orders;not null;default:3"`

	TotalDeliveries    int             `gorm:"column:total_deliveries;not null;default:0"`
	TotalEarnings      decimal.Decimal `gorm:"column:total_earnings;type:numeric;not null;default:0"`
	CurrentDayEarnings decimal.Decimal `gorm:"column:current_day_earnings;type:numeric;not null;default:0"`
	AverageRating      float64         `gorm:"column:average_rating;not null;default:0"`
	RatingCount        int             `gorm:"column:rating_count;not null;default:0"`

	// Version is the optimistic-concurrency token for this aggregate.
	Version int `gorm:"column:version;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Agent) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Position returns the last-known coordinates when both are set.
func (a *Agent) Position() (lat, lon float64, ok bool) {
	if a.CurrentLat == nil || a.CurrentLon == nil {
		return 0, 0, false
	}
	return *a.CurrentLat, *a.CurrentLon, true
}

// HasCapacity reports whether the agent can take one more active order.
func (a *Agent) HasCapacity() bool {
	return a.CurrentActiveOrders < a.MaxActiveOrders
}

// Dispatchable reports whether the agent qualifies for matching right now.
func (a *Agent) Dispatchable() bool {
	_, _, hasPosition := a.Position()
	return a.IsActive && a.Status == enums.AgentStatusAvailable && a.HasCapacity() && hasPosition
}
