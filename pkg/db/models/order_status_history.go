package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/enums"
)

// OrderStatusHistory is an immutable audit fact. Rows are only ever appended;
// the order's current status field is a cache of the latest row.
type OrderStatusHistory struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Note      string            `gorm:"column:note;type:text;not null"`
	ActorKind enums.ActorKind   `gorm:"column:actor_kind;type:text;not null"`
	ActorID   *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides gorm's pluralized default ("order_status_histories"),
// which does not match the migrated schema.
func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
