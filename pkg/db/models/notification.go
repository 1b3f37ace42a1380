package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/enums"
)

// Notification is a best-effort message to a user. Delivery failures never
// fail the operation that produced them.
type Notification struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`

	Type    enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title   string                 `gorm:"column:title;type:text;not null"`
	Message string                 `gorm:"column:message;type:text"`
	Payload json.RawMessage        `gorm:"column:payload;type:jsonb"`

	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
