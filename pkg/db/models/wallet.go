package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/enums"
)

// Wallet holds one user's balance. Balance is always the sum of the wallet's
// transaction amounts; the column exists so reads don't aggregate.
type Wallet struct {
	ID       uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID   uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Balance  decimal.Decimal `gorm:"column:balance;type:numeric;not null;default:0"`
	Currency enums.Currency  `gorm:"column:currency;type:text;not null;default:'TRY'"`

	// Version is the optimistic-concurrency token for balance updates.
	Version int `gorm:"column:version;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
