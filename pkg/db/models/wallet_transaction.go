package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/enums"
)

// WalletTransaction is an immutable ledger entry. Amount is signed: credits
// are positive, withdrawals negative.
type WalletTransaction struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	WalletID uuid.UUID `gorm:"column:wallet_id;type:uuid;not null;index"`

	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric;not null"`
	Type        enums.TransactionType `gorm:"column:type;type:text;not null"`
	Description string                `gorm:"column:description;type:text"`

	// ReferenceID points at the source record (order, withdrawal request).
	ReferenceID *uuid.UUID `gorm:"column:reference_id;type:uuid;index"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
