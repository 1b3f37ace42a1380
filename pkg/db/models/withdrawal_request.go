package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/enums"
)

// WithdrawalRequest tracks a payout from request through admin review to
// completion. No money moves until the request completes.
type WithdrawalRequest struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`

	Amount      decimal.Decimal `gorm:"column:amount;type:numeric;not null"`
	IBAN        string          `gorm:"column:iban;type:text;not null"`
	AccountName string          `gorm:"column:account_name;type:text;not null"`
	Note        string          `gorm:"column:note;type:text"`

	Status    enums.WithdrawalStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	AdminNote string                 `gorm:"column:admin_note;type:text"`

	ApprovedAt  *time.Time `gorm:"column:approved_at"`
	ApprovedBy  *uuid.UUID `gorm:"column:approved_by;type:uuid"`
	RejectedAt  *time.Time `gorm:"column:rejected_at"`
	RejectedBy  *uuid.UUID `gorm:"column:rejected_by;type:uuid"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	CompletedBy *uuid.UUID `gorm:"column:completed_by;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *WithdrawalRequest) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
