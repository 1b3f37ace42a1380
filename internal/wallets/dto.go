package wallets

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateWithdrawalInput opens a payout request against a user's wallet.
type CreateWithdrawalInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	IBAN        string
	AccountName string
	Note        string
}

// WithdrawalDecisionInput carries an admin decision on a pending request.
type WithdrawalDecisionInput struct {
	RequestID uuid.UUID
	AdminID   uuid.UUID
	Note      string
}
