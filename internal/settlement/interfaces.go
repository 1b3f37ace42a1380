package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
)

// Repository defines persistence operations for earnings records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, earning *models.Earning) (*models.Earning, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.Earning, error)
	ListForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Earning, error)
}

// WalletCreditor appends a signed ledger entry to a user's wallet inside the
// caller's transaction. The wallets service implements it.
type WalletCreditor interface {
	CreditInTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, txType enums.TransactionType, description string, referenceID *uuid.UUID) error
}
