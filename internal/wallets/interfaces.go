package wallets

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/pagination"
)

// Repository defines persistence operations for wallets, their transaction
// ledger, and withdrawal requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	CreateWallet(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)
	// UpdateWalletGuarded applies updates only when the stored version still
	// matches expectedVersion; zero rows affected means a lost race.
	UpdateWalletGuarded(ctx context.Context, walletID uuid.UUID, expectedVersion int, updates map[string]any) (int64, error)

	CreateTransaction(ctx context.Context, entry *models.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error)
	// SumTransactions recomputes the balance from the ledger.
	SumTransactions(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)

	CreateWithdrawal(ctx context.Context, req *models.WithdrawalRequest) (*models.WithdrawalRequest, error)
	FindWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, id uuid.UUID, updates map[string]any) error
}
