package wallets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/logger"
	"github.com/talava/dispatch-backend/pkg/metrics"
	"github.com/talava/dispatch-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier is the fire-and-forget notification sink.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message string, payload any)
}

// Service owns wallet balances, the transaction ledger, and the withdrawal
// workflow layered on top of them.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error)

	// CreditInTx appends one signed ledger entry and moves the materialized
	// balance in the same transaction. Negative amounts debit.
	CreditInTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, txType enums.TransactionType, description string, referenceID *uuid.UUID) error

	CreateWithdrawal(ctx context.Context, input CreateWithdrawalInput) (*models.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, input WithdrawalDecisionInput) error
	RejectWithdrawal(ctx context.Context, input WithdrawalDecisionInput) error
	CompleteWithdrawal(ctx context.Context, input WithdrawalDecisionInput) error
}

type service struct {
	repo     Repository
	tx       txRunner
	logg     *logger.Logger
	metrics  *metrics.DispatchMetrics
	notifier Notifier
}

// NewService builds the wallet service with its required dependencies.
func NewService(repo Repository, tx txRunner, logg *logger.Logger, m *metrics.DispatchMetrics, notifier Notifier) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallets repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{repo: repo, tx: tx, logg: logg, metrics: m, notifier: notifier}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet, err := s.repo.FindWalletByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error) {
	wallet, err := s.Get(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	entries, next, err := s.repo.ListTransactions(ctx, wallet.ID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet transactions")
	}
	return entries, next, nil
}

// getOrCreateInTx loads the user's wallet or opens an empty one.
func (s *service) getOrCreateInTx(ctx context.Context, repo Repository, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := repo.FindWalletByUser(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	wallet = &models.Wallet{
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: enums.CurrencyTRY,
	}
	if _, err := repo.CreateWallet(ctx, wallet); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return wallet, nil
}

func (s *service) CreditInTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, txType enums.TransactionType, description string, referenceID *uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if amount.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-zero")
	}
	if !txType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}

	repo := s.repo.WithTx(tx)
	wallet, err := s.getOrCreateInTx(ctx, repo, userID)
	if err != nil {
		return err
	}

	if err := repo.CreateTransaction(ctx, &models.WalletTransaction{
		WalletID:    wallet.ID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		ReferenceID: referenceID,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append wallet transaction")
	}

	affected, err := repo.UpdateWalletGuarded(ctx, wallet.ID, wallet.Version, map[string]any{
		"balance":    wallet.Balance.Add(amount),
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "wallet was modified concurrently")
	}
	return nil
}

func (s *service) CreateWithdrawal(ctx context.Context, input CreateWithdrawalInput) (*models.WithdrawalRequest, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if strings.TrimSpace(input.IBAN) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "iban required")
	}
	if strings.TrimSpace(input.AccountName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account name required")
	}

	var req *models.WithdrawalRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := s.getOrCreateInTx(ctx, repo, input.UserID)
		if err != nil {
			return err
		}
		// Funds are checked once, here. Approval does not re-validate.
		if wallet.Balance.LessThan(input.Amount) {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance,
				fmt.Sprintf("balance %s is below requested %s", wallet.Balance, input.Amount))
		}

		req = &models.WithdrawalRequest{
			UserID:      input.UserID,
			Amount:      input.Amount,
			IBAN:        strings.TrimSpace(input.IBAN),
			AccountName: strings.TrimSpace(input.AccountName),
			Note:        input.Note,
			Status:      enums.WithdrawalStatusPending,
		}
		if _, err := repo.CreateWithdrawal(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncWithdrawal(enums.WithdrawalStatusPending.String())
	s.notifier.Notify(ctx, input.UserID, enums.NotificationTypeWithdrawalUpdated,
		"Withdrawal requested", fmt.Sprintf("Your withdrawal of %s is pending review", input.Amount),
		map[string]any{"withdrawal_id": req.ID, "status": enums.WithdrawalStatusPending})
	return req, nil
}

func (s *service) ApproveWithdrawal(ctx context.Context, input WithdrawalDecisionInput) error {
	return s.decide(ctx, input, enums.WithdrawalStatusApproved)
}

func (s *service) RejectWithdrawal(ctx context.Context, input WithdrawalDecisionInput) error {
	return s.decide(ctx, input, enums.WithdrawalStatusRejected)
}

// decide handles the Pending -> Approved/Rejected edges. Neither moves money.
func (s *service) decide(ctx context.Context, input WithdrawalDecisionInput, target enums.WithdrawalStatus) error {
	if input.RequestID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id required")
	}
	if input.AdminID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}

	var userID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := s.loadWithdrawal(ctx, repo, input.RequestID)
		if err != nil {
			return err
		}
		userID = req.UserID

		if req.Status != enums.WithdrawalStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidWithdrawalState,
				fmt.Sprintf("cannot move %s request to %s", req.Status, target))
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":     target,
			"admin_note": input.Note,
			"updated_at": now,
		}
		if target == enums.WithdrawalStatusApproved {
			updates["approved_at"] = now
			updates["approved_by"] = input.AdminID
		} else {
			updates["rejected_at"] = now
			updates["rejected_by"] = input.AdminID
		}
		if err := repo.UpdateWithdrawal(ctx, req.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update withdrawal request")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.IncWithdrawal(target.String())
	s.notifier.Notify(ctx, userID, enums.NotificationTypeWithdrawalUpdated,
		"Withdrawal "+target.String(), "Your withdrawal request was "+target.String(),
		map[string]any{"withdrawal_id": input.RequestID, "status": target})
	return nil
}

func (s *service) CompleteWithdrawal(ctx context.Context, input WithdrawalDecisionInput) error {
	if input.RequestID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id required")
	}
	if input.AdminID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}

	var userID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := s.loadWithdrawal(ctx, repo, input.RequestID)
		if err != nil {
			return err
		}
		userID = req.UserID

		if req.Status != enums.WithdrawalStatusApproved {
			return pkgerrors.New(pkgerrors.CodeInvalidWithdrawalState,
				fmt.Sprintf("cannot complete a %s request", req.Status))
		}

		// The debit happens exactly here, as one negative ledger entry.
		requestID := req.ID
		if err := s.CreditInTx(ctx, tx, req.UserID, req.Amount.Neg(), enums.TransactionTypeWithdrawal,
			"withdrawal payout", &requestID); err != nil {
			return err
		}

		now := time.Now().UTC()
		return repo.UpdateWithdrawal(ctx, req.ID, map[string]any{
			"status":       enums.WithdrawalStatusCompleted,
			"admin_note":   input.Note,
			"completed_at": now,
			"completed_by": input.AdminID,
			"updated_at":   now,
		})
	})
	if err != nil {
		return err
	}

	s.metrics.IncWithdrawal(enums.WithdrawalStatusCompleted.String())
	s.notifier.Notify(ctx, userID, enums.NotificationTypeWithdrawalUpdated,
		"Withdrawal completed", "Your withdrawal was paid out",
		map[string]any{"withdrawal_id": input.RequestID, "status": enums.WithdrawalStatusCompleted})
	return nil
}

func (s *service) loadWithdrawal(ctx context.Context, repo Repository, id uuid.UUID) (*models.WithdrawalRequest, error) {
	req, err := repo.FindWithdrawal(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal request")
	}
	return req, nil
}
