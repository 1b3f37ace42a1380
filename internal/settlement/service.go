package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/internal/agents"
	"github.com/talava/dispatch-backend/pkg/db"
	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/logger"
	"github.com/talava/dispatch-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecordEarningInput describes the payout for one delivered order. The total
// credited is the sum of the three components.
type RecordEarningInput struct {
	OrderID         uuid.UUID
	AgentID         uuid.UUID
	BaseDeliveryFee decimal.Decimal
	DistanceBonus   decimal.Decimal
	TipAmount       decimal.Decimal
	DeliveredAt     time.Time
}

// Service settles delivered orders: one earning per order, credited to the
// agent's wallet, with the agent's load and lifetime totals updated in step.
type Service interface {
	RecordEarning(ctx context.Context, input RecordEarningInput) (*models.Earning, error)
	RecordEarningInTx(ctx context.Context, tx *gorm.DB, input RecordEarningInput) (*models.Earning, error)
	EarningsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Earning, error)
}

type service struct {
	repo    Repository
	agents  agents.Repository
	wallets WalletCreditor
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.DispatchMetrics
}

// NewService builds the settlement service with its required dependencies.
func NewService(repo Repository, agentsRepo agents.Repository, wallets WalletCreditor, tx txRunner, logg *logger.Logger, m *metrics.DispatchMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if agentsRepo == nil {
		return nil, fmt.Errorf("agents repository required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet creditor required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, agents: agentsRepo, wallets: wallets, tx: tx, logg: logg, metrics: m}, nil
}

func (s *service) RecordEarning(ctx context.Context, input RecordEarningInput) (*models.Earning, error) {
	var earning *models.Earning
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		earning, txErr = s.RecordEarningInTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return earning, nil
}

func (s *service) RecordEarningInTx(ctx context.Context, tx *gorm.DB, input RecordEarningInput) (*models.Earning, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	if input.OrderID == uuid.Nil || input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and agent id required")
	}

	repo := s.repo.WithTx(tx)
	if _, err := repo.FindByOrder(ctx, input.OrderID); err == nil {
		s.metrics.IncSettlement("duplicate")
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySettled, "order is already settled")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing settlement")
	}

	earnedAt := input.DeliveredAt
	if earnedAt.IsZero() {
		earnedAt = time.Now().UTC()
	}
	total := input.BaseDeliveryFee.Add(input.DistanceBonus).Add(input.TipAmount)

	earning := &models.Earning{
		AgentID:         input.AgentID,
		OrderID:         input.OrderID,
		BaseDeliveryFee: input.BaseDeliveryFee,
		DistanceBonus:   input.DistanceBonus,
		TipAmount:       input.TipAmount,
		TotalEarning:    total,
		EarnedAt:        earnedAt,
	}
	if _, err := repo.Create(ctx, earning); err != nil {
		// The unique index on order_id closes the remaining race window.
		if db.IsUniqueViolation(err, "") {
			s.metrics.IncSettlement("duplicate")
			return nil, pkgerrors.New(pkgerrors.CodeAlreadySettled, "order is already settled")
		}
		s.metrics.IncSettlement("failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create earning")
	}

	payeeID, err := s.releaseAgent(ctx, tx, input.AgentID, total)
	if err != nil {
		s.metrics.IncSettlement("failed")
		return nil, err
	}

	orderID := input.OrderID
	if err := s.wallets.CreditInTx(ctx, tx, payeeID, total, enums.TransactionTypeEarning,
		"delivery earnings", &orderID); err != nil {
		s.metrics.IncSettlement("failed")
		return nil, err
	}

	s.metrics.IncSettlement("settled")
	logCtx := s.logg.WithAgentID(s.logg.WithOrderID(ctx, input.OrderID.String()), input.AgentID.String())
	s.logg.Info(logCtx, "order settled")
	return earning, nil
}

// releaseAgent frees one capacity slot and folds the payout into the agent's
// lifetime totals. The wallet credit goes to the agent's user, not the agent
// row, so the user id is read here.
func (s *service) releaseAgent(ctx context.Context, tx *gorm.DB, agentID uuid.UUID, total decimal.Decimal) (uuid.UUID, error) {
	agentsRepo := s.agents.WithTx(tx)
	agent, err := agentsRepo.Find(ctx, agentID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent for settlement")
	}

	remaining := agent.CurrentActiveOrders - 1
	if remaining < 0 {
		remaining = 0
	}
	affected, err := agentsRepo.UpdateGuarded(ctx, agent.ID, agent.Version, map[string]any{
		"current_active_orders": remaining,
		"status":                agents.DutyStatusFor(agent.Status, remaining, agent.MaxActiveOrders),
		"total_deliveries":      agent.TotalDeliveries + 1,
		"total_earnings":        agent.TotalEarnings.Add(total),
		"current_day_earnings":  agent.CurrentDayEarnings.Add(total),
		"updated_at":            time.Now().UTC(),
	})
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent totals")
	}
	if affected == 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "agent was modified concurrently")
	}
	return agent.UserID, nil
}

func (s *service) EarningsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Earning, error) {
	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	earnings, err := s.repo.ListForAgent(ctx, agentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agent earnings")
	}
	return earnings, nil
}
