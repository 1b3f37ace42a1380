package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/internal/agents"
	"github.com/talava/dispatch-backend/internal/orders"
	"github.com/talava/dispatch-backend/internal/settlement"
	"github.com/talava/dispatch-backend/pkg/db"
	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/geo"
	"github.com/talava/dispatch-backend/pkg/logger"
	"github.com/talava/dispatch-backend/pkg/metrics"
)

// Delivery fees are a flat base plus a per-km rate on the pickup distance.
var (
	baseDeliveryFee  = decimal.RequireFromString("15.00")
	perKmDeliveryFee = decimal.RequireFromString("2.00")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OrderLifecycle is the slice of the order service dispatch composes into its
// own transactions.
type OrderLifecycle interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	TransitionInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, note string, actor orders.Actor) error
	RequeueForDispatch(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string, actor orders.Actor) error
}

// Notifier is the fire-and-forget notification sink.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message string, payload any)
}

// Service runs dispatch: candidate matching, assignment, and the agent's
// delivery sub-timeline through to settlement.
type Service interface {
	// AvailableAgents ranks dispatchable agents near the order's pickup point.
	// It reserves nothing; the list is advisory.
	AvailableAgents(ctx context.Context, orderID uuid.UUID, params MatchParams) ([]Candidate, error)
	Assign(ctx context.Context, input AssignInput) (*models.Assignment, error)
	RecordAgentEvent(ctx context.Context, input AgentEventInput) (*models.Assignment, error)
	ActiveAssignment(ctx context.Context, orderID uuid.UUID) (*models.Assignment, error)
	AssignmentHistory(ctx context.Context, orderID uuid.UUID) ([]models.Assignment, error)
}

type service struct {
	repo     Repository
	orders   OrderLifecycle
	agents   agents.Repository
	settler  Settler
	tx       txRunner
	logg     *logger.Logger
	metrics  *metrics.DispatchMetrics
	notifier Notifier
	radiusKm float64
}

// NewService builds the dispatch service with its required dependencies.
func NewService(repo Repository, orderSvc OrderLifecycle, agentsRepo agents.Repository, settler Settler, tx txRunner, logg *logger.Logger, m *metrics.DispatchMetrics, notifier Notifier) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("dispatch repository required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order lifecycle required")
	}
	if agentsRepo == nil {
		return nil, fmt.Errorf("agents repository required")
	}
	if settler == nil {
		return nil, fmt.Errorf("settler required")
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
	return &service{
		repo:     repo,
		orders:   orderSvc,
		agents:   agentsRepo,
		settler:  settler,
		tx:       tx,
		logg:     logg,
		metrics:  m,
		notifier: notifier,
		radiusKm: defaultRadiusKm,
	}, nil
}

func (s *service) AvailableAgents(ctx context.Context, orderID uuid.UUID, params MatchParams) ([]Candidate, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusReady {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidDispatchState,
			fmt.Sprintf("order is %s, not ready for dispatch", order.Status))
	}

	lat, lon, ok := order.PickupPoint()
	if !ok {
		s.metrics.ObserveCandidates("no_pickup", 0)
		return []Candidate{}, nil
	}

	eligible, err := s.agents.ListEligible(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible agents")
	}

	start := time.Now()
	candidates := Match(geo.Point{Lat: lat, Lon: lon}, eligible, params)
	s.metrics.ObserveMatchDuration(time.Since(start))
	if len(candidates) == 0 {
		s.metrics.ObserveCandidates("empty", 0)
	} else {
		s.metrics.ObserveCandidates("matched", len(candidates))
	}
	return candidates, nil
}

func (s *service) Assign(ctx context.Context, input AssignInput) (*models.Assignment, error) {
	if input.OrderID == uuid.Nil || input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and agent id required")
	}
	if input.TipAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tip cannot be negative")
	}

	var assignment *models.Assignment
	var agentUserID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.GetInTx(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusReady {
			return pkgerrors.New(pkgerrors.CodeInvalidDispatchState,
				fmt.Sprintf("order is %s, not ready for dispatch", order.Status))
		}
		pickupLat, pickupLon, ok := order.PickupPoint()
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidDispatchState, "order has no pickup location")
		}

		agentsRepo := s.agents.WithTx(tx)
		agent, err := agentsRepo.Find(ctx, input.AgentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
		}

		// Eligibility is rechecked in-transaction: the candidate list the
		// caller saw may be stale by now.
		agentLat, agentLon, hasPos := agent.Position()
		if !hasPos || !agent.Dispatchable() {
			return pkgerrors.New(pkgerrors.CodeAgentNoLongerAvailable, "agent is no longer dispatchable")
		}
		distance := geo.DistanceKm(geo.Point{Lat: pickupLat, Lon: pickupLon}, geo.Point{Lat: agentLat, Lon: agentLon})
		if distance > s.radiusKm {
			return pkgerrors.New(pkgerrors.CodeAgentNoLongerAvailable, "agent is outside the dispatch radius")
		}
		agentUserID = agent.UserID

		repo := s.repo.WithTx(tx)
		if _, err := repo.DeactivateForOrder(ctx, input.OrderID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear stale assignments")
		}

		fee := baseDeliveryFee.Add(perKmDeliveryFee.Mul(decimal.NewFromFloat(distance)))
		assignment = &models.Assignment{
			OrderID:     input.OrderID,
			AgentID:     input.AgentID,
			Status:      enums.AssignmentStatusAssigned,
			IsActive:    true,
			DeliveryFee: fee.Round(2),
			TipAmount:   input.TipAmount,
			DistanceKm:  geo.Round2(distance),
			AssignedAt:  time.Now().UTC(),
		}
		if _, err := repo.Create(ctx, assignment); err != nil {
			// A concurrent Assign that committed first trips the one-active-
			// assignment index; the order is no longer free.
			if db.IsUniqueViolation(err, "uq_assignments_order_active") {
				return pkgerrors.New(pkgerrors.CodeInvalidDispatchState, "order was assigned concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create assignment")
		}

		taken := agent.CurrentActiveOrders + 1
		affected, err := agentsRepo.UpdateGuarded(ctx, agent.ID, agent.Version, map[string]any{
			"current_active_orders": taken,
			"status":                agents.DutyStatusFor(agent.Status, taken, agent.MaxActiveOrders),
			"updated_at":            time.Now().UTC(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve agent capacity")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "agent was modified concurrently")
		}

		return s.orders.TransitionInTx(ctx, tx, input.OrderID, enums.OrderStatusAssigned,
			"agent assigned", orders.SystemActor)
	})
	if err != nil {
		s.metrics.IncAssignment("failed")
		return nil, err
	}

	s.metrics.IncAssignment("assigned")
	logCtx := s.logg.WithAgentID(s.logg.WithOrderID(ctx, input.OrderID.String()), input.AgentID.String())
	s.logg.Info(logCtx, "order assigned")
	s.notifier.Notify(ctx, agentUserID, enums.NotificationTypeOrderAssigned,
		"New delivery", "You have been assigned a new delivery",
		map[string]any{"order_id": input.OrderID, "assignment_id": assignment.ID})
	return assignment, nil
}

func (s *service) RecordAgentEvent(ctx context.Context, input AgentEventInput) (*models.Assignment, error) {
	if input.OrderID == uuid.Nil || input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and agent id required")
	}
	if !input.Event.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown agent event")
	}
	if input.Event == enums.AgentEventReject && strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reject requires a reason")
	}

	var assignment *models.Assignment
	var customerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		assignment, err = repo.ActiveForOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order has no active assignment")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active assignment")
		}
		if assignment.AgentID != input.AgentID {
			return pkgerrors.New(pkgerrors.CodeConflict, "assignment belongs to another agent")
		}

		order, err := s.orders.GetInTx(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		customerID = order.CustomerID

		switch input.Event {
		case enums.AgentEventAccept:
			return s.applyAccept(ctx, repo, assignment)
		case enums.AgentEventReject:
			return s.applyReject(ctx, tx, repo, assignment, strings.TrimSpace(input.Reason))
		case enums.AgentEventPickUp:
			return s.applyPickUp(ctx, repo, assignment)
		case enums.AgentEventOutForDelivery:
			return s.applyOutForDelivery(ctx, tx, repo, assignment)
		case enums.AgentEventDeliver:
			return s.applyDeliver(ctx, tx, repo, assignment)
		default:
			return pkgerrors.New(pkgerrors.CodeValidation, "unknown agent event")
		}
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncAgentEvent(input.Event.String())
	if input.Event == enums.AgentEventDeliver {
		s.notifier.Notify(ctx, customerID, enums.NotificationTypeOrderDelivered,
			"Order delivered", "Your order has been delivered",
			map[string]any{"order_id": input.OrderID})
	}
	return assignment, nil
}

func (s *service) applyAccept(ctx context.Context, repo Repository, assignment *models.Assignment) error {
	if assignment.Status != enums.AssignmentStatusAssigned {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("cannot accept a %s assignment", assignment.Status))
	}
	now := time.Now().UTC()
	assignment.Status = enums.AssignmentStatusAccepted
	assignment.AcceptedAt = &now
	return repo.Update(ctx, assignment.ID, map[string]any{
		"status":      enums.AssignmentStatusAccepted,
		"accepted_at": now,
		"updated_at":  now,
	})
}

// applyReject retires the assignment, frees the agent, and hands the order
// back to dispatch.
func (s *service) applyReject(ctx context.Context, tx *gorm.DB, repo Repository, assignment *models.Assignment, reason string) error {
	if assignment.Status != enums.AssignmentStatusAssigned && assignment.Status != enums.AssignmentStatusAccepted {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("cannot reject a %s assignment", assignment.Status))
	}

	now := time.Now().UTC()
	if err := repo.Update(ctx, assignment.ID, map[string]any{
		"status":        enums.AssignmentStatusRejected,
		"is_active":     false,
		"reject_reason": reason,
		"rejected_at":   now,
		"updated_at":    now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire assignment")
	}
	assignment.Status = enums.AssignmentStatusRejected
	assignment.IsActive = false
	assignment.RejectReason = reason
	assignment.RejectedAt = &now

	agentsRepo := s.agents.WithTx(tx)
	agent, err := agentsRepo.Find(ctx, assignment.AgentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}
	remaining := agent.CurrentActiveOrders - 1
	if remaining < 0 {
		remaining = 0
	}
	affected, err := agentsRepo.UpdateGuarded(ctx, agent.ID, agent.Version, map[string]any{
		"current_active_orders": remaining,
		"status":                agents.DutyStatusFor(agent.Status, remaining, agent.MaxActiveOrders),
		"updated_at":            now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release agent capacity")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "agent was modified concurrently")
	}

	agentID := assignment.AgentID
	return s.orders.RequeueForDispatch(ctx, tx, assignment.OrderID,
		"assignment rejected: "+reason, orders.Actor{Kind: enums.ActorKindAgent, ID: &agentID})
}

func (s *service) applyPickUp(ctx context.Context, repo Repository, assignment *models.Assignment) error {
	if assignment.Status != enums.AssignmentStatusAccepted {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("cannot pick up a %s assignment", assignment.Status))
	}
	now := time.Now().UTC()
	assignment.Status = enums.AssignmentStatusPickedUp
	assignment.PickedUpAt = &now
	return repo.Update(ctx, assignment.ID, map[string]any{
		"status":       enums.AssignmentStatusPickedUp,
		"picked_up_at": now,
		"updated_at":   now,
	})
}

func (s *service) applyOutForDelivery(ctx context.Context, tx *gorm.DB, repo Repository, assignment *models.Assignment) error {
	if assignment.Status != enums.AssignmentStatusPickedUp {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("cannot start delivery on a %s assignment", assignment.Status))
	}
	now := time.Now().UTC()
	if err := repo.Update(ctx, assignment.ID, map[string]any{
		"status":              enums.AssignmentStatusOutForDelivery,
		"out_for_delivery_at": now,
		"updated_at":          now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update assignment")
	}
	assignment.Status = enums.AssignmentStatusOutForDelivery
	assignment.OutForDeliveryAt = &now

	agentID := assignment.AgentID
	return s.orders.TransitionInTx(ctx, tx, assignment.OrderID, enums.OrderStatusOutForDelivery,
		"agent started delivery", orders.Actor{Kind: enums.ActorKindAgent, ID: &agentID})
}

// applyDeliver closes the delivery and settles it in the same transaction.
// The assignment stays active as the record of who delivered the order.
func (s *service) applyDeliver(ctx context.Context, tx *gorm.DB, repo Repository, assignment *models.Assignment) error {
	if assignment.Status != enums.AssignmentStatusOutForDelivery {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("cannot deliver a %s assignment", assignment.Status))
	}
	now := time.Now().UTC()
	if err := repo.Update(ctx, assignment.ID, map[string]any{
		"status":       enums.AssignmentStatusDelivered,
		"delivered_at": now,
		"updated_at":   now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update assignment")
	}
	assignment.Status = enums.AssignmentStatusDelivered
	assignment.DeliveredAt = &now

	agentID := assignment.AgentID
	if err := s.orders.TransitionInTx(ctx, tx, assignment.OrderID, enums.OrderStatusDelivered,
		"order delivered", orders.Actor{Kind: enums.ActorKindAgent, ID: &agentID}); err != nil {
		return err
	}

	_, err := s.settler.RecordEarningInTx(ctx, tx, settlement.RecordEarningInput{
		OrderID:         assignment.OrderID,
		AgentID:         assignment.AgentID,
		BaseDeliveryFee: baseDeliveryFee,
		DistanceBonus:   assignment.DeliveryFee.Sub(baseDeliveryFee),
		TipAmount:       assignment.TipAmount,
		DeliveredAt:     now,
	})
	return err
}

func (s *service) ActiveAssignment(ctx context.Context, orderID uuid.UUID) (*models.Assignment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	assignment, err := s.repo.ActiveForOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has no active assignment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active assignment")
	}
	return assignment, nil
}

func (s *service) AssignmentHistory(ctx context.Context, orderID uuid.UUID) ([]models.Assignment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	history, err := s.repo.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}
	return history, nil
}
