package orders

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
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier is the fire-and-forget notification sink. Implementations must
// never fail the calling operation.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message string, payload any)
}

// Item cancellation is only allowed before the order enters dispatch.
var preDispatchStatuses = map[enums.OrderStatus]bool{
	enums.OrderStatusPending:   true,
	enums.OrderStatusAccepted:  true,
	enums.OrderStatusPreparing: true,
}

// Service owns the order status state machine.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	Transition(ctx context.Context, input TransitionInput) error
	CancelOrder(ctx context.Context, input CancelOrderInput) error
	CancelItem(ctx context.Context, input CancelItemInput) error

	// GetInTx loads an order inside a caller-owned transaction.
	GetInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	// TransitionInTx applies a status change inside a caller-owned transaction
	// so dispatch and settlement can compose it with their own writes.
	TransitionInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, note string, actor Actor) error
	// RequeueForDispatch moves a rejected order from Assigned back to Ready.
	// This is the single sanctioned backward edge in the state machine.
	RequeueForDispatch(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string, actor Actor) error
}

// AssignmentReleaser frees dispatch-side state (the active assignment and the
// agent's capacity slot) when an order is cancelled after it entered dispatch.
// Implementations run inside the cancellation transaction. Without this hook a
// cancelled order would strand its agent: the order is terminal, so no agent
// event can ever release the slot afterward.
type AssignmentReleaser interface {
	ReleaseForOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error
}

type service struct {
	repo         Repository
	tx           txRunner
	logg         *logger.Logger
	metrics      *metrics.DispatchMetrics
	notifier     Notifier
	releaser     AssignmentReleaser
	minReasonLen int
}

// NewService builds the order lifecycle service with its required
// dependencies. releaser may be nil when no dispatch layer is wired.
func NewService(repo Repository, tx txRunner, logg *logger.Logger, m *metrics.DispatchMetrics, notifier Notifier, releaser AssignmentReleaser, minReasonLen int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
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
	if minReasonLen <= 0 {
		minReasonLen = 10
	}
	return &service{
		repo:         repo,
		tx:           tx,
		logg:         logg,
		metrics:      m,
		notifier:     notifier,
		releaser:     releaser,
		minReasonLen: minReasonLen,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one item")
	}

	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyTRY
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, in := range input.Items {
		if in.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		item := models.OrderItem{
			Name:      in.Name,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
		}
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}

	order := &models.Order{
		CustomerID: input.CustomerID,
		VendorID:   input.VendorID,
		Currency:   currency,
		Total:      total,
		Status:     enums.OrderStatusPending,
		PickupLat:  input.PickupLat,
		PickupLon:  input.PickupLon,
		DropoffLat: input.DropoffLat,
		DropoffLon: input.DropoffLon,
		Items:      items,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return repo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID:   order.ID,
			Status:    enums.OrderStatusPending,
			Note:      "order created",
			ActorKind: enums.ActorKindCustomer,
			ActorID:   &input.CustomerID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(enums.OrderStatusPending.String())
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.Find(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	entries, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status history")
	}
	return entries, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}

	var customerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadInTx(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		customerID = order.CustomerID
		return s.transition(ctx, tx, order, input.Target, input.Note, input.Actor, nil)
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, customerID, enums.NotificationTypeOrderStatusChanged,
		"Order updated", fmt.Sprintf("Your order is now %s", input.Target),
		map[string]any{"order_id": input.OrderID, "status": input.Target})
	return nil
}

func (s *service) GetInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	return s.loadInTx(ctx, tx, orderID)
}

func (s *service) TransitionInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, note string, actor Actor) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	order, err := s.loadInTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	return s.transition(ctx, tx, order, target, note, actor, nil)
}

// transition validates and applies a single status change within tx. extra
// merges additional column updates into the same guarded statement.
func (s *service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, note string, actor Actor, extra map[string]any) error {
	if order.Status == target {
		return nil
	}
	if !order.Status.CanTransitionTo(target) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot transition %s to %s", order.Status, target)).
			WithDetails(map[string]any{"from": order.Status, "to": target})
	}

	updates := map[string]any{"status": target, "updated_at": time.Now().UTC()}
	for k, v := range extra {
		updates[k] = v
	}

	repo := s.repo.WithTx(tx)
	affected, err := repo.UpdateGuarded(ctx, order.ID, order.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order was modified concurrently")
	}

	if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    target,
		Note:      note,
		ActorKind: actor.Kind,
		ActorID:   actor.ID,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}

	// Cancellation is legal from any non-terminal state, including
	// mid-delivery. The agent holding the order must get the slot back now:
	// the order is terminal after this and no agent event can fire again.
	if target == enums.OrderStatusCancelled && s.releaser != nil {
		if err := s.releaser.ReleaseForOrderInTx(ctx, tx, order.ID, note); err != nil {
			return err
		}
	}

	order.Status = target
	order.Version++
	s.metrics.IncTransition(target.String())
	return nil
}

func (s *service) RequeueForDispatch(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string, actor Actor) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	order, err := s.loadInTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.Status != enums.OrderStatusAssigned {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot requeue order in status %s", order.Status))
	}

	repo := s.repo.WithTx(tx)
	affected, err := repo.UpdateGuarded(ctx, order.ID, order.Version, map[string]any{
		"status":     enums.OrderStatusReady,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue order")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order was modified concurrently")
	}

	if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    enums.OrderStatusReady,
		Note:      note,
		ActorKind: actor.Kind,
		ActorID:   actor.ID,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}

	s.metrics.IncTransition(enums.OrderStatusReady.String())
	return nil
}

func (s *service) CancelOrder(ctx context.Context, input CancelOrderInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}

	var customerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadInTx(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		customerID = order.CustomerID
		return s.cancelInTx(ctx, tx, order, reason, input.Actor)
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, customerID, enums.NotificationTypeOrderStatusChanged,
		"Order cancelled", reason,
		map[string]any{"order_id": input.OrderID, "status": enums.OrderStatusCancelled})
	return nil
}

func (s *service) cancelInTx(ctx context.Context, tx *gorm.DB, order *models.Order, reason string, actor Actor) error {
	now := time.Now().UTC()
	return s.transition(ctx, tx, order, enums.OrderStatusCancelled, reason, actor, map[string]any{
		"cancel_reason": reason,
		"cancelled_at":  now,
	})
}

func (s *service) CancelItem(ctx context.Context, input CancelItemInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if len(reason) < s.minReasonLen {
		return pkgerrors.New(pkgerrors.CodeInvalidCancellationReason,
			fmt.Sprintf("cancellation reason must be at least %d characters", s.minReasonLen))
	}

	var (
		customerID uuid.UUID
		cascaded   bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadInTx(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		customerID = order.CustomerID

		if !preDispatchStatuses[order.Status] {
			return pkgerrors.New(pkgerrors.CodeInvalidCancellationStatus,
				fmt.Sprintf("items cannot be cancelled while order is %s", order.Status))
		}

		var target *models.OrderItem
		remaining := 0
		for i := range order.Items {
			item := &order.Items[i]
			if item.ID == input.ItemID {
				target = item
				continue
			}
			if !item.IsCancelled {
				remaining++
			}
		}
		if target == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		if target.IsCancelled {
			return pkgerrors.New(pkgerrors.CodeConflict, "item is already cancelled")
		}

		now := time.Now().UTC()
		if err := repo.UpdateItem(ctx, target.ID, map[string]any{
			"is_cancelled":  true,
			"cancel_reason": reason,
			"cancelled_at":  now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order item")
		}

		if remaining == 0 {
			// Last live item: the whole order goes with it.
			cascaded = true
			aggregated := fmt.Sprintf("all items cancelled (last: %s)", reason)
			order.Total = decimal.Zero
			return s.transition(ctx, tx, order, enums.OrderStatusCancelled, aggregated, actorOrSystem(input.Actor), map[string]any{
				"total":         decimal.Zero,
				"cancel_reason": aggregated,
				"cancelled_at":  now,
			})
		}

		newTotal := order.Total.Sub(target.LineTotal())
		if newTotal.IsNegative() {
			newTotal = decimal.Zero
		}
		affected, err := repo.UpdateGuarded(ctx, order.ID, order.Version, map[string]any{
			"total":      newTotal,
			"updated_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order total")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order was modified concurrently")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if cascaded {
		s.notifier.Notify(ctx, customerID, enums.NotificationTypeOrderStatusChanged,
			"Order cancelled", "All items in your order were cancelled",
			map[string]any{"order_id": input.OrderID, "status": enums.OrderStatusCancelled})
	}
	return nil
}

func (s *service) loadInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).Find(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func actorOrSystem(actor Actor) Actor {
	if actor.Kind == "" {
		return SystemActor
	}
	return actor
}
