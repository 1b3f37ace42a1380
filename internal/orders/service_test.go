package orders

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/logger"
)

type fakeOrdersRepo struct {
	order   *models.Order
	history []models.OrderStatusHistory
}

func (f *fakeOrdersRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	f.order = order
	return order, nil
}

func (f *fakeOrdersRepo) Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if f.order == nil || f.order.ID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.order
	copied.Items = append([]models.OrderItem(nil), f.order.Items...)
	return &copied, nil
}

func (f *fakeOrdersRepo) FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	if f.order == nil {
		return nil, gorm.ErrRecordNotFound
	}
	for i := range f.order.Items {
		if f.order.Items[i].ID == itemID {
			return &f.order.Items[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrdersRepo) UpdateGuarded(ctx context.Context, orderID uuid.UUID, expectedVersion int, updates map[string]any) (int64, error) {
	if f.order == nil || f.order.ID != orderID || f.order.Version != expectedVersion {
		return 0, nil
	}
	for key, value := range updates {
		switch key {
		case "status":
			f.order.Status = value.(enums.OrderStatus)
		case "total":
			f.order.Total = value.(decimal.Decimal)
		case "cancel_reason":
			reason := value.(string)
			f.order.CancelReason = &reason
		}
	}
	f.order.Version = expectedVersion + 1
	return 1, nil
}

func (f *fakeOrdersRepo) UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error {
	for i := range f.order.Items {
		item := &f.order.Items[i]
		if item.ID != itemID {
			continue
		}
		if v, ok := updates["is_cancelled"].(bool); ok {
			item.IsCancelled = v
		}
		if v, ok := updates["cancel_reason"].(string); ok {
			item.CancelReason = &v
		}
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeOrdersRepo) AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	f.history = append(f.history, *entry)
	return nil
}

func (f *fakeOrdersRepo) ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	return f.history, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type notifyCall struct {
	userID uuid.UUID
	kind   enums.NotificationType
}

type fakeNotifier struct {
	calls []notifyCall
}

func (f *fakeNotifier) Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message string, payload any) {
	f.calls = append(f.calls, notifyCall{userID: userID, kind: kind})
}

func newTestService(t *testing.T, repo Repository) (Service, *fakeNotifier) {
	t.Helper()
	notifier := &fakeNotifier{}
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	svc, err := NewService(repo, fakeTxRunner{}, logg, nil, notifier, nil, 10)
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	return svc, notifier
}

func seedOrder(status enums.OrderStatus, items ...models.OrderItem) *models.Order {
	total := decimal.Zero
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		if !items[i].IsCancelled {
			total = total.Add(items[i].LineTotal())
		}
	}
	return &models.Order{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		VendorID:   uuid.New(),
		Currency:   enums.CurrencyTRY,
		Total:      total,
		Status:     status,
		Items:      items,
	}
}

func TestTransitionForward(t *testing.T) {
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusPending)}
	svc, notifier := newTestService(t, repo)

	err := svc.Transition(context.Background(), TransitionInput{
		OrderID: repo.order.ID,
		Target:  enums.OrderStatusAccepted,
		Note:    "vendor accepted",
		Actor:   Actor{Kind: enums.ActorKindVendor},
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if repo.order.Status != enums.OrderStatusAccepted {
		t.Fatalf("expected accepted got %s", repo.order.Status)
	}
	if len(repo.history) != 1 || repo.history[0].Status != enums.OrderStatusAccepted {
		t.Fatalf("expected one history row for accepted, got %+v", repo.history)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.calls))
	}
}

func TestTransitionNoOpWhenAlreadyThere(t *testing.T) {
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusPreparing)}
	svc, _ := newTestService(t, repo)

	err := svc.Transition(context.Background(), TransitionInput{
		OrderID: repo.order.ID,
		Target:  enums.OrderStatusPreparing,
		Actor:   Actor{Kind: enums.ActorKindVendor},
	})
	if err != nil {
		t.Fatalf("same-status transition should succeed, got %v", err)
	}
	if len(repo.history) != 0 {
		t.Fatalf("no-op transition must not append history")
	}
}

func TestTransitionBackwardRejected(t *testing.T) {
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusDelivered)}
	svc, _ := newTestService(t, repo)

	err := svc.Transition(context.Background(), TransitionInput{
		OrderID: repo.order.ID,
		Target:  enums.OrderStatusPreparing,
		Actor:   Actor{Kind: enums.ActorKindAdmin},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION got %v", err)
	}
}

func TestTransitionNotFound(t *testing.T) {
	repo := &fakeOrdersRepo{}
	svc, _ := newTestService(t, repo)

	err := svc.Transition(context.Background(), TransitionInput{
		OrderID: uuid.New(),
		Target:  enums.OrderStatusAccepted,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND got %v", err)
	}
}

func TestCancelOrderFromNonTerminal(t *testing.T) {
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusReady)}
	svc, _ := newTestService(t, repo)

	err := svc.CancelOrder(context.Background(), CancelOrderInput{
		OrderID: repo.order.ID,
		Reason:  "customer changed their mind",
		Actor:   Actor{Kind: enums.ActorKindCustomer},
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if repo.order.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled got %s", repo.order.Status)
	}
	if repo.order.CancelReason == nil || *repo.order.CancelReason == "" {
		t.Fatalf("cancel reason not stamped")
	}
}

func TestCancelOrderFromTerminalRejected(t *testing.T) {
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusDelivered)}
	svc, _ := newTestService(t, repo)

	err := svc.CancelOrder(context.Background(), CancelOrderInput{
		OrderID: repo.order.ID,
		Reason:  "too late to cancel this",
		Actor:   Actor{Kind: enums.ActorKindCustomer},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION got %v", err)
	}
}

func TestCancelItemShortReason(t *testing.T) {
	item := models.OrderItem{Name: "kebab", Quantity: 1, UnitPrice: decimal.NewFromInt(50)}
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusPending, item)}
	svc, _ := newTestService(t, repo)

	err := svc.CancelItem(context.Background(), CancelItemInput{
		OrderID: repo.order.ID,
		ItemID:  repo.order.Items[0].ID,
		Reason:  "too short",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidCancellationReason) {
		t.Fatalf("expected INVALID_CANCELLATION_REASON got %v", err)
	}
}

func TestCancelItemWrongOrderState(t *testing.T) {
	item := models.OrderItem{Name: "kebab", Quantity: 1, UnitPrice: decimal.NewFromInt(50)}
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusOutForDelivery, item)}
	svc, _ := newTestService(t, repo)

	err := svc.CancelItem(context.Background(), CancelItemInput{
		OrderID: repo.order.ID,
		ItemID:  repo.order.Items[0].ID,
		Reason:  "a sufficiently long reason",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidCancellationStatus) {
		t.Fatalf("expected INVALID_CANCELLATION_STATUS got %v", err)
	}
}

func TestCancelItemSubtractsTotal(t *testing.T) {
	itemA := models.OrderItem{Name: "kebab", Quantity: 2, UnitPrice: decimal.NewFromInt(40)}
	itemB := models.OrderItem{Name: "ayran", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusPending, itemA, itemB)}
	svc, _ := newTestService(t, repo)

	err := svc.CancelItem(context.Background(), CancelItemInput{
		OrderID: repo.order.ID,
		ItemID:  repo.order.Items[1].ID,
		Reason:  "item is out of stock today",
		Actor:   Actor{Kind: enums.ActorKindVendor},
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if repo.order.Status != enums.OrderStatusPending {
		t.Fatalf("order should stay pending, got %s", repo.order.Status)
	}
	if !repo.order.Total.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("expected total 80 got %s", repo.order.Total)
	}
	if !repo.order.Items[1].IsCancelled {
		t.Fatalf("item not flagged cancelled")
	}
}

// Cancelling the last live item cascades into a full order cancellation.
func TestCancelItemCascade(t *testing.T) {
	itemA := models.OrderItem{Name: "kebab", Quantity: 1, UnitPrice: decimal.NewFromInt(40)}
	itemB := models.OrderItem{Name: "ayran", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusPending, itemA, itemB)}
	svc, notifier := newTestService(t, repo)

	ctx := context.Background()
	if err := svc.CancelItem(ctx, CancelItemInput{
		OrderID: repo.order.ID,
		ItemID:  repo.order.Items[0].ID,
		Reason:  "valid reason one here",
	}); err != nil {
		t.Fatalf("first item cancel failed: %v", err)
	}
	if repo.order.Status == enums.OrderStatusCancelled {
		t.Fatalf("order cancelled too early")
	}

	if err := svc.CancelItem(ctx, CancelItemInput{
		OrderID: repo.order.ID,
		ItemID:  repo.order.Items[1].ID,
		Reason:  "valid reason two here",
	}); err != nil {
		t.Fatalf("second item cancel failed: %v", err)
	}

	if repo.order.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cascade to cancelled, got %s", repo.order.Status)
	}
	for i, item := range repo.order.Items {
		if !item.IsCancelled {
			t.Fatalf("item %d not cancelled after cascade", i)
		}
	}
	if !repo.order.Total.IsZero() {
		t.Fatalf("cancelled order total should be zero, got %s", repo.order.Total)
	}
	if len(notifier.calls) == 0 {
		t.Fatalf("cascade should notify the customer")
	}
}

func TestCancelItemAlreadyCancelled(t *testing.T) {
	item := models.OrderItem{Name: "kebab", Quantity: 1, UnitPrice: decimal.NewFromInt(50), IsCancelled: true}
	other := models.OrderItem{Name: "ayran", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusPending, item, other)}
	svc, _ := newTestService(t, repo)

	err := svc.CancelItem(context.Background(), CancelItemInput{
		OrderID: repo.order.ID,
		ItemID:  repo.order.Items[0].ID,
		Reason:  "already gone from the order",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected CONFLICT got %v", err)
	}
}

func TestRequeueForDispatch(t *testing.T) {
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusAssigned)}
	svc, _ := newTestService(t, repo)

	err := svc.RequeueForDispatch(context.Background(), &gorm.DB{}, repo.order.ID, "agent rejected", SystemActor)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if repo.order.Status != enums.OrderStatusReady {
		t.Fatalf("expected ready got %s", repo.order.Status)
	}
}

func TestRequeueOnlyFromAssigned(t *testing.T) {
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusPreparing)}
	svc, _ := newTestService(t, repo)

	err := svc.RequeueForDispatch(context.Background(), &gorm.DB{}, repo.order.ID, "agent rejected", SystemActor)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION got %v", err)
	}
}

func TestCreateOrderComputesTotal(t *testing.T) {
	repo := &fakeOrdersRepo{}
	svc, _ := newTestService(t, repo)

	order, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID: uuid.New(),
		VendorID:   uuid.New(),
		Items: []CreateOrderItemInput{
			{Name: "kebab", Quantity: 2, UnitPrice: decimal.NewFromInt(40)},
			{Name: "ayran", Quantity: 3, UnitPrice: decimal.NewFromInt(10)},
		},
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !order.Total.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("expected total 110 got %s", order.Total)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("new orders start pending, got %s", order.Status)
	}
	if len(repo.history) != 1 {
		t.Fatalf("expected creation history row")
	}
}

func TestConcurrentModificationSurfacesConflict(t *testing.T) {
	repo := &fakeOrdersRepo{order: seedOrder(enums.OrderStatusPending)}
	repo.order.Version = 3

	// staleRepo bumps the stored version after every load, so the guarded
	// update always runs against a lost race.
	svc, _ := newTestService(t, &staleRepo{fakeOrdersRepo: repo})

	err := svc.Transition(context.Background(), TransitionInput{
		OrderID: repo.order.ID,
		Target:  enums.OrderStatusAccepted,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConcurrencyConflict) {
		t.Fatalf("expected CONCURRENCY_CONFLICT got %v", err)
	}
}

type staleRepo struct {
	*fakeOrdersRepo
}

func (s *staleRepo) Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.fakeOrdersRepo.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.order.Version++
	return order, nil
}

func (s *staleRepo) WithTx(tx *gorm.DB) Repository { return s }
