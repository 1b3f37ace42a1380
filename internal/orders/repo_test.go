package orders

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db"
	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/logger"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ordersTable := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'TRY',
  total TEXT NOT NULL DEFAULT '0',
  status TEXT NOT NULL DEFAULT 'pending',
  pickup_lat REAL,
  pickup_lon REAL,
  dropoff_lat REAL,
  dropoff_lon REAL,
  cancel_reason TEXT,
  cancelled_at DATETIME,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	itemsTable := `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL DEFAULT '0',
  is_cancelled INTEGER NOT NULL DEFAULT 0,
  cancel_reason TEXT,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	historyTable := `
CREATE TABLE IF NOT EXISTS order_status_history (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  status TEXT NOT NULL,
  note TEXT,
  actor_kind TEXT NOT NULL DEFAULT 'system',
  actor_id TEXT,
  created_at DATETIME
);`
	require.NoError(t, conn.Exec(ordersTable).Error)
	require.NoError(t, conn.Exec(itemsTable).Error)
	require.NoError(t, conn.Exec(historyTable).Error)
	return conn
}

func seedDBOrder(t *testing.T, conn *gorm.DB, status enums.OrderStatus, prices ...int64) *models.Order {
	t.Helper()

	items := make([]models.OrderItem, 0, len(prices))
	total := decimal.Zero
	for _, p := range prices {
		price := decimal.NewFromInt(p)
		items = append(items, models.OrderItem{Name: "item", Quantity: 1, UnitPrice: price})
		total = total.Add(price)
	}
	order := &models.Order{
		CustomerID: uuid.New(),
		VendorID:   uuid.New(),
		Currency:   enums.CurrencyTRY,
		Total:      total,
		Status:     status,
		Items:      items,
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

func TestRepoCreateAndFind(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	created := seedDBOrder(t, conn, enums.OrderStatusPending, 40, 10)

	found, err := repo.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Len(t, found.Items, 2)
	assert.True(t, found.Total.Equal(decimal.NewFromInt(50)))
}

func TestRepoUpdateGuarded(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	order := seedDBOrder(t, conn, enums.OrderStatusPending, 40)

	affected, err := repo.UpdateGuarded(ctx, order.ID, 0, map[string]any{
		"status": enums.OrderStatusAccepted,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	// Stale version: someone else already bumped it.
	affected, err = repo.UpdateGuarded(ctx, order.ID, 0, map[string]any{
		"status": enums.OrderStatusPreparing,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	found, err := repo.Find(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusAccepted, found.Status)
	assert.Equal(t, 1, found.Version)
}

func TestRepoHistoryOrdering(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	order := seedDBOrder(t, conn, enums.OrderStatusPending, 40)
	for _, status := range []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusAccepted, enums.OrderStatusPreparing} {
		require.NoError(t, repo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID:   order.ID,
			Status:    status,
			ActorKind: enums.ActorKindSystem,
		}))
	}

	entries, err := repo.ListHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, enums.OrderStatusPending, entries[0].Status)
	assert.Equal(t, enums.OrderStatusPreparing, entries[2].Status)
}

// Full service path against a real transaction scope: cancelling both items
// cascades into order cancellation atomically.
func TestCancelItemCascadeThroughDB(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	client := db.FromGorm(conn)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})

	svc, err := NewService(repo, client, logg, nil, &fakeNotifier{}, nil, 10)
	require.NoError(t, err)

	order := seedDBOrder(t, conn, enums.OrderStatusPending, 40, 10)
	ctx := context.Background()

	require.NoError(t, svc.CancelItem(ctx, CancelItemInput{
		OrderID: order.ID,
		ItemID:  order.Items[0].ID,
		Reason:  "valid reason one here",
	}))

	mid, err := repo.Find(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, mid.Status)
	assert.True(t, mid.Total.Equal(decimal.NewFromInt(10)))

	require.NoError(t, svc.CancelItem(ctx, CancelItemInput{
		OrderID: order.ID,
		ItemID:  order.Items[1].ID,
		Reason:  "valid reason two here",
	}))

	final, err := repo.Find(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, final.Status)
	assert.True(t, final.Total.IsZero())
	for _, item := range final.Items {
		assert.True(t, item.IsCancelled)
	}

	entries, err := repo.ListHistory(ctx, order.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, enums.OrderStatusCancelled, entries[len(entries)-1].Status)
}

func TestTransitionThroughDBConflict(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	client := db.FromGorm(conn)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})

	svc, err := NewService(repo, client, logg, nil, &fakeNotifier{}, nil, 10)
	require.NoError(t, err)

	order := seedDBOrder(t, conn, enums.OrderStatusPending, 40)
	ctx := context.Background()

	require.NoError(t, svc.Transition(ctx, TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusAccepted,
		Actor:   Actor{Kind: enums.ActorKindVendor},
	}))

	err = svc.Transition(ctx, TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusPending,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
}

// The migrated schema names the history table in the singular; gorm's
// pluralized default would point every history write at a table that does
// not exist.
func TestHistoryWritesToMigratedTable(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)

	order := seedDBOrder(t, conn, enums.OrderStatusPending, 40)
	ctx := context.Background()

	require.NoError(t, repo.AppendHistory(ctx, &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    enums.OrderStatusAccepted,
		ActorKind: enums.ActorKindVendor,
	}))

	var count int64
	require.NoError(t, conn.Raw("SELECT COUNT(*) FROM order_status_history WHERE order_id = ?", order.ID).Scan(&count).Error)
	assert.EqualValues(t, 1, count)
}
