package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db/models"
)

// Repository defines persistence operations for the order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	// UpdateGuarded applies updates only when the stored version still matches
	// expectedVersion, bumping the version in the same statement. It returns
	// the number of rows touched: zero means the optimistic lock was lost.
	UpdateGuarded(ctx context.Context, orderID uuid.UUID, expectedVersion int, updates map[string]any) (int64, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error
	AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
}
