package dispatch

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/internal/settlement"
	"github.com/talava/dispatch-backend/pkg/db/models"
)

// Repository defines persistence operations for the assignment ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, assignment *models.Assignment) (*models.Assignment, error)
	// DeactivateForOrder clears the active flag on every assignment for the
	// order, returning how many rows it touched.
	DeactivateForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	ActiveForOrder(ctx context.Context, orderID uuid.UUID) (*models.Assignment, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Assignment, error)
	Update(ctx context.Context, assignmentID uuid.UUID, updates map[string]any) error
}

// Settler records the financial outcome of a completed delivery in the same
// transaction as the delivery event.
type Settler interface {
	RecordEarningInTx(ctx context.Context, tx *gorm.DB, input settlement.RecordEarningInput) (*models.Earning, error)
}
