package agents

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db/models"
)

// Repository defines persistence operations for the agent registry. Dispatch
// and settlement reuse it for capacity and earnings-total updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, agent *models.Agent) (*models.Agent, error)
	Find(ctx context.Context, agentID uuid.UUID) (*models.Agent, error)
	// ListEligible returns active, available agents with spare capacity and a
	// known position. The matcher applies the radius on top of this.
	ListEligible(ctx context.Context) ([]models.Agent, error)
	// UpdateGuarded applies updates only when the stored version still matches
	// expectedVersion; zero rows affected means a lost race.
	UpdateGuarded(ctx context.Context, agentID uuid.UUID, expectedVersion int, updates map[string]any) (int64, error)
}
