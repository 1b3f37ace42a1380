package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/internal/agents"
	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
)

// Releaser detaches dispatch state from an order that leaves the pipeline
// through cancellation: the active assignment is retired and the agent gets
// the capacity slot back. It is built from repositories alone so the order
// service can call it without a dependency on the dispatch service.
type Releaser struct {
	repo   Repository
	agents agents.Repository
}

// NewReleaser builds a Releaser over the assignment and agent repositories.
func NewReleaser(repo Repository, agentsRepo agents.Repository) *Releaser {
	return &Releaser{repo: repo, agents: agentsRepo}
}

// ReleaseForOrderInTx retires the order's active assignment, if any, inside
// the caller's transaction. Orders that never reached dispatch are a no-op.
func (r *Releaser) ReleaseForOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error {
	repo := r.repo.WithTx(tx)
	assignment, err := repo.ActiveForOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active assignment")
	}

	now := time.Now().UTC()
	if err := repo.Update(ctx, assignment.ID, map[string]any{
		"status":     enums.AssignmentStatusCancelled,
		"is_active":  false,
		"updated_at": now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire assignment")
	}

	return r.releaseAgent(ctx, tx, assignment, now)
}

func (r *Releaser) releaseAgent(ctx context.Context, tx *gorm.DB, assignment *models.Assignment, now time.Time) error {
	agentsRepo := r.agents.WithTx(tx)
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
	return nil
}
