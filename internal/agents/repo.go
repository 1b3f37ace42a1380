package agents

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an agents repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, agent *models.Agent) (*models.Agent, error) {
	if err := r.db.WithContext(ctx).Create(agent).Error; err != nil {
		return nil, err
	}
	return agent, nil
}

func (r *repository) Find(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	err := r.db.WithContext(ctx).
		Where("id = ?", agentID).
		First(&agent).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *repository) ListEligible(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("status = ?", enums.AgentStatusAvailable).
		Where("current_active_orders < max_active_orders").
		Where("current_lat IS NOT NULL AND current_lon IS NOT NULL").
		Order("id ASC").
		Find(&agents).Error
	if err != nil {
		return nil, err
	}
	return agents, nil
}

func (r *repository) UpdateGuarded(ctx context.Context, agentID uuid.UUID, expectedVersion int, updates map[string]any) (int64, error) {
	merged := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		merged[k] = v
	}
	merged["version"] = expectedVersion + 1

	res := r.db.WithContext(ctx).
		Model(&models.Agent{}).
		Where("id = ? AND version = ?", agentID, expectedVersion).
		Updates(merged)
	return res.RowsAffected, res.Error
}
