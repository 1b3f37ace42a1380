package settlement

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an earnings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, earning *models.Earning) (*models.Earning, error) {
	if err := r.db.WithContext(ctx).Create(earning).Error; err != nil {
		return nil, err
	}
	return earning, nil
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.Earning, error) {
	var earning models.Earning
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&earning).Error
	if err != nil {
		return nil, err
	}
	return &earning, nil
}

func (r *repository) ListForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Earning, error) {
	var earnings []models.Earning
	err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("earned_at DESC").
		Find(&earnings).Error
	return earnings, err
}
