package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/logger"
)

// PositionCache caches last-known positions. A failed write only costs a
// warmer read later; the DB row stays authoritative.
type PositionCache interface {
	SetAgentPosition(ctx context.Context, agentID string, lat, lon float64, ttl time.Duration) error
}

// DutyStatusFor derives the dispatch status implied by an agent's load.
// Offline is sticky: load changes never pull an agent back on duty.
func DutyStatusFor(current enums.AgentStatus, activeOrders, maxOrders int) enums.AgentStatus {
	if current == enums.AgentStatusOffline {
		return enums.AgentStatusOffline
	}
	if activeOrders >= maxOrders {
		return enums.AgentStatusBusy
	}
	return enums.AgentStatusAvailable
}

// RegisterInput creates a new courier profile.
type RegisterInput struct {
	UserID          uuid.UUID
	Name            string
	Phone           string
	VehicleType     enums.VehicleType
	MaxActiveOrders int
}

// Service manages the courier registry: registration, heartbeats, duty status.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.Agent, error)
	Get(ctx context.Context, agentID uuid.UUID) (*models.Agent, error)
	Heartbeat(ctx context.Context, agentID uuid.UUID, lat, lon float64) error
	SetStatus(ctx context.Context, agentID uuid.UUID, status enums.AgentStatus) error
	ListEligible(ctx context.Context) ([]models.Agent, error)
}

type service struct {
	repo     Repository
	logg     *logger.Logger
	cache    PositionCache
	cacheTTL time.Duration
}

// NewService builds the agent registry service. cache may be nil.
func NewService(repo Repository, logg *logger.Logger, cache PositionCache, cacheTTL time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("agents repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg, cache: cache, cacheTTL: cacheTTL}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*models.Agent, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	maxOrders := input.MaxActiveOrders
	if maxOrders <= 0 {
		maxOrders = 3
	}
	vehicle := input.VehicleType
	if vehicle == "" {
		vehicle = enums.VehicleTypeMotorcycle
	}

	agent := &models.Agent{
		UserID:          input.UserID,
		Name:            input.Name,
		Phone:           input.Phone,
		VehicleType:     vehicle,
		IsActive:        true,
		Status:          enums.AgentStatusOffline,
		MaxActiveOrders: maxOrders,
	}
	if _, err := s.repo.Create(ctx, agent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create agent")
	}
	return agent, nil
}

func (s *service) Get(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	agent, err := s.repo.Find(ctx, agentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}
	return agent, nil
}

func (s *service) Heartbeat(ctx context.Context, agentID uuid.UUID, lat, lon float64) error {
	if agentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}

	agent, err := s.Get(ctx, agentID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	affected, err := s.repo.UpdateGuarded(ctx, agent.ID, agent.Version, map[string]any{
		"current_lat":         lat,
		"current_lon":         lon,
		"position_updated_at": now,
		"updated_at":          now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store heartbeat")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "agent was modified concurrently")
	}

	if s.cache != nil {
		if err := s.cache.SetAgentPosition(ctx, agent.ID.String(), lat, lon, s.cacheTTL); err != nil {
			s.logg.Warn(s.logg.WithAgentID(ctx, agent.ID.String()), "position cache write failed: "+err.Error())
		}
	}
	return nil
}

func (s *service) SetStatus(ctx context.Context, agentID uuid.UUID, status enums.AgentStatus) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid agent status")
	}
	if status == enums.AgentStatusBusy {
		return pkgerrors.New(pkgerrors.CodeValidation, "busy is derived from load and cannot be set directly")
	}

	agent, err := s.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if agent.Status == status {
		return nil
	}

	target := status
	if status == enums.AgentStatusAvailable {
		// Coming on duty with a full plate lands straight in busy.
		target = DutyStatusFor(enums.AgentStatusAvailable, agent.CurrentActiveOrders, agent.MaxActiveOrders)
	}

	affected, err := s.repo.UpdateGuarded(ctx, agent.ID, agent.Version, map[string]any{
		"status":     target,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent status")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "agent was modified concurrently")
	}
	return nil
}

func (s *service) ListEligible(ctx context.Context) ([]models.Agent, error) {
	agents, err := s.repo.ListEligible(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible agents")
	}
	return agents, nil
}
