package agents

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/talava/dispatch-backend/api/responses"
	"github.com/talava/dispatch-backend/api/validators"
	internalagents "github.com/talava/dispatch-backend/internal/agents"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/logger"
)

type registerRequest struct {
	UserID          string `json:"user_id" validate:"required,uuid"`
	Name            string `json:"name" validate:"required,max=120"`
	Phone           string `json:"phone" validate:"omitempty,max=32"`
	VehicleType     string `json:"vehicle_type" validate:"omitempty,oneof=motorcycle bicycle car"`
	MaxActiveOrders int    `json:"max_active_orders" validate:"omitempty,min=1,max=10"`
}

// Register creates a courier profile.
func Register(svc internalagents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, _ := uuid.Parse(req.UserID)

		agent, err := svc.Register(r.Context(), internalagents.RegisterInput{
			UserID:          userID,
			Name:            req.Name,
			Phone:           req.Phone,
			VehicleType:     enums.VehicleType(req.VehicleType),
			MaxActiveOrders: req.MaxActiveOrders,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, agent)
	}
}

// Detail returns one courier profile.
func Detail(svc internalagents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := validators.ParseUUIDParam(r, "agentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		agent, err := svc.Get(r.Context(), agentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, agent)
	}
}

type heartbeatRequest struct {
	Lat float64 `json:"lat" validate:"required,latitude"`
	Lon float64 `json:"lon" validate:"required,longitude"`
}

// Heartbeat records the courier's latest position.
func Heartbeat(svc internalagents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := validators.ParseUUIDParam(r, "agentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req heartbeatRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Heartbeat(r.Context(), agentID, req.Lat, req.Lon); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"agent_id": agentID})
	}
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SetStatus flips the courier on or off duty.
func SetStatus(svc internalagents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := validators.ParseUUIDParam(r, "agentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req setStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseAgentStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		if err := svc.SetStatus(r.Context(), agentID, status); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"agent_id": agentID, "status": status})
	}
}
