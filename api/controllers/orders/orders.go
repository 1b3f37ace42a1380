package orders

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/talava/dispatch-backend/api/responses"
	"github.com/talava/dispatch-backend/api/validators"
	"github.com/talava/dispatch-backend/internal/dispatch"
	internalorders "github.com/talava/dispatch-backend/internal/orders"
	"github.com/talava/dispatch-backend/pkg/config"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/logger"
)

type createOrderItem struct {
	Name      string `json:"name" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

type createOrderRequest struct {
	CustomerID string            `json:"customer_id" validate:"required,uuid"`
	VendorID   string            `json:"vendor_id" validate:"required,uuid"`
	Currency   string            `json:"currency" validate:"omitempty,oneof=TRY USD"`
	PickupLat  *float64          `json:"pickup_lat" validate:"omitempty,latitude"`
	PickupLon  *float64          `json:"pickup_lon" validate:"omitempty,longitude"`
	DropoffLat *float64          `json:"dropoff_lat" validate:"omitempty,latitude"`
	DropoffLon *float64          `json:"dropoff_lon" validate:"omitempty,longitude"`
	Items      []createOrderItem `json:"items" validate:"required,min=1,dive"`
}

// Create registers a new order in Pending.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID, _ := uuid.Parse(req.CustomerID)
		vendorID, _ := uuid.Parse(req.VendorID)
		currency := enums.Currency(req.Currency)
		if req.Currency == "" {
			currency = enums.CurrencyTRY
		}

		items := make([]internalorders.CreateOrderItemInput, 0, len(req.Items))
		for _, item := range req.Items {
			price, err := decimal.NewFromString(item.UnitPrice)
			if err != nil || price.IsNegative() {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "unit_price must be a non-negative decimal"))
				return
			}
			items = append(items, internalorders.CreateOrderItemInput{
				Name:      item.Name,
				Quantity:  item.Quantity,
				UnitPrice: price,
			})
		}

		order, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			CustomerID: customerID,
			VendorID:   vendorID,
			Currency:   currency,
			PickupLat:  req.PickupLat,
			PickupLon:  req.PickupLon,
			DropoffLat: req.DropoffLat,
			DropoffLon: req.DropoffLon,
			Items:      items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// Detail returns one order with its items.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// History returns the order's status audit trail.
func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.History(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

type updateStatusRequest struct {
	Status    string `json:"status" validate:"required"`
	Note      string `json:"note" validate:"omitempty,max=500"`
	ActorKind string `json:"actor_kind" validate:"omitempty,oneof=customer vendor agent admin system"`
	ActorID   string `json:"actor_id" validate:"omitempty,uuid"`
}

// UpdateStatus applies a forward transition to the order state machine.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		if err := svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID: orderID,
			Target:  target,
			Note:    req.Note,
			Actor:   actorFrom(req.ActorKind, req.ActorID),
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"order_id": orderID, "status": target})
	}
}

type cancelRequest struct {
	Reason    string `json:"reason" validate:"required"`
	ActorKind string `json:"actor_kind" validate:"omitempty,oneof=customer vendor agent admin system"`
	ActorID   string `json:"actor_id" validate:"omitempty,uuid"`
}

// Cancel cancels the whole order.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.CancelOrder(r.Context(), internalorders.CancelOrderInput{
			OrderID: orderID,
			Reason:  req.Reason,
			Actor:   actorFrom(req.ActorKind, req.ActorID),
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"order_id": orderID, "status": enums.OrderStatusCancelled})
	}
}

// CancelItem cancels one line item, cascading to the order when it was the
// last live item.
func CancelItem(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.CancelItem(r.Context(), internalorders.CancelItemInput{
			OrderID: orderID,
			ItemID:  itemID,
			Reason:  req.Reason,
			Actor:   actorFrom(req.ActorKind, req.ActorID),
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"order_id": orderID, "item_id": itemID})
	}
}

// AvailableAgents ranks dispatchable couriers near the order's pickup point.
func AvailableAgents(svc dispatch.Service, cfg config.DispatchConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		candidates, err := svc.AvailableAgents(r.Context(), orderID, dispatch.MatchParams{
			RadiusKm:        cfg.MatchRadiusKm,
			EtaMinutesPerKm: cfg.EtaMinutesPerKm,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, candidates)
	}
}

type assignRequest struct {
	AgentID   string `json:"agent_id" validate:"required,uuid"`
	TipAmount string `json:"tip_amount" validate:"omitempty"`
}

// Assign binds an agent to a ready order.
func Assign(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req assignRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		agentID, _ := uuid.Parse(req.AgentID)

		tip := decimal.Zero
		if req.TipAmount != "" {
			tip, err = decimal.NewFromString(req.TipAmount)
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "tip_amount must be a decimal"))
				return
			}
		}

		assignment, err := svc.Assign(r.Context(), dispatch.AssignInput{
			OrderID:   orderID,
			AgentID:   agentID,
			TipAmount: tip,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, assignment)
	}
}

type agentEventRequest struct {
	AgentID string `json:"agent_id" validate:"required,uuid"`
	Event   string `json:"event" validate:"required"`
	Reason  string `json:"reason" validate:"omitempty,max=500"`
}

// AgentEvent records one step of the agent's delivery timeline.
func AgentEvent(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req agentEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := enums.ParseAgentEvent(req.Event)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event"))
			return
		}
		agentID, _ := uuid.Parse(req.AgentID)

		assignment, err := svc.RecordAgentEvent(r.Context(), dispatch.AgentEventInput{
			OrderID: orderID,
			AgentID: agentID,
			Event:   event,
			Reason:  req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, assignment)
	}
}

// Assignments lists the order's full assignment history.
func Assignments(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.AssignmentHistory(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

func actorFrom(kind, id string) internalorders.Actor {
	actor := internalorders.SystemActor
	if parsed, err := enums.ParseActorKind(kind); err == nil && kind != "" {
		actor.Kind = parsed
	}
	if actorID, err := uuid.Parse(id); err == nil {
		actor.ID = &actorID
	}
	return actor
}
