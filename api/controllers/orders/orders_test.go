package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/internal/dispatch"
	internalorders "github.com/talava/dispatch-backend/internal/orders"
	"github.com/talava/dispatch-backend/pkg/config"
	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
)

type stubOrdersService struct {
	create     func(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error)
	transition func(ctx context.Context, input internalorders.TransitionInput) error
	cancelItem func(ctx context.Context, input internalorders.CancelItemInput) error
}

func (s *stubOrdersService) Create(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
	if s.create != nil {
		return s.create(ctx, input)
	}
	return &models.Order{ID: uuid.New()}, nil
}

func (s *stubOrdersService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

func (s *stubOrdersService) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	return nil, nil
}

func (s *stubOrdersService) Transition(ctx context.Context, input internalorders.TransitionInput) error {
	if s.transition != nil {
		return s.transition(ctx, input)
	}
	return nil
}

func (s *stubOrdersService) CancelOrder(ctx context.Context, input internalorders.CancelOrderInput) error {
	return nil
}

func (s *stubOrdersService) CancelItem(ctx context.Context, input internalorders.CancelItemInput) error {
	if s.cancelItem != nil {
		return s.cancelItem(ctx, input)
	}
	return nil
}

func (s *stubOrdersService) GetInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubOrdersService) TransitionInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, note string, actor internalorders.Actor) error {
	panic("not implemented")
}

func (s *stubOrdersService) RequeueForDispatch(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string, actor internalorders.Actor) error {
	panic("not implemented")
}

type stubDispatchService struct {
	available func(ctx context.Context, orderID uuid.UUID, params dispatch.MatchParams) ([]dispatch.Candidate, error)
	assign    func(ctx context.Context, input dispatch.AssignInput) (*models.Assignment, error)
	event     func(ctx context.Context, input dispatch.AgentEventInput) (*models.Assignment, error)
}

func (s *stubDispatchService) AvailableAgents(ctx context.Context, orderID uuid.UUID, params dispatch.MatchParams) ([]dispatch.Candidate, error) {
	if s.available != nil {
		return s.available(ctx, orderID, params)
	}
	return nil, nil
}

func (s *stubDispatchService) Assign(ctx context.Context, input dispatch.AssignInput) (*models.Assignment, error) {
	if s.assign != nil {
		return s.assign(ctx, input)
	}
	return &models.Assignment{ID: uuid.New()}, nil
}

func (s *stubDispatchService) RecordAgentEvent(ctx context.Context, input dispatch.AgentEventInput) (*models.Assignment, error) {
	if s.event != nil {
		return s.event(ctx, input)
	}
	return &models.Assignment{ID: uuid.New()}, nil
}

func (s *stubDispatchService) ActiveAssignment(ctx context.Context, orderID uuid.UUID) (*models.Assignment, error) {
	panic("not implemented")
}

func (s *stubDispatchService) AssignmentHistory(ctx context.Context, orderID uuid.UUID) ([]models.Assignment, error) {
	return nil, nil
}

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return d
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}

func TestCreateOrderDefaultsCurrency(t *testing.T) {
	var captured internalorders.CreateOrderInput
	svc := &stubOrdersService{
		create: func(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
			captured = input
			return &models.Order{ID: uuid.New(), Currency: input.Currency}, nil
		},
	}

	body := `{"customer_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `",
		"items":[{"name":"kebab","quantity":2,"unit_price":"45.50"}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Currency != enums.CurrencyTRY {
		t.Fatalf("expected TRY default, got %s", captured.Currency)
	}
	if len(captured.Items) != 1 || !captured.Items[0].UnitPrice.Equal(mustDecimal(t, "45.50")) {
		t.Fatalf("unit price not parsed: %+v", captured.Items)
	}
}

func TestCreateOrderRejectsBadUnitPrice(t *testing.T) {
	body := `{"customer_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `",
		"items":[{"name":"kebab","quantity":1,"unit_price":"not-a-number"}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Create(&stubOrdersService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestUpdateStatusParsesTargetAndActor(t *testing.T) {
	orderID := uuid.New()
	actorID := uuid.New()
	var captured internalorders.TransitionInput
	svc := &stubOrdersService{
		transition: func(ctx context.Context, input internalorders.TransitionInput) error {
			captured = input
			return nil
		},
	}

	r := chi.NewRouter()
	r.Put("/orders/{orderId}/status", UpdateStatus(svc, nil))

	body := `{"status":"ready","note":"kitchen done","actor_kind":"vendor","actor_id":"` + actorID.String() + `"}`
	req := httptest.NewRequest(http.MethodPut, "/orders/"+orderID.String()+"/status", strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrderID != orderID || captured.Target != enums.OrderStatusReady {
		t.Fatalf("transition input not mapped: %+v", captured)
	}
	if captured.Actor.Kind != enums.ActorKindVendor || captured.Actor.ID == nil || *captured.Actor.ID != actorID {
		t.Fatalf("actor not mapped: %+v", captured.Actor)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Put("/orders/{orderId}/status", UpdateStatus(&stubOrdersService{}, nil))

	req := httptest.NewRequest(http.MethodPut, "/orders/"+uuid.NewString()+"/status",
		strings.NewReader(`{"status":"teleported"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCancelItemMapsPathParams(t *testing.T) {
	orderID := uuid.New()
	itemID := uuid.New()
	var captured internalorders.CancelItemInput
	svc := &stubOrdersService{
		cancelItem: func(ctx context.Context, input internalorders.CancelItemInput) error {
			captured = input
			return nil
		},
	}

	r := chi.NewRouter()
	r.Post("/orders/{orderId}/items/{itemId}/cancel", CancelItem(svc, nil))

	req := httptest.NewRequest(http.MethodPost,
		"/orders/"+orderID.String()+"/items/"+itemID.String()+"/cancel",
		strings.NewReader(`{"reason":"out of stock today"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrderID != orderID || captured.ItemID != itemID {
		t.Fatalf("path params not mapped: %+v", captured)
	}
	if captured.Reason != "out of stock today" {
		t.Fatalf("reason not mapped: %q", captured.Reason)
	}
}

func TestAvailableAgentsPassesTunables(t *testing.T) {
	orderID := uuid.New()
	var captured dispatch.MatchParams
	svc := &stubDispatchService{
		available: func(ctx context.Context, id uuid.UUID, params dispatch.MatchParams) ([]dispatch.Candidate, error) {
			if id != orderID {
				t.Fatalf("unexpected order id %s", id)
			}
			captured = params
			return []dispatch.Candidate{{AgentID: uuid.NewString(), DistanceKm: 1.2, EtaMinutes: 4}}, nil
		},
	}

	cfg := config.DispatchConfig{MatchRadiusKm: 7, EtaMinutesPerKm: 4}
	r := chi.NewRouter()
	r.Get("/orders/{orderId}/available-agents", AvailableAgents(svc, cfg, nil))

	req := httptest.NewRequest(http.MethodGet, "/orders/"+orderID.String()+"/available-agents", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.RadiusKm != 7 || captured.EtaMinutesPerKm != 4 {
		t.Fatalf("tunables not passed through: %+v", captured)
	}

	var envelope struct {
		Data []dispatch.Candidate `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].EtaMinutes != 4 {
		t.Fatalf("unexpected candidates: %+v", envelope.Data)
	}
}

func TestAssignParsesTip(t *testing.T) {
	orderID := uuid.New()
	agentID := uuid.New()
	var captured dispatch.AssignInput
	svc := &stubDispatchService{
		assign: func(ctx context.Context, input dispatch.AssignInput) (*models.Assignment, error) {
			captured = input
			return &models.Assignment{ID: uuid.New(), OrderID: input.OrderID, AgentID: input.AgentID}, nil
		},
	}

	r := chi.NewRouter()
	r.Post("/orders/{orderId}/assign", Assign(svc, nil))

	body := `{"agent_id":"` + agentID.String() + `","tip_amount":"12.50"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/assign", strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrderID != orderID || captured.AgentID != agentID {
		t.Fatalf("ids not mapped: %+v", captured)
	}
	if !captured.TipAmount.Equal(mustDecimal(t, "12.50")) {
		t.Fatalf("tip not parsed: %s", captured.TipAmount)
	}
}

func TestAgentEventRejectsUnknownEvent(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/orders/{orderId}/agent-events", AgentEvent(&stubDispatchService{}, nil))

	body := `{"agent_id":"` + uuid.NewString() + `","event":"levitate"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/"+uuid.NewString()+"/agent-events", strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestAgentEventMapsReason(t *testing.T) {
	orderID := uuid.New()
	agentID := uuid.New()
	var captured dispatch.AgentEventInput
	svc := &stubDispatchService{
		event: func(ctx context.Context, input dispatch.AgentEventInput) (*models.Assignment, error) {
			captured = input
			return &models.Assignment{ID: uuid.New()}, nil
		},
	}

	r := chi.NewRouter()
	r.Post("/orders/{orderId}/agent-events", AgentEvent(svc, nil))

	body := `{"agent_id":"` + agentID.String() + `","event":"reject","reason":"vehicle breakdown"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/agent-events", strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Event != enums.AgentEventReject || captured.Reason != "vehicle breakdown" {
		t.Fatalf("event input not mapped: %+v", captured)
	}
}
