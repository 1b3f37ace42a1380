package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/internal/agents"
	"github.com/talava/dispatch-backend/internal/dispatch"
	"github.com/talava/dispatch-backend/internal/orders"
	"github.com/talava/dispatch-backend/internal/wallets"
	"github.com/talava/dispatch-backend/pkg/config"
	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/pagination"
)

type stubRouterOrders struct{}

func (stubRouterOrders) Create(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error) {
	return &models.Order{ID: uuid.New()}, nil
}

func (stubRouterOrders) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: enums.OrderStatusPending}, nil
}

func (stubRouterOrders) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	return nil, nil
}

func (stubRouterOrders) Transition(ctx context.Context, input orders.TransitionInput) error {
	return nil
}

func (stubRouterOrders) CancelOrder(ctx context.Context, input orders.CancelOrderInput) error {
	return nil
}

func (stubRouterOrders) CancelItem(ctx context.Context, input orders.CancelItemInput) error {
	return nil
}

func (stubRouterOrders) GetInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	panic("not implemented")
}

func (stubRouterOrders) TransitionInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, note string, actor orders.Actor) error {
	panic("not implemented")
}

func (stubRouterOrders) RequeueForDispatch(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string, actor orders.Actor) error {
	panic("not implemented")
}

type stubRouterAgents struct{}

func (stubRouterAgents) Register(ctx context.Context, input agents.RegisterInput) (*models.Agent, error) {
	return &models.Agent{ID: uuid.New()}, nil
}

func (stubRouterAgents) Get(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	return &models.Agent{ID: agentID}, nil
}

func (stubRouterAgents) Heartbeat(ctx context.Context, agentID uuid.UUID, lat, lon float64) error {
	return nil
}

func (stubRouterAgents) SetStatus(ctx context.Context, agentID uuid.UUID, status enums.AgentStatus) error {
	return nil
}

func (stubRouterAgents) ListEligible(ctx context.Context) ([]models.Agent, error) {
	return nil, nil
}

type stubRouterDispatch struct{}

func (stubRouterDispatch) AvailableAgents(ctx context.Context, orderID uuid.UUID, params dispatch.MatchParams) ([]dispatch.Candidate, error) {
	return nil, nil
}

func (stubRouterDispatch) Assign(ctx context.Context, input dispatch.AssignInput) (*models.Assignment, error) {
	return &models.Assignment{ID: uuid.New()}, nil
}

func (stubRouterDispatch) RecordAgentEvent(ctx context.Context, input dispatch.AgentEventInput) (*models.Assignment, error) {
	return &models.Assignment{ID: uuid.New()}, nil
}

func (stubRouterDispatch) ActiveAssignment(ctx context.Context, orderID uuid.UUID) (*models.Assignment, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active assignment")
}

func (stubRouterDispatch) AssignmentHistory(ctx context.Context, orderID uuid.UUID) ([]models.Assignment, error) {
	return nil, nil
}

type stubRouterWallets struct{}

func (stubRouterWallets) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return &models.Wallet{ID: uuid.New(), UserID: userID, Balance: decimal.Zero}, nil
}

func (stubRouterWallets) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error) {
	return []models.WalletTransaction{{ID: uuid.New()}}, "", nil
}

func (stubRouterWallets) CreditInTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, txType enums.TransactionType, description string, referenceID *uuid.UUID) error {
	panic("not implemented")
}

func (stubRouterWallets) CreateWithdrawal(ctx context.Context, input wallets.CreateWithdrawalInput) (*models.WithdrawalRequest, error) {
	return &models.WithdrawalRequest{ID: uuid.New()}, nil
}

func (stubRouterWallets) ApproveWithdrawal(ctx context.Context, input wallets.WithdrawalDecisionInput) error {
	return nil
}

func (stubRouterWallets) RejectWithdrawal(ctx context.Context, input wallets.WithdrawalDecisionInput) error {
	return nil
}

func (stubRouterWallets) CompleteWithdrawal(ctx context.Context, input wallets.WithdrawalDecisionInput) error {
	return nil
}

type stubRouterNotifications struct{}

func (stubRouterNotifications) Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message string, payload any) {
}

func (stubRouterNotifications) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	return nil, nil
}

func (stubRouterNotifications) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.Dispatch.MatchRadiusKm = 10
	cfg.Dispatch.EtaMinutesPerKm = 3

	return NewRouter(
		cfg, nil, nil, prometheus.NewRegistry(),
		stubRouterOrders{}, stubRouterAgents{}, stubRouterDispatch{},
		stubRouterWallets{}, stubRouterNotifications{},
	)
}

func TestHealthzReportsEnv(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Dispatch-Env"); got != "test" {
		t.Fatalf("unexpected env header %q", got)
	}
}

func TestReadyzWithoutDBIsReady(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestOrderDetailRouted(t *testing.T) {
	router := newTestRouter(t)
	orderID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/orders/"+orderID.String(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}

	var envelope struct {
		Data models.Order `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != orderID {
		t.Fatalf("unexpected order id %s", envelope.Data.ID)
	}
}

func TestOrderDetailRejectsBadID(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestWalletTransactionsEnvelope(t *testing.T) {
	router := newTestRouter(t)
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/wallets/"+userID.String()+"/transactions", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data struct {
			Items []models.WalletTransaction `json:"items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 1 {
		t.Fatalf("expected one transaction, got %d", len(envelope.Data.Items))
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
