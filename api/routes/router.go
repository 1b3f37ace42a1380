package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talava/dispatch-backend/api/controllers"
	agentcontrollers "github.com/talava/dispatch-backend/api/controllers/agents"
	ordercontrollers "github.com/talava/dispatch-backend/api/controllers/orders"
	walletcontrollers "github.com/talava/dispatch-backend/api/controllers/wallets"
	"github.com/talava/dispatch-backend/api/middleware"
	"github.com/talava/dispatch-backend/internal/agents"
	"github.com/talava/dispatch-backend/internal/dispatch"
	"github.com/talava/dispatch-backend/internal/notifications"
	"github.com/talava/dispatch-backend/internal/orders"
	"github.com/talava/dispatch-backend/internal/wallets"
	"github.com/talava/dispatch-backend/pkg/config"
	"github.com/talava/dispatch-backend/pkg/db"
	"github.com/talava/dispatch-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	client *db.Client,
	registry *prometheus.Registry,
	ordersSvc orders.Service,
	agentsSvc agents.Service,
	dispatchSvc dispatch.Service,
	walletsSvc wallets.Service,
	notificationsSvc notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Get("/readyz", controllers.HealthReady(cfg, client))
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", ordercontrollers.Create(ordersSvc, logg))
		r.Route("/{orderId}", func(r chi.Router) {
			r.Get("/", ordercontrollers.Detail(ordersSvc, logg))
			r.Get("/history", ordercontrollers.History(ordersSvc, logg))
			r.Put("/status", ordercontrollers.UpdateStatus(ordersSvc, logg))
			r.Post("/cancel", ordercontrollers.Cancel(ordersSvc, logg))
			r.Post("/items/{itemId}/cancel", ordercontrollers.CancelItem(ordersSvc, logg))

			r.Get("/available-agents", ordercontrollers.AvailableAgents(dispatchSvc, cfg.Dispatch, logg))
			r.Post("/assign", ordercontrollers.Assign(dispatchSvc, logg))
			r.Post("/agent-events", ordercontrollers.AgentEvent(dispatchSvc, logg))
			r.Get("/assignments", ordercontrollers.Assignments(dispatchSvc, logg))
		})
	})

	r.Route("/agents", func(r chi.Router) {
		r.Post("/", agentcontrollers.Register(agentsSvc, logg))
		r.Route("/{agentId}", func(r chi.Router) {
			r.Get("/", agentcontrollers.Detail(agentsSvc, logg))
			r.Post("/heartbeat", agentcontrollers.Heartbeat(agentsSvc, logg))
			r.Post("/status", agentcontrollers.SetStatus(agentsSvc, logg))
		})
	})

	r.Route("/wallets/{userId}", func(r chi.Router) {
		r.Get("/", walletcontrollers.Detail(walletsSvc, logg))
		r.Get("/transactions", walletcontrollers.Transactions(walletsSvc, logg))
	})

	r.Route("/withdrawals", func(r chi.Router) {
		r.Post("/", walletcontrollers.CreateWithdrawal(walletsSvc, logg))
		r.Route("/{withdrawalId}", func(r chi.Router) {
			r.Post("/approve", walletcontrollers.ApproveWithdrawal(walletsSvc, logg))
			r.Post("/reject", walletcontrollers.RejectWithdrawal(walletsSvc, logg))
			r.Post("/complete", walletcontrollers.CompleteWithdrawal(walletsSvc, logg))
		})
	})

	r.Route("/users/{userId}/notifications", func(r chi.Router) {
		r.Get("/", controllers.ListNotifications(notificationsSvc, logg))
		r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsSvc, logg))
	})

	return r
}
