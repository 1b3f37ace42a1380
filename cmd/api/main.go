package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/talava/dispatch-backend/api/routes"
	"github.com/talava/dispatch-backend/internal/agents"
	"github.com/talava/dispatch-backend/internal/dispatch"
	"github.com/talava/dispatch-backend/internal/notifications"
	"github.com/talava/dispatch-backend/internal/orders"
	"github.com/talava/dispatch-backend/internal/settlement"
	"github.com/talava/dispatch-backend/internal/wallets"
	"github.com/talava/dispatch-backend/pkg/config"
	"github.com/talava/dispatch-backend/pkg/db"
	"github.com/talava/dispatch-backend/pkg/logger"
	"github.com/talava/dispatch-backend/pkg/metrics"
	"github.com/talava/dispatch-backend/pkg/migrate"
	"github.com/talava/dispatch-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	dispatchMetrics := metrics.NewDispatchMetrics(registry)

	conn := dbClient.DB()

	notificationsSvc, err := notifications.NewService(conn, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	agentsRepo := agents.NewRepository(conn)
	dispatchRepo := dispatch.NewRepository(conn)

	ordersSvc, err := orders.NewService(
		orders.NewRepository(conn), dbClient, logg, dispatchMetrics, notificationsSvc,
		dispatch.NewReleaser(dispatchRepo, agentsRepo),
		cfg.Dispatch.MinCancelReasonLen,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	agentsSvc, err := agents.NewService(agentsRepo, logg, redisClient, cfg.Dispatch.PositionCacheTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create agents service", err)
		os.Exit(1)
	}

	walletsSvc, err := wallets.NewService(
		wallets.NewRepository(conn), dbClient, logg, dispatchMetrics, notificationsSvc,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallets service", err)
		os.Exit(1)
	}

	settlementSvc, err := settlement.NewService(
		settlement.NewRepository(conn), agentsRepo, walletsSvc, dbClient, logg, dispatchMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	dispatchSvc, err := dispatch.NewService(
		dispatchRepo, ordersSvc, agentsRepo, settlementSvc,
		dbClient, logg, dispatchMetrics, notificationsSvc,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, registry,
			ordersSvc, agentsSvc, dispatchSvc, walletsSvc, notificationsSvc,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
