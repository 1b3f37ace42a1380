package controllers

import (
	"net/http"

	"github.com/talava/dispatch-backend/api/responses"
	"github.com/talava/dispatch-backend/pkg/config"
	"github.com/talava/dispatch-backend/pkg/db"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Dispatch-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, client *db.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Dispatch-Env", cfg.App.Env)
		if client != nil {
			if err := client.Ping(r.Context()); err != nil {
				responses.WriteSuccessStatus(w, http.StatusServiceUnavailable,
					map[string]string{"status": "degraded", "db": err.Error()})
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
