// Package server exposes the HTTP surface: region ingestion, weather
// queries, alert rules and matching, and the encrypted location vault.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TerraCast/TC-Backend/internal/alerts"
	"github.com/TerraCast/TC-Backend/internal/ingest"
	"github.com/TerraCast/TC-Backend/internal/regions"
	"github.com/TerraCast/TC-Backend/internal/vault"
	"github.com/TerraCast/TC-Backend/internal/weather"
)

// Server holds every dependency the handlers need. Nothing here is a
// package global; main constructs one and mounts Routes.
type Server struct {
	Ingest    *ingest.Service
	Regions   *regions.Store
	Snapshots *weather.Store
	Query     *weather.Engine
	Rules     *alerts.Store
	Alerts    *alerts.Engine
	Vault     *vault.Vault
	Registry  *prometheus.Registry
	Token     string
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(CORSMiddleware)
	r.Use(AuthMiddleware(s.Token))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Server is up!\n"))
	})
	if s.Registry != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/weather/dates", s.ListDatesHandler)
	r.Get("/weather/regions", s.QueryHandler)
	r.Post("/weather/regions/search", s.PolygonQueryHandler)
	r.Get("/alerts/rules", s.ListRulesHandler)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		r.Post("/regions/ingest", s.IngestHandler)
		r.Delete("/regions/batch/{batchID}", s.DeleteBatchHandler)
		r.Post("/alerts/rules", s.SaveRuleHandler)
		r.Delete("/alerts/rules/{id}", s.DeleteRuleHandler)
		r.Post("/alerts/compute", s.ComputeAlertsHandler)
		r.Get("/locations", s.ListLocationsHandler)
		r.Post("/locations", s.StoreLocationHandler)
		r.Delete("/locations/{id}", s.RemoveLocationHandler)
	})

	return r
}
