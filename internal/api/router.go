package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/motoshop/workshop-scheduling/internal/settings"
)

type RouterConfig struct {
	Service      Scheduler
	Availability AvailabilityReader
	NightShift   settings.Store
	Location     *time.Location
	Checks       []Check
	// Metrics and MetricsHandler are both nil when metrics are disabled.
	Metrics        HTTPObserver
	MetricsHandler http.Handler
	RequestTimeout time.Duration
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Get("/availability", availabilityHandler(cfg.Availability, loc))

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Service, loc))
		r.Get("/", listAppointmentsHandler(cfg.Service, loc))
		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/{id}", updateAppointmentHandler(cfg.Service))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Service))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service, loc))
		r.Post("/{id}/confirm", confirmAppointmentHandler(cfg.Service))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/{id}/complete", completeAppointmentHandler(cfg.Service))
	})

	r.Get("/settings/night-shift", getNightShiftHandler(cfg.NightShift))
	r.Put("/settings/night-shift", putNightShiftHandler(cfg.NightShift))

	return r
}
