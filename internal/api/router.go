package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/directory"
)

type RouterConfig struct {
	Service   *appointment.Service
	Directory directory.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret string
	Env       string
	Version   string
	Log       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints stay outside auth so orchestrators can probe them.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware([]byte(cfg.JWTSecret)))

		r.Get("/practitioners", listPractitionersHandler(cfg.Directory))
		r.Get("/patients", listPatientsHandler(cfg.Directory))
		r.Get("/practitioners/{id}/grid", weekGridHandler(cfg.Service))

		r.Post("/appointments", bookAppointmentHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Service.Cancel))
		r.Post("/appointments/{id}/complete", transitionHandler(cfg.Service.Complete))
		r.Post("/appointments/{id}/no-show", transitionHandler(cfg.Service.MarkNoShow))
	})

	return r
}
